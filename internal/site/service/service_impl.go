package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voltoralabs/voltora/internal/cache"
	"github.com/voltoralabs/voltora/internal/clock"
	"github.com/voltoralabs/voltora/internal/orgcontext"
	sitedomain "github.com/voltoralabs/voltora/internal/site/domain"
	"github.com/voltoralabs/voltora/pkg/db"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  sitedomain.Repository
	Cache cache.SiteResolverCache
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  sitedomain.Repository
	cache cache.SiteResolverCache
}

func New(p Params) sitedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("site.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		cache: p.Cache,
	}
}

// Create registers a mapping from an external reference onto a project and
// meter. The (org, source system, external ref) triple is unique; a second
// registration reports ErrDuplicateRef.
func (s *Service) Create(ctx context.Context, req sitedomain.CreateRequest) (*sitedomain.IntegrationSite, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, sitedomain.ErrInvalidOrganization
	}

	sourceSystem := strings.ToLower(strings.TrimSpace(req.SourceSystem))
	if sourceSystem == "" {
		return nil, sitedomain.ErrInvalidSourceSystem
	}
	externalRef := strings.TrimSpace(req.ExternalRef)
	if externalRef == "" {
		return nil, sitedomain.ErrInvalidExternalRef
	}
	if req.ProjectID == 0 {
		return nil, sitedomain.ErrInvalidProject
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.clock.Now(ctx)
	site := &sitedomain.IntegrationSite{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		SourceSystem: sourceSystem,
		ExternalRef:  externalRef,
		CredentialID: req.CredentialID,
		ProjectID:    req.ProjectID,
		MeterID:      req.MeterID,
		SiteName:     strings.TrimSpace(req.SiteName),
		Active:       active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Insert(ctx, s.db, site); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, sitedomain.ErrDuplicateRef
		}
		return nil, err
	}

	// A stale cache entry would keep resolving to the old mapping until the
	// TTL runs out.
	credKey := ""
	if site.CredentialID != nil {
		credKey = site.CredentialID.String()
	}
	s.cache.InvalidateSite(orgID.String(), sourceSystem, credKey, externalRef)

	s.log.Info("integration site registered",
		zap.String("site_id", site.ID.String()),
		zap.String("source_system", sourceSystem),
		zap.String("external_ref", externalRef),
	)
	return site, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*sitedomain.IntegrationSite, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, sitedomain.ErrInvalidOrganization
	}

	site, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, sitedomain.ErrNotFound
	}
	return site, nil
}

func (s *Service) List(ctx context.Context) ([]sitedomain.IntegrationSite, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, sitedomain.ErrInvalidOrganization
	}
	return s.repo.List(ctx, s.db, orgID)
}

// ResolveSitesBatch maps external references onto internal sites for the
// calling org, optionally scoped to the credential the payload arrived
// through. Cache hits are served directly; the remainder is fetched in a
// single query. References that resolve to nothing are simply absent from
// the returned map.
func (s *Service) ResolveSitesBatch(ctx context.Context, sourceSystem string, credentialID *snowflake.ID, refs []string) (map[string]sitedomain.ResolvedSite, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, sitedomain.ErrInvalidOrganization
	}

	sourceSystem = strings.ToLower(strings.TrimSpace(sourceSystem))
	if sourceSystem == "" {
		return nil, sitedomain.ErrInvalidSourceSystem
	}
	credKey := ""
	if credentialID != nil {
		credKey = credentialID.String()
	}

	resolved := make(map[string]sitedomain.ResolvedSite, len(refs))
	missing := make([]string, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))

	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}

		if site, hit := s.cache.GetSite(orgID.String(), sourceSystem, credKey, ref); hit {
			resolved[ref] = site
			continue
		}
		missing = append(missing, ref)
	}

	if len(missing) > 0 {
		sites, err := s.repo.FindByRefs(ctx, s.db, orgID, sourceSystem, credentialID, missing)
		if err != nil {
			return nil, err
		}
		for i := range sites {
			site := sitedomain.ResolvedSite{
				ProjectID: sites[i].ProjectID,
				MeterID:   sites[i].MeterID,
			}
			resolved[sites[i].ExternalRef] = site
			s.cache.SetSite(orgID.String(), sourceSystem, credKey, sites[i].ExternalRef, site)
		}
	}

	if len(resolved) < len(seen) {
		s.log.Debug("unresolved site references",
			zap.String("source_system", sourceSystem),
			zap.Int("requested", len(seen)),
			zap.Int("resolved", len(resolved)),
		)
	}

	return resolved, nil
}
