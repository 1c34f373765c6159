package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voltoralabs/voltora/internal/cache"
	"github.com/voltoralabs/voltora/internal/clock"
	"github.com/voltoralabs/voltora/internal/orgcontext"
	sitedomain "github.com/voltoralabs/voltora/internal/site/domain"
	siterepository "github.com/voltoralabs/voltora/internal/site/repository"
)

func setupService(t *testing.T) (sitedomain.Service, cache.SiteResolverCache, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&sitedomain.IntegrationSite{}))

	node, err := snowflake.NewNode(8)
	assert.NoError(t, err)

	resolverCache := cache.NewSiteResolverCache()
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
		Repo:  siterepository.Provide(),
		Cache: resolverCache,
	})
	return svc, resolverCache, node
}

func orgContext(orgID int64) context.Context {
	return orgcontext.WithOrgID(context.Background(), orgID)
}

func TestCreateAndGet(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := orgContext(801)

	site, err := svc.Create(ctx, sitedomain.CreateRequest{
		SourceSystem: " Solar ",
		ExternalRef:  " INV-001 ",
		ProjectID:    snowflake.ID(42),
		MeterID:      snowflake.ID(43),
		SiteName:     "Rooftop A",
	})
	assert.NoError(t, err)
	assert.NotZero(t, site.ID)
	assert.Equal(t, "solar", site.SourceSystem)
	assert.Equal(t, "INV-001", site.ExternalRef)
	assert.True(t, site.Active)

	fetched, err := svc.GetByID(ctx, site.ID)
	assert.NoError(t, err)
	assert.Equal(t, site.ID, fetched.ID)
	assert.Equal(t, "Rooftop A", fetched.SiteName)
}

func TestCreateDuplicateRef(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := orgContext(802)

	req := sitedomain.CreateRequest{
		SourceSystem: "solar",
		ExternalRef:  "INV-dup",
		ProjectID:    snowflake.ID(42),
	}
	_, err := svc.Create(ctx, req)
	assert.NoError(t, err)

	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, sitedomain.ErrDuplicateRef)

	// The same reference under another org is a different mapping.
	_, err = svc.Create(orgContext(803), req)
	assert.NoError(t, err)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := orgContext(804)

	_, err := svc.Create(context.Background(), sitedomain.CreateRequest{SourceSystem: "solar", ExternalRef: "r", ProjectID: 1})
	assert.ErrorIs(t, err, sitedomain.ErrInvalidOrganization)

	_, err = svc.Create(ctx, sitedomain.CreateRequest{ExternalRef: "r", ProjectID: 1})
	assert.ErrorIs(t, err, sitedomain.ErrInvalidSourceSystem)

	_, err = svc.Create(ctx, sitedomain.CreateRequest{SourceSystem: "solar", ExternalRef: "  ", ProjectID: 1})
	assert.ErrorIs(t, err, sitedomain.ErrInvalidExternalRef)

	_, err = svc.Create(ctx, sitedomain.CreateRequest{SourceSystem: "solar", ExternalRef: "r"})
	assert.ErrorIs(t, err, sitedomain.ErrInvalidProject)
}

func TestGetMissing(t *testing.T) {
	svc, _, node := setupService(t)

	_, err := svc.GetByID(orgContext(805), node.Generate())
	assert.ErrorIs(t, err, sitedomain.ErrNotFound)
}

func TestListIsOrgScoped(t *testing.T) {
	svc, _, _ := setupService(t)

	for _, ref := range []string{"a", "b"} {
		_, err := svc.Create(orgContext(806), sitedomain.CreateRequest{
			SourceSystem: "solar", ExternalRef: ref, ProjectID: snowflake.ID(1),
		})
		assert.NoError(t, err)
	}
	_, err := svc.Create(orgContext(807), sitedomain.CreateRequest{
		SourceSystem: "solar", ExternalRef: "c", ProjectID: snowflake.ID(1),
	})
	assert.NoError(t, err)

	sites, err := svc.List(orgContext(806))
	assert.NoError(t, err)
	assert.Len(t, sites, 2)
}

func TestCreateInvalidatesResolverCache(t *testing.T) {
	svc, resolverCache, _ := setupService(t)
	ctx := orgContext(808)

	// 1. Plant a stale mapping for the reference about to be registered.
	stale := sitedomain.ResolvedSite{ProjectID: snowflake.ID(999), MeterID: snowflake.ID(999)}
	resolverCache.SetSite("808", "solar", "", "INV-9", stale)

	site, err := svc.Create(ctx, sitedomain.CreateRequest{
		SourceSystem: "solar",
		ExternalRef:  "INV-9",
		ProjectID:    snowflake.ID(7),
		MeterID:      snowflake.ID(8),
	})
	assert.NoError(t, err)

	// 2. The stale entry is gone; resolution hits the database and returns
	// the new mapping.
	_, hit := resolverCache.GetSite("808", "solar", "", "INV-9")
	assert.False(t, hit)

	resolved, err := svc.ResolveSitesBatch(ctx, "solar", nil, []string{"INV-9"})
	assert.NoError(t, err)
	assert.Equal(t, site.ProjectID, resolved["INV-9"].ProjectID)
}

func TestResolveServesRepeatsFromCache(t *testing.T) {
	svc, resolverCache, _ := setupService(t)
	ctx := orgContext(809)

	_, err := svc.Create(ctx, sitedomain.CreateRequest{
		SourceSystem: "solar",
		ExternalRef:  "INV-10",
		ProjectID:    snowflake.ID(11),
		MeterID:      snowflake.ID(12),
	})
	assert.NoError(t, err)

	first, err := svc.ResolveSitesBatch(ctx, "solar", nil, []string{"INV-10", "missing"})
	assert.NoError(t, err)
	assert.Len(t, first, 1)

	// The hit is now cached; a second batch resolves without touching the
	// repository for that reference.
	cached, hit := resolverCache.GetSite("809", "solar", "", "INV-10")
	assert.True(t, hit)
	assert.Equal(t, snowflake.ID(11), cached.ProjectID)

	second, err := svc.ResolveSitesBatch(ctx, "solar", nil, []string{"INV-10"})
	assert.NoError(t, err)
	assert.Equal(t, first["INV-10"], second["INV-10"])
}
