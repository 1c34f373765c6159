package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/voltoralabs/voltora/internal/clock"
	"github.com/voltoralabs/voltora/internal/config"
	"github.com/voltoralabs/voltora/internal/ingestlog/domain"
	"github.com/voltoralabs/voltora/internal/orgcontext"
	"github.com/voltoralabs/voltora/pkg/db/pagination"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Clock  clock.Clock
	Tuning *config.TuningHolder
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   domain.Repository
	clock  clock.Clock
	tuning *config.TuningHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("ingestlog.service"),
		genID:  p.GenID,
		repo:   p.Repo,
		clock:  p.Clock,
		tuning: p.Tuning,
	}
}

func (s *Service) Start(ctx context.Context, req domain.StartRequest) (*domain.IngestionLog, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	now := s.clock.Now(ctx)
	log := &domain.IngestionLog{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		SourceType:   strings.ToLower(strings.TrimSpace(req.SourceType)),
		SiteID:       req.SiteID,
		CredentialID: req.CredentialID,
		FilePath:     req.FilePath,
		FileName:     req.FileName,
		FileSize:     req.FileSize,
		FileFormat:   req.FileFormat,
		ContentHash:  req.ContentHash,
		Status:       domain.StatusProcessing,
		Stage:        domain.StageReceived,
		Metadata:     datatypes.JSONMap(req.Metadata),
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, log); err != nil {
		return nil, err
	}

	s.log.Info("ingestion started",
		zap.String("ingestion_id", log.ID.String()),
		zap.String("source_type", log.SourceType),
		zap.String("file_name", log.FileName),
	)
	return log, nil
}

func (s *Service) SetStage(ctx context.Context, log *domain.IngestionLog, stage string) error {
	if err := s.repo.UpdateStage(ctx, s.db, log.OrgID, log.ID, stage); err != nil {
		return err
	}
	log.Stage = stage
	return nil
}

func (s *Service) Complete(ctx context.Context, log *domain.IngestionLog, completion domain.Completion) error {
	now := s.clock.Now(ctx)

	log.Status = completion.Status
	log.Stage = completion.Stage
	log.RowsLoaded = completion.RowsLoaded
	log.RowsValid = completion.RowsValid
	log.RowsInvalid = completion.RowsInvalid
	log.DataStart = completion.DataStart
	log.DataEnd = completion.DataEnd
	log.ErrorMessage = completion.ErrorMessage
	if completion.ValidationErrors != nil {
		raw, err := json.Marshal(completion.ValidationErrors)
		if err != nil {
			return err
		}
		log.ValidationErrors = datatypes.JSON(raw)
	}
	completed := now
	log.CompletedAt = &completed
	log.ProcessingTimeMs = now.Sub(log.StartedAt).Milliseconds()
	log.UpdatedAt = now

	applied, err := s.repo.CompleteProcessing(ctx, s.db, log)
	if err != nil {
		return err
	}
	if !applied {
		// The row reached a terminal status first, likely via the stale
		// sweeper. The stored outcome wins.
		if stored, ferr := s.repo.FindByID(ctx, s.db, log.OrgID, log.ID); ferr == nil && stored != nil {
			*log = *stored
		}
		s.log.Warn("ingestion already finalized",
			zap.String("ingestion_id", log.ID.String()),
			zap.String("stored_status", log.Status),
			zap.String("attempted_status", completion.Status),
		)
		return nil
	}

	s.log.Info("ingestion finalized",
		zap.String("ingestion_id", log.ID.String()),
		zap.String("status", log.Status),
		zap.String("stage", log.Stage),
		zap.Int("rows_loaded", log.RowsLoaded),
		zap.Int64("processing_time_ms", log.ProcessingTimeMs),
	)
	return nil
}

func (s *Service) FindDuplicate(ctx context.Context, contentHash string) (*domain.IngestionLog, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if contentHash == "" {
		return nil, nil
	}
	return s.repo.FindSuccessByHash(ctx, s.db, orgID, contentHash)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.IngestionLog, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	log, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if log == nil {
		return nil, domain.ErrNotFound
	}
	return log, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ListResponse{}, domain.ErrInvalidOrganization
	}

	size := req.Page.PageSize
	if size <= 0 {
		size = 20
	}
	if size > 250 {
		size = 250
	}

	items, err := s.repo.List(ctx, s.db, orgID, req.Filter, pagination.Pagination{
		PageToken: req.Page.PageToken,
		PageSize:  size,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(size), func(log *domain.IngestionLog) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        log.ID.String(),
			StartedAt: log.StartedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > size {
		items = items[:size]
	}

	logs := make([]domain.IngestionLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}

	resp := domain.ListResponse{Logs: logs}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) SweepStale(ctx context.Context) (int64, error) {
	cfg := s.tuning.Get()
	now := s.clock.Now(ctx)

	flipped, err := s.repo.SweepStale(ctx, s.db, now.Add(-cfg.StuckLogMaxAge), now)
	if err != nil {
		return 0, err
	}
	if flipped > 0 {
		s.log.Warn("stale ingestions failed",
			zap.Int64("count", flipped),
			zap.Duration("max_age", cfg.StuckLogMaxAge),
		)
	}
	return flipped, nil
}
