package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/voltoralabs/voltora/internal/adapter"
	adapterdomain "github.com/voltoralabs/voltora/internal/adapter/domain"
	aggregatedomain "github.com/voltoralabs/voltora/internal/aggregate/domain"
	"github.com/voltoralabs/voltora/internal/clock"
	"github.com/voltoralabs/voltora/internal/config"
	"github.com/voltoralabs/voltora/internal/ingest/domain"
	ingestlogdomain "github.com/voltoralabs/voltora/internal/ingestlog/domain"
	"github.com/voltoralabs/voltora/internal/observability/metrics"
	"github.com/voltoralabs/voltora/internal/orgcontext"
	"github.com/voltoralabs/voltora/internal/ratelimit"
	readingdomain "github.com/voltoralabs/voltora/internal/reading/domain"
	"github.com/voltoralabs/voltora/internal/schema"
	sitedomain "github.com/voltoralabs/voltora/internal/site/domain"
	"github.com/voltoralabs/voltora/pkg/checksum"
)

// errorMessageLimit bounds stored failure messages; driver errors can carry
// whole statements.
const errorMessageLimit = 500

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Tuning     *config.TuningHolder
	Catalog    *schema.Catalog
	Validator  *schema.Validator
	Logs       ingestlogdomain.Service
	Sites      sitedomain.Service
	Adapters   *adapter.Registry
	Readings   readingdomain.Loader
	Aggregates aggregatedomain.Loader
	Metrics    *metrics.Metrics  `optional:"true"`
	Locker     *ratelimit.Locker `optional:"true"`
}

// Service is the ingestion pipeline entry point. Each call runs one batch
// synchronously through validate, transform, resolve and load, recording the
// outcome on an ingestion log row.
type Service struct {
	log        *zap.Logger
	clock      clock.Clock
	tuning     *config.TuningHolder
	catalog    *schema.Catalog
	validator  *schema.Validator
	logs       ingestlogdomain.Service
	sites      sitedomain.Service
	adapters   *adapter.Registry
	readings   readingdomain.Loader
	aggregates aggregatedomain.Loader
	metrics    *metrics.Metrics
	locker     *ratelimit.Locker
}

func New(p Params) domain.Service {
	return &Service{
		log:        p.Log.Named("ingest.service"),
		clock:      p.Clock,
		tuning:     p.Tuning,
		catalog:    p.Catalog,
		validator:  p.Validator,
		logs:       p.Logs,
		sites:      p.Sites,
		adapters:   p.Adapters,
		readings:   p.Readings,
		aggregates: p.Aggregates,
		metrics:    p.Metrics,
		locker:     p.Locker,
	}
}

// IngestRecords runs an in-memory reading batch through the pipeline.
// Oversized batches are refused before any log row exists, so the result
// carries no ingestion id.
func (s *Service) IngestRecords(ctx context.Context, req domain.RecordsRequest) (*domain.IngestResult, error) {
	start := s.clock.Now(ctx)
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	sourceType := normalizeSource(req.SourceType)
	if !s.catalog.IsKnown(sourceType) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSourceType, req.SourceType)
	}

	tuning := s.tuning.Get()
	if len(req.Records) > tuning.MaxBatchSize {
		s.metrics.RecordRowsRejected(ctx, sourceType, "oversize", len(req.Records))
		return s.failWithoutLog(ctx, sourceType, start, oversizeMessage(len(req.Records), tuning.MaxBatchSize)), nil
	}

	hash := checksum.Records(req.Records)
	unlock := s.lockDedup(ctx, orgID, hash)
	defer unlock()

	logRow, err := s.logs.Start(ctx, ingestlogdomain.StartRequest{
		SourceType:   sourceType,
		SiteID:       req.SiteID,
		CredentialID: req.CredentialID,
		ContentHash:  hash,
		Metadata:     req.Metadata,
	})
	if err != nil {
		s.log.Error("opening ingestion log failed", zap.Error(err))
		return s.failWithoutLog(ctx, sourceType, start, truncateMessage(err.Error())), nil
	}

	if result := s.skipDuplicate(ctx, logRow, hash); result != nil {
		return result, nil
	}
	return s.processReadings(ctx, logRow, orgID, sourceType, req.Records, req.CredentialID), nil
}

// IngestFile parses an uploaded file and runs the records through the same
// pipeline. The log row is opened before parsing, so every file outcome,
// oversize included, keeps its ingestion id.
func (s *Service) IngestFile(ctx context.Context, req domain.FileRequest) (*domain.IngestResult, error) {
	start := s.clock.Now(ctx)
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	sourceType := normalizeSource(req.SourceType)
	if !s.catalog.IsKnown(sourceType) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSourceType, req.SourceType)
	}

	format := detectFormat(req.Content, req.FileName)
	hash := checksum.Bytes(req.Content)
	unlock := s.lockDedup(ctx, orgID, hash)
	defer unlock()

	logRow, err := s.logs.Start(ctx, ingestlogdomain.StartRequest{
		SourceType:   sourceType,
		SiteID:       req.SiteID,
		CredentialID: req.CredentialID,
		FilePath:     req.FilePath,
		FileName:     req.FileName,
		FileSize:     int64(len(req.Content)),
		FileFormat:   format,
		ContentHash:  hash,
		Metadata:     req.Metadata,
	})
	if err != nil {
		s.log.Error("opening ingestion log failed", zap.Error(err))
		return s.failWithoutLog(ctx, sourceType, start, truncateMessage(err.Error())), nil
	}

	s.setStage(ctx, logRow, ingestlogdomain.StageParsing)
	records, err := parseFile(req.Content, format)
	if err != nil {
		return s.completeError(ctx, logRow, err.Error()), nil
	}

	tuning := s.tuning.Get()
	if len(records) > tuning.MaxBatchSize {
		s.metrics.RecordRowsRejected(ctx, sourceType, "oversize", len(records))
		return s.completeError(ctx, logRow, oversizeMessage(len(records), tuning.MaxBatchSize)), nil
	}

	if result := s.skipDuplicate(ctx, logRow, hash); result != nil {
		return result, nil
	}
	return s.processReadings(ctx, logRow, orgID, sourceType, records, req.CredentialID), nil
}

// IngestBillingRecords runs client billing statements through their adapter.
// Source types in the known set without a dedicated adapter fall through to
// the default adapter, so a new billing client can ship on the default
// mapping before its own adapter lands.
func (s *Service) IngestBillingRecords(ctx context.Context, req domain.BillingRequest) (*domain.IngestResult, error) {
	start := s.clock.Now(ctx)
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	sourceType := normalizeSource(req.SourceType)
	if !s.catalog.IsKnown(sourceType) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSourceType, req.SourceType)
	}
	sourceAdapter := s.adapters.ForSource(sourceType)

	tuning := s.tuning.Get()
	if len(req.Records) > tuning.MaxBatchSize {
		s.metrics.RecordRowsRejected(ctx, sourceType, "oversize", len(req.Records))
		return s.failWithoutLog(ctx, sourceType, start, oversizeMessage(len(req.Records), tuning.MaxBatchSize)), nil
	}

	hash := checksum.Records(req.Records)
	unlock := s.lockDedup(ctx, orgID, hash)
	defer unlock()

	logRow, err := s.logs.Start(ctx, ingestlogdomain.StartRequest{
		SourceType:   sourceType,
		CredentialID: req.CredentialID,
		ContentHash:  hash,
		Metadata:     req.Metadata,
	})
	if err != nil {
		s.log.Error("opening ingestion log failed", zap.Error(err))
		return s.failWithoutLog(ctx, sourceType, start, truncateMessage(err.Error())), nil
	}

	if result := s.skipDuplicate(ctx, logRow, hash); result != nil {
		return result, nil
	}
	return s.processAggregates(ctx, logRow, sourceAdapter, req.Records), nil
}

// processReadings walks a validated reading batch through transform, site
// resolution and load. A panic anywhere in the walk closes the log as an
// error; it never reaches the caller.
func (s *Service) processReadings(ctx context.Context, logRow *ingestlogdomain.IngestionLog, orgID snowflake.ID, sourceType string, records []map[string]any, credentialID *snowflake.ID) (result *domain.IngestResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("ingestion panicked",
				zap.Int64("ingestion_id", int64(logRow.ID)),
				zap.Any("panic", r),
				zap.Stack("stack"))
			result = s.completeError(ctx, logRow, fmt.Sprintf("unexpected failure: %v", r))
		}
	}()

	s.setStage(ctx, logRow, ingestlogdomain.StageValidating)
	validation := s.validator.Validate(records, sourceType)
	if !validation.IsValid {
		return s.completeQuarantined(ctx, logRow, len(records), validation)
	}

	s.setStage(ctx, logRow, ingestlogdomain.StageTransforming)
	readings := s.buildReadings(orgID, logRow.ID, sourceType, records)
	if len(readings) == 0 {
		return s.completeError(ctx, logRow, "no records produced")
	}

	s.setStage(ctx, logRow, ingestlogdomain.StageResolving)
	s.resolveSites(ctx, sourceType, credentialID, readings)

	s.setStage(ctx, logRow, ingestlogdomain.StageLoading)
	stats, err := s.readings.Load(ctx, readings)
	if err != nil {
		return s.completeError(ctx, logRow, fmt.Sprintf("load failed: %v", err))
	}

	return s.completeSuccess(ctx, logRow, int(stats.RowsInserted), len(records), stats.MinReadingAt, stats.MaxReadingAt)
}

// processAggregates is the billing variant of the walk. The adapter owns
// validation and transformation, including bulk reference resolution.
func (s *Service) processAggregates(ctx context.Context, logRow *ingestlogdomain.IngestionLog, sourceAdapter adapterdomain.Adapter, records []map[string]any) (result *domain.IngestResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("ingestion panicked",
				zap.Int64("ingestion_id", int64(logRow.ID)),
				zap.Any("panic", r),
				zap.Stack("stack"))
			result = s.completeError(ctx, logRow, fmt.Sprintf("unexpected failure: %v", r))
		}
	}()

	s.setStage(ctx, logRow, ingestlogdomain.StageValidating)
	validation := sourceAdapter.Validate(records)
	if !validation.IsValid {
		return s.completeQuarantined(ctx, logRow, len(records), validation)
	}

	s.setStage(ctx, logRow, ingestlogdomain.StageTransforming)
	aggregates, err := sourceAdapter.Transform(ctx, records)
	if err != nil {
		return s.completeError(ctx, logRow, fmt.Sprintf("transform failed: %v", err))
	}
	if len(aggregates) == 0 {
		return s.completeError(ctx, logRow, "no records produced")
	}
	for i := range aggregates {
		aggregates[i].IngestionID = logRow.ID
	}

	s.setStage(ctx, logRow, ingestlogdomain.StageLoading)
	stats, err := s.aggregates.Load(ctx, aggregates)
	if err != nil {
		return s.completeError(ctx, logRow, fmt.Sprintf("load failed: %v", err))
	}

	return s.completeSuccess(ctx, logRow, int(stats.RowsInserted), len(records), stats.MinPeriodEnd, stats.MaxPeriodEnd)
}

// skipDuplicate closes the fresh log as skipped when a prior successful run
// already ingested the same content. A failed lookup is not fatal; the
// natural keys make a double load harmless.
func (s *Service) skipDuplicate(ctx context.Context, logRow *ingestlogdomain.IngestionLog, hash string) *domain.IngestResult {
	prior, err := s.logs.FindDuplicate(ctx, hash)
	if err != nil {
		s.log.Warn("duplicate lookup failed, continuing", zap.Error(err))
		return nil
	}
	if prior == nil {
		return nil
	}

	completion := ingestlogdomain.Completion{
		Status: ingestlogdomain.StatusSkipped,
		Stage:  logRow.Stage,
	}
	if err := s.logs.Complete(ctx, logRow, completion); err != nil {
		s.log.Warn("closing ingestion log failed", zap.Error(err))
	}
	s.metrics.RecordIngestion(ctx, logRow.SourceType, ingestlogdomain.StatusSkipped)
	return s.buildResult(logRow, nil, fmt.Sprintf("duplicate content, already ingested as %d", prior.ID))
}

func (s *Service) completeQuarantined(ctx context.Context, logRow *ingestlogdomain.IngestionLog, totalRows int, validation *schema.ValidationResult) *domain.IngestResult {
	completion := ingestlogdomain.Completion{
		Status:           ingestlogdomain.StatusQuarantined,
		Stage:            ingestlogdomain.StageValidating,
		RowsValid:        totalRows - validation.RowsWithErrors,
		RowsInvalid:      validation.RowsWithErrors,
		ValidationErrors: validation,
		ErrorMessage:     validation.Message,
	}
	if err := s.logs.Complete(ctx, logRow, completion); err != nil {
		s.log.Warn("closing ingestion log failed", zap.Error(err))
	}
	s.metrics.RecordIngestion(ctx, logRow.SourceType, ingestlogdomain.StatusQuarantined)
	s.metrics.RecordRowsRejected(ctx, logRow.SourceType, "validation", validation.RowsWithErrors)
	return s.buildResult(logRow, validation, validation.Message)
}

func (s *Service) completeError(ctx context.Context, logRow *ingestlogdomain.IngestionLog, message string) *domain.IngestResult {
	completion := ingestlogdomain.Completion{
		Status:       ingestlogdomain.StatusError,
		Stage:        logRow.Stage,
		ErrorMessage: truncateMessage(message),
	}
	if err := s.logs.Complete(ctx, logRow, completion); err != nil {
		s.log.Warn("closing ingestion log failed", zap.Error(err))
	}
	s.metrics.RecordIngestion(ctx, logRow.SourceType, ingestlogdomain.StatusError)
	return s.buildResult(logRow, nil, logRow.ErrorMessage)
}

func (s *Service) completeSuccess(ctx context.Context, logRow *ingestlogdomain.IngestionLog, rowsLoaded, rowsValid int, dataStart, dataEnd *time.Time) *domain.IngestResult {
	completion := ingestlogdomain.Completion{
		Status:     ingestlogdomain.StatusSuccess,
		Stage:      ingestlogdomain.StageCompleted,
		RowsLoaded: rowsLoaded,
		RowsValid:  rowsValid,
		DataStart:  dataStart,
		DataEnd:    dataEnd,
	}
	if err := s.logs.Complete(ctx, logRow, completion); err != nil {
		s.log.Warn("closing ingestion log failed", zap.Error(err))
	}
	s.metrics.RecordIngestion(ctx, logRow.SourceType, ingestlogdomain.StatusSuccess)
	s.metrics.RecordRowsLoaded(ctx, logRow.SourceType, rowsLoaded)
	return s.buildResult(logRow, nil, fmt.Sprintf("%d rows loaded", rowsLoaded))
}

// failWithoutLog reports a refusal that happened before any log row existed.
// The result carries no ingestion id.
func (s *Service) failWithoutLog(ctx context.Context, sourceType string, start time.Time, message string) *domain.IngestResult {
	s.metrics.RecordIngestion(ctx, sourceType, ingestlogdomain.StatusError)
	return &domain.IngestResult{
		Status:           ingestlogdomain.StatusError,
		ProcessingTimeMs: s.clock.Now(ctx).Sub(start).Milliseconds(),
		Message:          message,
	}
}

func (s *Service) buildResult(logRow *ingestlogdomain.IngestionLog, validation *schema.ValidationResult, message string) *domain.IngestResult {
	result := &domain.IngestResult{
		IngestionID:      logRow.ID,
		Status:           logRow.Status,
		RowsAccepted:     logRow.RowsLoaded,
		RowsRejected:     logRow.RowsInvalid,
		DataStart:        logRow.DataStart,
		DataEnd:          logRow.DataEnd,
		ProcessingTimeMs: logRow.ProcessingTimeMs,
		Message:          message,
	}
	if validation != nil && len(validation.Errors) > 0 {
		limit := s.tuning.Get().ResultErrorLimit
		if limit > len(validation.Errors) {
			limit = len(validation.Errors)
		}
		result.Errors = validation.Errors[:limit]
	}
	return result
}

// lockDedup serializes the duplicate check against concurrent identical
// deliveries. Without redis, or when the lock is contended or unreachable,
// processing proceeds and the natural keys keep the data consistent.
func (s *Service) lockDedup(ctx context.Context, orgID snowflake.ID, hash string) func() {
	noop := func() {}
	if s.locker == nil || hash == "" {
		return noop
	}

	key := fmt.Sprintf("ingest:dedup:%d:%s", orgID, hash)
	token, ok, err := s.locker.TryLock(ctx, key, s.tuning.Get().DedupLockTTL)
	if err != nil {
		s.log.Debug("dedup lock unavailable, continuing", zap.Error(err))
		return noop
	}
	if !ok {
		s.log.Debug("dedup lock contended, continuing", zap.String("key", key))
		return noop
	}
	return func() {
		if err := s.locker.Release(ctx, key, token); err != nil {
			s.log.Debug("dedup lock release failed", zap.Error(err))
		}
	}
}

func (s *Service) setStage(ctx context.Context, logRow *ingestlogdomain.IngestionLog, stage string) {
	if err := s.logs.SetStage(ctx, logRow, stage); err != nil {
		s.log.Warn("stage update failed", zap.String("stage", stage), zap.Error(err))
	}
}

func normalizeSource(sourceType string) string {
	return strings.ToLower(strings.TrimSpace(sourceType))
}

func oversizeMessage(count, maxSize int) string {
	return fmt.Sprintf("batch of %d records exceeds the maximum of %d", count, maxSize)
}

func truncateMessage(message string) string {
	if len(message) <= errorMessageLimit {
		return message
	}
	cut := message[:errorMessageLimit]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut + "..."
}
