package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/voltoralabs/voltora/internal/ingestlog/domain"
	"github.com/voltoralabs/voltora/pkg/db/option"
	"github.com/voltoralabs/voltora/pkg/db/pagination"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, log *domain.IngestionLog) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ingestion_logs (
		   id, org_id, source_type, site_id, credential_id,
		   file_path, file_name, file_size, file_format, content_hash,
		   status, stage, rows_loaded, rows_valid, rows_invalid,
		   data_start, data_end, validation_errors, error_message, metadata,
		   started_at, completed_at, processing_time_ms, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID,
		log.OrgID,
		log.SourceType,
		log.SiteID,
		log.CredentialID,
		log.FilePath,
		log.FileName,
		log.FileSize,
		log.FileFormat,
		log.ContentHash,
		log.Status,
		log.Stage,
		log.RowsLoaded,
		log.RowsValid,
		log.RowsInvalid,
		log.DataStart,
		log.DataEnd,
		log.ValidationErrors,
		log.ErrorMessage,
		log.Metadata,
		log.StartedAt,
		log.CompletedAt,
		log.ProcessingTimeMs,
		log.CreatedAt,
		log.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.IngestionLog, error) {
	var log domain.IngestionLog
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM ingestion_logs WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&log).Error
	if err != nil {
		return nil, err
	}
	if log.ID == 0 {
		return nil, nil
	}
	return &log, nil
}

func (r *repo) FindSuccessByHash(ctx context.Context, db *gorm.DB, orgID snowflake.ID, contentHash string) (*domain.IngestionLog, error) {
	var log domain.IngestionLog
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM ingestion_logs
		 WHERE org_id = ? AND content_hash = ? AND status = ?
		 ORDER BY started_at DESC
		 LIMIT 1`,
		orgID,
		contentHash,
		domain.StatusSuccess,
	).Scan(&log).Error
	if err != nil {
		return nil, err
	}
	if log.ID == 0 {
		return nil, nil
	}
	return &log, nil
}

func (r *repo) UpdateStage(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, stage string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE ingestion_logs
		 SET stage = ?, updated_at = ?
		 WHERE org_id = ? AND id = ? AND status = ?`,
		stage,
		time.Now().UTC(),
		orgID,
		id,
		domain.StatusProcessing,
	).Error
}

func (r *repo) CompleteProcessing(ctx context.Context, db *gorm.DB, log *domain.IngestionLog) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE ingestion_logs
		 SET status = ?,
		     stage = ?,
		     rows_loaded = ?,
		     rows_valid = ?,
		     rows_invalid = ?,
		     data_start = ?,
		     data_end = ?,
		     validation_errors = ?,
		     error_message = ?,
		     completed_at = ?,
		     processing_time_ms = ?,
		     updated_at = ?
		 WHERE org_id = ? AND id = ? AND status = ?`,
		log.Status,
		log.Stage,
		log.RowsLoaded,
		log.RowsValid,
		log.RowsInvalid,
		log.DataStart,
		log.DataEnd,
		log.ValidationErrors,
		log.ErrorMessage,
		log.CompletedAt,
		log.ProcessingTimeMs,
		log.UpdatedAt,
		log.OrgID,
		log.ID,
		domain.StatusProcessing,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter, page pagination.Pagination) ([]*domain.IngestionLog, error) {
	var logs []*domain.IngestionLog
	stmt := db.WithContext(ctx).
		Model(&domain.IngestionLog{}).
		Where("org_id = ?", orgID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.SourceType != "" {
		stmt = stmt.Where("source_type = ?", filter.SourceType)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("started_at desc, id desc").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *repo) SweepStale(ctx context.Context, db *gorm.DB, cutoff, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE ingestion_logs
		 SET status = ?,
		     error_message = ?,
		     completed_at = ?,
		     updated_at = ?
		 WHERE status = ? AND started_at < ?`,
		domain.StatusError,
		"processing exceeded the time ceiling",
		now,
		now,
		domain.StatusProcessing,
		cutoff,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
