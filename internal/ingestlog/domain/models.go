package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Ingestion outcomes. Everything except processing is terminal; a terminal
// row is never rewritten.
const (
	StatusProcessing  = "processing"
	StatusSuccess     = "success"
	StatusQuarantined = "quarantined"
	StatusSkipped     = "skipped"
	StatusError       = "error"
)

// Pipeline stages, recorded as the batch moves. The stage of a failed run
// points at where it stopped.
const (
	StageReceived     = "received"
	StageParsing      = "parsing"
	StageValidating   = "validating"
	StageTransforming = "transforming"
	StageResolving    = "resolving"
	StageLoading      = "loading"
	StageCompleted    = "completed"
)

// IsTerminal reports whether the status is a final outcome.
func IsTerminal(status string) bool {
	switch status {
	case StatusSuccess, StatusQuarantined, StatusSkipped, StatusError:
		return true
	}
	return false
}

// IngestionLog is the audit row for one ingestion run: what arrived, how far
// it got, and what it left behind. File fields stay empty for in-memory
// batches.
type IngestionLog struct {
	ID               snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID            snowflake.ID      `json:"organization_id" gorm:"column:org_id;not null;index:ix_ingestion_logs_org"`
	SourceType       string            `json:"source_type" gorm:"type:text;not null"`
	SiteID           *snowflake.ID     `json:"site_id"`
	CredentialID     *snowflake.ID     `json:"credential_id"`
	FilePath         string            `json:"file_path,omitempty" gorm:"type:text"`
	FileName         string            `json:"file_name,omitempty" gorm:"type:text"`
	FileSize         int64             `json:"file_size,omitempty"`
	FileFormat       string            `json:"file_format,omitempty" gorm:"type:text"`
	ContentHash      string            `json:"content_hash" gorm:"type:text;index:ix_ingestion_logs_hash"`
	Status           string            `json:"status" gorm:"type:text;not null;default:'processing'"`
	Stage            string            `json:"stage" gorm:"type:text"`
	RowsLoaded       int               `json:"rows_loaded"`
	RowsValid        int               `json:"rows_valid"`
	RowsInvalid      int               `json:"rows_invalid"`
	DataStart        *time.Time        `json:"data_start"`
	DataEnd          *time.Time        `json:"data_end"`
	ValidationErrors datatypes.JSON    `json:"validation_errors,omitempty" gorm:"type:jsonb"`
	ErrorMessage     string            `json:"error_message,omitempty" gorm:"type:text"`
	Metadata         datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	StartedAt        time.Time         `json:"started_at" gorm:"not null"`
	CompletedAt      *time.Time        `json:"completed_at"`
	ProcessingTimeMs int64             `json:"processing_time_ms"`
	CreatedAt        time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (IngestionLog) TableName() string { return "ingestion_logs" }
