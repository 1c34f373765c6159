package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/voltoralabs/voltora/internal/schema"
)

// IngestResult is the caller-facing outcome of one ingestion run. Callers
// branch on Status; Errors carries at most the configured surfaced limit
// while the full error list stays on the ingestion log.
type IngestResult struct {
	IngestionID      snowflake.ID      `json:"ingestion_id"`
	Status           string            `json:"status"`
	RowsAccepted     int               `json:"rows_accepted"`
	RowsRejected     int               `json:"rows_rejected"`
	Errors           []schema.RowError `json:"errors,omitempty"`
	DataStart        *time.Time        `json:"data_start,omitempty"`
	DataEnd          *time.Time        `json:"data_end,omitempty"`
	ProcessingTimeMs int64             `json:"processing_time_ms"`
	Message          string            `json:"message"`
}
