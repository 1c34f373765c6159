package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/voltoralabs/voltora/internal/schema"
	"github.com/voltoralabs/voltora/pkg/db/pagination"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrNotFound            = errors.New("ingestion_log_not_found")
)

// StartRequest opens a processing log row. File fields are zero for
// in-memory batches.
type StartRequest struct {
	SourceType   string
	SiteID       *snowflake.ID
	CredentialID *snowflake.ID
	FilePath     string
	FileName     string
	FileSize     int64
	FileFormat   string
	ContentHash  string
	Metadata     map[string]any
}

// Completion carries a terminal outcome. Stage records how far the run got.
type Completion struct {
	Status           string
	Stage            string
	RowsLoaded       int
	RowsValid        int
	RowsInvalid      int
	DataStart        *time.Time
	DataEnd          *time.Time
	ValidationErrors *schema.ValidationResult
	ErrorMessage     string
}

type ListRequest struct {
	Filter ListFilter
	Page   pagination.Pagination
}

type ListResponse struct {
	Logs     []IngestionLog      `json:"ingestions"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	Start(ctx context.Context, req StartRequest) (*IngestionLog, error)

	// SetStage advances the stage marker of a running log.
	SetStage(ctx context.Context, log *IngestionLog, stage string) error

	// Complete closes the run. When the row already reached a terminal
	// status, the stored outcome wins and log is refreshed to match it.
	Complete(ctx context.Context, log *IngestionLog, completion Completion) error

	// FindDuplicate returns the successful run that already ingested the
	// given content, or nil.
	FindDuplicate(ctx context.Context, contentHash string) (*IngestionLog, error)

	Get(ctx context.Context, id snowflake.ID) (*IngestionLog, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)

	// SweepStale fails runs that have been processing longer than the
	// configured ceiling.
	SweepStale(ctx context.Context) (int64, error)
}
