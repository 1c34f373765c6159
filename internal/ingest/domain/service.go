package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	// ErrUnknownSourceType is the one failure reported as an error instead
	// of a terminal result status. Nothing is logged for a source type the
	// catalog does not admit.
	ErrUnknownSourceType   = errors.New("unknown_source_type")
	ErrInvalidOrganization = errors.New("invalid_organization")
)

// RecordsRequest ingests an in-memory batch of raw reading records.
type RecordsRequest struct {
	SourceType   string
	Records      []map[string]any
	Metadata     map[string]any
	SiteID       *snowflake.ID
	CredentialID *snowflake.ID
}

// FileRequest ingests an uploaded file. Content is the raw upload;
// FilePath, when set, records where the handler staged it.
type FileRequest struct {
	SourceType   string
	Content      []byte
	FileName     string
	FilePath     string
	Metadata     map[string]any
	SiteID       *snowflake.ID
	CredentialID *snowflake.ID
}

// BillingRequest ingests client billing statements through their adapter.
type BillingRequest struct {
	SourceType   string
	Records      []map[string]any
	Metadata     map[string]any
	CredentialID *snowflake.ID
}

// Service runs the ingestion pipeline. Every call returns a well-formed
// IngestResult; all processing failures surface as a terminal result status,
// never as an error.
type Service interface {
	IngestRecords(ctx context.Context, req RecordsRequest) (*IngestResult, error)
	IngestFile(ctx context.Context, req FileRequest) (*IngestResult, error)
	IngestBillingRecords(ctx context.Context, req BillingRequest) (*IngestResult, error)
}
