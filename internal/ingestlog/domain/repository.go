package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/voltoralabs/voltora/pkg/db/pagination"
)

// ListFilter narrows an ingestion-log listing.
type ListFilter struct {
	Status     string
	SourceType string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, log *IngestionLog) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*IngestionLog, error)

	// FindSuccessByHash returns the most recent successful run that ingested
	// the same content, or nil.
	FindSuccessByHash(ctx context.Context, db *gorm.DB, orgID snowflake.ID, contentHash string) (*IngestionLog, error)

	UpdateStage(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, stage string) error

	// CompleteProcessing applies the terminal update only while the row is
	// still processing. Returns false when another writer got there first.
	CompleteProcessing(ctx context.Context, db *gorm.DB, log *IngestionLog) (bool, error)

	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]*IngestionLog, error)

	// SweepStale fails every processing run started before the cutoff,
	// across all orgs. Returns the number of rows flipped.
	SweepStale(ctx context.Context, db *gorm.DB, cutoff, now time.Time) (int64, error)
}
