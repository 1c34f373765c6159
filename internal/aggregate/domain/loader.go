package domain

import (
	"context"
	"time"
)

// LoadStats summarizes one loader pass over billing aggregates. The period
// range covers the input batch, including rows skipped as duplicates.
type LoadStats struct {
	RowsInput    int
	RowsInserted int64
	MinPeriodEnd *time.Time
	MaxPeriodEnd *time.Time
}

// Loader persists billing aggregates. Duplicate natural keys are skipped,
// not errored.
type Loader interface {
	Load(ctx context.Context, aggregates []MeterAggregate) (LoadStats, error)
}
