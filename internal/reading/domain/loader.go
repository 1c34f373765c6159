package domain

import (
	"context"
	"time"
)

// LoadStats summarizes one loader pass. The time range covers the input
// batch, including rows the database skipped as duplicates.
type LoadStats struct {
	RowsInput    int
	RowsInserted int64
	MinReadingAt *time.Time
	MaxReadingAt *time.Time
}

// Loader persists transformed readings. Duplicate natural keys are skipped,
// not errored.
type Loader interface {
	Load(ctx context.Context, readings []MeterReading) (LoadStats, error)
}
