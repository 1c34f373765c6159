package domain

import (
	"context"
	"errors"

	aggregatedomain "github.com/voltoralabs/voltora/internal/aggregate/domain"
	"github.com/voltoralabs/voltora/internal/schema"
)

// Adapter validates and transforms one billing client's native record shape
// into canonical aggregates. New clients get a new implementation behind this
// interface, never a new code path in the pipeline.
type Adapter interface {
	// Name is the source-type string the adapter is registered under.
	Name() string
	// Validate checks the client-native structure before any transformation.
	Validate(records []map[string]any) *schema.ValidationResult
	// Transform maps validated records into canonical aggregates and runs
	// bulk reference resolution on the result.
	Transform(ctx context.Context, records []map[string]any) ([]aggregatedomain.MeterAggregate, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
)
