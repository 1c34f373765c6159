package clock

import (
	"context"
	"time"

	"go.uber.org/fx"
)

// Module provides the system clock.
var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)

// Clock abstracts time for components that stamp or age rows.
type Clock interface {
	Now(ctx context.Context) time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now(ctx context.Context) time.Time {
	_ = ctx
	return time.Now().UTC()
}
