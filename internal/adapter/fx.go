package adapter

import (
	"go.uber.org/fx"

	"github.com/voltoralabs/voltora/internal/adapter/meridian"
)

var Module = fx.Module("adapter",
	fx.Provide(meridian.New),
	fx.Provide(NewRegistry),
)
