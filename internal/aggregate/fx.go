package aggregate

import (
	"go.uber.org/fx"

	"github.com/voltoralabs/voltora/internal/aggregate/service"
)

var Module = fx.Module("aggregate.loader",
	fx.Provide(service.NewLoader),
)
