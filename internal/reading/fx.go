package reading

import (
	"go.uber.org/fx"

	"github.com/voltoralabs/voltora/internal/reading/service"
)

var Module = fx.Module("reading.loader",
	fx.Provide(service.NewLoader),
)
