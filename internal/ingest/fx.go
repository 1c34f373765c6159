package ingest

import (
	"go.uber.org/fx"

	"github.com/voltoralabs/voltora/internal/ingest/service"
)

var Module = fx.Module("ingest",
	fx.Provide(service.New),
)
