package tariff

import (
	"go.uber.org/fx"

	"github.com/voltoralabs/voltora/internal/tariff/repository"
)

var Module = fx.Module("tariff",
	fx.Provide(repository.Provide),
)
