package billingperiod

import (
	"go.uber.org/fx"

	"github.com/voltoralabs/voltora/internal/billingperiod/repository"
)

var Module = fx.Module("billingperiod",
	fx.Provide(repository.Provide),
)
