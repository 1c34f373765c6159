package ingestlog

import (
	"context"

	"go.uber.org/fx"

	"github.com/voltoralabs/voltora/internal/ingestlog/repository"
	"github.com/voltoralabs/voltora/internal/ingestlog/service"
)

var Module = fx.Module("ingestlog",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(service.NewSweeper),
	fx.Invoke(runSweeper),
)

func runSweeper(lc fx.Lifecycle, sweeper *service.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sweeper.Run(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
