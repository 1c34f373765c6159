package site

import (
	"go.uber.org/fx"

	"github.com/voltoralabs/voltora/internal/cache"
	"github.com/voltoralabs/voltora/internal/site/repository"
	"github.com/voltoralabs/voltora/internal/site/service"
)

var Module = fx.Module("site.service",
	fx.Provide(cache.NewSiteResolverCache),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
