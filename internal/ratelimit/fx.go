package ratelimit

import (
	"strings"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/voltoralabs/voltora/internal/config"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewRedisClient),
	fx.Provide(NewIngestLimiter),
	fx.Provide(NewLocker),
)

// NewRedisClient connects the shared redis client, or returns nil when no
// address is configured. The limiter and the advisory locker both degrade
// gracefully without it.
func NewRedisClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
}
