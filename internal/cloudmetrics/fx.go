package cloudmetrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voltoralabs/voltora/internal/config"
)

const pushInterval = 30 * time.Minute

var Module = fx.Module("cloud.metrics",
	fx.Provide(func() *prometheus.Registry {
		return prometheus.NewRegistry()
	}),
	fx.Provide(NewPusher),
	fx.Provide(func(cfg config.Config, registry *prometheus.Registry, pusher Pusher) *CloudMetrics {
		return New(registry, pusher, cfg.Cloud.OrganizationID, cfg.InstanceID, cfg.AppVersion)
	}),
	fx.Invoke(runAccountingLoop),
)

// runAccountingLoop refreshes the inventory gauges and pushes the registry on
// a slow cadence. Without a configured pusher the gauges still feed /metrics.
func runAccountingLoop(lc fx.Lifecycle, c *CloudMetrics, logger *zap.Logger, db *gorm.DB) {
	if c == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting cloud metrics background worker")
			go func() {
				ticker := time.NewTicker(pushInterval)
				defer ticker.Stop()

				refreshAndPush(ctx, c, db, logger)
				for {
					select {
					case <-ticker.C:
						refreshAndPush(ctx, c, db, logger)
					case <-ctx.Done():
						logger.Info("stopping cloud metrics background worker")
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func refreshAndPush(ctx context.Context, c *CloudMetrics, db *gorm.DB, logger *zap.Logger) {
	updateSystemMetrics(c)
	updateActiveSites(ctx, c, db)
	if err := c.Push(ctx); err != nil {
		logger.Error("cloud metrics push failed", zap.Error(err))
	}
}

func updateSystemMetrics(c *CloudMetrics) {
	if c == nil {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	c.SetMemoryUsage(m.Sys)
}

func updateActiveSites(ctx context.Context, c *CloudMetrics, db *gorm.DB) {
	if c == nil || db == nil {
		return
	}
	var count int64
	err := db.WithContext(ctx).
		Table("integration_sites").
		Where("active = ?", true).
		Count(&count).Error
	if err != nil {
		return
	}
	c.SetActiveSites(count)
}
