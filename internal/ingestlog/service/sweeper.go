package service

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/voltoralabs/voltora/internal/config"
	"github.com/voltoralabs/voltora/internal/ingestlog/domain"
)

type SweeperParams struct {
	fx.In

	Log    *zap.Logger
	Tuning *config.TuningHolder
	Store  domain.Service
}

// Sweeper periodically fails ingestion runs stuck in processing, so a
// crashed worker never leaves a log open forever.
type Sweeper struct {
	log    *zap.Logger
	tuning *config.TuningHolder
	store  domain.Service
}

func NewSweeper(p SweeperParams) *Sweeper {
	return &Sweeper{
		log:    p.Log.Named("ingestlog.sweeper"),
		tuning: p.Tuning,
		store:  p.Store,
	}
}

// Run sweeps once immediately, then on every tick until the context ends.
// The first pass cleans up rows left behind by a previous process.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.tuning.Get().SweepInterval)
	defer ticker.Stop()

	for {
		if _, err := w.store.SweepStale(ctx); err != nil {
			w.log.Warn("stale sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
