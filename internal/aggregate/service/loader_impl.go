package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	aggregatedomain "github.com/voltoralabs/voltora/internal/aggregate/domain"
	"github.com/voltoralabs/voltora/internal/config"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Tuning *config.TuningHolder
}

type Loader struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	tuning *config.TuningHolder
}

func NewLoader(p Params) aggregatedomain.Loader {
	return &Loader{
		db:     p.DB,
		log:    p.Log.Named("aggregate.loader"),
		genID:  p.GenID,
		tuning: p.Tuning,
	}
}

// Load inserts aggregates in fixed-size chunks, skipping rows whose natural
// key already exists. Restated statements therefore keep the first accepted
// figures; corrections go through a dedicated amendment flow, not ingest.
func (l *Loader) Load(ctx context.Context, aggregates []aggregatedomain.MeterAggregate) (aggregatedomain.LoadStats, error) {
	stats := aggregatedomain.LoadStats{RowsInput: len(aggregates)}
	if len(aggregates) == 0 {
		return stats, nil
	}

	now := time.Now().UTC()
	for i := range aggregates {
		a := &aggregates[i]
		if a.ID == 0 {
			a.ID = l.genID.Generate()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}

		if a.PeriodEnd != nil {
			end := *a.PeriodEnd
			if stats.MinPeriodEnd == nil || end.Before(*stats.MinPeriodEnd) {
				t := end
				stats.MinPeriodEnd = &t
			}
			if stats.MaxPeriodEnd == nil || end.After(*stats.MaxPeriodEnd) {
				t := end
				stats.MaxPeriodEnd = &t
			}
		}
	}

	chunkSize := l.tuning.Get().LoaderChunkSize
	conflict := buildAggregateConflictClause()
	for start := 0; start < len(aggregates); start += chunkSize {
		end := min(start+chunkSize, len(aggregates))
		batch := aggregates[start:end]
		result := l.db.WithContext(ctx).Clauses(conflict).Create(&batch)
		if result.Error != nil {
			return stats, result.Error
		}
		stats.RowsInserted += result.RowsAffected
	}

	l.log.Info("aggregates loaded",
		zap.Int("rows_input", stats.RowsInput),
		zap.Int64("rows_inserted", stats.RowsInserted),
	)
	return stats, nil
}

func buildAggregateConflictClause() clause.OnConflict {
	return clause.OnConflict{
		Columns: []clause.Column{
			{Name: "org_id"},
			{Name: "source_system"},
			{Name: "external_meter_id"},
			{Name: "period_end"},
		},
		DoNothing: true,
	}
}
