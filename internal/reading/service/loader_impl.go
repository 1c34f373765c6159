package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voltoralabs/voltora/internal/config"
	readingdomain "github.com/voltoralabs/voltora/internal/reading/domain"
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

func NewLoader(p Params) readingdomain.Loader {
	return &Loader{
		db:     p.DB,
		log:    p.Log.Named("reading.loader"),
		genID:  p.GenID,
		tuning: p.Tuning,
	}
}

// Load inserts readings in fixed-size chunks. Rows whose natural key already
// exists are skipped by the database, so replayed batches never error and
// never double-insert. The returned stats count inserts and cover the time
// range of the whole input.
func (l *Loader) Load(ctx context.Context, readings []readingdomain.MeterReading) (readingdomain.LoadStats, error) {
	stats := readingdomain.LoadStats{RowsInput: len(readings)}
	if len(readings) == 0 {
		return stats, nil
	}

	now := time.Now().UTC()
	unknownIntervals := map[int]struct{}{}
	for i := range readings {
		r := &readings[i]
		if r.ID == 0 {
			r.ID = l.genID.Generate()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.IntervalSeconds == 0 {
			r.IntervalSeconds = 900
		}
		bucket, known := readingdomain.IntervalBucketFor(r.IntervalSeconds)
		if !known {
			unknownIntervals[r.IntervalSeconds] = struct{}{}
		}
		r.IntervalBucket = bucket

		at := r.ReadingAt
		if stats.MinReadingAt == nil || at.Before(*stats.MinReadingAt) {
			t := at
			stats.MinReadingAt = &t
		}
		if stats.MaxReadingAt == nil || at.After(*stats.MaxReadingAt) {
			t := at
			stats.MaxReadingAt = &t
		}
	}
	if len(unknownIntervals) > 0 {
		intervals := make([]int, 0, len(unknownIntervals))
		for v := range unknownIntervals {
			intervals = append(intervals, v)
		}
		l.log.Warn("unlisted reading intervals bucketed as default",
			zap.Ints("interval_seconds", intervals),
			zap.String("bucket", readingdomain.DefaultIntervalBucket),
		)
	}

	chunkSize := l.tuning.Get().LoaderChunkSize
	conflict := buildReadingConflictClause()
	for start := 0; start < len(readings); start += chunkSize {
		end := min(start+chunkSize, len(readings))
		batch := readings[start:end]
		result := l.db.WithContext(ctx).Clauses(conflict).Create(&batch)
		if result.Error != nil {
			return stats, result.Error
		}
		stats.RowsInserted += result.RowsAffected
	}

	l.log.Info("readings loaded",
		zap.Int("rows_input", stats.RowsInput),
		zap.Int64("rows_inserted", stats.RowsInserted),
	)
	return stats, nil
}

// buildReadingConflictClause targets the natural-key unique index. The key
// has no partial predicate, so the same clause serves every dialect.
func buildReadingConflictClause() clause.OnConflict {
	return clause.OnConflict{
		Columns: []clause.Column{
			{Name: "org_id"},
			{Name: "source_system"},
			{Name: "external_device_id"},
			{Name: "reading_at"},
		},
		DoNothing: true,
	}
}
