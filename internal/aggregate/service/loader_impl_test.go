package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"

	aggregatedomain "github.com/voltoralabs/voltora/internal/aggregate/domain"
	"github.com/voltoralabs/voltora/internal/config"
	"github.com/voltoralabs/voltora/pkg/decimal"
)

func setupLoader(t *testing.T) (aggregatedomain.Loader, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&aggregatedomain.MeterAggregate{}))

	node, err := snowflake.NewNode(2)
	assert.NoError(t, err)

	loader := NewLoader(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Tuning: config.StaticTuning(config.DefaultIngestTuning()),
	})
	return loader, db, node
}

func TestLoad_InsertsAndSkipsRestatements(t *testing.T) {
	loader, db, node := setupLoader(t)
	orgID := node.Generate()

	mayEnd := time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC)
	juneEnd := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

	mayStart := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	juneStart := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	first := []aggregatedomain.MeterAggregate{
		{
			OrgID:           orgID,
			SourceSystem:    "meridian",
			ExternalMeterID: "MTR-1",
			PeriodStart:     &mayStart,
			PeriodEnd:       &mayEnd,
			ProductionKWh:   decimal.NullFrom(decimal.NewFromInt64(1200)),
		},
		{
			OrgID:           orgID,
			SourceSystem:    "meridian",
			ExternalMeterID: "MTR-1",
			PeriodStart:     &juneStart,
			PeriodEnd:       &juneEnd,
			ProductionKWh:   decimal.NullFrom(decimal.NewFromInt64(1400)),
		},
	}

	stats, err := loader.Load(context.Background(), first)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), stats.RowsInserted)
	if assert.NotNil(t, stats.MinPeriodEnd) {
		assert.True(t, mayEnd.Equal(*stats.MinPeriodEnd))
	}
	if assert.NotNil(t, stats.MaxPeriodEnd) {
		assert.True(t, juneEnd.Equal(*stats.MaxPeriodEnd))
	}

	// A restated May statement with different figures is skipped, keeping
	// the first accepted values.
	restated := []aggregatedomain.MeterAggregate{
		{
			OrgID:           orgID,
			SourceSystem:    "meridian",
			ExternalMeterID: "MTR-1",
			PeriodStart:     &mayStart,
			PeriodEnd:       &mayEnd,
			ProductionKWh:   decimal.NullFrom(decimal.NewFromInt64(999)),
		},
	}
	stats, err = loader.Load(context.Background(), restated)
	assert.NoError(t, err)
	assert.Zero(t, stats.RowsInserted)

	var loaded []aggregatedomain.MeterAggregate
	db.Where("org_id = ? AND period_end = ?", orgID, mayEnd).Find(&loaded)
	if assert.Len(t, loaded, 1) {
		assert.Equal(t, "1200", loaded[0].ProductionKWh.Decimal.Text())
	}
}

func TestLoad_DistinctMetersSamePeriod(t *testing.T) {
	loader, db, node := setupLoader(t)
	orgID := node.Generate()
	end := time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC)

	start := end.AddDate(0, -1, 1)
	batch := []aggregatedomain.MeterAggregate{
		{OrgID: orgID, SourceSystem: "meridian", ExternalMeterID: "MTR-A", PeriodStart: &start, PeriodEnd: &end},
		{OrgID: orgID, SourceSystem: "meridian", ExternalMeterID: "MTR-B", PeriodStart: &start, PeriodEnd: &end},
	}

	stats, err := loader.Load(context.Background(), batch)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), stats.RowsInserted)

	var count int64
	db.Model(&aggregatedomain.MeterAggregate{}).Where("org_id = ?", orgID).Count(&count)
	assert.Equal(t, int64(2), count)
}
