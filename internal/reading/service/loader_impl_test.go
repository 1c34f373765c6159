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

	"github.com/voltoralabs/voltora/internal/config"
	readingdomain "github.com/voltoralabs/voltora/internal/reading/domain"
)

func setupLoader(t *testing.T, chunkSize int) (readingdomain.Loader, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&readingdomain.MeterReading{}))

	node, err := snowflake.NewNode(1)
	assert.NoError(t, err)

	tuning := config.DefaultIngestTuning()
	tuning.LoaderChunkSize = chunkSize

	loader := NewLoader(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Tuning: config.StaticTuning(tuning),
	})
	return loader, db, node
}

func makeReadings(orgID snowflake.ID, n int, start time.Time) []readingdomain.MeterReading {
	readings := make([]readingdomain.MeterReading, 0, n)
	for i := 0; i < n; i++ {
		readings = append(readings, readingdomain.MeterReading{
			OrgID:            orgID,
			SourceSystem:     "solaredge",
			ExternalDeviceID: "INV-1",
			ReadingAt:        start.Add(time.Duration(i) * 15 * time.Minute),
			IntervalSeconds:  900,
		})
	}
	return readings
}

func TestLoad_ChunksAndCounts(t *testing.T) {
	loader, db, node := setupLoader(t, 2)
	orgID := node.Generate()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	stats, err := loader.Load(context.Background(), makeReadings(orgID, 5, start))
	assert.NoError(t, err)
	assert.Equal(t, 5, stats.RowsInput)
	assert.Equal(t, int64(5), stats.RowsInserted)
	if assert.NotNil(t, stats.MinReadingAt) {
		assert.True(t, start.Equal(*stats.MinReadingAt))
	}
	if assert.NotNil(t, stats.MaxReadingAt) {
		assert.True(t, start.Add(60*time.Minute).Equal(*stats.MaxReadingAt))
	}

	var count int64
	db.Model(&readingdomain.MeterReading{}).Where("org_id = ?", orgID).Count(&count)
	assert.Equal(t, int64(5), count)
}

func TestLoad_ReplayedBatchInsertsNothing(t *testing.T) {
	loader, db, node := setupLoader(t, 1000)
	orgID := node.Generate()
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	batch := makeReadings(orgID, 3, start)

	stats, err := loader.Load(context.Background(), batch)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), stats.RowsInserted)

	// Same natural keys again; IDs must be regenerated, not reused.
	replay := makeReadings(orgID, 3, start)
	stats, err = loader.Load(context.Background(), replay)
	assert.NoError(t, err)
	assert.Equal(t, 3, stats.RowsInput)
	assert.Zero(t, stats.RowsInserted)
	// Time range still reflects the input batch.
	assert.NotNil(t, stats.MinReadingAt)

	var count int64
	db.Model(&readingdomain.MeterReading{}).Where("org_id = ?", orgID).Count(&count)
	assert.Equal(t, int64(3), count)
}

func TestLoad_PartialOverlapInsertsOnlyNewRows(t *testing.T) {
	loader, db, node := setupLoader(t, 1000)
	orgID := node.Generate()
	start := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)

	_, err := loader.Load(context.Background(), makeReadings(orgID, 3, start))
	assert.NoError(t, err)

	// Rows 2..5: two overlap, two are new.
	stats, err := loader.Load(context.Background(), makeReadings(orgID, 5, start)[1:])
	assert.NoError(t, err)
	assert.Equal(t, 4, stats.RowsInput)
	assert.Equal(t, int64(2), stats.RowsInserted)

	var count int64
	db.Model(&readingdomain.MeterReading{}).Where("org_id = ?", orgID).Count(&count)
	assert.Equal(t, int64(5), count)
}

func TestLoad_IntervalBuckets(t *testing.T) {
	loader, db, node := setupLoader(t, 1000)
	orgID := node.Generate()
	start := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)

	readings := []readingdomain.MeterReading{
		{OrgID: orgID, SourceSystem: "manual", ExternalDeviceID: "A", ReadingAt: start, IntervalSeconds: 60},
		{OrgID: orgID, SourceSystem: "manual", ExternalDeviceID: "B", ReadingAt: start, IntervalSeconds: 3600},
		{OrgID: orgID, SourceSystem: "manual", ExternalDeviceID: "C", ReadingAt: start},                        // absent
		{OrgID: orgID, SourceSystem: "manual", ExternalDeviceID: "D", ReadingAt: start, IntervalSeconds: 1234}, // unlisted
	}

	_, err := loader.Load(context.Background(), readings)
	assert.NoError(t, err)

	buckets := map[string]string{}
	var loaded []readingdomain.MeterReading
	db.Where("org_id = ?", orgID).Find(&loaded)
	for _, r := range loaded {
		buckets[r.ExternalDeviceID] = r.IntervalBucket
	}
	assert.Equal(t, map[string]string{
		"A": "1min",
		"B": "1hour",
		"C": "15min",
		"D": "15min",
	}, buckets)
}

func TestLoad_EmptyBatch(t *testing.T) {
	loader, _, _ := setupLoader(t, 1000)

	stats, err := loader.Load(context.Background(), nil)
	assert.NoError(t, err)
	assert.Zero(t, stats.RowsInput)
	assert.Zero(t, stats.RowsInserted)
	assert.Nil(t, stats.MinReadingAt)
	assert.Nil(t, stats.MaxReadingAt)
}
