package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voltoralabs/voltora/internal/adapter"
	"github.com/voltoralabs/voltora/internal/adapter/meridian"
	aggregatedomain "github.com/voltoralabs/voltora/internal/aggregate/domain"
	aggregateservice "github.com/voltoralabs/voltora/internal/aggregate/service"
	perioddomain "github.com/voltoralabs/voltora/internal/billingperiod/domain"
	periodrepository "github.com/voltoralabs/voltora/internal/billingperiod/repository"
	"github.com/voltoralabs/voltora/internal/cache"
	"github.com/voltoralabs/voltora/internal/clock"
	"github.com/voltoralabs/voltora/internal/config"
	"github.com/voltoralabs/voltora/internal/ingest/domain"
	ingestlogdomain "github.com/voltoralabs/voltora/internal/ingestlog/domain"
	ingestlogrepository "github.com/voltoralabs/voltora/internal/ingestlog/repository"
	ingestlogservice "github.com/voltoralabs/voltora/internal/ingestlog/service"
	"github.com/voltoralabs/voltora/internal/orgcontext"
	readingdomain "github.com/voltoralabs/voltora/internal/reading/domain"
	readingservice "github.com/voltoralabs/voltora/internal/reading/service"
	"github.com/voltoralabs/voltora/internal/resolver"
	"github.com/voltoralabs/voltora/internal/schema"
	sitedomain "github.com/voltoralabs/voltora/internal/site/domain"
	siterepository "github.com/voltoralabs/voltora/internal/site/repository"
	siteservice "github.com/voltoralabs/voltora/internal/site/service"
	tariffdomain "github.com/voltoralabs/voltora/internal/tariff/domain"
	tariffrepository "github.com/voltoralabs/voltora/internal/tariff/repository"
)

// setupParams wires the full pipeline against a shared in-memory database.
// Tests isolate through per-test org ids, not separate schemas.
func setupParams(t *testing.T, tuning config.IngestTuning) (Params, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&ingestlogdomain.IngestionLog{},
		&readingdomain.MeterReading{},
		&aggregatedomain.MeterAggregate{},
		&sitedomain.IntegrationSite{},
		&tariffdomain.Tariff{},
		&perioddomain.BillingPeriod{},
	))

	node, err := snowflake.NewNode(7)
	assert.NoError(t, err)

	holder := config.StaticTuning(tuning)
	catalog := schema.NewCatalog()
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))

	logs := ingestlogservice.New(ingestlogservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   ingestlogrepository.Provide(),
		Clock:  fake,
		Tuning: holder,
	})
	sites := siteservice.New(siteservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  siterepository.Provide(),
		Cache: cache.NewSiteResolverCache(),
	})
	resolve := resolver.New(resolver.Params{
		DB:      db,
		Log:     zap.NewNop(),
		Tariffs: tariffrepository.Provide(),
		Periods: periodrepository.Provide(),
	})
	statements := meridian.New(meridian.Params{
		Log:      zap.NewNop(),
		Tuning:   holder,
		Resolver: resolve,
	})

	params := Params{
		Log:       zap.NewNop(),
		Clock:     fake,
		Tuning:    holder,
		Catalog:   catalog,
		Validator: schema.NewValidator(schema.ValidatorParams{Catalog: catalog, Tuning: holder, Log: zap.NewNop()}),
		Logs:      logs,
		Sites:     sites,
		Adapters:  adapter.NewRegistry(adapter.Params{Log: zap.NewNop(), Meridian: statements}),
		Readings: readingservice.NewLoader(readingservice.Params{
			DB: db, Log: zap.NewNop(), GenID: node, Tuning: holder,
		}),
		Aggregates: aggregateservice.NewLoader(aggregateservice.Params{
			DB: db, Log: zap.NewNop(), GenID: node, Tuning: holder,
		}),
	}
	return params, db, node
}

func setupPipeline(t *testing.T, tuning config.IngestTuning) (domain.Service, *gorm.DB, *snowflake.Node) {
	params, db, node := setupParams(t, tuning)
	return New(params), db, node
}

func solarRecords(n int) []map[string]any {
	records := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, map[string]any{
			"timestamp":  fmt.Sprintf("2025-03-01 %02d:%02d:00", i/60, i%60),
			"energy_kwh": 10.5 + float64(i),
			"serial":     "INV-1",
		})
	}
	return records
}

func countReadings(t *testing.T, db *gorm.DB, orgID snowflake.ID) int64 {
	t.Helper()
	var n int64
	assert.NoError(t, db.Model(&readingdomain.MeterReading{}).Where("org_id = ?", orgID).Count(&n).Error)
	return n
}

func loadLog(t *testing.T, db *gorm.DB, id snowflake.ID) ingestlogdomain.IngestionLog {
	t.Helper()
	var logRow ingestlogdomain.IngestionLog
	assert.NoError(t, db.First(&logRow, "id = ?", id).Error)
	return logRow
}

func TestIngestRecords_LoadsReadings(t *testing.T) {
	svc, db, node := setupPipeline(t, config.DefaultIngestTuning())
	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))

	result, err := svc.IngestRecords(ctx, domain.RecordsRequest{
		SourceType: "solaredge",
		Records:    solarRecords(3),
	})
	assert.NoError(t, err)

	// 1. The result reports a successful load with the batch time span.
	assert.Equal(t, ingestlogdomain.StatusSuccess, result.Status)
	assert.Equal(t, 3, result.RowsAccepted)
	assert.Equal(t, 0, result.RowsRejected)
	assert.NotZero(t, result.IngestionID)
	if assert.NotNil(t, result.DataStart) && assert.NotNil(t, result.DataEnd) {
		assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), result.DataStart.UTC())
		assert.Equal(t, time.Date(2025, 3, 1, 0, 2, 0, 0, time.UTC), result.DataEnd.UTC())
	}

	// 2. The log row reached its terminal state.
	logRow := loadLog(t, db, result.IngestionID)
	assert.Equal(t, ingestlogdomain.StatusSuccess, logRow.Status)
	assert.Equal(t, ingestlogdomain.StageCompleted, logRow.Stage)
	assert.Equal(t, 3, logRow.RowsLoaded)
	assert.Equal(t, 3, logRow.RowsValid)

	// 3. Readings landed with the canonical shape.
	var readings []readingdomain.MeterReading
	assert.NoError(t, db.Where("org_id = ?", orgID).Order("reading_at asc").Find(&readings).Error)
	assert.Len(t, readings, 3)
	assert.Equal(t, "solaredge", readings[0].SourceSystem)
	assert.Equal(t, "INV-1", readings[0].ExternalDeviceID)
	assert.Equal(t, result.IngestionID, readings[0].IngestionID)
	assert.True(t, readings[0].EnergyKWh.Valid)
	assert.Equal(t, "10.5", readings[0].EnergyKWh.Decimal.String())
	assert.Equal(t, "15min", readings[0].IntervalBucket)
}

func TestIngestRecords_DuplicateContentSkips(t *testing.T) {
	svc, db, node := setupPipeline(t, config.DefaultIngestTuning())
	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))
	records := solarRecords(3)

	// 1. First delivery loads.
	first, err := svc.IngestRecords(ctx, domain.RecordsRequest{SourceType: "solaredge", Records: records})
	assert.NoError(t, err)
	assert.Equal(t, ingestlogdomain.StatusSuccess, first.Status)

	// 2. Second delivery of identical content is skipped under a fresh log.
	second, err := svc.IngestRecords(ctx, domain.RecordsRequest{SourceType: "solaredge", Records: records})
	assert.NoError(t, err)
	assert.Equal(t, ingestlogdomain.StatusSkipped, second.Status)
	assert.NotZero(t, second.IngestionID)
	assert.NotEqual(t, first.IngestionID, second.IngestionID)
	assert.Contains(t, second.Message, first.IngestionID.String())

	logRow := loadLog(t, db, second.IngestionID)
	assert.Equal(t, ingestlogdomain.StatusSkipped, logRow.Status)

	// 3. Nothing was loaded twice.
	assert.EqualValues(t, 3, countReadings(t, db, orgID))
}

func TestIngestRecords_ValidationQuarantines(t *testing.T) {
	svc, db, node := setupPipeline(t, config.DefaultIngestTuning())
	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))

	result, err := svc.IngestRecords(ctx, domain.RecordsRequest{
		SourceType: "solaredge",
		Records: []map[string]any{
			{"timestamp": "2025-03-01 00:00:00", "energy_kwh": 1},
			{"timestamp": "2025-03-01 01:00:00"},             // energy missing
			{"timestamp": "yesterdayish", "energy_kwh": 2},   // bad timestamp
			{"timestamp": "2025-03-01 02:00:00", "kwh": "x"}, // bad number
		},
	})
	assert.NoError(t, err)

	assert.Equal(t, ingestlogdomain.StatusQuarantined, result.Status)
	assert.Equal(t, 0, result.RowsAccepted)
	assert.Equal(t, 3, result.RowsRejected)
	assert.Len(t, result.Errors, 3)

	logRow := loadLog(t, db, result.IngestionID)
	assert.Equal(t, ingestlogdomain.StatusQuarantined, logRow.Status)
	assert.Equal(t, ingestlogdomain.StageValidating, logRow.Stage)
	assert.Equal(t, 1, logRow.RowsValid)
	assert.Equal(t, 3, logRow.RowsInvalid)

	// Quarantine never loads rows.
	assert.EqualValues(t, 0, countReadings(t, db, orgID))
}

func TestIngestRecords_ErrorCapAndSurfacedLimit(t *testing.T) {
	svc, db, node := setupPipeline(t, config.DefaultIngestTuning())
	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))

	records := make([]map[string]any, 0, 120)
	for i := 0; i < 120; i++ {
		records = append(records, map[string]any{"energy_kwh": i}) // timestamp missing
	}
	result, err := svc.IngestRecords(ctx, domain.RecordsRequest{SourceType: "solaredge", Records: records})
	assert.NoError(t, err)

	// 1. The result surfaces at most ten errors but the true row count.
	assert.Equal(t, ingestlogdomain.StatusQuarantined, result.Status)
	assert.Equal(t, 120, result.RowsRejected)
	assert.Len(t, result.Errors, 10)

	// 2. The log keeps the capped list plus one truncation marker.
	logRow := loadLog(t, db, result.IngestionID)
	var stored schema.ValidationResult
	assert.NoError(t, json.Unmarshal(logRow.ValidationErrors, &stored))
	assert.Len(t, stored.Errors, 101)
	assert.Equal(t, schema.TruncationRow, stored.Errors[100].Row)
	assert.Equal(t, 120, stored.RowsWithErrors)
}

func TestIngestRecords_BatchSizeBoundary(t *testing.T) {
	tuning := config.DefaultIngestTuning()
	tuning.MaxBatchSize = 3
	svc, db, node := setupPipeline(t, tuning)
	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))

	// 1. A batch of exactly the limit passes the size gate.
	atLimit, err := svc.IngestRecords(ctx, domain.RecordsRequest{SourceType: "solaredge", Records: solarRecords(3)})
	assert.NoError(t, err)
	assert.Equal(t, ingestlogdomain.StatusSuccess, atLimit.Status)

	// 2. One over is refused before any log row exists.
	over, err := svc.IngestRecords(ctx, domain.RecordsRequest{SourceType: "solaredge", Records: solarRecords(4)})
	assert.NoError(t, err)
	assert.Equal(t, ingestlogdomain.StatusError, over.Status)
	assert.Zero(t, over.IngestionID)
	assert.Contains(t, over.Message, "maximum")

	var logCount int64
	assert.NoError(t, db.Model(&ingestlogdomain.IngestionLog{}).Where("org_id = ?", orgID).Count(&logCount).Error)
	assert.EqualValues(t, 1, logCount)
}

func TestIngestFile_OversizeKeepsIngestionID(t *testing.T) {
	tuning := config.DefaultIngestTuning()
	tuning.MaxBatchSize = 3
	svc, db, node := setupPipeline(t, tuning)
	ctx := orgcontext.WithOrgID(context.Background(), int64(node.Generate()))

	content, err := json.Marshal(solarRecords(4))
	assert.NoError(t, err)

	result, err := svc.IngestFile(ctx, domain.FileRequest{
		SourceType: "solaredge",
		Content:    content,
		FileName:   "batch.json",
	})
	assert.NoError(t, err)

	// Files are logged before the size check, so the refusal keeps its id.
	assert.Equal(t, ingestlogdomain.StatusError, result.Status)
	assert.NotZero(t, result.IngestionID)

	logRow := loadLog(t, db, result.IngestionID)
	assert.Equal(t, ingestlogdomain.StatusError, logRow.Status)
	assert.Contains(t, logRow.ErrorMessage, "maximum")
}

func TestIngestFile_JSONEnvelope(t *testing.T) {
	svc, db, node := setupPipeline(t, config.DefaultIngestTuning())
	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))

	content, err := json.Marshal(map[string]any{"records": solarRecords(2)})
	assert.NoError(t, err)

	result, err := svc.IngestFile(ctx, domain.FileRequest{
		SourceType: "solaredge",
		Content:    content,
		FileName:   "export.json",
	})
	assert.NoError(t, err)
	assert.Equal(t, ingestlogdomain.StatusSuccess, result.Status)
	assert.Equal(t, 2, result.RowsAccepted)

	logRow := loadLog(t, db, result.IngestionID)
	assert.Equal(t, "export.json", logRow.FileName)
	assert.Equal(t, "json", logRow.FileFormat)
	assert.EqualValues(t, len(content), logRow.FileSize)
	assert.NotEmpty(t, logRow.ContentHash)
}

func TestIngestFile_CSV(t *testing.T) {
	svc, db, node := setupPipeline(t, config.DefaultIngestTuning())
	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))

	content := []byte("timestamp,energy_kwh,device\n" +
		"2025-04-01 00:00:00,12.5,MTR-9\n" +
		"2025-04-01 00:15:00,13.0,MTR-9\n")

	result, err := svc.IngestFile(ctx, domain.FileRequest{
		SourceType: "manual",
		Content:    content,
		FileName:   "readings.csv",
	})
	assert.NoError(t, err)
	assert.Equal(t, ingestlogdomain.StatusSuccess, result.Status)
	assert.Equal(t, 2, result.RowsAccepted)

	var readings []readingdomain.MeterReading
	assert.NoError(t, db.Where("org_id = ?", orgID).Order("reading_at asc").Find(&readings).Error)
	assert.Len(t, readings, 2)
	assert.Equal(t, "MTR-9", readings[0].ExternalDeviceID)
	assert.Equal(t, "12.5", readings[0].EnergyKWh.Decimal.String())
}

func TestIngestFile_ColumnarRefused(t *testing.T) {
	svc, db, node := setupPipeline(t, config.DefaultIngestTuning())
	ctx := orgcontext.WithOrgID(context.Background(), int64(node.Generate()))

	result, err := svc.IngestFile(ctx, domain.FileRequest{
		SourceType: "solaredge",
		Content:    []byte("PAR1\x00\x00\x00binarybody"),
		FileName:   "export.parquet",
	})
	assert.NoError(t, err)
	assert.Equal(t, ingestlogdomain.StatusError, result.Status)
	assert.Contains(t, result.Message, "columnar")

	logRow := loadLog(t, db, result.IngestionID)
	assert.Equal(t, ingestlogdomain.StageParsing, logRow.Stage)
	assert.Equal(t, "parquet", logRow.FileFormat)
}

func TestIngestFile_UnparseableJSON(t *testing.T) {
	svc, _, node := setupPipeline(t, config.DefaultIngestTuning())
	ctx := orgcontext.WithOrgID(context.Background(), int64(node.Generate()))

	result, err := svc.IngestFile(ctx, domain.FileRequest{
		SourceType: "solaredge",
		Content:    []byte("{not json at all"),
		FileName:   "broken.json",
	})
	assert.NoError(t, err)
	assert.Equal(t, ingestlogdomain.StatusError, result.Status)
	assert.NotZero(t, result.IngestionID)
	assert.Contains(t, result.Message, "unparseable json")
}

func TestIngestFile_EmptyListQuarantines(t *testing.T) {
	svc, _, node := setupPipeline(t, config.DefaultIngestTuning())
	ctx := orgcontext.WithOrgID(context.Background(), int64(node.Generate()))

	result, err := svc.IngestFile(ctx, domain.FileRequest{
		SourceType: "solaredge",
		Content:    []byte("[]"),
		FileName:   "empty.json",
	})
	assert.NoError(t, err)
	assert.Equal(t, ingestlogdomain.StatusQuarantined, result.Status)
	assert.Equal(t, "empty payload", result.Message)
}

func TestIngestRecords_NoCanonicalRowsIsError(t *testing.T) {
	svc, db, node := setupPipeline(t, config.DefaultIngestTuning())
	ctx := orgcontext.WithOrgID(context.Background(), int64(node.Generate()))

	// Meridian statements carry no timestamps, so the reading transform
	// produces nothing from them.
	result, err := svc.IngestRecords(ctx, domain.RecordsRequest{
		SourceType: "meridian",
		Records: []map[string]any{
			{"StatementDate": "2025/01/31", "MeterSerial": "MTR-1", "UtilisedkWh": 10},
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, ingestlogdomain.StatusError, result.Status)
	assert.Equal(t, "no records produced", result.Message)

	logRow := loadLog(t, db, result.IngestionID)
	assert.Equal(t, ingestlogdomain.StageTransforming, logRow.Stage)
}

func TestIngestRecords_SiteResolution(t *testing.T) {
	svc, db, node := setupPipeline(t, config.DefaultIngestTuning())
	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))

	projectID := node.Generate()
	meterID := node.Generate()
	assert.NoError(t, db.Create(&sitedomain.IntegrationSite{
		ID:           node.Generate(),
		OrgID:        orgID,
		SourceSystem: "solaredge",
		ExternalRef:  "S1",
		ProjectID:    projectID,
		MeterID:      meterID,
		Active:       true,
	}).Error)

	result, err := svc.IngestRecords(ctx, domain.RecordsRequest{
		SourceType: "solaredge",
		Records: []map[string]any{
			{"timestamp": "2025-03-02 00:00:00", "energy_kwh": 1, "site_id": "S1", "serial": "A"},
			{"timestamp": "2025-03-02 00:15:00", "energy_kwh": 2, "site_id": "S2", "serial": "A"},
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, ingestlogdomain.StatusSuccess, result.Status)

	var readings []readingdomain.MeterReading
	assert.NoError(t, db.Where("org_id = ?", orgID).Order("reading_at asc").Find(&readings).Error)
	assert.Len(t, readings, 2)

	// 1. The registered reference resolved to its project and meter.
	if assert.NotNil(t, readings[0].ProjectID) {
		assert.Equal(t, projectID, *readings[0].ProjectID)
	}
	if assert.NotNil(t, readings[0].MeterID) {
		assert.Equal(t, meterID, *readings[0].MeterID)
	}

	// 2. The unregistered reference loaded anyway, unresolved.
	assert.Nil(t, readings[1].ProjectID)
	assert.Nil(t, readings[1].MeterID)
	assert.Equal(t, "S2", readings[1].ExternalSiteID)
}

func TestIngestBillingRecords_LoadsAggregates(t *testing.T) {
	svc, db, node := setupPipeline(t, config.DefaultIngestTuning())
	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))

	result, err := svc.IngestBillingRecords(ctx, domain.BillingRequest{
		SourceType: "meridian",
		Records: []map[string]any{
			{"StatementDate": "2025/01/31", "MeterSerial": "MTR-1", "UtilisedkWh": "120", "TariffCode": "G1"},
			{"StatementDate": "2025/02/28", "MeterSerial": "MTR-1", "UtilisedkWh": "95", "TariffCode": "G1"},
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, ingestlogdomain.StatusSuccess, result.Status)
	assert.Equal(t, 2, result.RowsAccepted)
	if assert.NotNil(t, result.DataStart) && assert.NotNil(t, result.DataEnd) {
		assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), result.DataStart.UTC())
		assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), result.DataEnd.UTC())
	}

	var aggregates []aggregatedomain.MeterAggregate
	assert.NoError(t, db.Where("org_id = ?", orgID).Order("period_end asc").Find(&aggregates).Error)
	assert.Len(t, aggregates, 2)
	assert.Equal(t, "meridian", aggregates[0].SourceSystem)
	assert.Equal(t, "MTR-1", aggregates[0].ExternalMeterID)
	assert.Equal(t, result.IngestionID, aggregates[0].IngestionID)
	assert.Equal(t, "120", aggregates[0].ProductionKWh.Decimal.String())

	// No tariffs are registered, so the reference stays null and the row
	// still loads.
	assert.Nil(t, aggregates[0].TariffID)
}

func TestIngestBillingRecords_ReplayLoadsOnlyNewRows(t *testing.T) {
	svc, db, node := setupPipeline(t, config.DefaultIngestTuning())
	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))

	january := map[string]any{"StatementDate": "2025/01/31", "MeterSerial": "MTR-2", "UtilisedkWh": "100"}
	february := map[string]any{"StatementDate": "2025/02/28", "MeterSerial": "MTR-2", "UtilisedkWh": "90"}

	first, err := svc.IngestBillingRecords(ctx, domain.BillingRequest{
		SourceType: "meridian",
		Records:    []map[string]any{january},
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, first.RowsAccepted)

	// The extended statement hashes differently, so it is not a duplicate,
	// but the database only accepts the genuinely new period.
	second, err := svc.IngestBillingRecords(ctx, domain.BillingRequest{
		SourceType: "meridian",
		Records:    []map[string]any{january, february},
	})
	assert.NoError(t, err)
	assert.Equal(t, ingestlogdomain.StatusSuccess, second.Status)
	assert.Equal(t, 1, second.RowsAccepted)

	var n int64
	assert.NoError(t, db.Model(&aggregatedomain.MeterAggregate{}).Where("org_id = ?", orgID).Count(&n).Error)
	assert.EqualValues(t, 2, n)
}

func TestIngestBillingRecords_DefaultAdapterForUnlistedBillingSource(t *testing.T) {
	svc, db, node := setupPipeline(t, config.DefaultIngestTuning())
	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))

	// "warehouse" is in the known set but has no billing adapter of its
	// own; the default statement mapping handles it.
	result, err := svc.IngestBillingRecords(ctx, domain.BillingRequest{
		SourceType: "warehouse",
		Records: []map[string]any{
			{"StatementDate": "2025/03/31", "MeterSerial": "WH-1", "UtilisedkWh": "40"},
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, ingestlogdomain.StatusSuccess, result.Status)

	logRow := loadLog(t, db, result.IngestionID)
	assert.Equal(t, "warehouse", logRow.SourceType)
}

func TestIngest_UnknownSourceTypeIsRaised(t *testing.T) {
	svc, db, node := setupPipeline(t, config.DefaultIngestTuning())
	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))

	_, err := svc.IngestRecords(ctx, domain.RecordsRequest{SourceType: "psychic", Records: solarRecords(1)})
	assert.ErrorIs(t, err, domain.ErrUnknownSourceType)

	_, err = svc.IngestFile(ctx, domain.FileRequest{SourceType: "psychic", Content: []byte("[]"), FileName: "x.json"})
	assert.ErrorIs(t, err, domain.ErrUnknownSourceType)

	_, err = svc.IngestBillingRecords(ctx, domain.BillingRequest{SourceType: "psychic", Records: solarRecords(1)})
	assert.ErrorIs(t, err, domain.ErrUnknownSourceType)

	// Refused calls leave no trace.
	var logCount int64
	assert.NoError(t, db.Model(&ingestlogdomain.IngestionLog{}).Where("org_id = ?", orgID).Count(&logCount).Error)
	assert.Zero(t, logCount)
}

func TestIngestRecords_RequiresOrg(t *testing.T) {
	svc, _, _ := setupPipeline(t, config.DefaultIngestTuning())

	_, err := svc.IngestRecords(context.Background(), domain.RecordsRequest{SourceType: "solaredge", Records: solarRecords(1)})
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)
}

type panicLoader struct{}

func (panicLoader) Load(ctx context.Context, readings []readingdomain.MeterReading) (readingdomain.LoadStats, error) {
	panic("storage exploded")
}

func TestIngestRecords_PanicBecomesErrorStatus(t *testing.T) {
	params, db, node := setupParams(t, config.DefaultIngestTuning())
	params.Readings = panicLoader{}
	svc := New(params)

	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))

	result, err := svc.IngestRecords(ctx, domain.RecordsRequest{SourceType: "solaredge", Records: solarRecords(2)})
	assert.NoError(t, err)

	assert.Equal(t, ingestlogdomain.StatusError, result.Status)
	assert.Contains(t, result.Message, "unexpected failure")
	assert.Contains(t, result.Message, "storage exploded")

	logRow := loadLog(t, db, result.IngestionID)
	assert.Equal(t, ingestlogdomain.StatusError, logRow.Status)
	assert.Equal(t, ingestlogdomain.StageLoading, logRow.Stage)
}
