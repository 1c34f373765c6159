package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	readingdomain "github.com/voltoralabs/voltora/internal/reading/domain"
	"github.com/voltoralabs/voltora/internal/schema"
	"github.com/voltoralabs/voltora/pkg/decimal"
)

// buildReadings maps validated raw records onto canonical readings. Rows
// whose timestamp is missing or unparseable are dropped with a warning;
// batches where that matters were already quarantined by validation.
func (s *Service) buildReadings(orgID, ingestionID snowflake.ID, sourceType string, records []map[string]any) []readingdomain.MeterReading {
	sourceSchema := s.catalog.SchemaFor(sourceType)

	readings := make([]readingdomain.MeterReading, 0, len(records))
	for i, record := range records {
		raw, ok := s.catalog.Lookup(record, schema.FieldTimestamp)
		if !ok {
			s.log.Warn("reading row dropped, no timestamp",
				zap.String("source_type", sourceType), zap.Int("row", i))
			continue
		}
		readingAt, ok := schema.ParseTimestamp(raw, sourceSchema.TimestampFormats)
		if !ok {
			s.log.Warn("reading row dropped, unparseable timestamp",
				zap.String("source_type", sourceType), zap.Int("row", i), zap.Any("timestamp", raw))
			continue
		}

		reading := readingdomain.MeterReading{
			OrgID:           orgID,
			SourceSystem:    sourceType,
			ReadingAt:       readingAt,
			IngestionID:     ingestionID,
			EnergyKWh:       s.nullMeasure(record, schema.FieldEnergy, i),
			PowerKW:         s.nullMeasure(record, schema.FieldPower, i),
			TemperatureC:    s.nullMeasure(record, schema.FieldTemperature, i),
			IrradianceWM2:   s.nullMeasure(record, schema.FieldIrradiance, i),
			IntervalSeconds: s.intervalSeconds(record, i),
		}
		if v, ok := s.catalog.Lookup(record, schema.FieldSite); ok && v != nil {
			reading.ExternalSiteID = strings.TrimSpace(fmt.Sprint(v))
		}
		if v, ok := s.catalog.Lookup(record, schema.FieldDevice); ok && v != nil {
			reading.ExternalDeviceID = strings.TrimSpace(fmt.Sprint(v))
		}
		if v, ok := s.catalog.Lookup(record, schema.FieldQuality); ok && v != nil {
			reading.Quality = strings.TrimSpace(fmt.Sprint(v))
		}

		extras := datatypes.JSONMap{}
		for key, value := range record {
			if !s.catalog.IsAliased(key) {
				extras[key] = value
			}
		}
		if len(extras) > 0 {
			reading.Extras = extras
		}

		readings = append(readings, reading)
	}
	return readings
}

// nullMeasure parses an optional numeric field. Absent stays null; a present
// but unreadable value is nulled with a warning rather than failing the row.
func (s *Service) nullMeasure(record map[string]any, field string, row int) decimal.Null {
	v, ok := s.catalog.Lookup(record, field)
	if !ok {
		return decimal.Null{}
	}
	n, err := decimal.NullFromAny(v)
	if err != nil {
		s.log.Warn("unreadable measure nulled",
			zap.String("field", field), zap.Int("row", row), zap.Error(err))
		return decimal.Null{}
	}
	return n
}

func (s *Service) intervalSeconds(record map[string]any, row int) int {
	v, ok := s.catalog.Lookup(record, schema.FieldInterval)
	if !ok || v == nil {
		return 0
	}
	seconds, ok := asInt(v)
	if !ok {
		s.log.Warn("unreadable interval ignored", zap.Int("row", row), zap.Any("interval", v))
		return 0
	}
	return seconds
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return int(f), true
	case string:
		trimmed := strings.TrimSpace(n)
		if trimmed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return int(f), true
	default:
		return 0, false
	}
}

// resolveSites fills project and meter ids for readings whose external site
// reference is registered. Resolution is best-effort: a resolver failure
// loads the batch unchanged rather than failing it.
func (s *Service) resolveSites(ctx context.Context, sourceType string, credentialID *snowflake.ID, readings []readingdomain.MeterReading) {
	seen := map[string]struct{}{}
	refs := make([]string, 0)
	for i := range readings {
		ref := readings[i].ExternalSiteID
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return
	}

	resolved, err := s.sites.ResolveSitesBatch(ctx, sourceType, credentialID, refs)
	if err != nil {
		s.log.Warn("site resolution failed, loading readings unresolved",
			zap.String("source_type", sourceType), zap.Error(err))
		return
	}

	unresolved := 0
	for i := range readings {
		ref := readings[i].ExternalSiteID
		if ref == "" {
			continue
		}
		site, ok := resolved[ref]
		if !ok {
			unresolved++
			continue
		}
		if site.ProjectID != 0 {
			projectID := site.ProjectID
			readings[i].ProjectID = &projectID
		}
		if site.MeterID != 0 {
			meterID := site.MeterID
			readings[i].MeterID = &meterID
		}
	}
	if unresolved > 0 {
		s.metrics.RecordFKUnresolved(ctx, "site", unresolved)
	}
}
