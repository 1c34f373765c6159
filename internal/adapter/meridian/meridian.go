package meridian

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	adapterdomain "github.com/voltoralabs/voltora/internal/adapter/domain"
	aggregatedomain "github.com/voltoralabs/voltora/internal/aggregate/domain"
	"github.com/voltoralabs/voltora/internal/config"
	"github.com/voltoralabs/voltora/internal/orgcontext"
	"github.com/voltoralabs/voltora/internal/resolver"
	"github.com/voltoralabs/voltora/internal/schema"
	"github.com/voltoralabs/voltora/pkg/decimal"
)

// SourceType is the source string Meridian statements arrive under.
const SourceType = "meridian"

// Canonical keys the field map translates into.
const (
	keyBillDate = "bill_date"
	keyMeter    = "external_meter_id"
	keyTariff   = "tariff_group_key"
	keyUtilized = "utilized_kwh"
	keyOpening  = "opening_reading"
	keyClosing  = "closing_reading"
	keyDiscount = "discount_kwh"
	keySourced  = "sourced_kwh"
)

// fieldMap translates Meridian statement columns to canonical keys. The date
// column has shipped under two spellings across export versions. Columns not
// listed here ride along snake_cased in the extras bag.
var fieldMap = map[string]string{
	"StatementDate":  keyBillDate,
	"statement_date": keyBillDate,
	"MeterSerial":    keyMeter,
	"TariffCode":     keyTariff,
	"UtilisedkWh":    keyUtilized,
	"OpenRead":       keyOpening,
	"CloseRead":      keyClosing,
	"DiscountkWh":    keyDiscount,
	"SourcedkWh":     keySourced,
}

// billDateLayouts are tried in order, so an ambiguous day/month string reads
// as day-first.
var billDateLayouts = []string{"2006/01/02", "2006-01-02", "02/01/2006", "01/02/2006"}

// lookupOrder maps each canonical key to its native spellings in a stable
// order, derived once from fieldMap.
var lookupOrder = reverseFieldMap()

func reverseFieldMap() map[string][]string {
	natives := make([]string, 0, len(fieldMap))
	for native := range fieldMap {
		natives = append(natives, native)
	}
	sort.Strings(natives)

	out := map[string][]string{}
	for _, native := range natives {
		canonical := fieldMap[native]
		out[canonical] = append(out[canonical], native)
	}
	return out
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Tuning   *config.TuningHolder
	Resolver *resolver.Service
}

// Adapter handles Meridian monthly billing statements.
type Adapter struct {
	log      *zap.Logger
	tuning   *config.TuningHolder
	resolver *resolver.Service
}

func New(p Params) *Adapter {
	return &Adapter{
		log:      p.Log.Named("adapter.meridian"),
		tuning:   p.Tuning,
		resolver: p.Resolver,
	}
}

func (a *Adapter) Name() string { return SourceType }

// Validate checks each statement row for a date under either column naming,
// for a utilized reading or a complete open/close pair, and that every
// reading present parses as a number. Error messages name the client's own
// columns.
func (a *Adapter) Validate(records []map[string]any) *schema.ValidationResult {
	if len(records) == 0 {
		return &schema.ValidationResult{
			IsValid: false,
			Errors: []schema.RowError{
				{Row: 0, Field: "records", Message: "no records to validate"},
			},
			Message: "empty payload",
		}
	}

	collector := schema.NewErrorCollector(a.tuning.Get().ValidationErrorCap)
	numericColumns := []struct {
		canonical string
		label     string
	}{
		{keyUtilized, "UtilisedkWh"},
		{keyOpening, "OpenRead"},
		{keyClosing, "CloseRead"},
		{keyDiscount, "DiscountkWh"},
		{keySourced, "SourcedkWh"},
	}

	for i, record := range records {
		if _, ok := lookup(record, keyBillDate); !ok {
			collector.Add(i, "StatementDate", "missing statement date")
		}

		_, hasUtilized := lookup(record, keyUtilized)
		_, hasOpening := lookup(record, keyOpening)
		_, hasClosing := lookup(record, keyClosing)
		if !hasUtilized && !(hasOpening && hasClosing) {
			collector.Add(i, "UtilisedkWh", "need UtilisedkWh, or both OpenRead and CloseRead")
		}

		for _, column := range numericColumns {
			value, ok := lookup(record, column.canonical)
			if !ok || value == nil {
				continue
			}
			if !schema.IsNumeric(value) {
				collector.Add(i, column.label, fmt.Sprintf("non-numeric value %v", value))
			}
		}
	}

	return collector.Result(len(records))
}

// Transform maps statement rows into canonical aggregates, derives the
// production figure, and resolves tariff and billing-period references for
// the whole batch in bulk.
func (a *Adapter) Transform(ctx context.Context, records []map[string]any) ([]aggregatedomain.MeterAggregate, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, adapterdomain.ErrInvalidOrganization
	}

	aggregates := make([]aggregatedomain.MeterAggregate, 0, len(records))
	for i, record := range records {
		aggregate, err := a.transformRecord(orgID, record)
		if err != nil {
			a.log.Warn("statement row dropped", zap.Int("row", i), zap.Error(err))
			continue
		}
		aggregates = append(aggregates, aggregate)
	}
	if len(aggregates) == 0 {
		return aggregates, nil
	}

	if _, err := a.resolver.ResolveBatch(ctx, aggregates); err != nil {
		return nil, err
	}
	return aggregates, nil
}

func (a *Adapter) transformRecord(orgID snowflake.ID, record map[string]any) (aggregatedomain.MeterAggregate, error) {
	aggregate := aggregatedomain.MeterAggregate{
		OrgID:        orgID,
		SourceSystem: SourceType,
	}

	extras := datatypes.JSONMap{}
	for key, value := range record {
		if _, mapped := fieldMap[key]; mapped {
			continue
		}
		extras[toSnakeCase(key)] = value
	}
	aggregate.Extras = extras

	if value, ok := lookup(record, keyMeter); ok {
		aggregate.ExternalMeterID = strings.TrimSpace(fmt.Sprint(value))
	}
	if value, ok := lookup(record, keyTariff); ok {
		aggregate.TariffGroupKey = strings.TrimSpace(fmt.Sprint(value))
	}

	var err error
	if aggregate.UtilizedKWh, err = nullReading(record, keyUtilized); err != nil {
		return aggregate, fmt.Errorf("UtilisedkWh: %w", err)
	}
	if aggregate.OpeningReading, err = nullReading(record, keyOpening); err != nil {
		return aggregate, fmt.Errorf("OpenRead: %w", err)
	}
	if aggregate.ClosingReading, err = nullReading(record, keyClosing); err != nil {
		return aggregate, fmt.Errorf("CloseRead: %w", err)
	}
	if aggregate.DiscountKWh, err = nullReading(record, keyDiscount); err != nil {
		return aggregate, fmt.Errorf("DiscountkWh: %w", err)
	}
	if aggregate.SourcedKWh, err = nullReading(record, keySourced); err != nil {
		return aggregate, fmt.Errorf("SourcedkWh: %w", err)
	}

	aggregate.ProductionKWh = decimal.NullFrom(deriveProduction(
		aggregate.UtilizedKWh,
		aggregate.OpeningReading,
		aggregate.ClosingReading,
		aggregate.DiscountKWh,
		aggregate.SourcedKWh,
	))

	if value, ok := lookup(record, keyBillDate); ok {
		if day, parsed := parseBillDate(value); parsed {
			start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
			aggregate.BillDate = &day
			aggregate.PeriodEnd = &day
			aggregate.PeriodStart = &start
			aggregate.PeriodType = aggregatedomain.PeriodTypeMonthly
		} else {
			a.log.Warn("unparseable statement date",
				zap.String("meter", aggregate.ExternalMeterID),
				zap.Any("value", value),
			)
		}
	}

	return aggregate, nil
}

// deriveProduction prefers the utilized reading, falls back to the meter
// delta when both raw reads are present, and bottoms out at zero. The first
// two tiers subtract discounted and sourced energy.
func deriveProduction(utilized, opening, closing, discount, sourced decimal.Null) decimal.Decimal {
	switch {
	case utilized.Valid:
		return utilized.Decimal.Sub(orZero(discount)).Sub(orZero(sourced))
	case opening.Valid && closing.Valid:
		return closing.Decimal.Sub(opening.Decimal).Sub(orZero(discount)).Sub(orZero(sourced))
	default:
		return decimal.Zero()
	}
}

func orZero(n decimal.Null) decimal.Decimal {
	if n.Valid {
		return n.Decimal
	}
	return decimal.Zero()
}

func nullReading(record map[string]any, canonical string) (decimal.Null, error) {
	value, ok := lookup(record, canonical)
	if !ok {
		return decimal.Null{}, nil
	}
	return decimal.NullFromAny(value)
}

// parseBillDate tries the four statement date layouts in order and returns
// the day at midnight UTC.
func parseBillDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC), true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return time.Time{}, false
		}
		for _, layout := range billDateLayouts {
			if parsed, err := time.Parse(layout, trimmed); err == nil {
				return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func lookup(record map[string]any, canonical string) (any, bool) {
	for _, native := range lookupOrder[canonical] {
		if value, ok := record[native]; ok {
			return value, true
		}
	}
	return nil, false
}

func toSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		case r == ' ' || r == '-':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
