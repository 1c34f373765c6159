package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/voltoralabs/voltora/internal/config"
)

// Epoch bounds for numeric timestamps. Values outside 2000-01-01..2100-01-01
// are treated as garbage rather than silently loaded decades off.
const (
	epochMinSeconds = int64(946684800)
	epochMaxSeconds = int64(4102444800)
)

// TruncationRow marks the synthetic entry appended when error collection stops.
const TruncationRow = -1

// RowError describes one structural problem found in one record.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult is the verdict for a whole batch.
type ValidationResult struct {
	IsValid        bool       `json:"is_valid"`
	Errors         []RowError `json:"errors"`
	RowsWithErrors int        `json:"rows_with_errors"`
	Message        string     `json:"message"`
}

// ErrorCollector accumulates row errors up to a cap, appending a single
// truncation marker once the cap is reached. Rows keep being counted past
// the cap so RowsWithErrors stays the true distinct-row count.
type ErrorCollector struct {
	limit     int
	errors    []RowError
	truncated bool
	rows      map[int]struct{}
}

func NewErrorCollector(limit int) *ErrorCollector {
	return &ErrorCollector{limit: limit, rows: map[int]struct{}{}}
}

func (c *ErrorCollector) Add(row int, field, message string) {
	c.rows[row] = struct{}{}
	if len(c.errors) >= c.limit {
		if !c.truncated {
			c.errors = append(c.errors, RowError{
				Row:     TruncationRow,
				Message: fmt.Sprintf("error limit reached, additional errors truncated after %d", c.limit),
			})
			c.truncated = true
		}
		return
	}
	c.errors = append(c.errors, RowError{Row: row, Field: field, Message: message})
}

// Result builds the batch verdict for totalRows scanned rows.
func (c *ErrorCollector) Result(totalRows int) *ValidationResult {
	result := &ValidationResult{
		IsValid:        len(c.errors) == 0,
		Errors:         c.errors,
		RowsWithErrors: len(c.rows),
	}
	if result.IsValid {
		result.Message = fmt.Sprintf("%d rows validated", totalRows)
	} else {
		result.Message = fmt.Sprintf("%d of %d rows failed validation", len(c.rows), totalRows)
	}
	return result
}

// ValidatorParams are the validator dependencies.
type ValidatorParams struct {
	fx.In

	Catalog *Catalog
	Tuning  *config.TuningHolder
	Log     *zap.Logger
}

// Validator checks raw record batches against the catalog schema for their
// source type.
type Validator struct {
	catalog *Catalog
	tuning  *config.TuningHolder
	log     *zap.Logger
}

// NewValidator constructs the batch validator.
func NewValidator(p ValidatorParams) *Validator {
	return &Validator{
		catalog: p.Catalog,
		tuning:  p.Tuning,
		log:     p.Log.Named("schema.validator"),
	}
}

// Normalize coerces the accepted payload shapes into a flat record list:
// a bare list, an envelope object carrying the list under "readings", "data",
// "values" or "records", or a single record object.
func Normalize(input any) []map[string]any {
	switch payload := input.(type) {
	case []map[string]any:
		return payload
	case []any:
		records := make([]map[string]any, 0, len(payload))
		for _, item := range payload {
			if record, ok := item.(map[string]any); ok {
				records = append(records, record)
			}
		}
		return records
	case map[string]any:
		for _, key := range []string{"readings", "data", "values", "records"} {
			if wrapped, ok := payload[key]; ok {
				return Normalize(wrapped)
			}
		}
		if len(payload) > 0 {
			return []map[string]any{payload}
		}
		return nil
	default:
		return nil
	}
}

// Validate checks every record against the schema for sourceType. Individual
// errors stop accumulating at the configured cap, but row scanning continues
// so RowsWithErrors stays the true distinct-row count.
func (v *Validator) Validate(input any, sourceType string) *ValidationResult {
	records := Normalize(input)
	if len(records) == 0 {
		return &ValidationResult{
			IsValid: false,
			Errors: []RowError{
				{Row: 0, Field: "records", Message: "no records to validate"},
			},
			Message: "empty payload",
		}
	}

	schema := v.catalog.SchemaFor(sourceType)
	collector := NewErrorCollector(v.tuning.Get().ValidationErrorCap)

	for i, record := range records {
		for _, field := range schema.RequiredFields {
			if _, ok := v.catalog.Lookup(record, field); !ok {
				collector.Add(i, field, "missing required field")
			}
		}

		if schema.TimestampField != "" {
			if value, ok := v.catalog.Lookup(record, schema.TimestampField); ok {
				if _, ok := ParseTimestamp(value, schema.TimestampFormats); !ok {
					collector.Add(i, schema.TimestampField, fmt.Sprintf("unparseable timestamp %v", value))
				}
			}
		}

		for _, field := range schema.NumericFields {
			value, ok := v.catalog.Lookup(record, field)
			if !ok || value == nil {
				continue
			}
			if !IsNumeric(value) {
				collector.Add(i, field, fmt.Sprintf("non-numeric value %v", value))
			}
		}
	}

	result := collector.Result(len(records))
	if !result.IsValid {
		v.log.Debug("batch validation failed",
			zap.String("source_type", sourceType),
			zap.Int("rows", len(records)),
			zap.Int("rows_with_errors", result.RowsWithErrors),
		)
	}
	return result
}

// ParseTimestamp interprets a raw timestamp value: an epoch number in seconds
// or milliseconds within 2000..2100, a native time, or a string in one of the
// given layouts or ISO-8601. Returned times are UTC.
func ParseTimestamp(value any, layouts []string) (time.Time, bool) {
	switch ts := value.(type) {
	case time.Time:
		return ts.UTC(), true
	case float64:
		return epochToTime(int64(ts))
	case float32:
		return epochToTime(int64(ts))
	case int:
		return epochToTime(int64(ts))
	case int64:
		return epochToTime(ts)
	case json.Number:
		if n, err := ts.Int64(); err == nil {
			return epochToTime(n)
		}
		if f, err := ts.Float64(); err == nil {
			return epochToTime(int64(f))
		}
		return time.Time{}, false
	case string:
		trimmed := strings.TrimSpace(ts)
		if trimmed == "" {
			return time.Time{}, false
		}
		for _, layout := range layouts {
			if parsed, err := time.Parse(layout, trimmed); err == nil {
				return parsed.UTC(), true
			}
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, trimmed); err == nil {
				return parsed.UTC(), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func epochToTime(v int64) (time.Time, bool) {
	if v >= epochMinSeconds && v <= epochMaxSeconds {
		return time.Unix(v, 0).UTC(), true
	}
	if v >= epochMinSeconds*1000 && v <= epochMaxSeconds*1000 {
		return time.UnixMilli(v).UTC(), true
	}
	return time.Time{}, false
}

// IsNumeric reports whether the value carries a usable number. Numeric
// strings count; empty strings and other types do not.
func IsNumeric(value any) bool {
	switch n := value.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		_, err := n.Float64()
		return err == nil
	case string:
		trimmed := strings.TrimSpace(n)
		if trimmed == "" {
			return false
		}
		_, err := strconv.ParseFloat(trimmed, 64)
		return err == nil
	default:
		return false
	}
}
