package schema

import (
	"strings"

	"go.uber.org/fx"
)

// Module provides the source catalog and validator.
var Module = fx.Module("schema",
	fx.Provide(NewCatalog),
	fx.Provide(NewValidator),
)

// Source type identifiers accepted at the service boundary.
const (
	SourceSolarEdge = "solaredge"
	SourceFronius   = "fronius"
	SourceWarehouse = "warehouse"
	SourceManual    = "manual"
	SourceMeridian  = "meridian"
)

// Logical field names. Raw records spell these differently per vendor; the
// alias table maps each logical name to the spellings seen in the wild.
const (
	FieldTimestamp   = "timestamp"
	FieldEnergy      = "energy"
	FieldPower       = "power"
	FieldIrradiance  = "irradiance"
	FieldTemperature = "temperature"
	FieldSite        = "site"
	FieldDevice      = "device"
	FieldInterval    = "interval"
	FieldQuality     = "quality"
)

// Schema describes the structural expectations for one source type.
type Schema struct {
	SourceType       string
	RequiredFields   []string
	OptionalFields   []string
	TimestampField   string
	TimestampFormats []string
	NumericFields    []string
}

// Catalog is the source-type registry. It is constructed once at startup and
// immutable afterwards; components receive it injected.
type Catalog struct {
	schemas  map[string]Schema
	aliases  map[string][]string
	aliasSet map[string]struct{}
	known    map[string]struct{}
}

// NewCatalog builds the catalog of known source types.
func NewCatalog() *Catalog {
	schemas := map[string]Schema{
		SourceSolarEdge: {
			SourceType:       SourceSolarEdge,
			RequiredFields:   []string{FieldTimestamp, FieldEnergy},
			OptionalFields:   []string{FieldPower, FieldTemperature, FieldIrradiance, FieldSite, FieldDevice, FieldInterval, FieldQuality},
			TimestampField:   FieldTimestamp,
			TimestampFormats: []string{"2006-01-02 15:04:05"},
			NumericFields:    []string{FieldEnergy, FieldPower, FieldTemperature, FieldIrradiance, FieldInterval},
		},
		SourceFronius: {
			SourceType:       SourceFronius,
			RequiredFields:   []string{FieldTimestamp, FieldPower},
			OptionalFields:   []string{FieldEnergy, FieldTemperature, FieldIrradiance, FieldSite, FieldDevice, FieldInterval, FieldQuality},
			TimestampField:   FieldTimestamp,
			TimestampFormats: []string{"2006-01-02T15:04:05Z07:00", "2006-01-02T15:04:05"},
			NumericFields:    []string{FieldEnergy, FieldPower, FieldTemperature, FieldIrradiance, FieldInterval},
		},
		SourceWarehouse: {
			SourceType:       SourceWarehouse,
			RequiredFields:   []string{FieldTimestamp, FieldEnergy, FieldDevice},
			OptionalFields:   []string{FieldPower, FieldTemperature, FieldIrradiance, FieldSite, FieldInterval, FieldQuality},
			TimestampField:   FieldTimestamp,
			TimestampFormats: []string{"2006-01-02 15:04:05.000", "2006-01-02 15:04:05"},
			NumericFields:    []string{FieldEnergy, FieldPower, FieldTemperature, FieldIrradiance, FieldInterval},
		},
		SourceManual: {
			SourceType:       SourceManual,
			RequiredFields:   []string{FieldTimestamp},
			OptionalFields:   []string{FieldEnergy, FieldPower, FieldTemperature, FieldIrradiance, FieldSite, FieldDevice, FieldInterval, FieldQuality},
			TimestampField:   FieldTimestamp,
			TimestampFormats: []string{"2006-01-02 15:04:05", "2006-01-02", "02/01/2006 15:04"},
			NumericFields:    []string{FieldEnergy, FieldPower, FieldTemperature, FieldIrradiance, FieldInterval},
		},
		// Billing statements are validated by their adapter, not here; the
		// entry only admits the source type at the boundary.
		SourceMeridian: {
			SourceType:     SourceMeridian,
			TimestampField: "",
		},
	}

	aliases := map[string][]string{
		FieldTimestamp:   {"timestamp", "ts", "time", "datetime", "date_time", "reading_time"},
		FieldEnergy:      {"energy", "energy_kwh", "kwh", "energy_wh", "generation"},
		FieldPower:       {"power", "power_kw", "kw", "ac_power"},
		FieldIrradiance:  {"irradiance", "irradiance_wm2", "ghi", "poa"},
		FieldTemperature: {"temperature", "temp", "temperature_c", "module_temp"},
		FieldSite:        {"site_id", "external_site_id", "site", "plant_id"},
		FieldDevice:      {"device_id", "external_device_id", "device", "serial", "serial_number", "inverter_id"},
		FieldInterval:    {"interval", "interval_seconds", "interval_sec", "resolution"},
		FieldQuality:     {"quality", "quality_flag", "data_quality"},
	}

	aliasSet := map[string]struct{}{}
	for _, spellings := range aliases {
		for _, spelling := range spellings {
			aliasSet[spelling] = struct{}{}
		}
	}

	known := make(map[string]struct{}, len(schemas))
	for sourceType := range schemas {
		known[sourceType] = struct{}{}
	}

	return &Catalog{schemas: schemas, aliases: aliases, aliasSet: aliasSet, known: known}
}

// IsKnown reports whether the source type is accepted at the service boundary.
func (c *Catalog) IsKnown(sourceType string) bool {
	_, ok := c.known[normalizeSourceType(sourceType)]
	return ok
}

// SchemaFor returns the schema for a source type, falling back to the manual
// schema for anything unrecognized.
func (c *Catalog) SchemaFor(sourceType string) Schema {
	if schema, ok := c.schemas[normalizeSourceType(sourceType)]; ok {
		return schema
	}
	return c.schemas[SourceManual]
}

// Lookup finds a logical field in a raw record through the alias table. The
// match is case-insensitive so "Timestamp" and "TIMESTAMP" both resolve.
func (c *Catalog) Lookup(record map[string]any, logicalField string) (any, bool) {
	spellings, ok := c.aliases[logicalField]
	if !ok {
		spellings = []string{logicalField}
	}

	for _, spelling := range spellings {
		if value, ok := record[spelling]; ok {
			return value, true
		}
	}
	for key, value := range record {
		lowered := strings.ToLower(strings.TrimSpace(key))
		for _, spelling := range spellings {
			if lowered == spelling {
				return value, true
			}
		}
	}
	return nil, false
}

// IsAliased reports whether a raw record key spells any logical field.
// Transformers use it to keep canonical measures out of the extras bag.
func (c *Catalog) IsAliased(key string) bool {
	_, ok := c.aliasSet[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

func normalizeSourceType(sourceType string) string {
	return strings.ToLower(strings.TrimSpace(sourceType))
}
