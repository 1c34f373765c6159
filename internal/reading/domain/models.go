package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"

	"github.com/voltoralabs/voltora/pkg/decimal"
)

// DefaultIntervalBucket labels intervals that match no bucket entry.
const DefaultIntervalBucket = "15min"

// MeterReading is one interval measurement from one device. The natural key
// (org, source system, device, reading time) dedupes replayed batches at the
// database level. ProjectID and MeterID stay NULL until site resolution fills
// them; an unresolved reference is never written as a zero placeholder.
type MeterReading struct {
	ID               snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID            snowflake.ID      `json:"organization_id" gorm:"column:org_id;not null;uniqueIndex:ux_meter_readings_natural,priority:1"`
	ProjectID        *snowflake.ID     `json:"project_id" gorm:"index"`
	MeterID          *snowflake.ID     `json:"meter_id"`
	SourceSystem     string            `json:"source_system" gorm:"type:text;not null;uniqueIndex:ux_meter_readings_natural,priority:2"`
	ExternalSiteID   string            `json:"external_site_id" gorm:"type:text"`
	ExternalDeviceID string            `json:"external_device_id" gorm:"type:text;not null;uniqueIndex:ux_meter_readings_natural,priority:3"`
	ReadingAt        time.Time         `json:"reading_at" gorm:"not null;uniqueIndex:ux_meter_readings_natural,priority:4"`
	IngestionID      snowflake.ID      `json:"ingestion_id" gorm:"index"`
	EnergyKWh        decimal.Null      `json:"energy_kwh" gorm:"type:numeric"`
	PowerKW          decimal.Null      `json:"power_kw" gorm:"type:numeric"`
	TemperatureC     decimal.Null      `json:"temperature_c" gorm:"type:numeric"`
	IrradianceWM2    decimal.Null      `json:"irradiance_wm2" gorm:"type:numeric"`
	IntervalSeconds  int               `json:"interval_seconds" gorm:"not null;default:900"`
	IntervalBucket   string            `json:"interval_bucket" gorm:"type:text;not null;default:'15min'"`
	Quality          string            `json:"quality" gorm:"type:text"`
	Extras           datatypes.JSONMap `json:"extras,omitempty" gorm:"type:jsonb"`
	CreatedAt        time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (MeterReading) TableName() string { return "meter_readings" }

// IntervalBucketFor maps an interval length onto its bucket label.
func IntervalBucketFor(seconds int) (string, bool) {
	switch seconds {
	case 60:
		return "1min", true
	case 300:
		return "5min", true
	case 900:
		return "15min", true
	case 3600:
		return "1hour", true
	case 86400:
		return "1day", true
	default:
		return DefaultIntervalBucket, false
	}
}
