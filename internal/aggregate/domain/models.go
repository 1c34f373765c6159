package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"

	"github.com/voltoralabs/voltora/pkg/decimal"
)

// Period type labels.
const (
	PeriodTypeMonthly = "monthly"
)

// MeterAggregate is one billing-period summary for one external meter, as
// reported by a billing source. The natural key (org, source system, meter,
// period end) dedupes restatements of the same period. FK columns stay NULL
// when resolution finds nothing; an unresolved reference is never written as
// a zero placeholder.
type MeterAggregate struct {
	ID              snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID           snowflake.ID      `json:"organization_id" gorm:"column:org_id;not null;uniqueIndex:ux_meter_aggregates_natural,priority:1"`
	ProjectID       *snowflake.ID     `json:"project_id" gorm:"index"`
	MeterID         *snowflake.ID     `json:"meter_id"`
	BillingPeriodID *snowflake.ID     `json:"billing_period_id" gorm:"index"`
	TariffID        *snowflake.ID     `json:"tariff_id" gorm:"index"`
	SourceSystem    string            `json:"source_system" gorm:"type:text;not null;uniqueIndex:ux_meter_aggregates_natural,priority:2"`
	ExternalMeterID string            `json:"external_meter_id" gorm:"type:text;not null;uniqueIndex:ux_meter_aggregates_natural,priority:3"`
	PeriodType      string            `json:"period_type" gorm:"type:text"`
	PeriodStart     *time.Time        `json:"period_start" gorm:"type:date"`
	PeriodEnd       *time.Time        `json:"period_end" gorm:"type:date;uniqueIndex:ux_meter_aggregates_natural,priority:4"`
	IngestionID     snowflake.ID      `json:"ingestion_id" gorm:"index"`
	ProductionKWh   decimal.Null      `json:"production_kwh" gorm:"type:numeric"`
	UtilizedKWh     decimal.Null      `json:"utilized_kwh" gorm:"type:numeric"`
	OpeningReading  decimal.Null      `json:"opening_reading" gorm:"type:numeric"`
	ClosingReading  decimal.Null      `json:"closing_reading" gorm:"type:numeric"`
	DiscountKWh     decimal.Null      `json:"discount_kwh" gorm:"type:numeric"`
	SourcedKWh      decimal.Null      `json:"sourced_kwh" gorm:"type:numeric"`
	Extras          datatypes.JSONMap `json:"extras,omitempty" gorm:"type:jsonb"`
	CreatedAt       time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	// Resolution keys travel with the row between transform and resolve but
	// never reach the table verbatim.
	TariffGroupKey string     `json:"-" gorm:"-"`
	BillDate       *time.Time `json:"-" gorm:"-"`
}

// TableName sets the database table name.
func (MeterAggregate) TableName() string { return "meter_aggregates" }
