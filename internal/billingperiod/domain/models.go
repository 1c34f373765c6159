package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BillingPeriod is one settlement window for an org. Billing statements name
// the period by its end date, so EndDate carries the unique identity.
type BillingPeriod struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID     snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;uniqueIndex:ux_billing_periods_end,priority:1"`
	StartDate time.Time    `json:"start_date" gorm:"type:date;not null"`
	EndDate   time.Time    `json:"end_date" gorm:"type:date;not null;uniqueIndex:ux_billing_periods_end,priority:2"`
	Label     string       `json:"label" gorm:"type:text"`
	Closed    bool         `json:"closed" gorm:"not null;default:false"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillingPeriod) TableName() string { return "billing_periods" }
