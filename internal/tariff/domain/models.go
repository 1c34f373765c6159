package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/voltoralabs/voltora/pkg/decimal"
)

// Tariff prices energy for a group of sites over a validity window. A nil
// ValidFrom means the tariff has always applied; a nil ValidTo means it still
// does.
type Tariff struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID      snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;index:ix_tariffs_org_group,priority:1"`
	GroupKey   string       `json:"group_key" gorm:"type:text;not null;index:ix_tariffs_org_group,priority:2"`
	Name       string       `json:"name" gorm:"type:text;not null"`
	RatePerKWh decimal.Null `json:"rate_per_kwh" gorm:"type:numeric"`
	Currency   string       `json:"currency" gorm:"type:text;not null;default:'EUR'"`
	ValidFrom  *time.Time   `json:"valid_from"`
	ValidTo    *time.Time   `json:"valid_to"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Tariff) TableName() string { return "tariffs" }

// Covers reports whether the window contains the given date. Both bounds are
// inclusive; nil bounds are open.
func (t Tariff) Covers(at time.Time) bool {
	if t.ValidFrom != nil && at.Before(*t.ValidFrom) {
		return false
	}
	if t.ValidTo != nil && at.After(*t.ValidTo) {
		return false
	}
	return true
}
