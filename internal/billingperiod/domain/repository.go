package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, period *BillingPeriod) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*BillingPeriod, error)
	// FindByEndDates loads every period ending on any of the given dates in
	// one query. Dates are compared on the calendar day.
	FindByEndDates(ctx context.Context, db *gorm.DB, orgID snowflake.ID, endDates []time.Time) ([]BillingPeriod, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]BillingPeriod, error)
}
