package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	perioddomain "github.com/voltoralabs/voltora/internal/billingperiod/domain"
)

type repo struct{}

func Provide() perioddomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *perioddomain.BillingPeriod) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_periods (id, org_id, start_date, end_date, label, closed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.OrgID,
		p.StartDate,
		p.EndDate,
		p.Label,
		p.Closed,
		p.CreatedAt,
		p.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*perioddomain.BillingPeriod, error) {
	var period perioddomain.BillingPeriod
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, start_date, end_date, label, closed, created_at, updated_at
		 FROM billing_periods WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&period).Error
	if err != nil {
		return nil, err
	}
	if period.ID == 0 {
		return nil, nil
	}
	return &period, nil
}

func (r *repo) FindByEndDates(ctx context.Context, db *gorm.DB, orgID snowflake.ID, endDates []time.Time) ([]perioddomain.BillingPeriod, error) {
	if len(endDates) == 0 {
		return nil, nil
	}
	var periods []perioddomain.BillingPeriod
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, start_date, end_date, label, closed, created_at, updated_at
		 FROM billing_periods WHERE org_id = ? AND end_date IN ?`,
		orgID,
		endDates,
	).Scan(&periods).Error
	if err != nil {
		return nil, err
	}
	return periods, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]perioddomain.BillingPeriod, error) {
	var periods []perioddomain.BillingPeriod
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, start_date, end_date, label, closed, created_at, updated_at
		 FROM billing_periods WHERE org_id = ? ORDER BY end_date ASC`,
		orgID,
	).Scan(&periods).Error
	if err != nil {
		return nil, err
	}
	return periods, nil
}
