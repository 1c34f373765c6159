package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	tariffdomain "github.com/voltoralabs/voltora/internal/tariff/domain"
)

type repo struct{}

func Provide() tariffdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, t *tariffdomain.Tariff) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tariffs (id, org_id, group_key, name, rate_per_kwh, currency, valid_from, valid_to, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.OrgID,
		t.GroupKey,
		t.Name,
		t.RatePerKWh,
		t.Currency,
		t.ValidFrom,
		t.ValidTo,
		t.CreatedAt,
		t.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*tariffdomain.Tariff, error) {
	var tariff tariffdomain.Tariff
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, group_key, name, rate_per_kwh, currency, valid_from, valid_to, created_at, updated_at
		 FROM tariffs WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&tariff).Error
	if err != nil {
		return nil, err
	}
	if tariff.ID == 0 {
		return nil, nil
	}
	return &tariff, nil
}

func (r *repo) FindCandidatesByGroupKeys(ctx context.Context, db *gorm.DB, orgID snowflake.ID, groupKeys []string) ([]tariffdomain.Tariff, error) {
	if len(groupKeys) == 0 {
		return nil, nil
	}
	var tariffs []tariffdomain.Tariff
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, group_key, name, rate_per_kwh, currency, valid_from, valid_to, created_at, updated_at
		 FROM tariffs WHERE org_id = ? AND group_key IN ?`,
		orgID,
		groupKeys,
	).Scan(&tariffs).Error
	if err != nil {
		return nil, err
	}
	return tariffs, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]tariffdomain.Tariff, error) {
	var tariffs []tariffdomain.Tariff
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, group_key, name, rate_per_kwh, currency, valid_from, valid_to, created_at, updated_at
		 FROM tariffs WHERE org_id = ? ORDER BY created_at ASC`,
		orgID,
	).Scan(&tariffs).Error
	if err != nil {
		return nil, err
	}
	return tariffs, nil
}
