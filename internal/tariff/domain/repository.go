package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tariff *Tariff) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Tariff, error)
	// FindCandidatesByGroupKeys loads every tariff attached to any of the
	// given group keys in one query. Window selection happens in the caller.
	FindCandidatesByGroupKeys(ctx context.Context, db *gorm.DB, orgID snowflake.ID, groupKeys []string) ([]Tariff, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Tariff, error)
}
