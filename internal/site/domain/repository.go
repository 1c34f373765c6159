package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, site *IntegrationSite) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*IntegrationSite, error)
	// FindByRefs returns the active mappings for the given references,
	// optionally narrowed to the credential that produced the payload.
	FindByRefs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, sourceSystem string, credentialID *snowflake.ID, refs []string) ([]IntegrationSite, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]IntegrationSite, error)
}
