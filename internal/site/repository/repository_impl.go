package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	sitedomain "github.com/voltoralabs/voltora/internal/site/domain"
)

type repo struct{}

func Provide() sitedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, site *sitedomain.IntegrationSite) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO integration_sites (id, org_id, source_system, external_ref, credential_id, project_id, meter_id, site_name, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		site.ID,
		site.OrgID,
		site.SourceSystem,
		site.ExternalRef,
		site.CredentialID,
		site.ProjectID,
		site.MeterID,
		site.SiteName,
		site.Active,
		site.CreatedAt,
		site.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*sitedomain.IntegrationSite, error) {
	var site sitedomain.IntegrationSite
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, source_system, external_ref, credential_id, project_id, meter_id, site_name, active, created_at, updated_at
		 FROM integration_sites WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&site).Error
	if err != nil {
		return nil, err
	}
	if site.ID == 0 {
		return nil, nil
	}
	return &site, nil
}

func (r *repo) FindByRefs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, sourceSystem string, credentialID *snowflake.ID, refs []string) ([]sitedomain.IntegrationSite, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	query := `SELECT id, org_id, source_system, external_ref, credential_id, project_id, meter_id, site_name, active, created_at, updated_at
		 FROM integration_sites
		 WHERE org_id = ? AND source_system = ? AND external_ref IN ? AND active`
	args := []any{orgID, sourceSystem, refs}
	if credentialID != nil {
		query += ` AND credential_id = ?`
		args = append(args, *credentialID)
	}

	var sites []sitedomain.IntegrationSite
	err := db.WithContext(ctx).Raw(query, args...).Scan(&sites).Error
	if err != nil {
		return nil, err
	}
	return sites, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]sitedomain.IntegrationSite, error) {
	var sites []sitedomain.IntegrationSite
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, source_system, external_ref, credential_id, project_id, meter_id, site_name, active, created_at, updated_at
		 FROM integration_sites WHERE org_id = ? ORDER BY created_at ASC`,
		orgID,
	).Scan(&sites).Error
	if err != nil {
		return nil, err
	}
	return sites, nil
}
