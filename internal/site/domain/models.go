package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// IntegrationSite maps an external site reference from a source system onto
// an internal project and meter. The same physical site can appear under
// different references in different source systems.
type IntegrationSite struct {
	ID           snowflake.ID  `json:"id" gorm:"primaryKey"`
	OrgID        snowflake.ID  `json:"organization_id" gorm:"column:org_id;not null;uniqueIndex:ux_integration_sites_ref,priority:1"`
	SourceSystem string        `json:"source_system" gorm:"type:text;not null;uniqueIndex:ux_integration_sites_ref,priority:2"`
	ExternalRef  string        `json:"external_ref" gorm:"type:text;not null;uniqueIndex:ux_integration_sites_ref,priority:3"`
	CredentialID *snowflake.ID `json:"credential_id" gorm:"index"`
	ProjectID    snowflake.ID  `json:"project_id" gorm:"not null"`
	MeterID      snowflake.ID  `json:"meter_id"`
	SiteName     string        `json:"site_name" gorm:"type:text"`
	Active       bool          `json:"active" gorm:"not null;default:true"`
	CreatedAt    time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time     `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (IntegrationSite) TableName() string { return "integration_sites" }

// ResolvedSite is the lookup result handed to the ingest pipeline.
type ResolvedSite struct {
	ProjectID snowflake.ID
	MeterID   snowflake.ID
}
