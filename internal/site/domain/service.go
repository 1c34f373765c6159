package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// CreateRequest registers one external-site mapping.
type CreateRequest struct {
	SourceSystem string
	ExternalRef  string
	CredentialID *snowflake.ID
	ProjectID    snowflake.ID
	MeterID      snowflake.ID
	SiteName     string
	Active       *bool
}

// Service manages integration-site mappings and resolves external references
// for the ingest pipeline. Missing references come back absent from the
// resolution map, never as an error.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*IntegrationSite, error)
	GetByID(ctx context.Context, id snowflake.ID) (*IntegrationSite, error)
	List(ctx context.Context) ([]IntegrationSite, error)
	ResolveSitesBatch(ctx context.Context, sourceSystem string, credentialID *snowflake.ID, refs []string) (map[string]ResolvedSite, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidSourceSystem = errors.New("invalid_source_system")
	ErrInvalidExternalRef  = errors.New("invalid_external_ref")
	ErrInvalidProject      = errors.New("invalid_project")
	// ErrDuplicateRef means the (source system, external ref) pair is already
	// mapped for the org.
	ErrDuplicateRef = errors.New("duplicate_external_ref")
	ErrNotFound     = errors.New("integration_site_not_found")
)
