package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"

	"github.com/voltoralabs/voltora/internal/config"
	sitedomain "github.com/voltoralabs/voltora/internal/site/domain"
)

type fakeSiteService struct {
	createReqs []sitedomain.CreateRequest
	getIDs     []snowflake.ID

	site  *sitedomain.IntegrationSite
	sites []sitedomain.IntegrationSite
	err   error
}

func (f *fakeSiteService) Create(ctx context.Context, req sitedomain.CreateRequest) (*sitedomain.IntegrationSite, error) {
	f.createReqs = append(f.createReqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.site, nil
}

func (f *fakeSiteService) GetByID(ctx context.Context, id snowflake.ID) (*sitedomain.IntegrationSite, error) {
	f.getIDs = append(f.getIDs, id)
	if f.err != nil {
		return nil, f.err
	}
	return f.site, nil
}

func (f *fakeSiteService) List(ctx context.Context) ([]sitedomain.IntegrationSite, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sites, nil
}

func (f *fakeSiteService) ResolveSitesBatch(ctx context.Context, sourceSystem string, credentialID *snowflake.ID, refs []string) (map[string]sitedomain.ResolvedSite, error) {
	return nil, nil
}

func TestCreateSiteHandler(t *testing.T) {
	fake := &fakeSiteService{
		site: &sitedomain.IntegrationSite{
			ID:           71,
			SourceSystem: "solar",
			ExternalRef:  "INV-001",
			ProjectID:    300,
			Active:       true,
		},
	}
	srv, _ := newTestServer(config.Config{}, func(s *Server) {
		s.siteSvc = fake
	})

	body := `{"source_system":"solar","external_ref":"INV-001","project_id":"300","meter_id":"400","site_name":"North Array"}`
	resp := doJSON(srv, http.MethodPost, "/v1/sites", "921", body)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, fake.createReqs, 1)
	assert.Equal(t, "solar", fake.createReqs[0].SourceSystem)
	assert.Equal(t, "INV-001", fake.createReqs[0].ExternalRef)
	assert.EqualValues(t, 300, fake.createReqs[0].ProjectID)
	assert.EqualValues(t, 400, fake.createReqs[0].MeterID)
	assert.Equal(t, "North Array", fake.createReqs[0].SiteName)

	var payload struct {
		Data sitedomain.IntegrationSite `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.EqualValues(t, 71, payload.Data.ID)
	assert.True(t, payload.Data.Active)
}

func TestCreateSiteInvalidProjectID(t *testing.T) {
	fake := &fakeSiteService{}
	srv, _ := newTestServer(config.Config{}, func(s *Server) {
		s.siteSvc = fake
	})

	resp := doJSON(srv, http.MethodPost, "/v1/sites", "921",
		`{"source_system":"solar","external_ref":"INV-001","project_id":"zero"}`)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "invalid_project_id")
	assert.Empty(t, fake.createReqs)
}

func TestCreateSiteDuplicateRef(t *testing.T) {
	srv, _ := newTestServer(config.Config{}, func(s *Server) {
		s.siteSvc = &fakeSiteService{err: sitedomain.ErrDuplicateRef}
	})

	resp := doJSON(srv, http.MethodPost, "/v1/sites", "921",
		`{"source_system":"solar","external_ref":"INV-001","project_id":"300"}`)

	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Contains(t, resp.Body.String(), "conflict")
}

func TestCreateSiteValidationFromService(t *testing.T) {
	srv, _ := newTestServer(config.Config{}, func(s *Server) {
		s.siteSvc = &fakeSiteService{err: sitedomain.ErrInvalidSourceSystem}
	})

	resp := doJSON(srv, http.MethodPost, "/v1/sites", "921",
		`{"source_system":"","external_ref":"INV-001","project_id":"300"}`)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "invalid_source_system")
}

func TestListSitesHandler(t *testing.T) {
	fake := &fakeSiteService{
		sites: []sitedomain.IntegrationSite{
			{ID: 71, SourceSystem: "solar", ExternalRef: "INV-001", ProjectID: 300},
			{ID: 72, SourceSystem: "solar", ExternalRef: "INV-002", ProjectID: 301},
		},
	}
	srv, _ := newTestServer(config.Config{}, func(s *Server) {
		s.siteSvc = fake
	})

	resp := doJSON(srv, http.MethodGet, "/v1/sites", "922", "")

	assert.Equal(t, http.StatusOK, resp.Code)

	var payload struct {
		Data []sitedomain.IntegrationSite `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Len(t, payload.Data, 2)
}

func TestGetSiteNotFound(t *testing.T) {
	srv, _ := newTestServer(config.Config{}, func(s *Server) {
		s.siteSvc = &fakeSiteService{err: sitedomain.ErrNotFound}
	})

	resp := doJSON(srv, http.MethodGet, "/v1/sites/71", "922", "")

	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Body.String(), "not_found")
}
