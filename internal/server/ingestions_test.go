package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"

	"github.com/voltoralabs/voltora/internal/config"
	ingestlogdomain "github.com/voltoralabs/voltora/internal/ingestlog/domain"
	"github.com/voltoralabs/voltora/pkg/db/pagination"
)

type fakeLogsService struct {
	listReqs []ingestlogdomain.ListRequest
	getIDs   []snowflake.ID

	listResp ingestlogdomain.ListResponse
	getResp  *ingestlogdomain.IngestionLog
	err      error
}

func (f *fakeLogsService) Start(ctx context.Context, req ingestlogdomain.StartRequest) (*ingestlogdomain.IngestionLog, error) {
	return nil, nil
}

func (f *fakeLogsService) SetStage(ctx context.Context, log *ingestlogdomain.IngestionLog, stage string) error {
	return nil
}

func (f *fakeLogsService) Complete(ctx context.Context, log *ingestlogdomain.IngestionLog, completion ingestlogdomain.Completion) error {
	return nil
}

func (f *fakeLogsService) FindDuplicate(ctx context.Context, contentHash string) (*ingestlogdomain.IngestionLog, error) {
	return nil, nil
}

func (f *fakeLogsService) Get(ctx context.Context, id snowflake.ID) (*ingestlogdomain.IngestionLog, error) {
	f.getIDs = append(f.getIDs, id)
	if f.err != nil {
		return nil, f.err
	}
	return f.getResp, nil
}

func (f *fakeLogsService) List(ctx context.Context, req ingestlogdomain.ListRequest) (ingestlogdomain.ListResponse, error) {
	f.listReqs = append(f.listReqs, req)
	if f.err != nil {
		return ingestlogdomain.ListResponse{}, f.err
	}
	return f.listResp, nil
}

func (f *fakeLogsService) SweepStale(ctx context.Context) (int64, error) {
	return 0, nil
}

func TestListIngestionsHandler(t *testing.T) {
	started := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	fake := &fakeLogsService{
		listResp: ingestlogdomain.ListResponse{
			Logs: []ingestlogdomain.IngestionLog{
				{ID: 1, SourceType: "solar", Status: "success", StartedAt: started},
				{ID: 2, SourceType: "solar", Status: "error", StartedAt: started.Add(time.Minute)},
			},
			PageInfo: pagination.PageInfo{NextPageToken: "next-tok", HasMore: true},
		},
	}
	srv, _ := newTestServer(config.Config{}, func(s *Server) {
		s.logsSvc = fake
	})

	resp := doJSON(srv, http.MethodGet, "/v1/ingestions?status=%20Success%20&source_type=Solar&page_size=10&page_token=tok", "911", "")

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, fake.listReqs, 1)
	assert.Equal(t, "success", fake.listReqs[0].Filter.Status)
	assert.Equal(t, "solar", fake.listReqs[0].Filter.SourceType)
	assert.Equal(t, 10, fake.listReqs[0].Page.PageSize)
	assert.Equal(t, "tok", fake.listReqs[0].Page.PageToken)

	var payload struct {
		Data ingestlogdomain.ListResponse `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Len(t, payload.Data.Logs, 2)
	assert.Equal(t, "next-tok", payload.Data.PageInfo.NextPageToken)
	assert.True(t, payload.Data.PageInfo.HasMore)
}

func TestListIngestionsDefaultPageSize(t *testing.T) {
	fake := &fakeLogsService{}
	srv, _ := newTestServer(config.Config{}, func(s *Server) {
		s.logsSvc = fake
	})

	resp := doJSON(srv, http.MethodGet, "/v1/ingestions", "911", "")

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, fake.listReqs, 1)
	assert.Equal(t, 20, fake.listReqs[0].Page.PageSize)
}

func TestListIngestionsRequiresOrg(t *testing.T) {
	fake := &fakeLogsService{}
	srv, _ := newTestServer(config.Config{}, func(s *Server) {
		s.logsSvc = fake
	})

	resp := doJSON(srv, http.MethodGet, "/v1/ingestions", "", "")

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "org_required")
	assert.Empty(t, fake.listReqs)
}

func TestGetIngestionHandler(t *testing.T) {
	fake := &fakeLogsService{
		getResp: &ingestlogdomain.IngestionLog{
			ID:         42,
			SourceType: "meridian",
			Status:     "quarantined",
			Stage:      "validating",
		},
	}
	srv, _ := newTestServer(config.Config{}, func(s *Server) {
		s.logsSvc = fake
	})

	resp := doJSON(srv, http.MethodGet, "/v1/ingestions/42", "912", "")

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, fake.getIDs, 1)
	assert.EqualValues(t, 42, fake.getIDs[0])
	assert.Contains(t, resp.Body.String(), "quarantined")
}

func TestGetIngestionInvalidID(t *testing.T) {
	srv, _ := newTestServer(config.Config{}, func(s *Server) {
		s.logsSvc = &fakeLogsService{}
	})

	resp := doJSON(srv, http.MethodGet, "/v1/ingestions/not-an-id", "912", "")

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "invalid_id")
}

func TestGetIngestionNotFound(t *testing.T) {
	srv, _ := newTestServer(config.Config{}, func(s *Server) {
		s.logsSvc = &fakeLogsService{err: ingestlogdomain.ErrNotFound}
	})

	resp := doJSON(srv, http.MethodGet, "/v1/ingestions/42", "912", "")

	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Body.String(), "not_found")
}
