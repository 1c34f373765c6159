package server

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	ingestdomain "github.com/voltoralabs/voltora/internal/ingest/domain"
	"github.com/voltoralabs/voltora/internal/orgcontext"
)

type ingestRecordsRequest struct {
	SourceType   string           `json:"source_type"`
	Records      []map[string]any `json:"records"`
	Metadata     map[string]any   `json:"metadata"`
	SiteID       string           `json:"site_id"`
	CredentialID string           `json:"credential_id"`
}

type ingestBillingRequest struct {
	SourceType   string           `json:"source_type"`
	Records      []map[string]any `json:"records"`
	Metadata     map[string]any   `json:"metadata"`
	CredentialID string           `json:"credential_id"`
}

func (s *Server) IngestRecords(c *gin.Context) {
	started := time.Now()

	var req ingestRecordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	siteID, err := parseOptionalSnowflakeID(req.SiteID)
	if err != nil {
		AbortWithError(c, newValidationError("site_id", "invalid_site_id", "invalid site id"))
		return
	}
	credentialID, err := parseOptionalSnowflakeID(req.CredentialID)
	if err != nil {
		AbortWithError(c, newValidationError("credential_id", "invalid_credential_id", "invalid credential id"))
		return
	}

	result, err := s.ingestSvc.IngestRecords(c.Request.Context(), ingestdomain.RecordsRequest{
		SourceType:   req.SourceType,
		Records:      req.Records,
		Metadata:     req.Metadata,
		SiteID:       siteID,
		CredentialID: credentialID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordIngestOutcome(c, req.SourceType, started, result)
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) IngestFile(c *gin.Context) {
	started := time.Now()

	fileHeader, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "file_required", "file is required"))
		return
	}
	sourceType := strings.TrimSpace(c.PostForm("source_type"))
	if sourceType == "" {
		AbortWithError(c, newValidationError("source_type", "required", "source_type is required"))
		return
	}

	siteID, err := parseOptionalSnowflakeID(c.PostForm("site_id"))
	if err != nil {
		AbortWithError(c, newValidationError("site_id", "invalid_site_id", "invalid site id"))
		return
	}
	credentialID, err := parseOptionalSnowflakeID(c.PostForm("credential_id"))
	if err != nil {
		AbortWithError(c, newValidationError("credential_id", "invalid_credential_id", "invalid credential id"))
		return
	}

	metadata, err := parseMetadataForm(c.PostForm("metadata"))
	if err != nil {
		AbortWithError(c, newValidationError("metadata", "invalid_metadata", "metadata must be a JSON object"))
		return
	}

	content, err := readUpload(fileHeader)
	if err != nil {
		AbortWithError(c, newValidationError("file", "unreadable_file", "file could not be read"))
		return
	}

	result, err := s.ingestSvc.IngestFile(c.Request.Context(), ingestdomain.FileRequest{
		SourceType:   sourceType,
		Content:      content,
		FileName:     fileHeader.Filename,
		Metadata:     metadata,
		SiteID:       siteID,
		CredentialID: credentialID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordIngestOutcome(c, sourceType, started, result)
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) IngestBilling(c *gin.Context) {
	started := time.Now()

	var req ingestBillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	credentialID, err := parseOptionalSnowflakeID(req.CredentialID)
	if err != nil {
		AbortWithError(c, newValidationError("credential_id", "invalid_credential_id", "invalid credential id"))
		return
	}

	result, err := s.ingestSvc.IngestBillingRecords(c.Request.Context(), ingestdomain.BillingRequest{
		SourceType:   req.SourceType,
		Records:      req.Records,
		Metadata:     req.Metadata,
		CredentialID: credentialID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordIngestOutcome(c, req.SourceType, started, result)
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// recordIngestOutcome feeds the boundary accounting counters. Rejected rows
// here are validation refusals; load-level skips stay internal to the run.
func (s *Server) recordIngestOutcome(c *gin.Context, sourceType string, started time.Time, result *ingestdomain.IngestResult) {
	if result == nil {
		return
	}

	orgLabel := ""
	if orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context()); ok && orgID != 0 {
		orgLabel = orgID.String()
	}
	source := strings.ToLower(strings.TrimSpace(sourceType))

	s.metrics.RecordIngestion(orgLabel, source, result.Status)
	s.metrics.RecordRowsLoaded(orgLabel, source, result.RowsAccepted)
	s.metrics.RecordRowsRejected(orgLabel, source, "validation", result.RowsRejected)
	s.metrics.ObserveIngestDuration(source, result.Status, time.Since(started))
}

func parseMetadataForm(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

func readUpload(fileHeader *multipart.FileHeader) ([]byte, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
