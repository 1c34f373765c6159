package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	sitedomain "github.com/voltoralabs/voltora/internal/site/domain"
)

type createSiteRequest struct {
	SourceSystem string `json:"source_system"`
	ExternalRef  string `json:"external_ref"`
	CredentialID string `json:"credential_id"`
	ProjectID    string `json:"project_id"`
	MeterID      string `json:"meter_id"`
	SiteName     string `json:"site_name"`
	Active       *bool  `json:"active"`
}

func (s *Server) CreateSite(c *gin.Context) {
	var req createSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	projectID, err := snowflake.ParseString(strings.TrimSpace(req.ProjectID))
	if err != nil || projectID == 0 {
		AbortWithError(c, newValidationError("project_id", "invalid_project_id", "invalid project id"))
		return
	}
	var meterID snowflake.ID
	if parsed, err := parseOptionalSnowflakeID(req.MeterID); err != nil {
		AbortWithError(c, newValidationError("meter_id", "invalid_meter_id", "invalid meter id"))
		return
	} else if parsed != nil {
		meterID = *parsed
	}
	credentialID, err := parseOptionalSnowflakeID(req.CredentialID)
	if err != nil {
		AbortWithError(c, newValidationError("credential_id", "invalid_credential_id", "invalid credential id"))
		return
	}

	site, err := s.siteSvc.Create(c.Request.Context(), sitedomain.CreateRequest{
		SourceSystem: strings.TrimSpace(req.SourceSystem),
		ExternalRef:  strings.TrimSpace(req.ExternalRef),
		CredentialID: credentialID,
		ProjectID:    projectID,
		MeterID:      meterID,
		SiteName:     strings.TrimSpace(req.SiteName),
		Active:       req.Active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": site})
}

func (s *Server) ListSites(c *gin.Context) {
	sites, err := s.siteSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sites})
}

func (s *Server) GetSiteByID(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid site id"))
		return
	}

	site, err := s.siteSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": site})
}
