package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"github.com/voltoralabs/voltora/internal/orgcontext"
)

const HeaderOrg = "X-Org-ID"

// OrgContext resolves the calling organization from the X-Org-ID header and
// stores it on the request context. Without the header the configured
// default org applies, which keeps single-tenant deployments headerless.
func (s *Server) OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := parseOrgHeader(c.GetHeader(HeaderOrg))
		if orgID == 0 && s.cfg.DefaultOrgID > 0 {
			orgID = s.cfg.DefaultOrgID
		}
		if orgID != 0 {
			ctx := orgcontext.WithOrgID(c.Request.Context(), orgID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// RequireOrg gates routes that are meaningless without a tenant.
func (s *Server) RequireOrg() gin.HandlerFunc {
	return func(c *gin.Context) {
		if orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context()); !ok || orgID == 0 {
			AbortWithError(c, ErrOrgRequired)
			return
		}
		c.Next()
	}
}

func parseOrgHeader(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0
	}
	return int64(id)
}
