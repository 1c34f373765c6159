package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	ingestlogdomain "github.com/voltoralabs/voltora/internal/ingestlog/domain"
	"github.com/voltoralabs/voltora/pkg/db/pagination"
)

func (s *Server) ListIngestions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status     string `form:"status"`
		SourceType string `form:"source_type"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.logsSvc.List(c.Request.Context(), ingestlogdomain.ListRequest{
		Filter: ingestlogdomain.ListFilter{
			Status:     strings.ToLower(strings.TrimSpace(query.Status)),
			SourceType: strings.ToLower(strings.TrimSpace(query.SourceType)),
		},
		Page: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetIngestionByID(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid ingestion id"))
		return
	}

	logRow, err := s.logsSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logRow})
}
