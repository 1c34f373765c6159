package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voltoralabs/voltora/internal/observability/logger"
	"github.com/voltoralabs/voltora/internal/orgcontext"
	"github.com/voltoralabs/voltora/internal/ratelimit"
)

const (
	rateLimitReasonOrgRate      = "org-rate"
	rateLimitReasonEndpointRate = "endpoint-rate"
)

// IngestRateLimit throttles the ingestion endpoints per org and per route.
// Redis failures shed load as 503 instead of admitting unmetered traffic.
func (s *Server) IngestRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.ingestLimiter.Enabled() {
			c.Next()
			return
		}

		orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
		if !ok || orgID == 0 {
			AbortWithError(c, ErrOrgRequired)
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		ctx := c.Request.Context()

		res, err := s.ingestLimiter.AllowOrg(ctx, orgID.String())
		if err != nil {
			logger.FromContext(ctx).Warn("ingest org rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			denyIngestRateLimit(c, endpoint, rateLimitReasonOrgRate, res)
			return
		}

		res, err = s.ingestLimiter.AllowEndpoint(ctx, orgID.String(), endpoint)
		if err != nil {
			logger.FromContext(ctx).Warn("ingest endpoint rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			denyIngestRateLimit(c, endpoint, rateLimitReasonEndpointRate, res)
			return
		}

		c.Next()
	}
}

func denyIngestRateLimit(c *gin.Context, endpoint, reason string, res *ratelimit.RateLimitResult) {
	logger.FromContext(c.Request.Context()).Warn("ingest rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)

	c.Header("Retry-After", retryAfterSeconds(res))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

// retryAfterSeconds rounds the refill estimate up to whole seconds; the
// header does not admit fractions.
func retryAfterSeconds(res *ratelimit.RateLimitResult) string {
	if res == nil || res.RetryAfter <= 0 {
		return "1"
	}
	secs := int(math.Ceil(res.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
