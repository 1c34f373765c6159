package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"github.com/voltoralabs/voltora/internal/config"
)

const (
	keyIngestOrg      = "ingest:rate:org:%s"
	keyIngestEndpoint = "ingest:rate:endpoint:%s:%s"
)

// IngestLimiter throttles the ingestion endpoints. The org bucket caps a
// tenant across all endpoints; the endpoint bucket caps one route for one
// tenant so a file-upload storm cannot starve the record endpoints.
// A nil limiter admits everything.
type IngestLimiter struct {
	enabled bool
	bucket  *TokenBucket

	orgRate       float64
	orgBurst      int
	endpointRate  float64
	endpointBurst int
}

func NewIngestLimiter(cfg config.Config, client *redis.Client) (*IngestLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if client == nil {
		return nil, errors.New("rate limiting requires a redis client")
	}
	if limitCfg.OrgRate <= 0 || limitCfg.OrgBurst <= 0 {
		return nil, errors.New("ingest org rate limit must be positive")
	}
	if limitCfg.EndpointRate <= 0 || limitCfg.EndpointBurst <= 0 {
		return nil, errors.New("ingest endpoint rate limit must be positive")
	}

	return &IngestLimiter{
		enabled:       true,
		bucket:        NewTokenBucket(client),
		orgRate:       limitCfg.OrgRate,
		orgBurst:      limitCfg.OrgBurst,
		endpointRate:  limitCfg.EndpointRate,
		endpointBurst: limitCfg.EndpointBurst,
	}, nil
}

func (l *IngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowOrg takes one token from the tenant-wide bucket.
func (l *IngestLimiter) AllowOrg(ctx context.Context, orgID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyIngestOrg, strings.TrimSpace(orgID))
	return l.bucket.Allow(ctx, key, l.orgRate, l.orgBurst)
}

// AllowEndpoint takes one token from the per-route bucket for the tenant.
func (l *IngestLimiter) AllowEndpoint(ctx context.Context, orgID, endpoint string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyIngestEndpoint, strings.TrimSpace(endpoint), strings.TrimSpace(orgID))
	return l.bucket.Allow(ctx, key, l.endpointRate, l.endpointBurst)
}
