package cache

import (
	"time"

	sitedomain "github.com/voltoralabs/voltora/internal/site/domain"
)

const defaultSiteTTL = 10 * time.Minute

// SiteResolverCache stores hot-path site lookups for telemetry ingest. Device
// fleets repeat the same external references batch after batch, so a short
// TTL removes most of the lookup traffic.
type SiteResolverCache interface {
	GetSite(orgID, sourceSystem, credentialID, externalRef string) (sitedomain.ResolvedSite, bool)
	SetSite(orgID, sourceSystem, credentialID, externalRef string, site sitedomain.ResolvedSite)
	InvalidateSite(orgID, sourceSystem, credentialID, externalRef string)
}

type siteResolverCache struct {
	sites   Cache[string, sitedomain.ResolvedSite]
	siteTTL time.Duration
}

// NewSiteResolverCache returns an in-memory cache tuned for telemetry ingest.
func NewSiteResolverCache() SiteResolverCache {
	return &siteResolverCache{
		sites:   NewTTLCache[string, sitedomain.ResolvedSite](),
		siteTTL: defaultSiteTTL,
	}
}

func (c *siteResolverCache) GetSite(orgID, sourceSystem, credentialID, externalRef string) (sitedomain.ResolvedSite, bool) {
	return c.sites.Get(cacheKey(orgID, sourceSystem, credentialID, externalRef))
}

func (c *siteResolverCache) SetSite(orgID, sourceSystem, credentialID, externalRef string, site sitedomain.ResolvedSite) {
	if site.ProjectID == 0 {
		return
	}
	c.sites.Set(cacheKey(orgID, sourceSystem, credentialID, externalRef), site, c.siteTTL)
}

func (c *siteResolverCache) InvalidateSite(orgID, sourceSystem, credentialID, externalRef string) {
	c.sites.Delete(cacheKey(orgID, sourceSystem, credentialID, externalRef))
}
