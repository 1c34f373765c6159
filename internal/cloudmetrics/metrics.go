package cloudmetrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CloudMetrics accumulates per-organization ingest accounting on a dedicated
// registry, kept apart from the OTLP pipeline so the push loop can gather and
// ship the whole registry at once.
type CloudMetrics struct {
	registry   *prometheus.Registry
	pusher     Pusher
	defaultOrg string

	ingestions   *prometheus.CounterVec
	rowsLoaded   *prometheus.CounterVec
	rowsRejected *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	activeSites  prometheus.Gauge
	memoryBytes  prometheus.Gauge
}

// New registers the accounting collectors on the given registry. Records with
// no organization label fall back to defaultOrg.
func New(registry *prometheus.Registry, pusher Pusher, defaultOrg, instanceID, version string) *CloudMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	constLabels := prometheus.Labels{}
	if instanceID = strings.TrimSpace(instanceID); instanceID != "" {
		constLabels["instance"] = instanceID
	}
	if version = strings.TrimSpace(version); version != "" {
		constLabels["version"] = version
	}

	c := &CloudMetrics{
		registry:   registry,
		pusher:     pusher,
		defaultOrg: strings.TrimSpace(defaultOrg),
		ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "voltora_ingestions_total",
			Help:        "Completed ingestions by terminal status.",
			ConstLabels: constLabels,
		}, []string{"org_id", "source_type", "status"}),
		rowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "voltora_rows_loaded_total",
			Help:        "Canonical rows written by the loaders.",
			ConstLabels: constLabels,
		}, []string{"org_id", "source_type"}),
		rowsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "voltora_rows_rejected_total",
			Help:        "Rows refused before loading.",
			ConstLabels: constLabels,
		}, []string{"org_id", "source_type", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "voltora_ingest_duration_seconds",
			Help:        "Wall time of ingest requests.",
			ConstLabels: constLabels,
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source_type", "status"}),
		activeSites: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "voltora_integration_sites_active",
			Help:        "Integration sites currently eligible for resolution.",
			ConstLabels: constLabels,
		}),
		memoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "voltora_memory_bytes",
			Help:        "Memory obtained from the OS.",
			ConstLabels: constLabels,
		}),
	}

	registry.MustRegister(
		c.ingestions,
		c.rowsLoaded,
		c.rowsRejected,
		c.duration,
		c.activeSites,
		c.memoryBytes,
	)
	return c
}

// RecordIngestion counts one completed ingestion by terminal status.
func (c *CloudMetrics) RecordIngestion(orgID, sourceType, status string) {
	if c == nil {
		return
	}
	c.ingestions.WithLabelValues(c.normalizeOrg(orgID), normalizeLabel(sourceType), normalizeLabel(status)).Inc()
}

// RecordRowsLoaded counts canonical rows accepted into storage.
func (c *CloudMetrics) RecordRowsLoaded(orgID, sourceType string, rows int) {
	if c == nil || rows <= 0 {
		return
	}
	c.rowsLoaded.WithLabelValues(c.normalizeOrg(orgID), normalizeLabel(sourceType)).Add(float64(rows))
}

// RecordRowsRejected counts rows refused before loading.
func (c *CloudMetrics) RecordRowsRejected(orgID, sourceType, reason string, rows int) {
	if c == nil || rows <= 0 {
		return
	}
	c.rowsRejected.WithLabelValues(c.normalizeOrg(orgID), normalizeLabel(sourceType), normalizeLabel(reason)).Add(float64(rows))
}

// ObserveIngestDuration records the wall time of one ingest request.
func (c *CloudMetrics) ObserveIngestDuration(sourceType, status string, elapsed time.Duration) {
	if c == nil || elapsed < 0 {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(sourceType), normalizeLabel(status)).Observe(elapsed.Seconds())
}

// SetActiveSites updates the integration site inventory gauge.
func (c *CloudMetrics) SetActiveSites(count int64) {
	if c == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	c.activeSites.Set(float64(count))
}

// SetMemoryUsage updates the process memory gauge.
func (c *CloudMetrics) SetMemoryUsage(bytes uint64) {
	if c == nil {
		return
	}
	c.memoryBytes.Set(float64(bytes))
}

// Push gathers the registry and ships it through the configured pusher.
// Without a pusher it is a no-op.
func (c *CloudMetrics) Push(ctx context.Context) error {
	if c == nil || c.pusher == nil {
		return nil
	}
	return c.pusher.Push(ctx, c.registry)
}

// Handler serves the accounting registry for scraping.
func (c *CloudMetrics) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *CloudMetrics) normalizeOrg(orgID string) string {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		orgID = c.defaultOrg
	}
	if orgID == "" {
		return "unknown"
	}
	return orgID
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
