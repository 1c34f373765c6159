package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	ingestions   metric.Int64Counter
	rowsLoaded   metric.Int64Counter
	rowsRejected metric.Int64Counter
	fkUnresolved metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "voltora"
	}
	meter := provider.Meter(name)

	ingestions, err := meter.Int64Counter("voltora_ingestions_total")
	if err != nil {
		return nil, err
	}
	rowsLoaded, err := meter.Int64Counter("voltora_rows_loaded_total")
	if err != nil {
		return nil, err
	}
	rowsRejected, err := meter.Int64Counter("voltora_rows_rejected_total")
	if err != nil {
		return nil, err
	}
	fkUnresolved, err := meter.Int64Counter("voltora_fk_unresolved_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ingestions:   ingestions,
		rowsLoaded:   rowsLoaded,
		rowsRejected: rowsRejected,
		fkUnresolved: fkUnresolved,
	}, nil
}

// RecordIngestion counts one completed ingestion by terminal status.
func (m *Metrics) RecordIngestion(ctx context.Context, sourceType, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("source_type", strings.TrimSpace(sourceType)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.ingestions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRowsLoaded counts canonical rows written by the loaders.
func (m *Metrics) RecordRowsLoaded(ctx context.Context, sourceType string, rows int) {
	if m == nil || rows <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("source_type", strings.TrimSpace(sourceType)))
	m.rowsLoaded.Add(ctx, int64(rows), metric.WithAttributes(attrs...))
}

// RecordRowsRejected counts rows that failed validation or transform.
func (m *Metrics) RecordRowsRejected(ctx context.Context, sourceType, reason string, rows int) {
	if m == nil || rows <= 0 {
		return
	}
	attrs := FilterAttributes(
		attribute.String("source_type", strings.TrimSpace(sourceType)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rowsRejected.Add(ctx, int64(rows), metric.WithAttributes(attrs...))
}

// RecordFKUnresolved counts reference lookups that came back empty.
func (m *Metrics) RecordFKUnresolved(ctx context.Context, reference string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reference)))
	m.fkUnresolved.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"org_id":      {},
	"endpoint":    {},
	"status":      {},
	"status_code": {},
	"source_type": {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
