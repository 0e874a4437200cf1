package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled bool
}

// MetricsCollector records pipeline outcomes and inference latency.
//
// A disabled collector (or a nil *MetricsCollector) is valid and records nothing.
type MetricsCollector struct {
	registry *promclient.Registry
	provider *sdkmetric.MeterProvider

	extractionResults metric.Int64Counter
	summaryResults    metric.Int64Counter
	llmLatency        metric.Float64Histogram
	downloadBytes     metric.Int64Counter
}

// NewMetricsCollector creates a new metrics collector backed by a private
// Prometheus registry so several collectors can coexist in one process.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("fission")

	extractionResults, err := meter.Int64Counter(
		"fission.extraction.results",
		metric.WithDescription("Action item extraction outcomes by status"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction_results counter: %w", err)
	}

	summaryResults, err := meter.Int64Counter(
		"fission.summary.results",
		metric.WithDescription("Summary outcomes by source (model or fallback)"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create summary_results counter: %w", err)
	}

	llmLatency, err := meter.Float64Histogram(
		"fission.llm.latency",
		metric.WithDescription("Completion latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_latency histogram: %w", err)
	}

	downloadBytes, err := meter.Int64Counter(
		"fission.model.download.bytes",
		metric.WithDescription("Bytes written while provisioning model weights"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create download_bytes counter: %w", err)
	}

	return &MetricsCollector{
		registry:          registry,
		provider:          provider,
		extractionResults: extractionResults,
		summaryResults:    summaryResults,
		llmLatency:        llmLatency,
		downloadBytes:     downloadBytes,
	}, nil
}

// Handler serves the Prometheus exposition for this collector. A disabled
// collector answers 404.
func (m *MetricsCollector) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// RecordExtraction counts one extraction outcome.
func (m *MetricsCollector) RecordExtraction(ctx context.Context, status string) {
	if m == nil || m.extractionResults == nil {
		return
	}
	m.extractionResults.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordSummary counts one summary outcome.
func (m *MetricsCollector) RecordSummary(ctx context.Context, source string) {
	if m == nil || m.summaryResults == nil {
		return
	}
	m.summaryResults.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordCompletion records the latency of one completion call.
func (m *MetricsCollector) RecordCompletion(ctx context.Context, model, operation, status string, latency time.Duration) {
	if m == nil || m.llmLatency == nil {
		return
	}
	m.llmLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}

// RecordDownload adds bytes written by the model provisioner.
func (m *MetricsCollector) RecordDownload(ctx context.Context, bytes int64) {
	if m == nil || m.downloadBytes == nil || bytes <= 0 {
		return
	}
	m.downloadBytes.Add(ctx, bytes)
}
