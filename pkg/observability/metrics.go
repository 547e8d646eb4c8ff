// Package observability wires OpenTelemetry metrics through the Prometheus
// exporter. Instruments land in the default Prometheus registry and are
// served by the API's /metrics endpoint.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Recorder holds the service's instruments. A nil *Recorder is a valid no-op,
// so components never need to branch on whether metrics are enabled.
type Recorder struct {
	searches        metric.Int64Counter
	searchDuration  metric.Float64Histogram
	indexed         metric.Int64Counter
	consumed        metric.Int64Counter
	reindexDuration metric.Float64Histogram
}

func NewRecorder() (*Recorder, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("talentsearch")

	r := &Recorder{}

	if r.searches, err = meter.Int64Counter(
		"talentsearch_searches_total",
		metric.WithDescription("Total hybrid search requests"),
	); err != nil {
		return nil, err
	}

	if r.searchDuration, err = meter.Float64Histogram(
		"talentsearch_search_duration_seconds",
		metric.WithDescription("Hybrid search duration in seconds"),
	); err != nil {
		return nil, err
	}

	if r.indexed, err = meter.Int64Counter(
		"talentsearch_documents_indexed_total",
		metric.WithDescription("Documents written to the lexical and vector stores"),
	); err != nil {
		return nil, err
	}

	if r.consumed, err = meter.Int64Counter(
		"talentsearch_consumer_messages_total",
		metric.WithDescription("Bus messages by routing key and outcome"),
	); err != nil {
		return nil, err
	}

	if r.reindexDuration, err = meter.Float64Histogram(
		"talentsearch_reindex_duration_seconds",
		metric.WithDescription("Full reindex duration in seconds"),
	); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Recorder) RecordSearch(ctx context.Context, elapsed time.Duration, failed bool) {
	if r == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	r.searches.Add(ctx, 1, attrs)
	r.searchDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func (r *Recorder) RecordIndexed(ctx context.Context, n int) {
	if r == nil {
		return
	}
	r.indexed.Add(ctx, int64(n))
}

func (r *Recorder) RecordConsumed(ctx context.Context, routingKey, outcome string) {
	if r == nil {
		return
	}
	r.consumed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("routing_key", routingKey),
		attribute.String("outcome", outcome),
	))
}

func (r *Recorder) RecordReindex(ctx context.Context, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.reindexDuration.Record(ctx, elapsed.Seconds())
}
