package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/roach88/lineage/internal/engine"

// telemetry holds the instruments of one query.
type telemetry struct {
	tracer trace.Tracer
	query  attribute.KeyValue

	rebuilds metric.Int64Counter
	hits     metric.Int64Counter
	events   metric.Int64Counter
	rows     metric.Int64Counter
}

func newTelemetry(query string, mp metric.MeterProvider, tp trace.TracerProvider) (*telemetry, error) {
	meter := mp.Meter(instrumentationName)
	t := &telemetry{
		tracer: tp.Tracer(instrumentationName),
		query:  attribute.String("query", query),
	}

	var err error
	t.rebuilds, err = meter.Int64Counter(
		"query_cache_rebuilds_total",
		metric.WithDescription("Total number of cache segment evaluations"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	t.hits, err = meter.Int64Counter(
		"query_cache_hits_total",
		metric.WithDescription("Total number of cache segments served without evaluation"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	t.events, err = meter.Int64Counter(
		"query_cache_events_total",
		metric.WithDescription("Total number of store events applied to the cache"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	t.rows, err = meter.Int64Counter(
		"query_rows_total",
		metric.WithDescription("Total number of rows produced by iterations"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	return t, nil
}

func (t *telemetry) recordRefresh(rebuilt, hits int) {
	ctx := context.Background()
	if rebuilt > 0 {
		t.rebuilds.Add(ctx, int64(rebuilt), metric.WithAttributes(t.query))
	}
	if hits > 0 {
		t.hits.Add(ctx, int64(hits), metric.WithAttributes(t.query))
	}
}

func (t *telemetry) recordEvents(n int) {
	if n > 0 {
		t.events.Add(context.Background(), int64(n), metric.WithAttributes(t.query))
	}
}

func (t *telemetry) recordRows(n int, cached bool) {
	t.rows.Add(context.Background(), int64(n),
		metric.WithAttributes(t.query, attribute.Bool("cached", cached)))
}

// startRunSpan creates the span of one query run.
func (t *telemetry) startRunSpan(ctx context.Context, runID string, cached bool) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "Query.Run",
		trace.WithAttributes(
			t.query,
			attribute.String("query.run_id", runID),
			attribute.Bool("query.cached", cached),
		),
	)
}
