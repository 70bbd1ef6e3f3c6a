package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SchemaMetrics records how the table and relation catalog was built.
type SchemaMetrics struct {
	buildCounter  metric.Int64Counter
	buildDuration metric.Float64Histogram
	tables        atomic.Int64
	relations     atomic.Int64
}

// InitSchemaMetrics initializes schema build metrics.
func InitSchemaMetrics(logger *slog.Logger) (*SchemaMetrics, error) {
	meter := otel.Meter("rowpreload")

	buildCounter, err := meter.Int64Counter(
		"schema.build.total",
		metric.WithDescription("Total number of schema builds by source"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema build counter: %w", err)
	}

	buildDuration, err := meter.Float64Histogram(
		"schema.build.duration",
		metric.WithDescription("Duration of schema builds in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema build duration histogram: %w", err)
	}

	tablesGauge, err := meter.Int64ObservableGauge(
		"schema.tables",
		metric.WithDescription("Number of tables in the last built schema"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema tables gauge: %w", err)
	}
	relationsGauge, err := meter.Int64ObservableGauge(
		"schema.relations",
		metric.WithDescription("Number of relations in the last built schema"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema relations gauge: %w", err)
	}

	metrics := &SchemaMetrics{
		buildCounter:  buildCounter,
		buildDuration: buildDuration,
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			observer.ObserveInt64(tablesGauge, metrics.tables.Load())
			observer.ObserveInt64(relationsGauge, metrics.relations.Load())
			return nil
		},
		tablesGauge,
		relationsGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register schema gauge callback: %w", err)
	}

	logger.Info("schema metrics initialized")
	return metrics, nil
}

// RecordBuild records one schema build. source is "introspection" or "declarations".
func (m *SchemaMetrics) RecordBuild(ctx context.Context, duration time.Duration, source string, success bool, tables, relations int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("source", source),
		attribute.Bool("success", success),
	)
	m.buildCounter.Add(ctx, 1, attrs)
	m.buildDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if success {
		m.tables.Store(int64(tables))
		m.relations.Store(int64(relations))
	}
}
