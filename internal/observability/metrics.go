package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PreloadMetrics holds custom metrics for relation loading.
// A nil *PreloadMetrics records nothing.
type PreloadMetrics struct {
	loadDuration      metric.Float64Histogram
	relationCounter   metric.Int64Counter
	queryCounter      metric.Int64Counter
	errorCounter      metric.Int64Counter
	batchKeyCount     metric.Int64Histogram
	batchResultRows   metric.Int64Histogram
	batchQueriesSaved metric.Int64Counter
}

// InitPreloadMetrics creates the instruments on the global meter provider.
func InitPreloadMetrics() (*PreloadMetrics, error) {
	meter := otel.Meter("rowpreload")

	loadDuration, err := meter.Float64Histogram(
		"preload.load.duration",
		metric.WithDescription("Duration of top-level loads in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create load duration histogram: %w", err)
	}

	relationCounter, err := meter.Int64Counter(
		"preload.relations.total",
		metric.WithDescription("Number of relations preloaded"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create relation counter: %w", err)
	}

	queryCounter, err := meter.Int64Counter(
		"preload.queries.total",
		metric.WithDescription("Number of batched fetch queries issued"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"preload.errors.total",
		metric.WithDescription("Number of failed relation loads"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	batchKeyCount, err := meter.Int64Histogram(
		"preload.batch.key_count",
		metric.WithDescription("Number of distinct owner keys in a relation batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch key count histogram: %w", err)
	}

	batchResultRows, err := meter.Int64Histogram(
		"preload.batch.result_rows",
		metric.WithDescription("Number of rows fetched for a relation batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch result rows histogram: %w", err)
	}

	batchQueriesSaved, err := meter.Int64Counter(
		"preload.batch.queries_saved",
		metric.WithDescription("Number of per-owner queries avoided by batching"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch queries saved counter: %w", err)
	}

	return &PreloadMetrics{
		loadDuration:      loadDuration,
		relationCounter:   relationCounter,
		queryCounter:      queryCounter,
		errorCounter:      errorCounter,
		batchKeyCount:     batchKeyCount,
		batchResultRows:   batchResultRows,
		batchQueriesSaved: batchQueriesSaved,
	}, nil
}

// RecordLoad records a top-level load with its duration and outcome.
func (m *PreloadMetrics) RecordLoad(ctx context.Context, duration time.Duration, table string, failed bool) {
	if m == nil {
		return
	}
	m.loadDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("table", table),
		attribute.Bool("has_errors", failed),
	))
}

// RecordRelation counts one preloaded relation.
func (m *PreloadMetrics) RecordRelation(ctx context.Context, relationKind string) {
	if m == nil {
		return
	}
	m.relationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("relation_kind", relationKind),
	))
}

// RecordQuery counts one batched fetch. phase is "target" or "through".
func (m *PreloadMetrics) RecordQuery(ctx context.Context, relationKind, phase string) {
	if m == nil {
		return
	}
	m.queryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("relation_kind", relationKind),
		attribute.String("phase", phase),
	))
}

// RecordError counts a failed relation load. errorKind is "configuration" or "data_access".
func (m *PreloadMetrics) RecordError(ctx context.Context, relationKind, errorKind string) {
	if m == nil {
		return
	}
	m.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("relation_kind", relationKind),
		attribute.String("error_kind", errorKind),
	))
}

func (m *PreloadMetrics) RecordBatchKeyCount(ctx context.Context, count int64, relationKind string) {
	if m == nil {
		return
	}
	m.batchKeyCount.Record(ctx, count, metric.WithAttributes(
		attribute.String("relation_kind", relationKind),
	))
}

func (m *PreloadMetrics) RecordBatchResultRows(ctx context.Context, count int64, relationKind string) {
	if m == nil {
		return
	}
	m.batchResultRows.Record(ctx, count, metric.WithAttributes(
		attribute.String("relation_kind", relationKind),
	))
}

func (m *PreloadMetrics) RecordBatchQueriesSaved(ctx context.Context, count int64, relationKind string) {
	if m == nil || count <= 0 {
		return
	}
	m.batchQueriesSaved.Add(ctx, count, metric.WithAttributes(
		attribute.String("relation_kind", relationKind),
	))
}

// InitMetrics initializes all custom metrics and returns the PreloadMetrics instance
func InitMetrics(logger *slog.Logger) (*PreloadMetrics, error) {
	metrics, err := InitPreloadMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize preload metrics: %w", err)
	}

	logger.Info("custom preload metrics initialized")
	return metrics, nil
}
