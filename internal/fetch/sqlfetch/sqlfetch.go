// Package sqlfetch implements fetch.Fetcher over database/sql.
package sqlfetch

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"rowpreload/internal/dbexec"
	"rowpreload/internal/dialect"
	"rowpreload/internal/fetch"
	"rowpreload/internal/planner"
)

// Fetcher plans requests with the planner and runs them through a QueryExecutor.
type Fetcher struct {
	executor dbexec.QueryExecutor
	dialect  dialect.Dialect
	logger   *slog.Logger
}

// New creates a Fetcher for one store.
func New(executor dbexec.QueryExecutor, d dialect.Dialect, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{executor: executor, dialect: d, logger: logger}
}

// MaxInList returns the dialect's bind parameter limit.
func (f *Fetcher) MaxInList() int {
	return f.dialect.MaxInList
}

// Fetch runs one request. Driver errors are returned unchanged.
func (f *Fetcher) Fetch(ctx context.Context, req fetch.Request) (*fetch.Result, error) {
	ctx, span := otel.Tracer("rowpreload/fetch").Start(ctx, "fetch.select")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.table", req.Table),
		attribute.Bool("db.distinct", req.Distinct),
	)

	query, err := planner.PlanSelect(f.dialect, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if req.In != nil {
		span.SetAttributes(attribute.Int("db.in_list_size", len(req.In.Values)))
	}
	f.logger.DebugContext(ctx, "fetching rows",
		slog.String("table", req.Table),
		slog.String("sql", query.SQL),
		slog.Int("args", len(query.Args)),
	)

	rows, err := f.executor.QueryContext(ctx, query.SQL, query.Args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	result, err := scanAll(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("db.rows", len(result.Rows)))
	return result, nil
}

func scanAll(rows dbexec.Rows) (*fetch.Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := &fetch.Result{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, v := range values {
			// Drivers may reuse byte buffers between rows.
			if b, ok := v.([]byte); ok {
				values[i] = append([]byte(nil), b...)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
