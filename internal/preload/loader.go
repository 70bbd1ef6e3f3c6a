package preload

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"rowpreload/internal/fetch"
	"rowpreload/internal/keynorm"
	"rowpreload/internal/loaderr"
	"rowpreload/internal/relspec"
	"rowpreload/internal/rowset"
)

// Query selects the top-level rows of a load.
type Query struct {
	Table string
	// Filter optionally restricts rows by column membership; large value sets are
	// batched like relation fetches.
	Filter  *fetch.InFilter
	Scope   map[string]any
	OrderBy []string
}

// Loader is the entry point: load rows of one table, shape them and attach the
// requested relations.
type Loader struct {
	preloader *Preloader
}

// NewLoader wraps a Preloader.
func NewLoader(p *Preloader) *Loader {
	return &Loader{preloader: p}
}

// Preloader returns the underlying Preloader, for attaching relations to rows
// obtained elsewhere.
func (l *Loader) Preloader() *Preloader {
	return l.preloader
}

// Load fetches q's rows, projects them per opts in the given mode, preloads
// opts.Include and applies methods and procs.
func (l *Loader) Load(ctx context.Context, q Query, opts relspec.Options, mode rowset.Mode) (rows []rowset.Row, err error) {
	p := l.preloader
	start := time.Now()
	ctx, span := startSpan(ctx, "preload.load",
		attribute.String("preload.table", q.Table),
		attribute.String("preload.mode", mode.String()),
	)
	defer func() {
		recordSpanError(span, err)
		span.End()
		p.metrics.RecordLoad(ctx, time.Since(start), q.Table, err != nil)
	}()

	table := p.schema.Table(q.Table)
	if table == nil {
		return nil, loaderr.UnknownEntity(q.Table)
	}

	base := fetch.Request{Table: table.Name, Scope: q.Scope, OrderBy: q.OrderBy}
	if q.Filter == nil {
		rows, err = p.loadRows(ctx, strategyRoot, table, opts, base, "", nil, mode)
	} else {
		values := keynorm.New(false).Values(q.Filter.Values)
		if len(values) == 0 {
			return []rowset.Row{}, nil
		}
		rows, err = p.loadRows(ctx, strategyRoot, table, opts, base, q.Filter.Column, values, mode)
	}
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []rowset.Row{}
	}

	span.SetAttributes(attribute.Int("preload.row_count", len(rows)))
	p.logger.DebugContext(ctx, "loaded rows",
		slog.String("table", table.Name),
		slog.Int("rows", len(rows)),
	)
	return rows, nil
}
