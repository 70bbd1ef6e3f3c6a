// Package preload attaches related rows to owner rows in as few queries as possible.
//
// For every relation named in a specification the Preloader collects the distinct
// join keys of the current owners, fetches all matching target rows in IN-list
// batches, projects them, recursively preloads their own relations over the whole
// fetched set, and writes the grouped results back onto each owner under the
// relation name.
package preload

import (
	"context"
	"errors"
	"log/slog"
	"reflect"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rowpreload/internal/fetch"
	"rowpreload/internal/introspection"
	"rowpreload/internal/loaderr"
	"rowpreload/internal/naming"
	"rowpreload/internal/observability"
	"rowpreload/internal/relspec"
	"rowpreload/internal/rowset"
)

// DefaultMaxInList bounds IN lists when neither the fetcher nor the config does.
const DefaultMaxInList = 1000

// Reflector answers schema questions about tables and their relations.
type Reflector interface {
	Table(name string) *introspection.Table
	Relationship(table, name string) (*introspection.Relationship, error)
}

// Config tunes a Preloader.
type Config struct {
	// MaxInList caps IN-list size; the fetcher's own limit applies when smaller.
	MaxInList int
	// BatchConcurrency bounds concurrent IN-list batches of one fetch. Values
	// below 2 fetch batches one after another.
	BatchConcurrency int
	Namer            *naming.Namer
	Logger           *slog.Logger
	Metrics          *observability.PreloadMetrics
}

// Preloader resolves relation specifications against a schema and loads them.
type Preloader struct {
	schema      Reflector
	fetcher     fetch.Fetcher
	maxInList   int
	concurrency int
	namer       *naming.Namer
	logger      *slog.Logger
	metrics     *observability.PreloadMetrics
}

// New creates a Preloader.
func New(schema Reflector, fetcher fetch.Fetcher, cfg Config) *Preloader {
	p := &Preloader{
		schema:      schema,
		fetcher:     fetcher,
		maxInList:   cfg.MaxInList,
		concurrency: cfg.BatchConcurrency,
		namer:       cfg.Namer,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
	if p.maxInList <= 0 {
		p.maxInList = DefaultMaxInList
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	if p.namer == nil {
		p.namer = naming.Default()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Preload attaches every relation in spec to owners, which must be rows of table.
// Owners are deduplicated by identity and nil owners are dropped; with no owners
// left nothing is fetched. Relations are loaded in specification order and the
// first error is returned as is, leaving earlier relations attached.
func (p *Preloader) Preload(ctx context.Context, table string, spec relspec.Spec, owners []rowset.Row) error {
	owners = compactOwners(owners)
	if len(owners) == 0 {
		return nil
	}
	mode := modeOf(owners)
	for _, entry := range spec.Normalize() {
		if err := p.preloadEntry(ctx, table, entry, owners, mode); err != nil {
			return err
		}
	}
	return nil
}

func (p *Preloader) preloadEntry(ctx context.Context, table string, entry relspec.Entry, owners []rowset.Row, mode rowset.Mode) error {
	rel, err := p.schema.Relationship(table, entry.Name)
	if err != nil {
		p.metrics.RecordError(ctx, "unknown", errorKind(err))
		return err
	}
	ownerTable := p.schema.Table(table)
	if ownerTable == nil {
		return loaderr.UnknownEntity(table)
	}

	kind, err := strategyFor(table, *rel)
	if err != nil {
		p.metrics.RecordError(ctx, "unknown", errorKind(err))
		return err
	}
	ctx, span := startSpan(ctx, "preload.relation",
		attribute.String("preload.table", table),
		attribute.String("preload.relation", rel.Name),
		attribute.String("preload.kind", kind.String()),
		attribute.Int("preload.owner_count", len(owners)),
	)
	defer span.End()

	p.logger.DebugContext(ctx, "preloading relation",
		slog.String("table", table),
		slog.String("relation", rel.Name),
		slog.String("kind", kind.String()),
		slog.Int("owners", len(owners)),
	)

	run := &relationRun{
		p:     p,
		owner: ownerTable,
		rel:   rel,
		kind:  kind,
		opts:  entry.Options,
		mode:  mode,
	}
	if err := run.load(ctx, owners); err != nil {
		recordSpanError(span, err)
		p.metrics.RecordError(ctx, kind.String(), errorKind(err))
		return err
	}
	p.metrics.RecordRelation(ctx, kind.String())
	return nil
}

// compactOwners drops nil rows and repeated references to the same row.
func compactOwners(owners []rowset.Row) []rowset.Row {
	seen := make(map[any]struct{}, len(owners))
	out := make([]rowset.Row, 0, len(owners))
	for _, owner := range owners {
		id, ok := identity(owner)
		if !ok {
			continue
		}
		if id != nil {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}
		out = append(out, owner)
	}
	return out
}

// identity returns a key identifying the row instance, nil when the row cannot be
// identified, and false for nil rows.
func identity(row rowset.Row) (any, bool) {
	if row == nil {
		return nil, false
	}
	v := reflect.ValueOf(row)
	switch v.Kind() {
	case reflect.Map, reflect.Pointer:
		if v.IsNil() {
			return nil, false
		}
		return v.Pointer(), true
	}
	if v.Type().Comparable() {
		return row, true
	}
	return nil, true
}

func modeOf(rows []rowset.Row) rowset.Mode {
	for _, row := range rows {
		if _, ok := row.(*rowset.Record); ok {
			return rowset.ModeRecord
		}
		return rowset.ModeMap
	}
	return rowset.ModeMap
}

func errorKind(err error) string {
	if loaderr.IsConfiguration(err) {
		return "configuration"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "data_access"
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("rowpreload/preload")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
