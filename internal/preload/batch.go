package preload

import (
	"context"
	"reflect"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"rowpreload/internal/fetch"
	"rowpreload/internal/introspection"
	"rowpreload/internal/keynorm"
	"rowpreload/internal/relspec"
	"rowpreload/internal/rowset"
)

// groupRequest describes one target fetch grouped by target key.
type groupRequest struct {
	kind      strategyKind
	target    *introspection.Table
	targetKey string
	keys      []any
	norm      keynorm.Normalizer
	opts      relspec.Options
	scope     map[string]any
	orderBy   []string
	mode      rowset.Mode
	owners    int
}

// groupedRows holds target rows in fetch order alongside their normalized keys.
type groupedRows struct {
	rows  []rowset.Row
	keys  []any
	byKey map[any][]rowset.Row
}

func (g *groupedRows) get(key any) []rowset.Row {
	if g == nil {
		return nil
	}
	return g.byKey[key]
}

// loadGrouped fetches target rows whose targetKey is in keys, shapes them
// (projection, nested includes, methods, procs) and groups them by normalized key.
// With no keys nothing is fetched.
func (p *Preloader) loadGrouped(ctx context.Context, req groupRequest) (*groupedRows, error) {
	grouped := &groupedRows{byKey: make(map[any][]rowset.Row)}
	if len(req.keys) == 0 {
		return grouped, nil
	}
	p.metrics.RecordBatchKeyCount(ctx, int64(len(req.keys)), req.kind.String())

	opts := req.opts
	opts.RequiredColumns = append(append([]string(nil), opts.RequiredColumns...), req.targetKey)
	rows, err := p.loadRows(ctx, req.kind, req.target, opts, fetch.Request{
		Table:   req.target.Name,
		Scope:   req.scope,
		OrderBy: req.orderBy,
	}, req.targetKey, req.keys, req.mode)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordBatchResultRows(ctx, int64(len(rows)), req.kind.String())
	chunks := len(chunkValues(req.keys, p.inListLimit(scopeArgs(req.scope))))
	p.metrics.RecordBatchQueriesSaved(ctx, listBatchQueriesSaved(req.owners, chunks), req.kind.String())

	for _, row := range rows {
		key := req.norm.Key(row.Get(req.targetKey))
		if key == nil {
			continue
		}
		grouped.rows = append(grouped.rows, row)
		grouped.keys = append(grouped.keys, key)
		grouped.byKey[key] = append(grouped.byKey[key], row)
	}
	return grouped, nil
}

// loadRows is the shared fetch → project → nested preload → methods → procs
// pipeline. When inColumn is set the fetch is batched over values.
func (p *Preloader) loadRows(
	ctx context.Context,
	kind strategyKind,
	table *introspection.Table,
	opts relspec.Options,
	base fetch.Request,
	inColumn string,
	values []any,
	mode rowset.Mode,
) ([]rowset.Row, error) {
	keys, err := p.includeKeys(table, opts.Include)
	if err != nil {
		return nil, err
	}
	base.Columns = rowset.Select(table, opts.Projection(keys...))

	var result *fetch.Result
	if inColumn != "" {
		result, err = p.fetchBatches(ctx, kind, "target", base, inColumn, values)
	} else {
		result, err = p.fetcher.Fetch(ctx, base)
		p.metrics.RecordQuery(ctx, kind.String(), "target")
	}
	if err != nil {
		return nil, err
	}

	rows := rowset.Project(table, result, mode, extraFields(opts))
	if len(rows) == 0 {
		return rows, nil
	}
	if !opts.Include.IsEmpty() {
		if err := p.Preload(ctx, table.Name, opts.Include, rows); err != nil {
			return nil, err
		}
	}
	if err := rowset.ApplyMethods(rows, table, opts.Methods); err != nil {
		return nil, err
	}
	rowset.ApplyProcs(rows, opts.Procs)
	return rows, nil
}

// fetchBatches runs base once per IN-list chunk of values and concatenates the
// results in chunk order.
func (p *Preloader) fetchBatches(ctx context.Context, kind strategyKind, phase string, base fetch.Request, column string, values []any) (*fetch.Result, error) {
	chunks := chunkValues(values, p.inListLimit(scopeArgs(base.Scope)))
	results := make([]*fetch.Result, len(chunks))

	fetchChunk := func(ctx context.Context, i int) error {
		req := base
		req.In = &fetch.InFilter{Column: column, Values: chunks[i]}
		ctx, span := startSpan(ctx, "preload.fetch",
			attribute.String("preload.table", base.Table),
			attribute.String("preload.phase", phase),
			attribute.Int("preload.chunk", i),
			attribute.Int("preload.chunk_size", len(chunks[i])),
		)
		defer span.End()
		res, err := p.fetcher.Fetch(ctx, req)
		p.metrics.RecordQuery(ctx, kind.String(), phase)
		if err != nil {
			recordSpanError(span, err)
			return err
		}
		results[i] = res
		return nil
	}

	if p.concurrency <= 1 || len(chunks) == 1 {
		for i := range chunks {
			if err := fetchChunk(ctx, i); err != nil {
				return nil, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.concurrency)
		for i := range chunks {
			g.Go(func() error {
				return fetchChunk(gctx, i)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	merged := &fetch.Result{}
	for _, res := range results {
		merged.Append(res)
	}
	return merged, nil
}

// inListLimit is the smaller of the configured limit and the fetcher's declared
// bind parameter limit less the reserved scope arguments.
func (p *Preloader) inListLimit(reserved int) int {
	limit := p.maxInList
	if declared := p.fetcher.MaxInList(); declared > 0 {
		declared = max(declared-reserved, 1)
		limit = min(limit, declared)
	}
	return limit
}

// scopeArgs counts the bind arguments an equality scope adds: nil compares with
// IS NULL and binds nothing, a slice becomes an IN list of its own.
func scopeArgs(scope map[string]any) int {
	n := 0
	for _, v := range scope {
		if v == nil {
			continue
		}
		if _, isBytes := v.([]byte); !isBytes {
			if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
				n += rv.Len()
				continue
			}
		}
		n++
	}
	return n
}

// includeKeys lists the owner-side columns the nested relations of spec join on,
// so a restricted projection still carries them.
func (p *Preloader) includeKeys(table *introspection.Table, spec relspec.Spec) ([]string, error) {
	var keys []string
	for _, entry := range spec.Normalize() {
		rel, err := p.schema.Relationship(table.Name, entry.Name)
		if err != nil {
			return nil, err
		}
		keys = append(keys, rel.OwnerKey)
		if rel.IsPolymorphic() {
			keys = append(keys, rel.PolymorphicTypeColumn)
		}
	}
	return keys, nil
}

// extraFields lists the fields records gain after projection, in the order they are
// filled in: methods, procs, then relations.
func extraFields(opts relspec.Options) []string {
	var fields []string
	fields = append(fields, opts.Methods...)
	for _, proc := range opts.Procs {
		fields = append(fields, proc.Name)
	}
	for _, entry := range opts.Include.Normalize() {
		fields = append(fields, entry.Name)
	}
	return fields
}

func chunkValues(values []any, max int) [][]any {
	if len(values) == 0 {
		return nil
	}
	if max <= 0 || len(values) <= max {
		return [][]any{values}
	}
	chunks := make([][]any, 0, (len(values)+max-1)/max)
	for start := 0; start < len(values); start += max {
		end := min(start+max, len(values))
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

func listBatchQueriesSaved(ownerCount, chunkCount int) int64 {
	// Compare one query per owner against one query per chunk.
	if ownerCount <= 0 || chunkCount <= 0 {
		return 0
	}
	if saved := ownerCount - chunkCount; saved > 0 {
		return int64(saved)
	}
	return 0
}
