// Package fetch runs the bulk reads the relation loader issues: select some columns
// of one table, filtered by column membership in a value set plus static equality
// constraints, and return the raw result rows in store order.
package fetch

import "context"

// Selection is one projected column or a verbatim SQL expression.
type Selection struct {
	Expr string
	// Raw selections are emitted as written; others are quoted identifiers.
	Raw bool
}

// Column selects a declared column.
func Column(name string) Selection {
	return Selection{Expr: name}
}

// Expr selects a verbatim SQL expression, e.g. "id || '-' || name AS tag".
func Expr(expr string) Selection {
	return Selection{Expr: expr, Raw: true}
}

// InFilter restricts rows to those whose Column is one of Values.
type InFilter struct {
	Column string
	Values []any
}

// Request describes one bulk read.
type Request struct {
	Table   string
	Columns []Selection
	In      *InFilter
	// NotNull lists columns that must not be NULL.
	NotNull []string
	// Scope holds equality constraints. A nil value matches NULL.
	Scope    map[string]any
	OrderBy  []string
	Distinct bool
}

// Result holds fetched rows in store order, positionally aligned with Columns.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of fetched rows.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Append adds another result's rows. Columns must match.
func (r *Result) Append(other *Result) {
	if other == nil {
		return
	}
	if len(r.Columns) == 0 {
		r.Columns = other.Columns
	}
	r.Rows = append(r.Rows, other.Rows...)
}

// Fetcher executes bulk reads.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Result, error)
	// MaxInList returns the bind parameters one request may carry, or 0 when the
	// store declares no limit. Callers leave room for scope arguments.
	MaxInList() int
}
