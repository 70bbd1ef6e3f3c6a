package rowset

import (
	"fmt"

	"rowpreload/internal/fetch"
	"rowpreload/internal/introspection"
	"rowpreload/internal/loaderr"
)

// Projection chooses the columns fetched for one table.
type Projection struct {
	Only   []string
	Except []string
	// Keys are join columns nested relations need; they are added only when the
	// projection is restricted by Only or Except.
	Keys []string
	// Required columns are always selected.
	Required []string
}

// Select resolves a projection against the table's declared columns. Names in Only
// that are not declared columns become raw expressions. With no declared columns and
// no Only list, every column is selected with "*".
func Select(table *introspection.Table, p Projection) []fetch.Selection {
	declared := make(map[string]bool, len(table.Columns))
	for _, col := range table.Columns {
		declared[col.Name] = true
	}

	seen := make(map[string]bool)
	var out []fetch.Selection
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		if declared[name] || len(p.Only) == 0 {
			out = append(out, fetch.Column(name))
			return
		}
		out = append(out, fetch.Expr(name))
	}

	restricted := len(p.Only) > 0 || len(p.Except) > 0
	switch {
	case len(p.Only) > 0:
		for _, name := range p.Only {
			add(name)
		}
	case len(table.Columns) == 0:
		return []fetch.Selection{fetch.Expr("*")}
	default:
		excluded := make(map[string]bool, len(p.Except))
		for _, name := range p.Except {
			excluded[name] = true
		}
		for _, col := range table.Columns {
			if !excluded[col.Name] {
				add(col.Name)
			}
		}
	}
	if restricted {
		for _, key := range p.Keys {
			add(key)
		}
	}
	for _, name := range p.Required {
		add(name)
	}
	return out
}

// Project turns a fetch result into rows, casting values by declared column type.
// extra lists fields appended to record shapes after the columns (methods, procs,
// relation names). Row order follows the result.
func Project(table *introspection.Table, result *fetch.Result, mode Mode, extra []string) []Row {
	if result.Len() == 0 {
		return nil
	}
	casters := make([]func(any) any, len(result.Columns))
	for i, name := range result.Columns {
		if col := table.Column(name); col != nil {
			casters[i] = casterFor(col.Type())
		} else {
			casters[i] = castUndeclared
		}
	}

	fields := append(append([]string(nil), result.Columns...), extra...)
	builder := NewBuilder(mode, fields)
	rows := make([]Row, 0, len(result.Rows))
	for _, raw := range result.Rows {
		values := make([]any, len(raw))
		for i, v := range raw {
			if i < len(casters) {
				values[i] = casters[i](v)
			}
		}
		rows = append(rows, builder.Build(values))
	}
	return rows
}

// ApplyMethods evaluates table methods for every row and stores each under its name.
func ApplyMethods(rows []Row, table *introspection.Table, names []string) error {
	if len(names) == 0 {
		return nil
	}
	methods := make([]introspection.Method, len(names))
	for i, name := range names {
		fn, ok := table.Method(name)
		if !ok {
			return &loaderr.ConfigurationError{
				Entity: table.Name,
				Value:  name,
				Reason: fmt.Sprintf("method %q is not defined", name),
			}
		}
		methods[i] = fn
	}
	for _, row := range rows {
		for i, name := range names {
			row.Set(name, methods[i](row))
		}
	}
	return nil
}

// Proc computes a value for a row; the result is stored under Name.
type Proc struct {
	Name string
	Fn   func(row Row) any
}

// ApplyProcs runs each proc on every row and stores its result under the proc's name.
func ApplyProcs(rows []Row, procs []Proc) {
	for _, row := range rows {
		for _, proc := range procs {
			if proc.Fn == nil {
				continue
			}
			row.Set(proc.Name, proc.Fn(row))
		}
	}
}
