package preload

import (
	"cmp"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"rowpreload/internal/fetch"
	"rowpreload/internal/introspection"
	"rowpreload/internal/keynorm"
)

type fakeTable struct {
	columns []string
	rows    [][]any
}

// fakeFetcher evaluates requests against in-memory tables and records every call.
type fakeFetcher struct {
	mu        sync.Mutex
	tables    map[string]fakeTable
	maxInList int
	calls     []fetch.Request
	failOn    string
	err       error
}

func (f *fakeFetcher) MaxInList() int {
	return f.maxInList
}

func (f *fakeFetcher) Fetch(_ context.Context, req fetch.Request) (*fetch.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.failOn != "" && req.Table == f.failOn {
		return nil, f.err
	}
	table, ok := f.tables[req.Table]
	if !ok {
		return nil, fmt.Errorf("no such table %s", req.Table)
	}
	index := make(map[string]int, len(table.columns))
	for i, col := range table.columns {
		index[col] = i
	}

	var columns []string
	var picks []int
	for _, sel := range req.Columns {
		if sel.Raw && sel.Expr == "*" {
			for i, col := range table.columns {
				columns = append(columns, col)
				picks = append(picks, i)
			}
			continue
		}
		name := sel.Expr
		if sel.Raw {
			if _, alias, found := strings.Cut(sel.Expr, " AS "); found {
				name = alias
			}
		}
		columns = append(columns, name)
		if i, ok := index[sel.Expr]; ok {
			picks = append(picks, i)
		} else {
			picks = append(picks, -1)
		}
	}

	var source [][]any
	for _, row := range table.rows {
		if matches(row, index, req) {
			source = append(source, row)
		}
	}
	sortRows(source, index, req.OrderBy)

	result := &fetch.Result{Columns: columns}
	seen := make(map[string]bool)
	for _, row := range source {
		out := make([]any, len(picks))
		for i, pick := range picks {
			if pick >= 0 {
				out[i] = row[pick]
			} else {
				out[i] = "expr:" + req.Columns[i].Expr
			}
		}
		if req.Distinct {
			key := fmt.Sprint(out...)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		result.Rows = append(result.Rows, out)
	}
	return result, nil
}

// matches compares loosely, the way SQL compares a string literal to a number.
func matches(row []any, index map[string]int, req fetch.Request) bool {
	same := func(a, b any) bool {
		if a == nil || b == nil {
			return a == nil && b == nil
		}
		return keynorm.Stringify(a) == keynorm.Stringify(b)
	}
	if req.In != nil {
		value := row[index[req.In.Column]]
		found := false
		for _, candidate := range req.In.Values {
			if same(value, candidate) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, col := range req.NotNull {
		if row[index[col]] == nil {
			return false
		}
	}
	for col, want := range req.Scope {
		if !same(row[index[col]], want) {
			return false
		}
	}
	return true
}

// sortRows applies "col" and "col DESC" terms, comparing int64 values
// numerically and everything else as text.
func sortRows(rows [][]any, index map[string]int, orderBy []string) {
	if len(orderBy) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, term := range orderBy {
			col, dir, _ := strings.Cut(strings.TrimSpace(term), " ")
			desc := strings.EqualFold(strings.TrimSpace(dir), "desc")
			a, b := rows[i][index[col]], rows[j][index[col]]
			order := strings.Compare(keynorm.Stringify(a), keynorm.Stringify(b))
			ai, aok := a.(int64)
			bi, bok := b.(int64)
			if aok && bok {
				order = cmp.Compare(ai, bi)
			}
			if order == 0 {
				continue
			}
			if desc {
				return order > 0
			}
			return order < 0
		}
		return false
	})
}

func (f *fakeFetcher) callsFor(table string) []fetch.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fetch.Request
	for _, call := range f.calls {
		if call.Table == table {
			out = append(out, call)
		}
	}
	return out
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func intCol(name string) introspection.Column {
	return introspection.Column{Name: name, DataType: "bigint"}
}

func strCol(name string) introspection.Column {
	return introspection.Column{Name: name, DataType: "varchar"}
}

func pkCol(name string) introspection.Column {
	return introspection.Column{Name: name, DataType: "bigint", IsPrimaryKey: true}
}

func blogSchema() *introspection.Schema {
	return &introspection.Schema{Tables: []introspection.Table{
		{
			Name:    "users",
			Columns: []introspection.Column{pkCol("id"), strCol("name")},
			Relationships: []introspection.Relationship{
				{Name: "posts", Kind: introspection.OneToMany, TargetTable: "posts", OwnerKey: "id", TargetKey: "user_id"},
				{Name: "profile", Kind: introspection.OneToOne, TargetTable: "profiles", OwnerKey: "id", TargetKey: "user_id"},
			},
		},
		{
			Name:    "posts",
			Columns: []introspection.Column{pkCol("id"), intCol("user_id"), strCol("title")},
			Relationships: []introspection.Relationship{
				{Name: "user", Kind: introspection.DirectReference, TargetTable: "users", OwnerKey: "user_id", TargetKey: "id"},
				{Name: "comments", Kind: introspection.OneToMany, TargetTable: "comments", OwnerKey: "id", TargetKey: "post_id"},
				{Name: "tags", Kind: introspection.ManyToManyThrough, TargetTable: "tags", OwnerKey: "id", TargetKey: "id", ThroughTable: "post_tags", ThroughOwnerKey: "post_id", ThroughTargetKey: "tag_id"},
				{Name: "first_tag", Kind: introspection.OneToOneThrough, TargetTable: "tags", OwnerKey: "id", TargetKey: "id", ThroughTable: "post_tags", ThroughOwnerKey: "post_id", ThroughTargetKey: "tag_id"},
			},
		},
		{
			Name:    "comments",
			Columns: []introspection.Column{pkCol("id"), intCol("post_id"), strCol("body"), intCol("user_id")},
			Relationships: []introspection.Relationship{
				{Name: "post", Kind: introspection.DirectReference, TargetTable: "posts", OwnerKey: "post_id", TargetKey: "id"},
				{Name: "user", Kind: introspection.DirectReference, TargetTable: "users", OwnerKey: "user_id", TargetKey: "id"},
			},
		},
		{Name: "tags", Columns: []introspection.Column{pkCol("id"), strCol("name")}},
		{Name: "post_tags", Columns: []introspection.Column{intCol("post_id"), intCol("tag_id")}},
		{Name: "profiles", Columns: []introspection.Column{pkCol("id"), strCol("user_id"), strCol("bio")}},
		{Name: "looks", Columns: []introspection.Column{pkCol("id"), strCol("title")}},
		{Name: "products", InheritanceColumn: "kind", Columns: []introspection.Column{pkCol("id"), strCol("name"), strCol("kind")}},
		{
			Name:    "likes",
			Columns: []introspection.Column{pkCol("id"), strCol("likeable_id"), strCol("likeable_type")},
			Relationships: []introspection.Relationship{
				{
					Name:                  "likeable",
					Kind:                  introspection.DirectReference,
					OwnerKey:              "likeable_id",
					PolymorphicTypeColumn: "likeable_type",
					PolymorphicTargets:    map[string]string{"Gadget": "products"},
				},
			},
		},
	}}
}

func blogData() *fakeFetcher {
	return &fakeFetcher{tables: map[string]fakeTable{
		"users": {columns: []string{"id", "name"}, rows: [][]any{
			{int64(1), "alice"}, {int64(2), "bob"}, {int64(3), "carol"},
		}},
		"posts": {columns: []string{"id", "user_id", "title"}, rows: [][]any{
			{int64(10), int64(1), "a"}, {int64(11), int64(1), "b"}, {int64(12), int64(3), "c"}, {int64(13), nil, "orphan"},
		}},
		"comments": {columns: []string{"id", "post_id", "body", "user_id"}, rows: [][]any{
			{int64(100), int64(10), "x", int64(2)}, {int64(101), int64(10), "y", int64(3)}, {int64(102), int64(12), "z", int64(1)},
		}},
		"tags": {columns: []string{"id", "name"}, rows: [][]any{
			{int64(1), "go"}, {int64(2), "sql"}, {int64(3), "unused"},
		}},
		"post_tags": {columns: []string{"post_id", "tag_id"}, rows: [][]any{
			{int64(10), int64(1)}, {int64(10), int64(2)}, {int64(10), int64(1)}, {int64(11), int64(2)}, {int64(12), nil},
		}},
		"profiles": {columns: []string{"id", "user_id", "bio"}, rows: [][]any{
			{int64(1), "1", "bio a"}, {int64(2), "3", "bio c"},
		}},
		"looks": {columns: []string{"id", "title"}, rows: [][]any{
			{int64(1), "summer"}, {int64(2), "winter"},
		}},
		"products": {columns: []string{"id", "name", "kind"}, rows: [][]any{
			{int64(1), "lamp", "Gadget"}, {int64(2), "desk", "Furniture"},
		}},
		"likes": {columns: []string{"id", "likeable_id", "likeable_type"}, rows: [][]any{
			{int64(1), "1", "Look"}, {int64(2), "1", "Gadget"}, {int64(3), "2", "Gadget"}, {int64(4), nil, nil}, {int64(5), "2", "Look"},
		}},
	}}
}
