package preload

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rowpreload/internal/dbexec"
	"rowpreload/internal/dialect"
	"rowpreload/internal/fetch"
	"rowpreload/internal/fetch/sqlfetch"
	"rowpreload/internal/introspection"
	"rowpreload/internal/loaderr"
	"rowpreload/internal/relspec"
	"rowpreload/internal/rowset"
)

func selected(req fetch.Request) []string {
	out := make([]string, 0, len(req.Columns))
	for _, sel := range req.Columns {
		out = append(out, sel.Expr)
	}
	return out
}

func TestLoad_FilterProjectionAndInclude(t *testing.T) {
	f := blogData()
	loader := NewLoader(newTestPreloader(t, f, Config{}))

	rows, err := loader.Load(context.Background(), Query{
		Table:  "posts",
		Filter: &fetch.InFilter{Column: "id", Values: []any{int64(10), int64(12), int64(10), nil}},
	}, relspec.Options{
		Only:    []string{"title"},
		Include: relspec.With("user", relspec.Options{Only: []string{"name"}}),
	}, rowset.ModeMap)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	posts := f.callsFor("posts")
	require.Len(t, posts, 1)
	assert.Equal(t, []any{int64(10), int64(12)}, posts[0].In.Values)
	assert.Equal(t, []string{"title", "user_id"}, selected(posts[0]))

	users := f.callsFor("users")
	require.Len(t, users, 1)
	assert.Equal(t, []string{"name", "id"}, selected(users[0]))

	assert.Equal(t, "a", rows[0].Get("title"))
	_, hasID := rows[0].Lookup("id")
	assert.False(t, hasID)
	assert.Equal(t, "alice", single(t, rows[0].Get("user")).Get("name"))
	assert.Equal(t, "carol", single(t, rows[1].Get("user")).Get("name"))
}

func TestLoad_Except(t *testing.T) {
	f := blogData()
	loader := NewLoader(newTestPreloader(t, f, Config{}))

	rows, err := loader.Load(context.Background(), Query{Table: "users"}, relspec.Options{Except: []string{"name"}}, rowset.ModeMap)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id"}, rows[0].Fields())
}

func TestLoad_MethodsAndProcs(t *testing.T) {
	f := blogData()
	schema := blogSchema()
	require.NoError(t, schema.RegisterMethod("users", "shout", func(row introspection.Fields) any {
		return strings.ToUpper(row.Get("name").(string))
	}))
	loader := NewLoader(New(schema, f, Config{}))

	rows, err := loader.Load(context.Background(), Query{Table: "users"}, relspec.Options{
		Methods: []string{"shout"},
		Procs: []relspec.Proc{{Name: "loud_twice", Fn: func(row rowset.Row) any {
			return row.Get("shout").(string) + row.Get("shout").(string)
		}}},
	}, rowset.ModeRecord)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"id", "name", "shout", "loud_twice"}, rows[0].Fields())
	assert.Equal(t, "ALICE", rows[0].Get("shout"))
	assert.Equal(t, "BOBBOB", rows[1].Get("loud_twice"))
}

func TestLoad_UnknownMethod(t *testing.T) {
	f := blogData()
	loader := NewLoader(newTestPreloader(t, f, Config{}))

	_, err := loader.Load(context.Background(), Query{Table: "users"}, relspec.Options{Methods: []string{"missing"}}, rowset.ModeMap)
	require.Error(t, err)
	assert.True(t, loaderr.IsConfiguration(err))
}

func TestLoad_UnknownTable(t *testing.T) {
	f := blogData()
	loader := NewLoader(newTestPreloader(t, f, Config{}))

	_, err := loader.Load(context.Background(), Query{Table: "accounts"}, relspec.Options{}, rowset.ModeMap)
	require.Error(t, err)
	assert.True(t, loaderr.IsConfiguration(err))
	assert.Equal(t, 0, f.callCount())
}

func TestLoad_EmptyFilterFetchesNothing(t *testing.T) {
	f := blogData()
	loader := NewLoader(newTestPreloader(t, f, Config{}))

	rows, err := loader.Load(context.Background(), Query{
		Table:  "users",
		Filter: &fetch.InFilter{Column: "id", Values: []any{nil}},
	}, relspec.Options{Include: relspec.Name("posts")}, rowset.ModeMap)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
	assert.Equal(t, 0, f.callCount())
}

func TestLoad_ScopeAndOrderPassThrough(t *testing.T) {
	f := blogData()
	loader := NewLoader(newTestPreloader(t, f, Config{}))

	rows, err := loader.Load(context.Background(), Query{
		Table:   "posts",
		Scope:   map[string]any{"user_id": int64(1)},
		OrderBy: []string{"id DESC"},
	}, relspec.Options{}, rowset.ModeMap)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	calls := f.callsFor("posts")
	require.Len(t, calls, 1)
	assert.Nil(t, calls[0].In)
	assert.Equal(t, []string{"id DESC"}, calls[0].OrderBy)
}

// A parent/child load against SQL: one child query whatever the parent count.
func TestPreload_ParentChildScenarioSQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	schema := &introspection.Schema{Tables: []introspection.Table{
		{
			Name:    "parents",
			Columns: []introspection.Column{pkCol("id")},
			Relationships: []introspection.Relationship{
				{Name: "children", Kind: introspection.OneToMany, TargetTable: "children", OwnerKey: "id", TargetKey: "parent_id"},
			},
		},
		{Name: "children", Columns: []introspection.Column{pkCol("id"), intCol("parent_id"), strCol("name")}},
	}}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT `id`, `parent_id`, `name` FROM `children` WHERE `parent_id` IN (?,?,?)")).
		WithArgs(1, 2, 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "parent_id", "name"}).
			AddRow(100, 1, []byte("first")).
			AddRow(101, 1, []byte("second")).
			AddRow(102, 3, []byte("third")))

	fetcher := sqlfetch.New(dbexec.NewStandardExecutor(db), dialect.MySQL, nil)
	p := New(schema, fetcher, Config{})
	owners := []rowset.Row{
		rowset.Map{"id": int64(1)},
		rowset.Map{"id": int64(2)},
		rowset.Map{"id": int64(3)},
	}

	require.NoError(t, p.Preload(context.Background(), "parents", relspec.Name("children"), owners))
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []int64{100, 101}, ids(t, owners[0].Get("children")))
	assert.Equal(t, []int64{}, ids(t, owners[1].Get("children")))
	assert.Equal(t, []int64{102}, ids(t, owners[2].Get("children")))
	assert.Equal(t, "second", owners[0].Get("children").([]rowset.Row)[1].Get("name"))
}
