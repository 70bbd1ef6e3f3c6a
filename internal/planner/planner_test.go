package planner

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rowpreload/internal/dialect"
	"rowpreload/internal/fetch"
)

func TestPlanSelect_InFilter(t *testing.T) {
	planned, err := PlanSelect(dialect.MySQL, fetch.Request{
		Table:   "comments",
		Columns: []fetch.Selection{fetch.Column("id"), fetch.Column("post_id"), fetch.Expr("UPPER(body) AS loud")},
		In:      &fetch.InFilter{Column: "post_id", Values: []any{1, 2, 3}},
	})
	require.NoError(t, err)
	assertSQLMatches(t, planned.SQL,
		"SELECT `id`, `post_id`, UPPER(body) AS loud FROM `comments` WHERE `post_id` IN (?,?,?)")
	assertArgsEqual(t, planned.Args, []interface{}{1, 2, 3})
}

func TestPlanSelect_ScopeOrderAndNotNull(t *testing.T) {
	planned, err := PlanSelect(dialect.MySQL, fetch.Request{
		Table:   "likes",
		Columns: []fetch.Selection{fetch.Column("id")},
		In:      &fetch.InFilter{Column: "user_id", Values: []any{7}},
		NotNull: []string{"likeable_id"},
		Scope:   map[string]any{"kind": "Look", "deleted_at": nil},
		OrderBy: []string{"created_at desc", "id", "FIELD(id, 3, 1)"},
	})
	require.NoError(t, err)
	assertSQLMatches(t, planned.SQL,
		"SELECT `id` FROM `likes` WHERE `user_id` IN (?) AND `likeable_id` IS NOT NULL AND `deleted_at` IS NULL AND `kind` = ? ORDER BY `created_at` DESC, `id`, FIELD(id, 3, 1)")
	assertArgsEqual(t, planned.Args, []interface{}{7, "Look"})
}

func TestPlanSelect_DistinctThroughRows(t *testing.T) {
	planned, err := PlanSelect(dialect.Postgres, fetch.Request{
		Table:    "post_tags",
		Columns:  []fetch.Selection{fetch.Column("post_id"), fetch.Column("tag_id")},
		In:       &fetch.InFilter{Column: "post_id", Values: []any{1, 2}},
		NotNull:  []string{"tag_id"},
		Distinct: true,
	})
	require.NoError(t, err)
	assertSQLMatches(t, planned.SQL,
		`SELECT DISTINCT "post_id", "tag_id" FROM "post_tags" WHERE "post_id" IN ($1,$2) AND "tag_id" IS NOT NULL`)
}

func TestPlanSelect_Errors(t *testing.T) {
	_, err := PlanSelect(dialect.MySQL, fetch.Request{Table: "t", In: &fetch.InFilter{Column: "id"}})
	assert.ErrorIs(t, err, ErrEmptyInList)

	_, err = PlanSelect(dialect.MySQL, fetch.Request{})
	assert.Error(t, err)
}

func TestPlanSelect_NoColumns(t *testing.T) {
	planned, err := PlanSelect(dialect.SQLite, fetch.Request{Table: "users"})
	require.NoError(t, err)
	assertSQLMatches(t, planned.SQL, `SELECT * FROM "users"`)
	assert.Empty(t, planned.Args)
}

func assertSQLMatches(t *testing.T, got string, candidates ...string) {
	t.Helper()

	gotNorm := normalizeSQL(got)
	for _, candidate := range candidates {
		if gotNorm == normalizeSQL(candidate) {
			return
		}
	}

	assert.Fail(t, "SQL did not match any expected form", "got: %q candidates: %v", gotNorm, candidates)
}

// Compare args by string form to avoid int vs int64 differences.
func assertArgsEqual(t *testing.T, got []interface{}, expected []interface{}) {
	t.Helper()

	if len(got) != len(expected) {
		assert.Equal(t, len(expected), len(got))
		return
	}
	for i := range got {
		assert.Equal(t, fmt.Sprintf("%v", expected[i]), fmt.Sprintf("%v", got[i]), "arg %d", i)
	}
}

// Normalize SQL for stable comparisons across whitespace differences.
func normalizeSQL(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}
