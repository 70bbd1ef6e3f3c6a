// Package planner converts fetch requests into parameterized SQL statements.
package planner

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"rowpreload/internal/dialect"
	"rowpreload/internal/fetch"
)

// ErrEmptyInList indicates a membership filter with no values; callers short-circuit
// before planning.
var ErrEmptyInList = errors.New("membership filter has no values")

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// PlanSelect builds the SELECT for one fetch request.
func PlanSelect(d dialect.Dialect, req fetch.Request) (SQLQuery, error) {
	if strings.TrimSpace(req.Table) == "" {
		return SQLQuery{}, fmt.Errorf("select requires a table")
	}

	builder := sq.Select(selectionList(d, req.Columns)...).
		From(d.QuoteIdentifier(req.Table))
	if req.Distinct {
		builder = builder.Distinct()
	}

	if req.In != nil {
		if len(req.In.Values) == 0 {
			return SQLQuery{}, ErrEmptyInList
		}
		values := append([]interface{}(nil), req.In.Values...)
		builder = builder.Where(sq.Eq{d.QuoteIdentifier(req.In.Column): values})
	}
	for _, col := range req.NotNull {
		builder = builder.Where(sq.NotEq{d.QuoteIdentifier(col): nil})
	}
	for _, col := range sortedKeys(req.Scope) {
		builder = builder.Where(sq.Eq{d.QuoteIdentifier(col): req.Scope[col]})
	}
	for _, clause := range req.OrderBy {
		builder = builder.OrderBy(orderClause(d, clause))
	}

	query, args, err := builder.PlaceholderFormat(d.Placeholder).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

func selectionList(d dialect.Dialect, selections []fetch.Selection) []string {
	if len(selections) == 0 {
		return []string{"*"}
	}
	cols := make([]string, len(selections))
	for i, sel := range selections {
		if sel.Raw {
			cols[i] = sel.Expr
			continue
		}
		cols[i] = d.QuoteIdentifier(sel.Expr)
	}
	return cols
}

// orderClause quotes "column" and "column ASC|DESC"; anything else is passed through
// as an expression.
func orderClause(d dialect.Dialect, clause string) string {
	parts := strings.Fields(clause)
	switch len(parts) {
	case 1:
		if isIdentifier(parts[0]) {
			return d.QuoteIdentifier(parts[0])
		}
	case 2:
		direction := strings.ToUpper(parts[1])
		if isIdentifier(parts[0]) && (direction == "ASC" || direction == "DESC") {
			return d.QuoteIdentifier(parts[0]) + " " + direction
		}
	}
	return clause
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
