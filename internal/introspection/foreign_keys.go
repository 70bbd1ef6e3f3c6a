package introspection

import (
	"fmt"
	"sort"
)

// ForeignKeyConstraint groups per-column KEY_COLUMN_USAGE rows into one constraint.
type ForeignKeyConstraint struct {
	ConstraintName    string
	ReferencedTable   string
	ColumnNames       []string
	ReferencedColumns []string
}

// IsSingleColumn reports whether the constraint maps exactly one column.
func (c ForeignKeyConstraint) IsSingleColumn() bool {
	return len(c.ColumnNames) == 1 && len(c.ReferencedColumns) == 1
}

// ForeignKeyConstraints returns the table's constraints ordered by name, each with its
// columns in ordinal order. Unnamed rows are kept as separate constraints.
func ForeignKeyConstraints(table Table) []ForeignKeyConstraint {
	if len(table.ForeignKeys) == 0 {
		return nil
	}

	keyOf := func(i int) string {
		if name := table.ForeignKeys[i].ConstraintName; name != "" {
			return name
		}
		return fmt.Sprintf("\x00unnamed_%03d", i)
	}

	order := make([]int, len(table.ForeignKeys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := keyOf(order[a]), keyOf(order[b])
		if ka != kb {
			return ka < kb
		}
		return table.ForeignKeys[order[a]].OrdinalPosition < table.ForeignKeys[order[b]].OrdinalPosition
	})

	var result []ForeignKeyConstraint
	lastKey := ""
	for _, idx := range order {
		fk := table.ForeignKeys[idx]
		key := keyOf(idx)
		if len(result) == 0 || key != lastKey {
			result = append(result, ForeignKeyConstraint{
				ConstraintName:  fk.ConstraintName,
				ReferencedTable: fk.ReferencedTable,
			})
			lastKey = key
		}
		current := &result[len(result)-1]
		current.ColumnNames = append(current.ColumnNames, fk.ColumnName)
		current.ReferencedColumns = append(current.ReferencedColumns, fk.ReferencedColumn)
	}
	return result
}
