package introspection

// PrimaryKey returns the table's join key column: the explicit override when set,
// otherwise the first primary key column, falling back to "id".
func PrimaryKey(table Table) string {
	if table.PrimaryKey != "" {
		return table.PrimaryKey
	}
	if col := PrimaryKeyColumn(table); col != nil {
		return col.Name
	}
	return "id"
}

// PrimaryKeyColumn returns the first primary key column for a table, if present.
func PrimaryKeyColumn(table Table) *Column {
	for i := range table.Columns {
		if table.Columns[i].IsPrimaryKey {
			return &table.Columns[i]
		}
	}
	return nil
}

// PrimaryKeyColumns returns all primary key columns for a table in column order.
func PrimaryKeyColumns(table Table) []Column {
	var cols []Column
	for _, col := range table.Columns {
		if col.IsPrimaryKey {
			cols = append(cols, col)
		}
	}
	return cols
}
