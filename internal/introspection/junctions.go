package introspection

// junction describes a table that only links two other tables.
type junction struct {
	Table string
	// Left and Right are ordered by referenced table name.
	Left, Right ForeignKey
}

// classifyJunctions finds link tables. A table qualifies when:
//   - it has exactly two single-column foreign keys to different tables
//   - both foreign key columns are NOT NULL
//   - its primary key covers both foreign key columns
//   - it has no columns beyond the foreign keys and its primary key
//   - both referenced tables exist in the schema
func classifyJunctions(schema *Schema) map[string]junction {
	result := make(map[string]junction)
	for _, table := range schema.Tables {
		if table.IsView || len(table.ForeignKeys) != 2 {
			continue
		}
		if jc, ok := classifyJunction(schema, table); ok {
			result[table.Name] = jc
		}
	}
	return result
}

func classifyJunction(schema *Schema, table Table) (junction, bool) {
	left, right := table.ForeignKeys[0], table.ForeignKeys[1]
	if left.ConstraintName != "" && left.ConstraintName == right.ConstraintName {
		return junction{}, false
	}
	if left.ReferencedTable == right.ReferencedTable {
		return junction{}, false
	}
	if schema.Table(left.ReferencedTable) == nil || schema.Table(right.ReferencedTable) == nil {
		return junction{}, false
	}

	fkColumns := map[string]bool{left.ColumnName: true, right.ColumnName: true}
	covered := 0
	for _, col := range table.Columns {
		if fkColumns[col.Name] {
			if col.IsNullable {
				return junction{}, false
			}
			if col.IsPrimaryKey {
				covered++
			}
			continue
		}
		if !col.IsPrimaryKey {
			// Attribute columns make the link table an entity of its own; it stays
			// reachable through its has-many relations.
			return junction{}, false
		}
	}
	if covered != 2 {
		return junction{}, false
	}

	if left.ReferencedTable > right.ReferencedTable {
		left, right = right, left
	}
	return junction{Table: table.Name, Left: left, Right: right}, true
}
