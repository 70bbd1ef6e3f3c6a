package introspection

import (
	"context"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"rowpreload/internal/naming"
)

// buildRelationships derives relationships from single-column foreign keys:
//   - the referencing table gets a DirectReference named after the FK column
//   - the referenced table gets a OneToMany named after the referencing table
//   - link tables (see classifyJunctions) give both endpoints a ManyToManyThrough
func buildRelationships(ctx context.Context, schema *Schema, namer *naming.Namer) {
	_, span := startSpan(ctx, "introspection.build_relationships")
	defer span.End()

	fkCount := make(map[string]map[string]int) // source → target → count
	for _, table := range schema.Tables {
		if table.IsView {
			continue
		}
		for _, fk := range ForeignKeyConstraints(table) {
			if fkCount[table.Name] == nil {
				fkCount[table.Name] = make(map[string]int)
			}
			fkCount[table.Name][fk.ReferencedTable]++
		}
	}

	added := 0
	for i := range schema.Tables {
		table := &schema.Tables[i]
		if table.IsView {
			continue
		}
		for _, fk := range ForeignKeyConstraints(*table) {
			if !fk.IsSingleColumn() {
				slog.Default().Warn("skipping composite foreign key relationship",
					slog.String("table", table.Name),
					slog.String("constraint", fk.ConstraintName),
					slog.Any("columns", fk.ColumnNames),
				)
				continue
			}
			table.Relationships = append(table.Relationships, Relationship{
				Name:        namer.BelongsToName(fk.ColumnNames[0]),
				Kind:        DirectReference,
				TargetTable: fk.ReferencedTable,
				OwnerKey:    fk.ColumnNames[0],
				TargetKey:   fk.ReferencedColumns[0],
			})
			added++

			target := schema.Table(fk.ReferencedTable)
			if target == nil || target.IsView {
				continue
			}
			isOnlyFK := fkCount[table.Name][fk.ReferencedTable] == 1
			target.Relationships = append(target.Relationships, Relationship{
				Name:        namer.HasManyName(table.Name, fk.ColumnNames[0], isOnlyFK),
				Kind:        OneToMany,
				TargetTable: table.Name,
				OwnerKey:    fk.ReferencedColumns[0],
				TargetKey:   fk.ColumnNames[0],
			})
			added++
		}
	}

	for _, jc := range sortedJunctions(classifyJunctions(schema)) {
		left := schema.Table(jc.Left.ReferencedTable)
		right := schema.Table(jc.Right.ReferencedTable)
		left.Relationships = append(left.Relationships, throughRelationship(namer, jc, jc.Left, jc.Right))
		right.Relationships = append(right.Relationships, throughRelationship(namer, jc, jc.Right, jc.Left))
		added += 2
	}

	span.SetAttributes(attribute.Int("relationship_count", added))
}

func throughRelationship(namer *naming.Namer, jc junction, from, to ForeignKey) Relationship {
	return Relationship{
		Name:             namer.ThroughName(to.ReferencedTable),
		Kind:             ManyToManyThrough,
		TargetTable:      to.ReferencedTable,
		OwnerKey:         from.ReferencedColumn,
		TargetKey:        to.ReferencedColumn,
		ThroughTable:     jc.Table,
		ThroughOwnerKey:  from.ColumnName,
		ThroughTargetKey: to.ColumnName,
	}
}

func sortedJunctions(junctions map[string]junction) []junction {
	names := make([]string, 0, len(junctions))
	for name := range junctions {
		names = append(names, name)
	}
	slices.Sort(names)
	result := make([]junction, 0, len(names))
	for _, name := range names {
		result = append(result, junctions[name])
	}
	return result
}
