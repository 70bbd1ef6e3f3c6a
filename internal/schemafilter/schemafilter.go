// Package schemafilter applies allow/deny filters to a discovered schema.
package schemafilter

import (
	"path"
	"slices"
	"strings"

	"rowpreload/internal/introspection"
)

// Config controls allow/deny filters for tables and columns. Patterns are
// case-insensitive globs; column patterns are keyed by table name or "*".
type Config struct {
	AllowTables  []string            `mapstructure:"allow_tables"`
	DenyTables   []string            `mapstructure:"deny_tables"`
	IncludeViews bool                `mapstructure:"include_views"`
	AllowColumns map[string][]string `mapstructure:"allow_columns"`
	DenyColumns  map[string][]string `mapstructure:"deny_columns"`
}

// Apply filters tables, columns, foreign keys and relationships in place.
// Missing allow lists default to allow-all; deny rules always win. Relationships
// whose tables or join columns were filtered away are dropped.
func Apply(schema *introspection.Schema, cfg Config) {
	if schema == nil {
		return
	}

	filtered := make([]introspection.Table, 0, len(schema.Tables))
	for _, table := range schema.Tables {
		if table.IsView && !cfg.IncludeViews {
			continue
		}
		if !tableAllowed(table.Name, cfg.AllowTables, cfg.DenyTables) {
			continue
		}
		columns := make([]introspection.Column, 0, len(table.Columns))
		for _, column := range table.Columns {
			if columnAllowed(table.Name, column.Name, cfg.AllowColumns, cfg.DenyColumns) {
				columns = append(columns, column)
			}
		}
		if len(columns) == 0 {
			continue
		}
		table.Columns = columns
		filtered = append(filtered, table)
	}

	kept := &introspection.Schema{Tables: filtered}
	for i := range filtered {
		table := &filtered[i]
		table.ForeignKeys = filterForeignKeys(kept, *table)
		table.Relationships = filterRelationships(kept, *table)
	}
	schema.Tables = filtered
}

func tableAllowed(table string, allow, deny []string) bool {
	if matchesAny(table, deny) {
		return false
	}
	if len(allow) == 0 {
		return true
	}
	return matchesAny(table, allow)
}

func columnAllowed(table, column string, allow, deny map[string][]string) bool {
	if matchesAny(column, mergePatterns(deny, table)) {
		return false
	}
	allowPatterns := mergePatterns(allow, table)
	if len(allowPatterns) == 0 {
		return true
	}
	return matchesAny(column, allowPatterns)
}

func mergePatterns(patterns map[string][]string, table string) []string {
	if patterns == nil {
		return nil
	}
	combined := append([]string{}, patterns["*"]...)
	for key, values := range patterns {
		if key != "*" && strings.EqualFold(key, table) {
			combined = append(combined, values...)
		}
	}
	return slices.Compact(combined)
}

func hasColumn(schema *introspection.Schema, table, column string) bool {
	t := schema.Table(table)
	return t != nil && t.Column(column) != nil
}

func filterForeignKeys(schema *introspection.Schema, table introspection.Table) []introspection.ForeignKey {
	out := make([]introspection.ForeignKey, 0, len(table.ForeignKeys))
	for _, fk := range table.ForeignKeys {
		if table.Column(fk.ColumnName) == nil {
			continue
		}
		if !hasColumn(schema, fk.ReferencedTable, fk.ReferencedColumn) {
			continue
		}
		out = append(out, fk)
	}
	return out
}

func filterRelationships(schema *introspection.Schema, table introspection.Table) []introspection.Relationship {
	out := make([]introspection.Relationship, 0, len(table.Relationships))
	for _, rel := range table.Relationships {
		if relationshipIntact(schema, table, rel) {
			out = append(out, rel)
		}
	}
	return out
}

func relationshipIntact(schema *introspection.Schema, owner introspection.Table, rel introspection.Relationship) bool {
	if owner.Column(rel.OwnerKey) == nil {
		return false
	}
	if rel.IsPolymorphic() {
		return owner.Column(rel.PolymorphicTypeColumn) != nil
	}
	if !hasColumn(schema, rel.TargetTable, rel.TargetKey) {
		return false
	}
	if rel.Kind.IsThrough() {
		return hasColumn(schema, rel.ThroughTable, rel.ThroughOwnerKey) &&
			hasColumn(schema, rel.ThroughTable, rel.ThroughTargetKey)
	}
	return true
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		ok, err := path.Match(strings.ToLower(pattern), value)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
