package schemafilter

import (
	"testing"

	"rowpreload/internal/introspection"
)

func TestApply_AllowsAllByDefault(t *testing.T) {
	schema := &introspection.Schema{
		Tables: []introspection.Table{
			{Name: "users", Columns: []introspection.Column{{Name: "id"}}},
			{Name: "orders", Columns: []introspection.Column{{Name: "id"}}},
		},
	}

	Apply(schema, Config{})

	if len(schema.Tables) != 2 {
		t.Fatalf("expected all tables to remain, got %d", len(schema.Tables))
	}
}

func TestApply_TableAndColumnFilters(t *testing.T) {
	schema := &introspection.Schema{
		Tables: []introspection.Table{
			{
				Name: "users",
				Columns: []introspection.Column{
					{Name: "id", IsPrimaryKey: true},
					{Name: "email"},
					{Name: "password_hash"},
				},
			},
			{
				Name: "audit_intern",
				Columns: []introspection.Column{
					{Name: "id", IsPrimaryKey: true},
					{Name: "payload"},
				},
			},
		},
	}

	cfg := Config{
		AllowTables: []string{"*"},
		DenyTables:  []string{"*_intern"},
		AllowColumns: map[string][]string{
			"*": {"*"},
		},
		DenyColumns: map[string][]string{
			"Users": {"password_*"},
		},
	}

	Apply(schema, cfg)

	if len(schema.Tables) != 1 || schema.Tables[0].Name != "users" {
		t.Fatalf("expected only users table to remain, got %+v", schema.Tables)
	}
	if len(schema.Tables[0].Columns) != 2 {
		t.Fatalf("expected password_hash to be filtered, got %+v", schema.Tables[0].Columns)
	}
}

func TestApply_RemovesForeignKeysAndRelationshipsForFilteredColumns(t *testing.T) {
	schema := &introspection.Schema{
		Tables: []introspection.Table{
			{
				Name: "users",
				Columns: []introspection.Column{
					{Name: "id", IsPrimaryKey: true},
				},
				Relationships: []introspection.Relationship{
					{Name: "posts", Kind: introspection.OneToMany, TargetTable: "posts", OwnerKey: "id", TargetKey: "user_id"},
				},
			},
			{
				Name: "posts",
				Columns: []introspection.Column{
					{Name: "id", IsPrimaryKey: true},
					{Name: "user_id"},
				},
				ForeignKeys: []introspection.ForeignKey{
					{
						ColumnName:       "user_id",
						ReferencedTable:  "users",
						ReferencedColumn: "id",
						ConstraintName:   "posts_user_fk",
					},
				},
				Relationships: []introspection.Relationship{
					{Name: "user", Kind: introspection.DirectReference, TargetTable: "users", OwnerKey: "user_id", TargetKey: "id"},
				},
			},
		},
	}

	cfg := Config{
		DenyColumns: map[string][]string{
			"posts": {"user_id"},
		},
	}

	Apply(schema, cfg)

	posts := findTable(schema, "posts")
	if posts == nil {
		t.Fatalf("expected posts table to remain")
	}
	if len(posts.ForeignKeys) != 0 {
		t.Fatalf("expected foreign keys removed, got %+v", posts.ForeignKeys)
	}
	if len(posts.Relationships) != 0 {
		t.Fatalf("expected relationships removed, got %+v", posts.Relationships)
	}
	users := findTable(schema, "users")
	if len(users.Relationships) != 0 {
		t.Fatalf("expected inverse relationship removed, got %+v", users.Relationships)
	}
}

func TestApply_KeepsThroughAndPolymorphicRelationships(t *testing.T) {
	schema := &introspection.Schema{
		Tables: []introspection.Table{
			{
				Name:    "posts",
				Columns: []introspection.Column{{Name: "id"}},
				Relationships: []introspection.Relationship{
					{
						Name: "tags", Kind: introspection.ManyToManyThrough, TargetTable: "tags",
						OwnerKey: "id", TargetKey: "id",
						ThroughTable: "post_tags", ThroughOwnerKey: "post_id", ThroughTargetKey: "tag_id",
					},
				},
			},
			{Name: "tags", Columns: []introspection.Column{{Name: "id"}}},
			{Name: "post_tags", Columns: []introspection.Column{{Name: "post_id"}, {Name: "tag_id"}}},
			{
				Name:    "likes",
				Columns: []introspection.Column{{Name: "likeable_id"}, {Name: "likeable_type"}},
				Relationships: []introspection.Relationship{
					{Name: "likeable", Kind: introspection.DirectReference, OwnerKey: "likeable_id", PolymorphicTypeColumn: "likeable_type"},
				},
			},
		},
	}

	Apply(schema, Config{DenyTables: []string{"audit_*"}})

	if got := len(findTable(schema, "posts").Relationships); got != 1 {
		t.Fatalf("expected through relationship kept, got %d", got)
	}
	if got := len(findTable(schema, "likes").Relationships); got != 1 {
		t.Fatalf("expected polymorphic relationship kept, got %d", got)
	}

	Apply(schema, Config{DenyTables: []string{"post_tags"}})
	if got := len(findTable(schema, "posts").Relationships); got != 0 {
		t.Fatalf("expected through relationship dropped with its middle table, got %d", got)
	}
}

func TestApply_Views(t *testing.T) {
	schema := &introspection.Schema{
		Tables: []introspection.Table{
			{Name: "users", Columns: []introspection.Column{{Name: "id"}}},
			{Name: "active_users", IsView: true, Columns: []introspection.Column{{Name: "id"}}},
		},
	}

	Apply(schema, Config{})
	if len(schema.Tables) != 1 || schema.Tables[0].Name != "users" {
		t.Fatalf("expected views to be skipped by default, got %+v", schema.Tables)
	}

	schema = &introspection.Schema{
		Tables: []introspection.Table{
			{Name: "users", Columns: []introspection.Column{{Name: "id"}}},
			{Name: "active_users", IsView: true, Columns: []introspection.Column{{Name: "id"}}},
		},
	}

	Apply(schema, Config{IncludeViews: true, AllowTables: []string{"*"}})
	if len(schema.Tables) != 2 {
		t.Fatalf("expected views to be included when include_views is enabled, got %+v", schema.Tables)
	}
}

func findTable(schema *introspection.Schema, name string) *introspection.Table {
	for i := range schema.Tables {
		if schema.Tables[i].Name == name {
			return &schema.Tables[i]
		}
	}
	return nil
}
