package introspection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rowpreload/internal/loaderr"
)

func declaredShopSchema(t *testing.T, relations ...RelationDeclaration) *Schema {
	t.Helper()
	schema := &Schema{}
	err := ApplyDeclarations(schema, Declarations{
		Tables: []TableDeclaration{
			{Name: "users", PrimaryKey: "id", Columns: []ColumnDeclaration{{Name: "id", Type: "int"}, {Name: "name", Type: "varchar(64)"}}},
			{Name: "profiles", PrimaryKey: "id", Columns: []ColumnDeclaration{{Name: "id", Type: "int"}, {Name: "user_id", Type: "int"}}},
			{Name: "products", PrimaryKey: "id", InheritanceColumn: "kind", Columns: []ColumnDeclaration{{Name: "id", Type: "int"}, {Name: "kind", Type: "varchar(32)"}}},
			{Name: "likes", PrimaryKey: "id", Columns: []ColumnDeclaration{
				{Name: "id", Type: "int"},
				{Name: "likeable_id", Type: "varchar(36)"},
				{Name: "likeable_type", Type: "varchar(32)"},
			}},
			{Name: "roles", PrimaryKey: "id", Columns: []ColumnDeclaration{{Name: "id", Type: "int"}}},
			{Name: "user_roles", Columns: []ColumnDeclaration{{Name: "user_id", Type: "int"}, {Name: "role_id", Type: "int"}}},
		},
		Relations: relations,
	}, nil)
	require.NoError(t, err)
	return schema
}

func TestApplyDeclarations_Tables(t *testing.T) {
	schema := declaredShopSchema(t)
	users := schema.Table("users")
	require.NotNil(t, users)
	assert.Equal(t, "id", PrimaryKey(*users))
	assert.True(t, users.Column("id").IsPrimaryKey)
	assert.Equal(t, "varchar", users.Column("name").DataType)
	assert.Equal(t, "varchar(64)", users.Column("name").ColumnType)
	assert.Equal(t, "kind", schema.Table("products").InheritanceColumn)
}

func TestApplyDeclarations_Defaults(t *testing.T) {
	schema := declaredShopSchema(t,
		RelationDeclaration{Table: "users", Name: "profile", Kind: "has_one"},
		RelationDeclaration{Table: "profiles", Name: "user", Kind: "belongs_to"},
		RelationDeclaration{Table: "likes", Name: "likeable", Kind: "belongs_to", Polymorphic: true},
		RelationDeclaration{Table: "users", Name: "roles", Kind: "has_many", Through: "user_roles"},
		RelationDeclaration{Table: "users", Name: "first_role", Kind: "has_one_through", Through: "user_roles", Target: "roles"},
	)

	profile, err := schema.Relationship("users", "profile")
	require.NoError(t, err)
	assert.Equal(t, OneToOne, profile.Kind)
	assert.Equal(t, "profiles", profile.TargetTable)
	assert.Equal(t, "id", profile.OwnerKey)
	assert.Equal(t, "user_id", profile.TargetKey)

	user, err := schema.Relationship("profiles", "user")
	require.NoError(t, err)
	assert.Equal(t, DirectReference, user.Kind)
	assert.Equal(t, "user_id", user.OwnerKey)
	assert.Equal(t, "id", user.TargetKey)

	likeable, err := schema.Relationship("likes", "likeable")
	require.NoError(t, err)
	assert.True(t, likeable.IsPolymorphic())
	assert.Equal(t, "likeable_id", likeable.OwnerKey)
	assert.Equal(t, "likeable_type", likeable.PolymorphicTypeColumn)

	roles, err := schema.Relationship("users", "roles")
	require.NoError(t, err)
	assert.Equal(t, ManyToManyThrough, roles.Kind)
	assert.Equal(t, "user_roles", roles.ThroughTable)
	assert.Equal(t, "user_id", roles.ThroughOwnerKey)
	assert.Equal(t, "role_id", roles.ThroughTargetKey)

	first, err := schema.Relationship("users", "first_role")
	require.NoError(t, err)
	assert.Equal(t, OneToOneThrough, first.Kind)
	assert.False(t, first.Kind.IsCollection())
}

func TestApplyDeclarations_OverridesDiscoveredRelation(t *testing.T) {
	schema := declaredShopSchema(t)
	profiles := schema.Table("profiles")
	profiles.Relationships = append(profiles.Relationships, Relationship{Name: "user", Kind: DirectReference, TargetTable: "users", OwnerKey: "user_id", TargetKey: "id"})

	err := ApplyDeclarations(schema, Declarations{Relations: []RelationDeclaration{
		{Table: "profiles", Name: "user", Kind: "belongs_to", Target: "users", Scope: map[string]any{"name": "root"}},
	}}, nil)
	require.NoError(t, err)

	rel, err := schema.Relationship("profiles", "user")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "root"}, rel.Scope)
}

func TestApplyDeclarations_Errors(t *testing.T) {
	tests := []struct {
		name string
		decl RelationDeclaration
	}{
		{name: "unknown owner", decl: RelationDeclaration{Table: "nope", Name: "x", Kind: "has_many"}},
		{name: "unknown kind", decl: RelationDeclaration{Table: "users", Name: "x", Kind: "has_lots"}},
		{name: "unknown target", decl: RelationDeclaration{Table: "users", Name: "widgets", Kind: "has_many"}},
		{name: "unknown through", decl: RelationDeclaration{Table: "users", Name: "roles", Kind: "has_many", Through: "nope"}},
		{name: "missing name", decl: RelationDeclaration{Table: "users", Kind: "has_many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := declaredShopSchema(t)
			err := ApplyDeclarations(schema, Declarations{Relations: []RelationDeclaration{tt.decl}}, nil)
			require.Error(t, err)
			assert.True(t, loaderr.IsConfiguration(err))
		})
	}
}
