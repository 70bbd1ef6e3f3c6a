package introspection

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rowpreload/internal/loaderr"
	"rowpreload/internal/naming"
	"rowpreload/internal/sqltype"
)

var columnHeaders = []string{"COLUMN_NAME", "DATA_TYPE", "COLUMN_TYPE", "IS_NULLABLE", "COLUMN_KEY"}
var fkHeaders = []string{"COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME", "CONSTRAINT_NAME", "ORDINAL_POSITION"}

func expectBlogSchema(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").
		WithArgs("blog").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE", "TABLE_COMMENT"}).
			AddRow("post_tags", "BASE TABLE", "").
			AddRow("posts", "BASE TABLE", "blog posts").
			AddRow("tags", "BASE TABLE", nil).
			AddRow("users", "BASE TABLE", ""))

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("blog", "post_tags").
		WillReturnRows(sqlmock.NewRows(columnHeaders).
			AddRow("post_id", "bigint", "bigint", "NO", "PRI").
			AddRow("tag_id", "bigint", "bigint", "NO", "PRI"))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE").
		WithArgs("blog", "post_tags").
		WillReturnRows(sqlmock.NewRows(fkHeaders).
			AddRow("post_id", "posts", "id", "fk_pt_post", 1).
			AddRow("tag_id", "tags", "id", "fk_pt_tag", 1))

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("blog", "posts").
		WillReturnRows(sqlmock.NewRows(columnHeaders).
			AddRow("id", "bigint", "bigint", "NO", "PRI").
			AddRow("author_id", "bigint", "bigint", "YES", "MUL").
			AddRow("editor_id", "bigint", "bigint", "YES", "MUL").
			AddRow("title", "varchar", "varchar(255)", "NO", ""))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE").
		WithArgs("blog", "posts").
		WillReturnRows(sqlmock.NewRows(fkHeaders).
			AddRow("author_id", "users", "id", "fk_post_author", 1).
			AddRow("editor_id", "users", "id", "fk_post_editor", 1))

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("blog", "tags").
		WillReturnRows(sqlmock.NewRows(columnHeaders).
			AddRow("id", "bigint", "bigint", "NO", "PRI").
			AddRow("name", "varchar", "varchar(64)", "NO", "UNI"))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE").
		WithArgs("blog", "tags").
		WillReturnRows(sqlmock.NewRows(fkHeaders))

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("blog", "users").
		WillReturnRows(sqlmock.NewRows(columnHeaders).
			AddRow("id", "bigint", "bigint", "NO", "PRI").
			AddRow("name", "varchar", "varchar(255)", "NO", ""))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE").
		WithArgs("blog", "users").
		WillReturnRows(sqlmock.NewRows(fkHeaders))
}

func TestIntrospectDatabaseContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectBlogSchema(mock)

	schema, err := IntrospectDatabaseContext(context.Background(), db, "blog", naming.Default())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, schema.Tables, 4)

	posts := schema.Table("posts")
	require.NotNil(t, posts)
	assert.Equal(t, "blog posts", posts.Comment)
	assert.Equal(t, []string{"id", "author_id", "editor_id", "title"}, posts.ColumnNames())
	assert.Equal(t, "id", PrimaryKey(*posts))
	assert.True(t, posts.Column("author_id").IsNullable)
	assert.Equal(t, sqltype.TypeInt, posts.Column("id").Type())

	author, err := schema.Relationship("posts", "author")
	require.NoError(t, err)
	assert.Equal(t, DirectReference, author.Kind)
	assert.Equal(t, "users", author.TargetTable)
	assert.Equal(t, "author_id", author.OwnerKey)
	assert.Equal(t, "id", author.TargetKey)

	// Two FKs from posts to users: has-many names are prefixed by the FK column.
	authored, err := schema.Relationship("users", "author_posts")
	require.NoError(t, err)
	assert.Equal(t, OneToMany, authored.Kind)
	assert.Equal(t, "posts", authored.TargetTable)
	assert.Equal(t, "id", authored.OwnerKey)
	assert.Equal(t, "author_id", authored.TargetKey)
	_, err = schema.Relationship("users", "editor_posts")
	require.NoError(t, err)

	tags, err := schema.Relationship("posts", "tags")
	require.NoError(t, err)
	assert.Equal(t, ManyToManyThrough, tags.Kind)
	assert.Equal(t, "post_tags", tags.ThroughTable)
	assert.Equal(t, "post_id", tags.ThroughOwnerKey)
	assert.Equal(t, "tag_id", tags.ThroughTargetKey)
	assert.Equal(t, "id", tags.OwnerKey)
	assert.Equal(t, "id", tags.TargetKey)

	posts2, err := schema.Relationship("tags", "posts")
	require.NoError(t, err)
	assert.Equal(t, "tag_id", posts2.ThroughOwnerKey)
	assert.Equal(t, "post_id", posts2.ThroughTargetKey)
}

func TestIntrospectDatabaseContext_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").WillReturnError(sql.ErrConnDone)

	_, err = IntrospectDatabaseContext(context.Background(), db, "blog", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestSchemaRelationship_Unknown(t *testing.T) {
	schema := &Schema{Tables: []Table{{Name: "users"}}}

	_, err := schema.Relationship("users", "posts")
	require.Error(t, err)
	assert.True(t, loaderr.IsConfiguration(err))
	assert.Contains(t, err.Error(), `"posts"`)
	assert.Contains(t, err.Error(), `"users"`)

	_, err = schema.Relationship("missing", "posts")
	assert.True(t, loaderr.IsConfiguration(err))
}

func TestParseRelationKind(t *testing.T) {
	tests := []struct {
		kind    string
		through bool
		want    RelationKind
		wantErr bool
	}{
		{kind: "belongs_to", want: DirectReference},
		{kind: "has_many", want: OneToMany},
		{kind: "has_many", through: true, want: ManyToManyThrough},
		{kind: "has_many_through", want: ManyToManyThrough},
		{kind: "HAS_ONE", want: OneToOne},
		{kind: "has_one_through", want: OneToOneThrough},
		{kind: "many_to_many", want: ManyToManyThrough},
		{kind: "belongs_to", through: true, wantErr: true},
		{kind: "has_and_belongs_to_many", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseRelationKind(tt.kind, tt.through)
		if tt.wantErr {
			assert.True(t, loaderr.IsConfiguration(err), tt.kind)
			continue
		}
		require.NoError(t, err, tt.kind)
		assert.Equal(t, tt.want, got, tt.kind)
	}
}

func TestForeignKeyConstraints_GroupsByConstraintName(t *testing.T) {
	table := Table{
		Name: "membership",
		ForeignKeys: []ForeignKey{
			{ConstraintName: "fk_user", ColumnName: "user_id", ReferencedTable: "users", ReferencedColumn: "id", OrdinalPosition: 2},
			{ConstraintName: "fk_user", ColumnName: "tenant_id", ReferencedTable: "users", ReferencedColumn: "tenant_id", OrdinalPosition: 1},
			{ConstraintName: "fk_group", ColumnName: "group_id", ReferencedTable: "groups", ReferencedColumn: "id", OrdinalPosition: 1},
		},
	}

	got := ForeignKeyConstraints(table)
	require.Len(t, got, 2)
	assert.Equal(t, "fk_group", got[0].ConstraintName)
	assert.True(t, got[0].IsSingleColumn())
	assert.Equal(t, []string{"tenant_id", "user_id"}, got[1].ColumnNames)
	assert.Equal(t, []string{"tenant_id", "id"}, got[1].ReferencedColumns)
	assert.False(t, got[1].IsSingleColumn())
}

func TestForeignKeyConstraints_UnnamedRowsStayIsolated(t *testing.T) {
	table := Table{
		Name: "posts",
		ForeignKeys: []ForeignKey{
			{ColumnName: "author_id", ReferencedTable: "users", ReferencedColumn: "id"},
			{ColumnName: "editor_id", ReferencedTable: "users", ReferencedColumn: "id"},
		},
	}

	got := ForeignKeyConstraints(table)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"author_id"}, got[0].ColumnNames)
	assert.Equal(t, []string{"editor_id"}, got[1].ColumnNames)
}

func TestClassifyJunctions_RejectsAttributeTables(t *testing.T) {
	schema := &Schema{Tables: []Table{
		{Name: "users", Columns: []Column{{Name: "id", IsPrimaryKey: true}}},
		{Name: "groups", Columns: []Column{{Name: "id", IsPrimaryKey: true}}},
		{
			Name: "memberships",
			Columns: []Column{
				{Name: "user_id", IsPrimaryKey: true},
				{Name: "group_id", IsPrimaryKey: true},
				{Name: "role"},
			},
			ForeignKeys: []ForeignKey{
				{ColumnName: "user_id", ReferencedTable: "users", ReferencedColumn: "id", ConstraintName: "a"},
				{ColumnName: "group_id", ReferencedTable: "groups", ReferencedColumn: "id", ConstraintName: "b"},
			},
		},
	}}
	assert.Empty(t, classifyJunctions(schema))

	schema.Tables[2].Columns = schema.Tables[2].Columns[:2]
	junctions := classifyJunctions(schema)
	require.Contains(t, junctions, "memberships")
	assert.Equal(t, "groups", junctions["memberships"].Left.ReferencedTable)
	assert.Equal(t, "users", junctions["memberships"].Right.ReferencedTable)
}

func TestRegisterMethod(t *testing.T) {
	schema := &Schema{Tables: []Table{{Name: "users"}}}
	require.NoError(t, schema.RegisterMethod("users", "shout", func(row Fields) any { return "HI" }))

	fn, ok := schema.Table("users").Method("shout")
	require.True(t, ok)
	assert.Equal(t, "HI", fn(nil))

	_, ok = schema.Table("users").Method("whisper")
	assert.False(t, ok)
	assert.True(t, loaderr.IsConfiguration(schema.RegisterMethod("nope", "x", nil)))
}
