// Package introspection holds the schema metadata the relation loader reflects on:
// tables, their declared columns and the relationships between them.
//
// Metadata can be discovered from a MySQL-compatible information_schema
// (tables, columns, primary keys and foreign keys, with relationships derived
// from the foreign keys) and overlaid with declared relationships for the kinds
// a foreign key cannot express: has-one, through and polymorphic references.
package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rowpreload/internal/naming"
	"rowpreload/internal/sqltype"
)

// Column represents a declared table column.
type Column struct {
	Name       string
	DataType   string
	ColumnType string
	IsNullable bool
	// IsPrimaryKey marks members of the primary key.
	IsPrimaryKey bool
	// OverrideType is an explicit scalar category resolved during schema preparation.
	OverrideType    sqltype.Type
	HasOverrideType bool
}

// Type returns the effective scalar category of the column.
func (c Column) Type() sqltype.Type {
	if c.HasOverrideType {
		return c.OverrideType
	}
	return sqltype.MapToType(c.DataType)
}

// ForeignKey represents one column of a foreign key constraint.
type ForeignKey struct {
	ColumnName       string // e.g., "author_id"
	ReferencedTable  string // e.g., "users"
	ReferencedColumn string // e.g., "id"
	ConstraintName   string // e.g., "posts_ibfk_1"
	OrdinalPosition  int    // Column position within the FK constraint
}

// Fields is the read access a Method needs on a projected row.
type Fields interface {
	Get(field string) any
}

// Method computes a derived value for one projected row.
type Method func(row Fields) any

// Table represents a database table and the relationships it owns.
type Table struct {
	Name    string
	IsView  bool
	Comment string
	// PrimaryKey overrides the primary key column detected from Columns.
	PrimaryKey string
	// InheritanceColumn names a stored type discriminator; polymorphic references that
	// resolve to this table also filter on it.
	InheritanceColumn string
	Columns           []Column
	ForeignKeys       []ForeignKey
	Relationships     []Relationship
	// Methods are named derived values the projector can attach to rows of this table.
	Methods map[string]Method
}

// Schema represents the introspected database schema.
type Schema struct {
	Tables []Table
}

// Queryer provides query access for schema introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// IntrospectDatabaseContext reads tables, columns, primary keys and foreign keys from
// information_schema and derives relationships from the foreign keys.
func IntrospectDatabaseContext(ctx context.Context, db Queryer, databaseName string, namer *naming.Namer) (*Schema, error) {
	ctx, span := startSpan(ctx, "introspection.build_schema",
		attribute.String("db.name", databaseName),
	)
	defer span.End()

	if namer == nil {
		namer = naming.Default()
	}

	tables, err := getTables(ctx, db, databaseName)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	schema := &Schema{Tables: make([]Table, 0, len(tables))}
	for _, table := range tables {
		table.Columns, err = getColumns(ctx, db, databaseName, table.Name)
		if err != nil {
			recordSpanError(span, err)
			return nil, fmt.Errorf("failed to get columns for %s: %w", table.Name, err)
		}
		if !table.IsView {
			table.ForeignKeys, err = getForeignKeys(ctx, db, databaseName, table.Name)
			if err != nil {
				recordSpanError(span, err)
				return nil, fmt.Errorf("failed to get foreign keys for %s: %w", table.Name, err)
			}
		}
		schema.Tables = append(schema.Tables, table)
	}

	buildRelationships(ctx, schema, namer)
	span.SetAttributes(attribute.Int("db.table_count", len(schema.Tables)))
	return schema, nil
}

func getTables(ctx context.Context, db Queryer, databaseName string) ([]Table, error) {
	ctx, span := startSpan(ctx, "introspection.get_tables",
		attribute.String("db.name", databaseName),
	)
	defer span.End()

	rows, err := db.QueryContext(ctx, `
		SELECT TABLE_NAME, TABLE_TYPE, TABLE_COMMENT
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
		ORDER BY TABLE_NAME
	`, databaseName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var tables []Table
	for rows.Next() {
		var name, tableType string
		var comment sql.NullString
		if err := rows.Scan(&name, &tableType, &comment); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		tables = append(tables, Table{
			Name:    name,
			IsView:  strings.EqualFold(tableType, "VIEW"),
			Comment: strings.TrimSpace(comment.String),
		})
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return tables, nil
}

// getColumns reads declared columns in ordinal order. COLUMN_KEY = 'PRI' marks primary key members.
func getColumns(ctx context.Context, db Queryer, databaseName, tableName string) ([]Column, error) {
	ctx, span := startSpan(ctx, "introspection.get_columns",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	rows, err := db.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, IS_NULLABLE, COLUMN_KEY
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []Column
	for rows.Next() {
		var col Column
		var isNullable string
		var columnKey sql.NullString
		if err := rows.Scan(&col.Name, &col.DataType, &col.ColumnType, &isNullable, &columnKey); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		col.IsNullable = strings.EqualFold(isNullable, "YES")
		col.IsPrimaryKey = strings.EqualFold(columnKey.String, "PRI")
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return columns, nil
}

func getForeignKeys(ctx context.Context, db Queryer, databaseName, tableName string) ([]ForeignKey, error) {
	ctx, span := startSpan(ctx, "introspection.get_foreign_keys",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	rows, err := db.QueryContext(ctx, `
		SELECT COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME, CONSTRAINT_NAME, ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
			AND TABLE_NAME = ?
			AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY CONSTRAINT_NAME, ORDINAL_POSITION
	`, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var foreignKeys []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn, &fk.ConstraintName, &fk.OrdinalPosition); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		foreignKeys = append(foreignKeys, fk)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	slog.Default().Debug("introspected foreign keys",
		slog.String("table", tableName),
		slog.Int("count", len(foreignKeys)),
	)
	return foreignKeys, nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("rowpreload/introspection")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
