// Package sqltype provides a shared mapping from SQL data types to scalar categories.
// The category decides how fetched values are cast and whether join keys on two
// columns need coercion before they can be compared.
package sqltype

import "strings"

// Type represents the scalar category of a SQL column.
type Type int

const (
	// TypeString is the default type for text and unknown SQL types.
	TypeString Type = iota
	// TypeInt represents integer numeric types.
	TypeInt
	// TypeFloat represents floating-point types.
	TypeFloat
	// TypeDecimal represents fixed-point numeric types.
	TypeDecimal
	// TypeBoolean represents boolean types.
	TypeBoolean
	// TypeJSON represents JSON data types.
	TypeJSON
	// TypeTime represents date and time types.
	TypeTime
	// TypeBytes represents binary types.
	TypeBytes
	// TypeUUID represents UUID types, native or declared over 16-byte binary storage.
	TypeUUID
)

// MapToType converts a SQL data type string to its scalar category.
// The input is case-insensitive. Size specifiers like (10,2) or (255) are stripped before matching,
// so both INFORMATION_SCHEMA.COLUMNS.DATA_TYPE and COLUMN_TYPE values are accepted.
func MapToType(sqlType string) Type {
	if idx := strings.Index(sqlType, "("); idx != -1 {
		sqlType = sqlType[:idx]
	}
	normalized := strings.ToUpper(strings.TrimSpace(sqlType))
	normalized = strings.TrimSuffix(normalized, " UNSIGNED")
	switch normalized {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT",
		"SERIAL", "BIGSERIAL", "SMALLSERIAL", "BIT", "INT2", "INT4", "INT8":
		return TypeInt
	case "FLOAT", "DOUBLE", "REAL", "DOUBLE PRECISION", "FLOAT4", "FLOAT8":
		return TypeFloat
	case "DECIMAL", "NUMERIC":
		return TypeDecimal
	case "BOOL", "BOOLEAN":
		return TypeBoolean
	case "JSON", "JSONB":
		return TypeJSON
	case "DATE", "DATETIME", "TIMESTAMP", "TIME", "YEAR",
		"TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE", "TIMESTAMP WITHOUT TIME ZONE":
		return TypeTime
	case "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BINARY", "VARBINARY", "BYTEA":
		return TypeBytes
	case "UUID":
		return TypeUUID
	default:
		return TypeString
	}
}

// String returns a lower-case name for the category.
func (t Type) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeDecimal:
		return "decimal"
	case TypeBoolean:
		return "boolean"
	case TypeJSON:
		return "json"
	case TypeTime:
		return "time"
	case TypeBytes:
		return "bytes"
	case TypeUUID:
		return "uuid"
	default:
		return "string"
	}
}

// IsNumeric reports whether values of the category are numbers.
func (t Type) IsNumeric() bool {
	return t == TypeInt || t == TypeFloat || t == TypeDecimal
}
