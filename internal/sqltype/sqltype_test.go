package sqltype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapToType_IntegerTypes(t *testing.T) {
	intTypes := []string{
		"TINYINT", "tinyint",
		"SMALLINT", "smallint",
		"INT", "int",
		"INTEGER", "integer",
		"BIGINT", "bigint",
		"bigint(20) unsigned",
		"SERIAL", "bigserial",
		"int8",
	}

	for _, sqlType := range intTypes {
		t.Run(sqlType, func(t *testing.T) {
			assert.Equal(t, TypeInt, MapToType(sqlType))
			assert.Equal(t, "int", MapToType(sqlType).String())
		})
	}
}

func TestMapToType_NumericCategories(t *testing.T) {
	assert.Equal(t, TypeFloat, MapToType("double"))
	assert.Equal(t, TypeFloat, MapToType("double precision"))
	assert.Equal(t, TypeFloat, MapToType("REAL"))
	assert.Equal(t, TypeDecimal, MapToType("decimal(10,2)"))
	assert.Equal(t, TypeDecimal, MapToType("NUMERIC"))
	assert.True(t, TypeDecimal.IsNumeric())
	assert.False(t, TypeString.IsNumeric())
}

func TestMapToType_Other(t *testing.T) {
	tests := map[string]Type{
		"varchar(255)":             TypeString,
		"text":                     TypeString,
		"enum('a','b')":            TypeString,
		"bool":                     TypeBoolean,
		"json":                     TypeJSON,
		"jsonb":                    TypeJSON,
		"datetime":                 TypeTime,
		"timestamp with time zone": TypeTime,
		"varbinary(16)":            TypeBytes,
		"bytea":                    TypeBytes,
		"uuid":                     TypeUUID,
		"geometry":                 TypeString,
		"":                         TypeString,
	}
	for sqlType, want := range tests {
		t.Run(sqlType, func(t *testing.T) {
			assert.Equal(t, want, MapToType(sqlType))
		})
	}
}
