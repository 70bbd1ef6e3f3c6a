// Package uuidutil converts UUID values between their text and 16-byte forms.
package uuidutil

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ParseString parses common UUID string formats and returns a normalized lower-case UUID.
func ParseString(raw string) (uuid.UUID, string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid UUID value")
	}
	return parsed, parsed.String(), nil
}

// ParseBytes parses a fetched UUID: 16 raw bytes in RFC order, or its text form.
func ParseBytes(raw []byte) (uuid.UUID, string, error) {
	if len(raw) == 16 {
		if parsed, err := uuid.FromBytes(raw); err == nil {
			return parsed, parsed.String(), nil
		}
	}
	parsed, err := uuid.ParseBytes(raw)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid UUID bytes")
	}
	return parsed, parsed.String(), nil
}

// Normalize returns the canonical lower-case text of a UUID held as text, raw
// bytes or a uuid.UUID. ok is false when v is not a UUID.
func Normalize(v any) (string, bool) {
	switch val := v.(type) {
	case []byte:
		_, s, err := ParseBytes(val)
		return s, err == nil
	case string:
		_, s, err := ParseString(val)
		return s, err == nil
	case uuid.UUID:
		return val.String(), true
	case [16]byte:
		return uuid.UUID(val).String(), true
	default:
		return "", false
	}
}

// ToBytes returns UUID bytes in RFC order.
func ToBytes(u uuid.UUID) []byte {
	out := make([]byte, len(u))
	copy(out, u[:])
	return out
}

// IsBinaryStorageType reports whether a SQL type stores UUID values as raw bytes.
func IsBinaryStorageType(dataType string) bool {
	baseType, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(dataType)), "(")
	return baseType == "binary" || baseType == "varbinary" || baseType == "bytea"
}
