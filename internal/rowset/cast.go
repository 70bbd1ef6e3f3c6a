package rowset

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"rowpreload/internal/introspection"
	"rowpreload/internal/sqltype"
	"rowpreload/internal/uuidutil"
)

// Cast converts a scanned driver value to the Go type used for the category.
// Values that do not convert are returned with []byte turned into string.
func Cast(t sqltype.Type, v any) any {
	return casterFor(t)(v)
}

func casterFor(t sqltype.Type) func(any) any {
	switch t {
	case sqltype.TypeInt:
		return castInt
	case sqltype.TypeFloat:
		return castFloat
	case sqltype.TypeDecimal:
		return castDecimal
	case sqltype.TypeBoolean:
		return castBool
	case sqltype.TypeJSON:
		return castJSON
	case sqltype.TypeTime:
		return castTime
	case sqltype.TypeBytes:
		return castBytes
	case sqltype.TypeUUID:
		return castUUID
	default:
		return castUndeclared
	}
}

func castUndeclared(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// castInt keeps BIGINT UNSIGNED values above MaxInt64 as uint64.
func castInt(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case uint64:
		if val > math.MaxInt64 {
			return val
		}
	case uint:
		if uint64(val) > math.MaxInt64 {
			return uint64(val)
		}
	}
	raw := castUndeclared(v)
	if n, err := cast.ToInt64E(raw); err == nil {
		return n
	}
	if s, ok := raw.(string); ok {
		if u, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64); err == nil {
			return u
		}
	}
	return raw
}

func castFloat(v any) any {
	if v == nil {
		return nil
	}
	if f, err := cast.ToFloat64E(castUndeclared(v)); err == nil {
		return f
	}
	return castUndeclared(v)
}

func castDecimal(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		return val
	case []byte:
		if d, err := decimal.NewFromString(string(val)); err == nil {
			return d
		}
	case string:
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(val)
	case float32:
		return decimal.NewFromFloat32(val)
	default:
		if n, err := cast.ToInt64E(val); err == nil {
			return decimal.NewFromInt(n)
		}
	}
	return castUndeclared(v)
}

func castBool(v any) any {
	if v == nil {
		return nil
	}
	if b, err := cast.ToBoolE(castUndeclared(v)); err == nil {
		return b
	}
	return castUndeclared(v)
}

func castJSON(v any) any {
	switch val := v.(type) {
	case []byte:
		raw := make(json.RawMessage, len(val))
		copy(raw, val)
		if json.Valid(raw) {
			return raw
		}
		return string(val)
	case string:
		if json.Valid([]byte(val)) {
			return json.RawMessage(val)
		}
		return val
	default:
		return v
	}
}

func castTime(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val
	default:
		s := castUndeclared(v)
		if t, err := cast.ToTimeE(s); err == nil {
			return t
		}
		return s
	}
}

func castBytes(v any) any {
	if b, ok := v.([]byte); ok {
		out := make([]byte, len(b))
		copy(out, b)
		return out
	}
	return v
}

func castUUID(v any) any {
	if s, ok := uuidutil.Normalize(v); ok {
		return s
	}
	return castUndeclared(v)
}

// CastColumn casts v by the declared type of column on table. Undeclared columns
// only have []byte turned into string.
func CastColumn(table *introspection.Table, column string, v any) any {
	if table != nil {
		if col := table.Column(column); col != nil {
			return Cast(col.Type(), v)
		}
	}
	return castUndeclared(v)
}
