// Package keynorm aligns join key values so owner-side and target-side keys compare equal.
//
// When the two sides of a join are declared with different scalar types (an integer
// id matched against a varchar column, say), every key is stringified before it is
// used as a filter value or a grouping key. Otherwise raw values are kept, widened to
// canonical Go types so drivers that scan the same column as int32 on one query and
// int64 on another still group together.
package keynorm

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"rowpreload/internal/sqltype"
)

// RequiresCoercion reports whether any two of the given column types differ.
func RequiresCoercion(types ...sqltype.Type) bool {
	for i := 1; i < len(types); i++ {
		if types[i] != types[0] {
			return true
		}
	}
	return false
}

// Normalizer converts key values to map-safe comparable values.
type Normalizer struct {
	coerce bool
}

// New returns a Normalizer; coerce selects stringification of every key.
func New(coerce bool) Normalizer {
	return Normalizer{coerce: coerce}
}

// Coerces reports whether keys are stringified.
func (n Normalizer) Coerces() bool {
	return n.coerce
}

// Key returns the normalized form of v. Nil stays nil.
func (n Normalizer) Key(v any) any {
	if v == nil {
		return nil
	}
	if n.coerce {
		return Stringify(v)
	}
	return canonical(v)
}

// Values normalizes values, dropping nils and duplicates while keeping first-seen order.
func (n Normalizer) Values(values []any) []any {
	seen := make(map[any]struct{}, len(values))
	out := make([]any, 0, len(values))
	for _, v := range values {
		key := n.Key(v)
		if key == nil {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// Stringify renders a key value in its canonical text form.
func Stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	case decimal.Decimal:
		return val.String()
	case uuid.UUID:
		return val.String()
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}

func canonical(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case int64:
		return val
	case uint:
		return unsignedKey(uint64(val))
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return unsignedKey(val)
	case float32:
		return float64(val)
	case []byte:
		return string(val)
	case decimal.Decimal:
		return val.String()
	case time.Time:
		return val.UTC()
	}
	if !reflect.TypeOf(v).Comparable() {
		return fmt.Sprint(v)
	}
	return v
}

func unsignedKey(v uint64) any {
	if v <= 1<<63-1 {
		return int64(v)
	}
	return v
}
