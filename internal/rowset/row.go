// Package rowset holds the projected rows the relation loader hands back: plain
// maps or fixed-shape records, and the projection steps that produce them.
package rowset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Row is a projected row. Relation results are attached with Set.
type Row interface {
	Get(field string) any
	Lookup(field string) (any, bool)
	Set(field string, value any)
	Fields() []string
}

// Mode selects the row representation produced by a top-level load.
type Mode int

const (
	// ModeMap produces Map rows.
	ModeMap Mode = iota
	// ModeRecord produces *Record rows sharing one Shape per fetch.
	ModeRecord
)

// ParseMode accepts "map" or "record".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "map", "hash":
		return ModeMap, nil
	case "record", "struct":
		return ModeRecord, nil
	default:
		return ModeMap, fmt.Errorf("unknown output mode %q", s)
	}
}

func (m Mode) String() string {
	if m == ModeRecord {
		return "record"
	}
	return "map"
}

// Map is a row keyed by field name.
type Map map[string]any

func (m Map) Get(field string) any {
	return m[field]
}

func (m Map) Lookup(field string) (any, bool) {
	v, ok := m[field]
	return v, ok
}

func (m Map) Set(field string, value any) {
	m[field] = value
}

// Fields returns the field names in sorted order.
func (m Map) Fields() []string {
	fields := make([]string, 0, len(m))
	for field := range m {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// Shape is the ordered field list shared by records of one fetch.
type Shape struct {
	fields []string
	index  map[string]int
}

// NewShape builds a shape from fields, dropping repeats.
func NewShape(fields ...string) *Shape {
	s := &Shape{index: make(map[string]int, len(fields))}
	for _, field := range fields {
		s.add(field)
	}
	return s
}

func (s *Shape) add(field string) int {
	if i, ok := s.index[field]; ok {
		return i
	}
	s.index[field] = len(s.fields)
	s.fields = append(s.fields, field)
	return len(s.fields) - 1
}

// Fields returns the shape's fields in order.
func (s *Shape) Fields() []string {
	return append([]string(nil), s.fields...)
}

// Record is a fixed-shape row with positional values.
type Record struct {
	shape  *Shape
	values []any
}

// NewRecord creates a record over shape. values are positional and may be shorter
// than the shape.
func NewRecord(shape *Shape, values []any) *Record {
	return &Record{shape: shape, values: values}
}

// Shape returns the record's shape.
func (r *Record) Shape() *Shape {
	return r.shape
}

func (r *Record) Get(field string) any {
	v, _ := r.Lookup(field)
	return v
}

func (r *Record) Lookup(field string) (any, bool) {
	i, ok := r.shape.index[field]
	if !ok {
		return nil, false
	}
	if i >= len(r.values) {
		return nil, true
	}
	return r.values[i], true
}

// Set stores value under field, extending the shared shape when the field is new.
func (r *Record) Set(field string, value any) {
	i := r.shape.add(field)
	for len(r.values) <= i {
		r.values = append(r.values, nil)
	}
	r.values[i] = value
}

func (r *Record) Fields() []string {
	return r.shape.Fields()
}

// MarshalJSON encodes the record as an object in shape order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range r.shape.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		var value any
		if i < len(r.values) {
			value = r.values[i]
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Builder creates rows of one mode for one fetch.
type Builder struct {
	mode  Mode
	shape *Shape
}

// NewBuilder returns a builder; fields fixes the record shape and seeds map capacity.
func NewBuilder(mode Mode, fields []string) *Builder {
	return &Builder{mode: mode, shape: NewShape(fields...)}
}

// Build creates a row from values aligned with the builder's leading fields.
func (b *Builder) Build(values []any) Row {
	if b.mode == ModeRecord {
		positional := make([]any, len(b.shape.fields))
		copy(positional, values)
		return NewRecord(b.shape, positional)
	}
	m := make(Map, len(b.shape.fields))
	for i, v := range values {
		if i < len(b.shape.fields) {
			m[b.shape.fields[i]] = v
		}
	}
	return m
}
