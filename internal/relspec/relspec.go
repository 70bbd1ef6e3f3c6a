// Package relspec models relation specifications: which relations to attach to a set
// of rows, with per-relation projection options and nested includes.
//
// A specification is one of three shapes: a bare relation name, an ordered list of
// specifications, or an ordered mapping from relation name to Options. Normalize
// flattens any of them into the ordered (name, options) entries the preloader walks.
package relspec

import (
	"strings"

	"rowpreload/internal/rowset"
)

type specKind int

const (
	kindEmpty specKind = iota
	kindName
	kindList
	kindMapping
)

// Spec is a relation specification. The zero value requests no relations.
type Spec struct {
	kind    specKind
	name    string
	list    []Spec
	entries []Entry
}

// Entry is one normalized (relation name, options) pair.
type Entry struct {
	Name    string
	Options Options
}

// Options shape the rows loaded for one relation.
type Options struct {
	// Only restricts the projection to these names. Names that are not declared
	// columns are selected verbatim as SQL expressions.
	Only []string
	// Except removes declared columns when Only is empty.
	Except []string
	// Methods names table methods evaluated per row after projection.
	Methods []string
	// Procs run per row after Methods.
	Procs []Proc
	// RequiredColumns are always selected, whatever Only and Except say.
	RequiredColumns []string
	// Include names relations to attach to the loaded rows.
	Include Spec
	// Types holds per-type options for polymorphic relations, keyed by lower-cased
	// type value.
	Types map[string]Options
}

// Proc computes a value for a row; the result is stored under Name.
type Proc = rowset.Proc

// Name returns a specification requesting a single relation with default options.
func Name(name string) Spec {
	return Spec{kind: kindName, name: name}
}

// List returns a specification combining specs in order.
func List(specs ...Spec) Spec {
	return Spec{kind: kindList, list: specs}
}

// Mapping returns a specification of named relations with their options.
func Mapping(entries ...Entry) Spec {
	return Spec{kind: kindMapping, entries: entries}
}

// With is shorthand for a single-entry Mapping.
func With(name string, opts Options) Spec {
	return Mapping(Entry{Name: name, Options: opts})
}

// IsEmpty reports whether the specification requests no relations.
func (s Spec) IsEmpty() bool {
	return len(s.Normalize()) == 0
}

// Normalize flattens the specification into ordered entries.
func (s Spec) Normalize() []Entry {
	switch s.kind {
	case kindName:
		return []Entry{{Name: s.name}}
	case kindList:
		var out []Entry
		for _, item := range s.list {
			out = append(out, item.Normalize()...)
		}
		return out
	case kindMapping:
		return append([]Entry(nil), s.entries...)
	default:
		return nil
	}
}

// ForType returns the options to apply to rows of one polymorphic target type.
func (o Options) ForType(typeValue string) Options {
	if typed, ok := o.Types[strings.ToLower(typeValue)]; ok {
		return typed
	}
	return o
}

// Projection returns the column choice for these options. keys are the join
// columns nested relations need.
func (o Options) Projection(keys ...string) rowset.Projection {
	return rowset.Projection{
		Only:     o.Only,
		Except:   o.Except,
		Keys:     keys,
		Required: o.RequiredColumns,
	}
}
