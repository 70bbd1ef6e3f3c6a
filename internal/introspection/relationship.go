package introspection

import (
	"fmt"
	"strings"

	"rowpreload/internal/loaderr"
)

// RelationKind classifies how a relationship joins owner rows to target rows.
type RelationKind int

const (
	// DirectReference is a belongs-to: the owner holds the foreign key.
	DirectReference RelationKind = iota
	// OneToMany is a has-many: the target holds the foreign key.
	OneToMany
	// OneToOne is a has-one: like OneToMany, keeping the first match only.
	OneToOne
	// ManyToManyThrough is a has-many through a middle table.
	ManyToManyThrough
	// OneToOneThrough is a has-one through a middle table.
	OneToOneThrough
)

// String returns the declaration keyword for the kind.
func (k RelationKind) String() string {
	switch k {
	case DirectReference:
		return "belongs_to"
	case OneToMany:
		return "has_many"
	case OneToOne:
		return "has_one"
	case ManyToManyThrough:
		return "has_many_through"
	case OneToOneThrough:
		return "has_one_through"
	default:
		return fmt.Sprintf("RelationKind(%d)", int(k))
	}
}

// IsThrough reports whether the kind needs a middle table.
func (k RelationKind) IsThrough() bool {
	return k == ManyToManyThrough || k == OneToOneThrough
}

// IsCollection reports whether owners receive a sequence rather than a single row.
func (k RelationKind) IsCollection() bool {
	return k == OneToMany || k == ManyToManyThrough
}

// ParseRelationKind maps a declared kind keyword to a RelationKind.
// through marks a has_many/has_one declared with a middle table.
func ParseRelationKind(kind string, through bool) (RelationKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(kind))
	if strings.HasSuffix(normalized, "_through") {
		normalized = strings.TrimSuffix(normalized, "_through")
		through = true
	}
	switch normalized {
	case "belongs_to", "many_to_one":
		if through {
			return 0, loaderr.Unrecognized(kind)
		}
		return DirectReference, nil
	case "has_many", "one_to_many":
		if through {
			return ManyToManyThrough, nil
		}
		return OneToMany, nil
	case "many_to_many":
		return ManyToManyThrough, nil
	case "has_one", "one_to_one":
		if through {
			return OneToOneThrough, nil
		}
		return OneToOne, nil
	default:
		return 0, loaderr.Unrecognized(kind)
	}
}

// Relationship describes a named relation owned by a table.
type Relationship struct {
	Name        string
	Kind        RelationKind
	TargetTable string
	// OwnerKey is the join column on the owner: the foreign key for DirectReference,
	// the owner's key for every other kind.
	OwnerKey string
	// TargetKey is the join column on the target: its primary key (or override) for
	// DirectReference and through kinds, the foreign key for OneToMany and OneToOne.
	TargetKey string

	ThroughTable     string
	ThroughOwnerKey  string // middle column matching OwnerKey
	ThroughTargetKey string // middle column matching TargetKey

	// PolymorphicTypeColumn is set on polymorphic DirectReference relations; the
	// owner's value in this column picks the target table.
	PolymorphicTypeColumn string
	// PolymorphicTargets maps type values to table names ahead of inflection.
	PolymorphicTargets map[string]string

	// Scope holds equality constraints applied to the target fetch.
	Scope map[string]any
	// ThroughScope holds equality constraints applied to the middle fetch.
	ThroughScope map[string]any
	OrderBy      []string
}

// IsPolymorphic reports whether the target table depends on the owner's type column.
func (r Relationship) IsPolymorphic() bool {
	return r.Kind == DirectReference && r.PolymorphicTypeColumn != ""
}

// Table returns the named table, or nil when the schema has none.
func (s *Schema) Table(name string) *Table {
	if s == nil {
		return nil
	}
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// Relationship resolves a relation name on a table.
func (s *Schema) Relationship(table, name string) (*Relationship, error) {
	t := s.Table(table)
	if t == nil {
		return nil, loaderr.UnknownEntity(table)
	}
	rel := t.Relationship(name)
	if rel == nil {
		return nil, loaderr.UnknownRelation(table, name)
	}
	return rel, nil
}

// Relationship returns the named relationship on the table, or nil.
// Later entries win so declarations can replace discovered relations.
func (t *Table) Relationship(name string) *Relationship {
	for i := len(t.Relationships) - 1; i >= 0; i-- {
		if t.Relationships[i].Name == name {
			return &t.Relationships[i]
		}
	}
	return nil
}

// Column returns the named declared column, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns declared column names in ordinal order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}
