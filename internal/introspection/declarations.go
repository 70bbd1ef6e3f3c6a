package introspection

import (
	"fmt"
	"strings"

	"rowpreload/internal/loaderr"
	"rowpreload/internal/naming"
)

// Declarations describe tables and relations that information_schema cannot express.
// They are decoded from configuration and overlaid onto a discovered (or empty) schema.
type Declarations struct {
	Tables    []TableDeclaration    `mapstructure:"tables" yaml:"tables"`
	Relations []RelationDeclaration `mapstructure:"relations" yaml:"relations"`
}

// TableDeclaration adds a table or adjusts a discovered one.
type TableDeclaration struct {
	Name              string              `mapstructure:"name" yaml:"name"`
	PrimaryKey        string              `mapstructure:"primary_key" yaml:"primary_key"`
	InheritanceColumn string              `mapstructure:"inheritance_column" yaml:"inheritance_column"`
	Columns           []ColumnDeclaration `mapstructure:"columns" yaml:"columns"`
}

// ColumnDeclaration declares a column with its SQL type (e.g. "int", "varchar(36)").
type ColumnDeclaration struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Type     string `mapstructure:"type" yaml:"type"`
	Nullable bool   `mapstructure:"nullable" yaml:"nullable"`
}

// RelationDeclaration declares a named relation on Table. Unset keys default the way
// conventional schemas name them: "<relation>_id" foreign keys, pluralized target
// tables, and "<relation>_type" columns for polymorphic references.
type RelationDeclaration struct {
	Table string `mapstructure:"table" yaml:"table"`
	Name  string `mapstructure:"name" yaml:"name"`
	// Kind is belongs_to, has_many, has_one, has_many_through or has_one_through.
	Kind        string `mapstructure:"kind" yaml:"kind"`
	Target      string `mapstructure:"target" yaml:"target"`
	ForeignKey  string `mapstructure:"foreign_key" yaml:"foreign_key"`
	PrimaryKey  string `mapstructure:"primary_key" yaml:"primary_key"`
	Polymorphic bool   `mapstructure:"polymorphic" yaml:"polymorphic"`
	TypeColumn  string `mapstructure:"type_column" yaml:"type_column"`
	// Targets maps polymorphic type values to table names.
	Targets          map[string]string `mapstructure:"targets" yaml:"targets"`
	Through          string            `mapstructure:"through" yaml:"through"`
	ThroughOwnerKey  string            `mapstructure:"through_owner_key" yaml:"through_owner_key"`
	ThroughTargetKey string            `mapstructure:"through_target_key" yaml:"through_target_key"`
	Scope            map[string]any    `mapstructure:"scope" yaml:"scope"`
	ThroughScope     map[string]any    `mapstructure:"through_scope" yaml:"through_scope"`
	OrderBy          []string          `mapstructure:"order_by" yaml:"order_by"`
}

// ApplyDeclarations overlays declared tables and relations onto schema. Declared
// relations are appended after discovered ones, so a declaration replaces a
// discovered relation of the same name.
func ApplyDeclarations(schema *Schema, decl Declarations, namer *naming.Namer) error {
	if schema == nil {
		return fmt.Errorf("schema is nil")
	}
	if namer == nil {
		namer = naming.Default()
	}

	for _, td := range decl.Tables {
		if strings.TrimSpace(td.Name) == "" {
			return &loaderr.ConfigurationError{Value: td, Reason: "table declaration requires a name"}
		}
		table := schema.Table(td.Name)
		if table == nil {
			schema.Tables = append(schema.Tables, Table{Name: td.Name})
			table = &schema.Tables[len(schema.Tables)-1]
		}
		if td.PrimaryKey != "" {
			table.PrimaryKey = td.PrimaryKey
		}
		if td.InheritanceColumn != "" {
			table.InheritanceColumn = td.InheritanceColumn
		}
		for _, cd := range td.Columns {
			dataType, _, _ := strings.Cut(strings.TrimSpace(cd.Type), "(")
			col := Column{
				Name:         cd.Name,
				DataType:     strings.ToLower(dataType),
				ColumnType:   strings.ToLower(strings.TrimSpace(cd.Type)),
				IsNullable:   cd.Nullable,
				IsPrimaryKey: cd.Name == td.PrimaryKey,
			}
			if existing := table.Column(cd.Name); existing != nil {
				*existing = col
				continue
			}
			table.Columns = append(table.Columns, col)
		}
	}

	for _, rd := range decl.Relations {
		owner := schema.Table(rd.Table)
		if owner == nil {
			return loaderr.UnknownEntity(rd.Table)
		}
		rel, err := resolveDeclaration(schema, *owner, rd, namer)
		if err != nil {
			return err
		}
		owner.Relationships = append(owner.Relationships, rel)
	}
	return nil
}

func resolveDeclaration(schema *Schema, owner Table, rd RelationDeclaration, namer *naming.Namer) (Relationship, error) {
	if strings.TrimSpace(rd.Name) == "" {
		return Relationship{}, &loaderr.ConfigurationError{Entity: owner.Name, Value: rd, Reason: "relation declaration requires a name"}
	}
	kind, err := ParseRelationKind(rd.Kind, rd.Through != "")
	if err != nil {
		return Relationship{}, err
	}

	rel := Relationship{
		Name:         rd.Name,
		Kind:         kind,
		Scope:        rd.Scope,
		ThroughScope: rd.ThroughScope,
		OrderBy:      rd.OrderBy,
	}
	ownerSingular := namer.Singularize(owner.Name)

	switch kind {
	case DirectReference:
		rel.OwnerKey = firstNonEmpty(rd.ForeignKey, rd.Name+"_id")
		if rd.Polymorphic || rd.TypeColumn != "" {
			rel.PolymorphicTypeColumn = firstNonEmpty(rd.TypeColumn, rd.Name+"_type")
			rel.PolymorphicTargets = rd.Targets
			rel.TargetKey = rd.PrimaryKey
			return rel, nil
		}
		target, err := declaredTarget(schema, owner, rd, namer.Pluralize(rd.Name))
		if err != nil {
			return Relationship{}, err
		}
		rel.TargetTable = target.Name
		rel.TargetKey = firstNonEmpty(rd.PrimaryKey, PrimaryKey(*target))

	case OneToMany, OneToOne:
		target, err := declaredTarget(schema, owner, rd, namer.Pluralize(rd.Name))
		if err != nil {
			return Relationship{}, err
		}
		rel.TargetTable = target.Name
		rel.OwnerKey = firstNonEmpty(rd.PrimaryKey, PrimaryKey(owner))
		rel.TargetKey = firstNonEmpty(rd.ForeignKey, ownerSingular+"_id")

	case ManyToManyThrough, OneToOneThrough:
		through := schema.Table(rd.Through)
		if through == nil {
			return Relationship{}, &loaderr.ConfigurationError{
				Entity:   owner.Name,
				Relation: rd.Name,
				Reason:   fmt.Sprintf("through table %q not found", rd.Through),
			}
		}
		target, err := declaredTarget(schema, owner, rd, namer.Pluralize(rd.Name))
		if err != nil {
			return Relationship{}, err
		}
		rel.TargetTable = target.Name
		rel.ThroughTable = through.Name
		rel.OwnerKey = PrimaryKey(owner)
		rel.TargetKey = firstNonEmpty(rd.PrimaryKey, PrimaryKey(*target))
		rel.ThroughOwnerKey = firstNonEmpty(rd.ThroughOwnerKey, rd.ForeignKey, ownerSingular+"_id")
		rel.ThroughTargetKey = firstNonEmpty(rd.ThroughTargetKey, namer.Singularize(target.Name)+"_id")
	}
	return rel, nil
}

func declaredTarget(schema *Schema, owner Table, rd RelationDeclaration, fallback string) (*Table, error) {
	name := firstNonEmpty(rd.Target, fallback)
	target := schema.Table(name)
	if target == nil {
		return nil, &loaderr.ConfigurationError{
			Entity:   owner.Name,
			Relation: rd.Name,
			Reason:   fmt.Sprintf("target table %q not found", name),
		}
	}
	return target, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
