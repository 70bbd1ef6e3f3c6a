package preload

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"rowpreload/internal/fetch"
	"rowpreload/internal/introspection"
	"rowpreload/internal/keynorm"
	"rowpreload/internal/loaderr"
	"rowpreload/internal/relspec"
	"rowpreload/internal/rowset"
	"rowpreload/internal/sqltype"
)

// strategyKind selects the loading algorithm for one relation.
type strategyKind int

const (
	strategyDirect strategyKind = iota
	strategyPolymorphic
	strategyOneToMany
	strategyOneToOne
	strategyManyThrough
	strategyOneThrough
	// strategyRoot labels the top-level fetch of a Loader.
	strategyRoot
)

func (k strategyKind) String() string {
	switch k {
	case strategyDirect:
		return "belongs_to"
	case strategyPolymorphic:
		return "belongs_to_polymorphic"
	case strategyOneToMany:
		return "has_many"
	case strategyOneToOne:
		return "has_one"
	case strategyManyThrough:
		return "has_many_through"
	case strategyOneThrough:
		return "has_one_through"
	case strategyRoot:
		return "root"
	default:
		return fmt.Sprintf("strategy(%d)", int(k))
	}
}

func (k strategyKind) collection() bool {
	return k == strategyOneToMany || k == strategyManyThrough
}

func strategyFor(table string, rel introspection.Relationship) (strategyKind, error) {
	switch rel.Kind {
	case introspection.DirectReference:
		if rel.IsPolymorphic() {
			return strategyPolymorphic, nil
		}
		return strategyDirect, nil
	case introspection.OneToMany:
		return strategyOneToMany, nil
	case introspection.OneToOne:
		return strategyOneToOne, nil
	case introspection.ManyToManyThrough:
		return strategyManyThrough, nil
	case introspection.OneToOneThrough:
		return strategyOneThrough, nil
	default:
		return 0, &loaderr.ConfigurationError{
			Entity:   table,
			Relation: rel.Name,
			Value:    rel.Kind,
			Reason:   fmt.Sprintf("unrecognized relationship kind %d", int(rel.Kind)),
		}
	}
}

// relationRun binds one relation to the current owner set.
type relationRun struct {
	p     *Preloader
	owner *introspection.Table
	rel   *introspection.Relationship
	kind  strategyKind
	opts  relspec.Options
	mode  rowset.Mode
}

func (r *relationRun) load(ctx context.Context, owners []rowset.Row) error {
	switch r.kind {
	case strategyPolymorphic:
		return r.loadPolymorphic(ctx, owners)
	case strategyManyThrough, strategyOneThrough:
		return r.loadThrough(ctx, owners)
	default:
		return r.loadDirect(ctx, owners)
	}
}

// loadDirect covers belongs-to, has-many and has-one: owners and targets share one
// join column pair.
func (r *relationRun) loadDirect(ctx context.Context, owners []rowset.Row) error {
	target, err := r.targetTable(r.rel.TargetTable)
	if err != nil {
		return err
	}
	targetKey := r.rel.TargetKey
	if targetKey == "" {
		targetKey = introspection.PrimaryKey(*target)
	}

	norm := normalizerFor(
		columnType(r.owner, r.rel.OwnerKey),
		columnType(target, targetKey),
	)
	keys := ownerKeys(owners, r.rel.OwnerKey, r.owner, norm)

	grouped, err := r.p.loadGrouped(ctx, groupRequest{
		kind:      r.kind,
		target:    target,
		targetKey: targetKey,
		keys:      keys,
		norm:      norm,
		opts:      r.opts,
		scope:     r.rel.Scope,
		orderBy:   r.rel.OrderBy,
		mode:      r.mode,
		owners:    len(owners),
	})
	if err != nil {
		return err
	}

	for _, owner := range owners {
		key := norm.Key(rowset.CastColumn(r.owner, r.rel.OwnerKey, owner.Get(r.rel.OwnerKey)))
		r.attach(owner, grouped.get(key))
	}
	return nil
}

// loadPolymorphic partitions owners by their type column and loads each type's
// table separately, in the order types first appear.
func (r *relationRun) loadPolymorphic(ctx context.Context, owners []rowset.Row) error {
	var typeOrder []string
	byType := make(map[string][]rowset.Row)
	for _, owner := range owners {
		typeValue := typeName(owner.Get(r.rel.PolymorphicTypeColumn))
		if typeValue == "" {
			owner.Set(r.rel.Name, nil)
			continue
		}
		if _, seen := byType[typeValue]; !seen {
			typeOrder = append(typeOrder, typeValue)
		}
		byType[typeValue] = append(byType[typeValue], owner)
	}

	for _, typeValue := range typeOrder {
		tableName := r.polymorphicTable(typeValue)
		target := r.p.schema.Table(tableName)
		if target == nil {
			return &loaderr.ConfigurationError{
				Entity:   r.owner.Name,
				Relation: r.rel.Name,
				Value:    typeValue,
				Reason:   fmt.Sprintf("polymorphic type %q has no table %q", typeValue, tableName),
			}
		}
		targetKey := r.rel.TargetKey
		if targetKey == "" {
			targetKey = introspection.PrimaryKey(*target)
		}
		scope := r.rel.Scope
		if target.InheritanceColumn != "" {
			scope = maps.Clone(scope)
			if scope == nil {
				scope = make(map[string]any)
			}
			scope[target.InheritanceColumn] = typeValue
		}

		group := byType[typeValue]
		norm := normalizerFor(
			columnType(r.owner, r.rel.OwnerKey),
			columnType(target, targetKey),
		)
		grouped, err := r.p.loadGrouped(ctx, groupRequest{
			kind:      r.kind,
			target:    target,
			targetKey: targetKey,
			keys:      ownerKeys(group, r.rel.OwnerKey, r.owner, norm),
			norm:      norm,
			opts:      r.opts.ForType(typeValue),
			scope:     scope,
			orderBy:   r.rel.OrderBy,
			mode:      r.mode,
			owners:    len(group),
		})
		if err != nil {
			return err
		}
		for _, owner := range group {
			key := norm.Key(rowset.CastColumn(r.owner, r.rel.OwnerKey, owner.Get(r.rel.OwnerKey)))
			r.attach(owner, grouped.get(key))
		}
	}
	return nil
}

// loadThrough fetches the distinct (owner key, target key) pairs of the middle
// table, then the targets, and maps targets back to owners through the pairs.
func (r *relationRun) loadThrough(ctx context.Context, owners []rowset.Row) error {
	target, err := r.targetTable(r.rel.TargetTable)
	if err != nil {
		return err
	}
	through := r.p.schema.Table(r.rel.ThroughTable)
	if through == nil {
		return &loaderr.ConfigurationError{
			Entity:   r.owner.Name,
			Relation: r.rel.Name,
			Reason:   fmt.Sprintf("through table %q not found", r.rel.ThroughTable),
		}
	}
	targetKey := r.rel.TargetKey
	if targetKey == "" {
		targetKey = introspection.PrimaryKey(*target)
	}

	norm := normalizerFor(
		columnType(r.owner, r.rel.OwnerKey),
		columnType(through, r.rel.ThroughOwnerKey),
		columnType(through, r.rel.ThroughTargetKey),
		columnType(target, targetKey),
	)
	keys := ownerKeys(owners, r.rel.OwnerKey, r.owner, norm)

	// linkOwners maps a target key to the owner keys that reach it, in middle row order.
	linkOwners := make(map[any][]any)
	var middleKeys []any
	if len(keys) > 0 {
		middle, err := r.p.fetchBatches(ctx, r.kind, "through", fetch.Request{
			Table:    through.Name,
			Columns:  []fetch.Selection{fetch.Column(r.rel.ThroughOwnerKey), fetch.Column(r.rel.ThroughTargetKey)},
			NotNull:  []string{r.rel.ThroughTargetKey},
			Scope:    r.rel.ThroughScope,
			Distinct: true,
		}, r.rel.ThroughOwnerKey, keys)
		if err != nil {
			return err
		}

		linked := make(map[any]map[any]struct{})
		rawTargets := make([]any, 0, middle.Len())
		for _, row := range middle.Rows {
			if len(row) < 2 {
				continue
			}
			ownerKey := norm.Key(rowset.CastColumn(through, r.rel.ThroughOwnerKey, row[0]))
			targetValue := rowset.CastColumn(through, r.rel.ThroughTargetKey, row[1])
			linkKey := norm.Key(targetValue)
			if ownerKey == nil || linkKey == nil {
				continue
			}
			if linked[linkKey] == nil {
				linked[linkKey] = make(map[any]struct{})
			}
			if _, dup := linked[linkKey][ownerKey]; dup {
				continue
			}
			linked[linkKey][ownerKey] = struct{}{}
			linkOwners[linkKey] = append(linkOwners[linkKey], ownerKey)
			rawTargets = append(rawTargets, targetValue)
		}
		middleKeys = norm.Values(rawTargets)
	}

	grouped, err := r.p.loadGrouped(ctx, groupRequest{
		kind:      r.kind,
		target:    target,
		targetKey: targetKey,
		keys:      middleKeys,
		norm:      norm,
		opts:      r.opts,
		scope:     r.rel.Scope,
		orderBy:   r.rel.OrderBy,
		mode:      r.mode,
		owners:    len(owners),
	})
	if err != nil {
		return err
	}

	// Targets keep fetch order (and so the relation's order_by) per owner.
	matched := make(map[any][]rowset.Row)
	for i, row := range grouped.rows {
		for _, ownerKey := range linkOwners[grouped.keys[i]] {
			matched[ownerKey] = append(matched[ownerKey], row)
		}
	}
	for _, owner := range owners {
		key := norm.Key(rowset.CastColumn(r.owner, r.rel.OwnerKey, owner.Get(r.rel.OwnerKey)))
		r.attach(owner, matched[key])
	}
	return nil
}

// attach writes matched rows onto owner: a sequence for collections (empty, never
// nil), otherwise the first match or nil.
func (r *relationRun) attach(owner rowset.Row, matched []rowset.Row) {
	if r.kind.collection() {
		if matched == nil {
			matched = []rowset.Row{}
		}
		owner.Set(r.rel.Name, matched)
		return
	}
	if len(matched) == 0 {
		owner.Set(r.rel.Name, nil)
		return
	}
	owner.Set(r.rel.Name, matched[0])
}

func (r *relationRun) targetTable(name string) (*introspection.Table, error) {
	target := r.p.schema.Table(name)
	if target == nil {
		return nil, &loaderr.ConfigurationError{
			Entity:   r.owner.Name,
			Relation: r.rel.Name,
			Reason:   fmt.Sprintf("target table %q not found", name),
		}
	}
	return target, nil
}

// polymorphicTable maps a type value to its table: a declared target (matched
// case-insensitively, config keys arrive lower-cased) or the inflected type name.
func (r *relationRun) polymorphicTable(typeValue string) string {
	if table, ok := r.rel.PolymorphicTargets[typeValue]; ok {
		return table
	}
	for declared, table := range r.rel.PolymorphicTargets {
		if strings.EqualFold(declared, typeValue) {
			return table
		}
	}
	return r.p.namer.TableForType(typeValue)
}

func typeName(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return ""
	}
}

// columnType reports the declared category of a column.
func columnType(table *introspection.Table, column string) typedColumn {
	if table == nil {
		return typedColumn{}
	}
	col := table.Column(column)
	if col == nil {
		return typedColumn{}
	}
	return typedColumn{t: col.Type(), ok: true}
}

type typedColumn struct {
	t  sqltype.Type
	ok bool
}

// normalizerFor coerces keys when any two join columns differ in type. Undeclared
// columns could be anything, so they force coercion.
func normalizerFor(columns ...typedColumn) keynorm.Normalizer {
	types := make([]sqltype.Type, 0, len(columns))
	for _, col := range columns {
		if !col.ok {
			return keynorm.New(true)
		}
		types = append(types, col.t)
	}
	return keynorm.New(keynorm.RequiresCoercion(types...))
}

// ownerKeys returns distinct normalized non-nil join values in first-seen order.
func ownerKeys(owners []rowset.Row, column string, table *introspection.Table, norm keynorm.Normalizer) []any {
	values := make([]any, 0, len(owners))
	for _, owner := range owners {
		values = append(values, rowset.CastColumn(table, column, owner.Get(column)))
	}
	return norm.Values(values)
}
