package orm

import (
	"fmt"
	"reflect"

	"github.com/astra-lucid/lucidorm/contracts"
)

// hydrator is C9: it turns the flat row set a SELECT statement
// returns into root instances with their joined relations attached,
// deduplicating one-to-many fan-out via the scope's identity map.
type hydrator struct {
	registry *Registry
}

func newHydrator(reg *Registry) *hydrator { return &hydrator{registry: reg} }

// HydrateRoot builds one *T per distinct root primary key in rows,
// attaching any StrategyJoined relations present in stmt.Joins.
// Relations are attached in stmt.Joins order; a one-to-many slice is
// populated in the order its child rows arrive, each child primary key
// appended once.
func (h *hydrator) HydrateRoot(im *identityMap, rootMeta *EntityMeta, stmt *Statement, rows []Row) ([]any, error) {
	order := make([]string, 0, len(rows))
	byKey := make(map[string]any, len(rows))
	oneToMany := make(map[string]map[string]bool) // pkKey -> relation child pk seen

	for _, row := range rows {
		rootValues := valuesForMeta(rootMeta, row, func(col string) string { return col })
		pk := rootValues[rootMeta.PrimaryKeyPropertyName()]
		if pk == nil {
			continue
		}
		pkKey := toKeyString(pk)

		inst, existed := im.Get(rootMeta.Class, pk)
		if !existed {
			built, err := populateNew(rootMeta, rootValues)
			if err != nil {
				return nil, err
			}
			inst = im.Store(rootMeta.Class, pk, built)
		}
		if _, seen := byKey[pkKey]; !seen {
			byKey[pkKey] = inst
			order = append(order, pkKey)
		}

		for _, join := range stmt.Joins {
			if err := h.attachJoin(im, rootMeta, inst, join, row, oneToMany, pkKey); err != nil {
				return nil, err
			}
		}
	}

	out := make([]any, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out, nil
}

func (h *hydrator) attachJoin(im *identityMap, rootMeta *EntityMeta, parent any, join *JoinNode, row Row, seen map[string]map[string]bool, parentPKKey string) error {
	rel, ok := rootMeta.RelationByProperty(join.RelationProperty)
	if !ok {
		return fmt.Errorf("orm: hydration: join %q has no matching relation on %q", join.RelationProperty, rootMeta.Class)
	}
	childMeta, err := h.registry.Get(rel.Entity)
	if err != nil {
		return err
	}

	prefix := join.Alias + "_"
	childValues := valuesForMeta(childMeta, row, func(col string) string { return prefix + col })
	childPK := childValues[childMeta.PrimaryKeyPropertyName()]
	if childPK == nil {
		// LEFT JOIN with no matching child row: leave the relation at
		// its zero value (nil pointer / nil slice).
		return nil
	}
	childPKKey := toKeyString(childPK)

	childInst, existed := im.Get(childMeta.Class, childPK)
	if !existed {
		built, err := populateNew(childMeta, childValues)
		if err != nil {
			return err
		}
		childInst = im.Store(childMeta.Class, childPK, built)
	}

	switch rel.Kind {
	case contracts.ManyToOne:
		return setPointerField(parent, rel.PropertyName, childInst)
	case contracts.OneToMany:
		key := rootMeta.Class + ":" + parentPKKey
		if seen[key] == nil {
			seen[key] = make(map[string]bool)
		}
		if seen[key][childPKKey] {
			return nil
		}
		seen[key][childPKKey] = true
		return appendSliceField(parent, rel.PropertyName, childInst)
	default:
		return fmt.Errorf("orm: unknown relation kind %q", rel.Kind)
	}
}

// valuesForMeta reads meta's scalar properties out of row, applying
// labelFn to each column name to locate the source cell (bare column
// name for the root projection, "alias_column" for a joined one).
func valuesForMeta(meta *EntityMeta, row Row, labelFn func(string) string) map[string]any {
	out := make(map[string]any, len(meta.Properties))
	for _, p := range meta.OrderedProperties() {
		out[p.PropertyName] = row[labelFn(p.ColumnName)]
	}
	return out
}

func populateNew(meta *EntityMeta, values map[string]any) (any, error) {
	inst := newInstanceByMeta(meta)
	rv := reflect.ValueOf(inst).Elem()
	if err := populateStruct(rv, values); err != nil {
		return nil, err
	}
	if base := baseEntityField(rv); base != nil {
		base.MarkPersisted(values)
	}
	return inst, nil
}

// baseEntityField locates an embedded BaseEntity field on rv, if any.
func baseEntityField(rv reflect.Value) *BaseEntity {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		if rt.Field(i).Type == reflect.TypeOf(BaseEntity{}) {
			return rv.Field(i).Addr().Interface().(*BaseEntity)
		}
	}
	return nil
}

func setPointerField(parent any, propertyName string, child any) error {
	rv := reflect.ValueOf(parent).Elem()
	field := rv.FieldByName(propertyName)
	if !field.IsValid() {
		return fmt.Errorf("orm: hydration: field %q not found on %T", propertyName, parent)
	}
	childVal := reflect.ValueOf(child)
	if field.Kind() == reflect.Ptr && childVal.Type().AssignableTo(field.Type()) {
		field.Set(childVal)
		return nil
	}
	if field.Kind() != reflect.Ptr && childVal.Type().Elem().AssignableTo(field.Type()) {
		field.Set(childVal.Elem())
		return nil
	}
	return nil
}

func appendSliceField(parent any, propertyName string, child any) error {
	rv := reflect.ValueOf(parent).Elem()
	field := rv.FieldByName(propertyName)
	if !field.IsValid() {
		return fmt.Errorf("orm: hydration: field %q not found on %T", propertyName, parent)
	}
	if field.Kind() != reflect.Slice {
		return fmt.Errorf("orm: hydration: field %q on %T is not a slice", propertyName, parent)
	}
	elemType := field.Type().Elem()
	childVal := reflect.ValueOf(child)

	var toAppend reflect.Value
	switch {
	case elemType.Kind() == reflect.Ptr && childVal.Type().AssignableTo(elemType):
		toAppend = childVal
	case elemType.Kind() != reflect.Ptr && childVal.Type().Elem().AssignableTo(elemType):
		toAppend = childVal.Elem()
	default:
		return fmt.Errorf("orm: hydration: field %q on %T has incompatible element type", propertyName, parent)
	}
	field.Set(reflect.Append(field, toAppend))
	return nil
}
