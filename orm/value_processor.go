package orm

import (
	"fmt"
	"reflect"
	"time"

	"github.com/astra-lucid/lucidorm/contracts"
	"github.com/astra-lucid/lucidorm/ormerrors"
)

// valuer is implemented by a value-object that knows how to reduce
// itself to a single column value (e.g. an Email, a Money amount). The
// Value Processor (C2) unwraps these before a literal reaches the
// Condition Builder or an insert/update payload.
type valuer interface {
	ORMValue() any
}

// unwrapValue reduces a value-object to its persisted scalar, leaving
// every other value untouched. Grounded on rediwo-redi-orm's
// types/database.go scalar-coercion pass.
func unwrapValue(v any) any {
	if v == nil {
		return nil
	}
	if vv, ok := v.(valuer); ok {
		return unwrapValue(vv.ORMValue())
	}
	return v
}

// isPassthroughKey reports whether key is a reserved passthrough key
// (a leading "$") that the Value Processor must carry verbatim rather
// than resolve against EntityMeta — used by raw, driver-specific
// escape hatches (spec.md §4.2's "Keys prefixed with `$` are
// passthrough", the same sentinel convention as the Condition
// Builder's own operator keys).
func isPassthroughKey(key string) bool {
	return len(key) > 0 && key[0] == '$'
}

// processForInsert validates and normalises a write payload against
// meta ahead of an INSERT: for each key it resolves a property first,
// then a relation, erroring only if neither matches. A relation key
// coerces its value — a BaseEntity reference or a bare primary-key
// scalar — to the owning many-to-one foreign key (spec.md §4.2:
// "coerce nested BaseEntity to its primary-key value"). Value-objects
// are unwrapped and OnInsert defaults are applied for any column the
// caller omitted.
func (p *processor) processForInsert(meta *EntityMeta, payload map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(payload))

	for key, raw := range payload {
		if isPassthroughKey(key) {
			out[key] = raw
			continue
		}
		if prop, ok := meta.Properties[key]; ok {
			out[prop.PropertyName] = unwrapValue(raw)
			continue
		}
		rel, isRel := meta.RelationByProperty(key)
		if !isRel {
			return nil, ormerrors.NewPropertyNotFound(key, meta.Class)
		}
		fk, err := p.coerceRelationToForeignKey(rel, raw)
		if err != nil {
			return nil, err
		}
		out[rel.ForeignKey] = fk
	}

	for name, prop := range meta.Properties {
		if _, present := out[name]; present {
			continue
		}
		switch {
		case prop.OnInsert != nil:
			out[name] = prop.OnInsert()
		case prop.Default != nil:
			out[name] = prop.Default
		}
	}

	return out, nil
}

// processForUpdate validates and normalises a partial write payload
// against meta ahead of an UPDATE. Unlike insert, absent columns are
// simply left out of the statement, and a relation key is rejected
// rather than coerced — spec.md §4.2 reserves nested-entity coercion
// for insert, leaving an update's foreign key reassignment to the
// caller's explicit refById usage. OnUpdate hooks are applied
// proactively, and only when the column was not already touched by
// the caller.
func (p *processor) processForUpdate(meta *EntityMeta, payload map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(payload))

	for key, raw := range payload {
		if isPassthroughKey(key) {
			out[key] = raw
			continue
		}
		prop, ok := meta.Properties[key]
		if !ok {
			if _, isRel := meta.RelationByProperty(key); isRel {
				return nil, ormerrors.NewInvalidRelationUsage(key, meta.RelationNames())
			}
			return nil, ormerrors.NewPropertyNotFound(key, meta.Class)
		}
		out[prop.PropertyName] = unwrapValue(raw)
	}

	for name, prop := range meta.Properties {
		if prop.OnUpdate == nil {
			continue
		}
		if _, present := out[name]; present {
			continue
		}
		out[name] = prop.OnUpdate()
	}

	return out, nil
}

// coerceRelationToForeignKey resolves an insert payload's relation-
// keyed value to the scalar the owning foreign-key column should
// store: a bare primary-key value is passed through unwrapped, and a
// BaseEntity reference (pointer or struct, per the caller's style) has
// its primary-key field read off via reflection against the related
// entity's own metadata. Only many-to-one relations carry a foreign
// key on this side — a one-to-many key in a write payload has no
// single column to coerce into and is rejected the same way an
// unknown relation usage is.
func (p *processor) coerceRelationToForeignKey(rel *RelationMeta, raw any) (any, error) {
	if rel.Kind != contracts.ManyToOne {
		return nil, ormerrors.NewInvalidRelationUsage(rel.PropertyName, nil)
	}
	raw = unwrapValue(raw)
	if raw == nil {
		return nil, nil
	}

	rv := reflect.ValueOf(raw)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		// Already a bare scalar (e.g. the caller passed the id directly).
		return raw, nil
	}

	related, err := p.registry.Get(rel.Entity)
	if err != nil {
		return nil, err
	}
	field := rv.FieldByName(related.PrimaryKeyPropertyName())
	if !field.IsValid() {
		return nil, fmt.Errorf("orm: relation %q: referenced %q has no %q field to coerce",
			rel.PropertyName, rel.Entity, related.PrimaryKeyPropertyName())
	}
	return field.Interface(), nil
}

// processor is C2, the Value Processor. registry resolves a relation
// key's related entity metadata for write-time FK coercion.
type processor struct {
	registry *Registry
}

func newProcessor(registry *Registry) *processor { return &processor{registry: registry} }

// createInstance builds a new *T and populates it from a row-shaped
// map[string]any keyed by property name, using reflection the way the
// Hydrator (C9) needs for arbitrary caller entity types. Fields tagged
// with a mismatched kind are coerced where doing so is unambiguous
// (e.g. int64 column into an int32 field, or a string into a
// time.Time via RFC3339).
func createInstance[T any](values map[string]any) (*T, error) {
	inst := new(T)
	if err := populateStruct(reflect.ValueOf(inst).Elem(), values); err != nil {
		return nil, err
	}
	return inst, nil
}

// populateStruct assigns values (keyed by Go field name) into the
// exported fields of rv, coercing as assignField allows. Shared by
// createInstance's compile-time-typed path and the Hydrator's
// runtime-typed relation path (hydrator.go).
func populateStruct(rv reflect.Value, values map[string]any) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		raw, ok := values[field.Name]
		if !ok || raw == nil {
			continue
		}
		if err := assignField(rv.Field(i), raw); err != nil {
			return err
		}
	}
	return nil
}

// assignField assigns raw into dst, coercing numeric width, string
// sources for time.Time, and pointer wrapping as needed.
func assignField(dst reflect.Value, raw any) error {
	rv := reflect.ValueOf(raw)

	if dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return assignField(dst.Elem(), raw)
	}

	if dst.Type() == reflect.TypeOf(time.Time{}) {
		switch v := raw.(type) {
		case time.Time:
			dst.Set(reflect.ValueOf(v))
			return nil
		case string:
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return err
			}
			dst.Set(reflect.ValueOf(t))
			return nil
		}
	}

	if rv.Type().AssignableTo(dst.Type()) {
		dst.Set(rv)
		return nil
	}
	if rv.Type().ConvertibleTo(dst.Type()) {
		switch dst.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64, reflect.String, reflect.Bool:
			dst.Set(rv.Convert(dst.Type()))
			return nil
		}
	}
	return nil
}
