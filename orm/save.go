package orm

import (
	"context"
	"fmt"
	"reflect"

	"github.com/astra-lucid/lucidorm/contracts"
)

// trackedEntity is the subset of BaseEntity's promoted methods Save
// needs: every entity struct that embeds BaseEntity satisfies this
// automatically.
type trackedEntity interface {
	IsPersisted() bool
	ChangedValues() map[string]any
	MarkPersisted(values map[string]any)
}

// Save persists inst: a fresh instance (IsPersisted false) is
// inserted with every property except a zero-valued AutoIncrement
// primary key, which the database generates; an already-persisted one is updated with only the
// fields TrackChange recorded since the last Save/hydration, then both
// paths refresh BaseEntity's old-values snapshot from the full current
// field set so the next TrackChange/ChangedValues diff starts clean
// (spec.md: "save on an entity: diff changedValues → insert or update
// accordingly → refresh oldValues from combined snapshot").
//
// inst must embed BaseEntity; callers mutate a tracked field and pair
// it with a TrackChange call themselves (Go has no property setters to
// intercept), the same way base_entity_test.go exercises the pair.
func Save[T any](ctx context.Context, o *Orm, inst *T) error {
	tracked, ok := any(inst).(trackedEntity)
	if !ok {
		return fmt.Errorf("orm: Save: %T does not embed BaseEntity", inst)
	}

	meta := o.registry.MustGet(NameOf[T]())
	snapshot, err := reflectStructValues(inst, propertyNames(meta))
	if err != nil {
		return err
	}

	if !tracked.IsPersisted() {
		insertValues := cloneMap(snapshot)
		if pk := meta.Properties[meta.PrimaryKeyPropertyName()]; pk != nil && pk.AutoIncrement {
			if v := insertValues[pk.PropertyName]; v == nil || reflect.ValueOf(v).IsZero() {
				delete(insertValues, pk.PropertyName)
			}
		}
		res, err := Find[T](o).Insert(insertValues).Execute(ctx)
		if err != nil {
			return err
		}
		if res.InsertedPrimaryKey != nil {
			if err := assignPrimaryKey(inst, meta, res.InsertedPrimaryKey); err != nil {
				return err
			}
			snapshot[meta.PrimaryKeyPropertyName()] = res.InsertedPrimaryKey
		}
		tracked.MarkPersisted(snapshot)
		return nil
	}

	changed := tracked.ChangedValues()
	if len(changed) == 0 {
		tracked.MarkPersisted(snapshot)
		return nil
	}

	pk := snapshot[meta.PrimaryKeyPropertyName()]
	_, err = Find[T](o).
		Where(contracts.Filter{meta.PrimaryKeyPropertyName(): pk}).
		Update(changed).
		Execute(ctx)
	if err != nil {
		return err
	}
	tracked.MarkPersisted(snapshot)
	return nil
}

// assignPrimaryKey writes the driver-generated primary key back onto
// inst after an insert, for an AutoIncrement column the caller didn't
// set.
func assignPrimaryKey(inst any, meta *EntityMeta, pk any) error {
	rv := reflect.ValueOf(inst).Elem()
	field := rv.FieldByName(meta.PrimaryKeyPropertyName())
	if !field.IsValid() {
		return nil
	}
	return assignField(field, pk)
}
