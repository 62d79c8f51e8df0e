package orm

import "github.com/astra-lucid/lucidorm/contracts"

// BaseEntity tracks the bookkeeping spec.md §4.12 requires of every
// hydrated instance: whether it has been persisted, and which
// properties have changed since it was loaded (or created). Caller
// entity structs embed this the way Astra's app/Models entities embed
// a shared base struct.
type BaseEntity struct {
	persisted     bool
	oldValues     map[string]any
	changedValues map[string]any
}

// MarkPersisted records that this instance reflects a committed row,
// snapshotting values as the new "old" baseline for future dirty
// tracking.
func (b *BaseEntity) MarkPersisted(values map[string]any) {
	b.persisted = true
	b.oldValues = cloneMap(values)
	b.changedValues = nil
}

// IsPersisted reports whether this instance has been written to the
// database (distinguishes a freshly-constructed instance awaiting
// Insert from one returned by a query).
func (b *BaseEntity) IsPersisted() bool { return b.persisted }

// TrackChange records that property changed to value, for Save's
// dirty-field diffing (save.go).
func (b *BaseEntity) TrackChange(property string, value any) {
	if b.changedValues == nil {
		b.changedValues = make(map[string]any)
	}
	b.changedValues[property] = value
}

// ChangedValues returns the properties changed since the last
// MarkPersisted call.
func (b *BaseEntity) ChangedValues() map[string]any {
	return cloneMap(b.changedValues)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// hookable is implemented by an entity type that wants a callback at
// one of contracts.HookType's four lifecycle points.
// QueryBuilder.Execute (query_builder.go) type-asserts each
// about-to-be-written instance against this interface and invokes it
// with the current hook point; loaded instances are not passed to it.
type hookable interface {
	ORMHook(hook contracts.HookType)
}

// runHook invokes inst's ORMHook callback for hook, if inst implements
// hookable. Safe to call unconditionally from the write path.
func runHook(inst any, hook contracts.HookType) {
	if h, ok := inst.(hookable); ok {
		h.ORMHook(hook)
	}
}
