// Package orm implements the Lucid query engine: the statement
// builder, the condition and join planner, the result hydrator, and
// the query cache / identity-map / transaction-context trio described
// in spec.md. It replaces Astra's app/Models GORM wrapper with a
// from-scratch engine in the same fluent, generics-based idiom.
package orm

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/astra-lucid/lucidorm/contracts"
	"github.com/astra-lucid/lucidorm/ormerrors"
)

// PropertyMeta describes one persisted scalar field of an entity.
// Grounded on other_examples' ESGI-M2-GO orm-core-interfaces column
// descriptor shape.
type PropertyMeta struct {
	PropertyName  string
	ColumnName    string
	DBType        string // e.g. "varchar", "integer", "uuid", "timestamp", "boolean", "jsonb"
	Length        int
	Precision     int
	Scale         int
	Nullable      bool
	Default       any
	OnInsert      func() any
	OnUpdate      func() any
	IsPrimary     bool
	Hidden        bool
	Unique        bool
	Index         bool
	Enum          []string
	Array         bool
	AutoIncrement bool
}

// RelationMeta describes a persisted reference from one entity to
// another.
type RelationMeta struct {
	Kind         contracts.RelationKind
	PropertyName string
	Entity       string // registered name of the related entity
	// ForeignKey is the property name carrying the foreign key. For
	// many-to-one this is the owning side's own property (defaults to
	// "<PropertyName>ID" if unset); for one-to-many this is the
	// foreign-side property name the caller must supply directly
	// (spec.md §9 open question: no selector-string-extraction).
	ForeignKey string
	// ColumnName is the many-to-one foreign-key column name. Defaults
	// to snake_case(ForeignKey).
	ColumnName string
}

// IndexDefinition and UniqueDefinition describe secondary constraints
// carried purely for schema-snapshot purposes (C1's snapshot()); this
// module does not emit DDL (see DESIGN.md, migration/DDL is a
// Non-goal).
type IndexDefinition struct {
	Name    string
	Columns []string
}

type UniqueDefinition struct {
	Name    string
	Columns []string
}

// HookDefinition registers a lifecycle callback.
type HookDefinition struct {
	Type   contracts.HookType
	Method string
}

// EntityMeta is the descriptor of one entity's table, columns,
// relations, indexes, and hooks (spec.md §3).
type EntityMeta struct {
	Class      string // registered name, e.g. "User"
	Table      string
	Schema     string // defaults to "public"; the MySQL emitter omits it
	Properties map[string]*PropertyMeta
	Relations  []*RelationMeta
	Indexes    []IndexDefinition
	Uniques    []UniqueDefinition
	Hooks      []HookDefinition

	// GoType is the concrete Go struct type this entity hydrates into,
	// captured via RegisterEntity[T] so the Hydrator can construct and
	// populate instances for relations discovered only at runtime
	// (where a compile-time type parameter is unavailable).
	GoType reflect.Type

	// derived, cached at registration time (spec.md §4.1, §8 property 10)
	primaryKeyPropertyName string
	primaryKeyColumnName   string
}

// PrimaryKeyPropertyName returns the cached primary-key property name.
// O(1): never scans Properties at query time.
func (m *EntityMeta) PrimaryKeyPropertyName() string { return m.primaryKeyPropertyName }

// PrimaryKeyColumnName returns the cached primary-key column name.
func (m *EntityMeta) PrimaryKeyColumnName() string { return m.primaryKeyColumnName }

// RelationByProperty looks up a relation by its property name.
func (m *EntityMeta) RelationByProperty(name string) (*RelationMeta, bool) {
	for _, r := range m.Relations {
		if r.PropertyName == name {
			return r, true
		}
	}
	return nil, false
}

// RelationNames returns every relation property name, for
// ormerrors.NewInvalidRelationUsage's debugging hint (spec.md §7).
func (m *EntityMeta) RelationNames() []string {
	names := make([]string, 0, len(m.Relations))
	for _, r := range m.Relations {
		names = append(names, r.PropertyName)
	}
	sort.Strings(names)
	return names
}

// PropertyByColumn finds the PropertyMeta owning a given column name.
func (m *EntityMeta) PropertyByColumn(column string) (*PropertyMeta, bool) {
	for _, p := range m.Properties {
		if p.ColumnName == column {
			return p, true
		}
	}
	return nil, false
}

// OrderedProperties returns properties sorted by property name, for
// deterministic column-list emission (C6).
func (m *EntityMeta) OrderedProperties() []*PropertyMeta {
	out := make([]*PropertyMeta, 0, len(m.Properties))
	for _, p := range m.Properties {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PropertyName < out[j].PropertyName })
	return out
}

// SchemaColumn is one row of a SchemaSnapshot.
type SchemaColumn struct {
	ColumnName    string
	DBType        string
	Nullable      bool
	IsPrimary     bool
	AutoIncrement bool
	// ForeignKey, if non-nil, names the entity and column a many-to-one
	// column references.
	ForeignKeyEntity string
	ForeignKeyColumn string
}

// SchemaSnapshot is C1's snapshot() result: the ordered column list
// with foreign-key descriptors resolved.
type SchemaSnapshot struct {
	Table   string
	Schema  string
	Columns []SchemaColumn
}

// Registry is the Metadata Registry (C1): a table/column/relation/
// index catalogue keyed by entity class name, with a primary-key
// cache populated at registration time.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*EntityMeta
}

// NewRegistry creates an empty Metadata Registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*EntityMeta)}
}

// Register adds or replaces an entity's metadata. Idempotent for a
// given class name — a second call overwrites the older entry.
// Detects two kinds of malformed metadata: more than one primary key
// (or none) and a property/column-name collision.
func (r *Registry) Register(meta *EntityMeta) error {
	if meta.Table == "" {
		meta.Table = snakeCase(meta.Class)
	}
	if meta.Schema == "" {
		meta.Schema = "public"
	}

	var primaryProp, primaryCol string
	seenColumns := make(map[string]string, len(meta.Properties))
	primaryCount := 0
	for propName, p := range meta.Properties {
		if p.PropertyName == "" {
			p.PropertyName = propName
		}
		if p.ColumnName == "" {
			p.ColumnName = snakeCase(p.PropertyName)
		}
		if owner, dup := seenColumns[p.ColumnName]; dup {
			return fmt.Errorf("orm: entity %q: properties %q and %q both claim column %q",
				meta.Class, owner, p.PropertyName, p.ColumnName)
		}
		seenColumns[p.ColumnName] = p.PropertyName
		if p.IsPrimary {
			primaryCount++
			primaryProp = p.PropertyName
			primaryCol = p.ColumnName
			if p.DBType == "uuid" && p.OnInsert == nil && !p.AutoIncrement {
				p.OnInsert = GenerateUUID
			}
		}
	}
	if primaryCount != 1 {
		return fmt.Errorf("orm: entity %q must declare exactly one primary key property, found %d",
			meta.Class, primaryCount)
	}

	for _, rel := range meta.Relations {
		if rel.Kind == contracts.ManyToOne && rel.ColumnName == "" {
			rel.ColumnName = snakeCase(rel.ForeignKey)
			if rel.ColumnName == "" {
				rel.ColumnName = snakeCase(rel.PropertyName) + "_id"
			}
		}
		if rel.ForeignKey == "" && rel.Kind == contracts.ManyToOne {
			rel.ForeignKey = rel.PropertyName + "ID"
		}
	}

	meta.primaryKeyPropertyName = primaryProp
	meta.primaryKeyColumnName = primaryCol

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[meta.Class] = meta
	return nil
}

// Get looks up an entity's metadata by class name.
func (r *Registry) Get(class string) (*EntityMeta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.entities[class]
	if !ok {
		return nil, ormerrors.NewEntityNotRegistered(class)
	}
	return meta, nil
}

// MustGet panics if class is unregistered. Reserved for call sites
// (e.g. generated repository constructors) that have already verified
// registration at process start.
func (r *Registry) MustGet(class string) *EntityMeta {
	meta, err := r.Get(class)
	if err != nil {
		panic(err)
	}
	return meta
}

// Snapshot computes C1's SchemaSnapshot: the ordered column list with
// foreign-key descriptors, where a many-to-one relation adopts the
// referenced primary key's db-type — crucially including "uuid".
func (r *Registry) Snapshot(meta *EntityMeta) (SchemaSnapshot, error) {
	snap := SchemaSnapshot{Table: meta.Table, Schema: meta.Schema}

	for _, p := range meta.OrderedProperties() {
		snap.Columns = append(snap.Columns, SchemaColumn{
			ColumnName:    p.ColumnName,
			DBType:        p.DBType,
			Nullable:      p.Nullable,
			IsPrimary:     p.IsPrimary,
			AutoIncrement: p.AutoIncrement,
		})
	}

	for _, rel := range meta.Relations {
		if rel.Kind != contracts.ManyToOne {
			continue
		}
		related, err := r.Get(rel.Entity)
		if err != nil {
			return SchemaSnapshot{}, err
		}
		relatedPK, ok := related.Properties[related.PrimaryKeyPropertyName()]
		if !ok {
			return SchemaSnapshot{}, fmt.Errorf("orm: entity %q: related entity %q has no primary key property",
				meta.Class, rel.Entity)
		}
		snap.Columns = append(snap.Columns, SchemaColumn{
			ColumnName:       rel.ColumnName,
			DBType:           relatedPK.DBType,
			Nullable:         true,
			ForeignKeyEntity: rel.Entity,
			ForeignKeyColumn: related.PrimaryKeyColumnName(),
		})
	}

	return snap, nil
}

// ══════════════════════════════════════════════════════════════════════
// Naming helpers
// ══════════════════════════════════════════════════════════════════════

// snakeCase converts "UserAddress" / "userAddress" into
// "user_address", the default table/column naming convention.
func snakeCase(s string) string {
	if s == "" {
		return s
	}
	var out []rune
	runes := []rune(s)
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
				if prev != '_' && (prev < 'A' || prev > 'Z' || nextLower) {
					out = append(out, '_')
				}
			}
			out = append(out, r-'A'+'a')
		} else {
			out = append(out, r)
		}
	}
	return string(out)
}

// NameOf returns the registered class name for a Go type, used by
// generic entry points (e.g. RegisterEntity[T]) that only have a type
// parameter to work with.
func NameOf[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

// RegisterEntity registers T's metadata, filling Class and GoType in
// automatically from the type parameter so callers only describe
// Table/Properties/Relations/Hooks.
func RegisterEntity[T any](r *Registry, meta EntityMeta) error {
	var zero T
	meta.GoType = reflect.TypeOf(zero)
	if meta.Class == "" {
		meta.Class = NameOf[T]()
	}
	return r.Register(&meta)
}

// newInstanceByMeta constructs a zero-valued *T (as `any`) for meta's
// GoType, for runtime-typed relation hydration.
func newInstanceByMeta(meta *EntityMeta) any {
	return reflect.New(meta.GoType).Interface()
}
