// Package contracts holds the small, dependency-free vocabulary shared
// at the boundary between a caller and the Lucid query engine: dialect
// tags, operator sentinels, hook points, and load-strategy knobs.
// Mirrors Astra's contracts package, which keeps interfaces decoupled
// from the packages that implement them.
package contracts

import "time"

// DBType identifies the SQL dialect a Driver speaks.
type DBType string

const (
	Postgres DBType = "postgres"
	MySQL    DBType = "mysql"
)

// HookType identifies a lifecycle point at which a registered model
// hook runs. Mirrors spec.md §4.12's write-path hook sequence.
type HookType string

const (
	BeforeCreate HookType = "beforeCreate"
	AfterCreate  HookType = "afterCreate"
	BeforeUpdate HookType = "beforeUpdate"
	AfterUpdate  HookType = "afterUpdate"
)

// LoadStrategy selects how a relation load is materialised.
type LoadStrategy string

const (
	// StrategyJoined performs a LEFT JOIN and hydrates the relation
	// from the same row set as the root.
	StrategyJoined LoadStrategy = "joined"

	// StrategySelect performs a secondary SELECT for each distinct
	// foreign-key value of the root result set.
	StrategySelect LoadStrategy = "select"
)

// Operator sentinels recognised by the Condition Builder. A leading
// "$" distinguishes an operator key from a property or relation name.
const (
	OpEq      = "$eq"
	OpNe      = "$ne"
	OpIn      = "$in"
	OpNin     = "$nin"
	OpLike    = "$like"
	OpGt      = "$gt"
	OpGte     = "$gte"
	OpLt      = "$lt"
	OpLte     = "$lte"
	OpAnd     = "$and"
	OpOr      = "$or"
	OpExists  = "$exists"
	OpNExists = "$nexists"
)

// Filter is the public input shape for a query predicate: a nested
// record whose keys are property names, relation names, or operator
// sentinels, and whose values are primitives, nil, dates, arrays,
// value-objects, entity references, or nested filters.
type Filter = map[string]any

// CacheDirective is the value accepted by a builder's Cache() call.
//
//   - bool true  ≡ never-expire
//   - bool false ≡ bypass (the zero value also bypasses)
//   - time.Duration ≡ TTL from the moment of caching
//   - time.Time ≡ absolute expiry; a past time bypasses
type CacheDirective any

// RelationKind distinguishes the two relation shapes the Metadata
// Registry tracks.
type RelationKind string

const (
	OneToMany RelationKind = "one-to-many"
	ManyToOne RelationKind = "many-to-one"
)

// TTLOf normalises a CacheDirective into (ttl, forever, bypass). Shared
// by orm/cache so every caller of a CacheDirective agrees on its
// meaning.
func TTLOf(directive CacheDirective, now time.Time) (ttl time.Duration, forever bool, bypass bool) {
	switch v := directive.(type) {
	case nil:
		return 0, false, true
	case bool:
		if v {
			return 0, true, false
		}
		return 0, false, true
	case time.Duration:
		if v <= 0 {
			return 0, false, true
		}
		return v, false, false
	case time.Time:
		remaining := v.Sub(now)
		if remaining <= 0 {
			return 0, false, true
		}
		return remaining, false, false
	default:
		return 0, false, true
	}
}
