package orm

import "github.com/astra-lucid/lucidorm/contracts"

// StatementKind discriminates the five statement shapes the emitter
// (C7) supports.
type StatementKind int

const (
	StmtSelect StatementKind = iota
	StmtInsert
	StmtUpdate
	StmtDelete
	StmtCount
)

// Condition is one node of a WHERE/ON/HAVING tree, produced by the
// Condition Builder (C3). A Condition is either a leaf comparison
// (Operator + Column + Args) or a boolean group (Operator is OpAnd /
// OpOr, Children holds the operands).
type Condition struct {
	// Operator is one of the contracts.Op* sentinels.
	Operator string

	// Column is the qualified "alias.column" the leaf compares, empty
	// for a group node.
	Column string

	// Args holds the leaf's comparison operand(s): one value for
	// $eq/$ne/$like/$gt/.../ , a slice for $in/$nin.
	Args []any

	// Children holds operand conditions for $and/$or groups. It is
	// empty for $exists/$nexists nodes, which carry their subquery in
	// Sub below.
	Children []*Condition

	// Sub is set when Operator is $exists/$nexists: the correlated
	// subquery to test.
	Sub *SubSelect
}

// OrderTerm is one ORDER BY entry.
type OrderTerm struct {
	Column string
	Desc   bool
}

// JoinNode is one LEFT JOIN the Join Manager (C4) has planned.
type JoinNode struct {
	// Alias is the table alias assigned to the joined side.
	Alias string
	// Table is the physical table name (schema-qualified by the
	// emitter as needed).
	Table  string
	Schema string
	// On is the join predicate, typically a single $eq leaf comparing
	// the parent alias's FK column to the child alias's PK column.
	On *Condition
	// JoinWhere is an additional predicate ANDed alongside On, compiled
	// from a plain (non-$exists) relation-keyed filter against this
	// join's alias; the Condition Builder also returns the same
	// predicate for the statement's WHERE (spec.md §4.3 step 1's JOIN-based relation
	// filtering, as distinct from step 5's correlated $exists/$nexists
	// subquery path).
	JoinWhere *Condition
	// RelationProperty is the caller-facing relation name this join
	// satisfies (e.g. "Author"), used by the Hydrator to attach
	// results back onto the parent instance.
	RelationProperty string
	Kind             contracts.RelationKind
}

// SubSelect is a correlated subquery used as an $exists/$nexists test
// (C5). StrategySelect relations are planned through Statement.Load
// instead.
type SubSelect struct {
	Alias  string
	Table  string
	Schema string
	Where  *Condition
}

// Statement is the engine's statement AST (C7): a dialect-agnostic
// description of one SQL operation, ready for SQL emission.
type Statement struct {
	Kind StatementKind

	Table  string
	Schema string
	Alias  string

	// Columns is the projected column list for StmtSelect (C6's
	// output); Values is the column/value map for StmtInsert and
	// StmtUpdate.
	Columns []ProjectedColumn
	Values  map[string]any

	Joins []*JoinNode
	Where *Condition

	OrderBy []OrderTerm
	Limit   int
	Offset  int
	HasLimit  bool
	HasOffset bool

	// ReturningPrimaryKey requests the dialect's insert-id retrieval
	// strategy (Postgres RETURNING, MySQL LAST_INSERT_ID()).
	ReturningPrimaryKey string

	// Load lists the relations to attach via a secondary SELECT
	// (StrategySelect), resolved after the root statement executes.
	Load []*RelationMeta
}

// ProjectedColumn is one SELECT list entry: a source alias/column pair
// plus the output label the Hydrator will key off of (C6).
type ProjectedColumn struct {
	SourceAlias string
	Column      string
	Label       string
}
