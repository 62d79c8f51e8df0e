package orm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/astra-lucid/lucidorm/contracts"
)

func TestFingerprintStableAcrossEqualStatements(t *testing.T) {
	stmt := func() *Statement {
		return &Statement{
			Kind:    StmtSelect,
			Table:   "users",
			Alias:   "u",
			Columns: []ProjectedColumn{{SourceAlias: "u", Column: "id", Label: "id"}},
			Where:   &Condition{Operator: contracts.OpEq, Column: "u.name", Args: []any{"ada"}},
		}
	}
	assert.Equal(t, fingerprint(stmt(), []any{"ada"}), fingerprint(stmt(), []any{"ada"}))
}

func TestFingerprintChangesWithArgs(t *testing.T) {
	stmt := &Statement{Kind: StmtSelect, Table: "users", Alias: "u"}
	assert.NotEqual(t, fingerprint(stmt, []any{"ada"}), fingerprint(stmt, []any{"alan"}))
}

func TestFingerprintChangesWithTable(t *testing.T) {
	a := &Statement{Kind: StmtSelect, Table: "users", Alias: "u"}
	b := &Statement{Kind: StmtSelect, Table: "posts", Alias: "u"}
	assert.NotEqual(t, fingerprint(a, nil), fingerprint(b, nil))
}

func TestConditionFingerprintAndOrIsOrderIndependent(t *testing.T) {
	a := &Condition{Operator: contracts.OpAnd, Children: []*Condition{
		{Operator: contracts.OpEq, Column: "u.name", Args: []any{"ada"}},
		{Operator: contracts.OpEq, Column: "u.age", Args: []any{30}},
	}}
	b := &Condition{Operator: contracts.OpAnd, Children: []*Condition{
		{Operator: contracts.OpEq, Column: "u.age", Args: []any{30}},
		{Operator: contracts.OpEq, Column: "u.name", Args: []any{"ada"}},
	}}
	assert.Equal(t, conditionFingerprint(a), conditionFingerprint(b))
}

func TestCacheNamespacesIncludesJoinedTables(t *testing.T) {
	stmt := &Statement{
		Table: "users",
		Joins: []*JoinNode{{Table: "posts"}, {Table: "comments"}},
	}
	assert.ElementsMatch(t, []string{"users", "posts", "comments"}, cacheNamespaces(stmt))
}
