package orm

import "github.com/astra-lucid/lucidorm/contracts"

// binaryOperators is the set of leaf comparison operators that accept
// exactly one scalar argument and are emitted as "column <op> ?".
var binaryOperators = map[string]string{
	contracts.OpEq:   "=",
	contracts.OpNe:   "<>",
	contracts.OpGt:   ">",
	contracts.OpGte:  ">=",
	contracts.OpLt:   "<",
	contracts.OpLte:  "<=",
	contracts.OpLike: "LIKE",
}

// listOperators is the set of leaf operators taking a slice argument,
// emitted as "column IN (?, ?, ...)".
var listOperators = map[string]string{
	contracts.OpIn:  "IN",
	contracts.OpNin: "NOT IN",
}

func isGroupOperator(op string) bool {
	return op == contracts.OpAnd || op == contracts.OpOr
}

func isRelationOperator(op string) bool {
	return op == contracts.OpExists || op == contracts.OpNExists
}

// rawOperator marks a Condition produced by QueryBuilder.WhereRaw: its
// Column field holds a literal SQL fragment (with "?" placeholders)
// rather than a qualified column name.
const rawOperator = "$raw"
