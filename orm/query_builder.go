package orm

import (
	"context"
	"fmt"
	"reflect"

	"github.com/astra-lucid/lucidorm/contracts"
	"github.com/astra-lucid/lucidorm/ormerrors"
)

// loadRequest is one caller-requested relation attachment, pending
// planning at execution time.
type loadRequest struct {
	relation string
	strategy contracts.LoadStrategy
}

// QueryBuilder is C12, the fluent façade every generated repository
// (repository.go) and every ad-hoc caller builds a query through. It
// accumulates intent — filters, relation loads, ordering, paging, a
// cache directive, a raw WHERE escape hatch — and only plans/emits SQL
// when a terminal method runs.
type QueryBuilder[T any] struct {
	orm      *Orm
	meta     *EntityMeta
	alias    string
	kind     StatementKind
	filter   contracts.Filter
	loads    []loadRequest
	order    []OrderTerm
	limit    int
	hasLimit bool
	offset   int
	hasOffset bool
	cacheDirective contracts.CacheDirective
	rawWhereSQL  string
	rawWhereArgs []any
	writeValues  map[string]any
}

// Find opens a SELECT query builder for T.
func Find[T any](o *Orm) *QueryBuilder[T] {
	meta := o.registry.MustGet(NameOf[T]())
	return &QueryBuilder[T]{orm: o, meta: meta, alias: defaultAliasFor(meta.Table), kind: StmtSelect}
}

// Clone returns an independent copy of qb, so a base query can be
// reused as the starting point for several divergent ones without
// cross-contaminating their filters (see SPEC_FULL.md §4).
func (qb *QueryBuilder[T]) Clone() *QueryBuilder[T] {
	clone := *qb
	clone.filter = cloneFilter(qb.filter)
	clone.loads = append([]loadRequest(nil), qb.loads...)
	clone.order = append([]OrderTerm(nil), qb.order...)
	clone.writeValues = cloneMap(qb.writeValues)
	return &clone
}

func cloneFilter(f contracts.Filter) contracts.Filter {
	if f == nil {
		return nil
	}
	out := make(contracts.Filter, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Where merges filter into the builder's accumulated predicate. A
// second call combines with the first under an implicit $and.
func (qb *QueryBuilder[T]) Where(filter contracts.Filter) *QueryBuilder[T] {
	if qb.filter == nil {
		qb.filter = cloneFilter(filter)
		return qb
	}
	merged := contracts.Filter{contracts.OpAnd: []contracts.Filter{qb.filter, filter}}
	qb.filter = merged
	return qb
}

// WhereRaw sets a raw SQL fragment, ANDed with any structured filter,
// for the rare predicate the Condition Builder cannot express. The
// fragment uses "?" placeholders, which the emitter renumbers to $n
// for Postgres; args are bound positionally after the same literal
// checks as filter values. A second call replaces the first fragment.
// Only the select terminals (ExecuteAndReturnAll and the methods built
// on it) apply the fragment.
func (qb *QueryBuilder[T]) WhereRaw(sql string, args ...any) *QueryBuilder[T] {
	qb.rawWhereSQL = sql
	qb.rawWhereArgs = args
	return qb
}

// Load requests relation to be attached to each result, using
// strategy if given or the relation's StrategyJoined default
// otherwise.
func (qb *QueryBuilder[T]) Load(relation string, strategy ...contracts.LoadStrategy) *QueryBuilder[T] {
	s := contracts.StrategyJoined
	if len(strategy) > 0 {
		s = strategy[0]
	}
	qb.loads = append(qb.loads, loadRequest{relation: relation, strategy: s})
	return qb
}

func (qb *QueryBuilder[T]) OrderBy(column string, desc bool) *QueryBuilder[T] {
	qb.order = append(qb.order, OrderTerm{Column: fmt.Sprintf("%s.%s", qb.alias, column), Desc: desc})
	return qb
}

func (qb *QueryBuilder[T]) Limit(n int) *QueryBuilder[T] {
	qb.limit, qb.hasLimit = n, true
	return qb
}

func (qb *QueryBuilder[T]) Offset(n int) *QueryBuilder[T] {
	qb.offset, qb.hasOffset = n, true
	return qb
}

// Cache sets the result-caching directive for this query (spec.md
// §4.11 / contracts.TTLOf). Leaving it unset bypasses the cache.
func (qb *QueryBuilder[T]) Cache(directive contracts.CacheDirective) *QueryBuilder[T] {
	qb.cacheDirective = directive
	return qb
}

// Insert switches the builder to an INSERT statement over values.
func (qb *QueryBuilder[T]) Insert(values map[string]any) *QueryBuilder[T] {
	qb.kind = StmtInsert
	qb.writeValues = values
	return qb
}

// Update switches the builder to an UPDATE statement over values,
// scoped by whatever Where() predicate has been set.
func (qb *QueryBuilder[T]) Update(values map[string]any) *QueryBuilder[T] {
	qb.kind = StmtUpdate
	qb.writeValues = values
	return qb
}

// Delete switches the builder to a DELETE statement, scoped by
// whatever Where() predicate has been set.
func (qb *QueryBuilder[T]) Delete() *QueryBuilder[T] {
	qb.kind = StmtDelete
	return qb
}

// plan compiles the builder's accumulated intent into a Statement,
// running the Condition Builder, Join Manager, and Column Manager in
// the right order: Load joins are planned before the filter is
// compiled, so a relation-keyed filter reuses the join a Load already
// added.
func (qb *QueryBuilder[T]) plan(ex *executor) (*Statement, error) {
	stmt := &Statement{
		Kind:      qb.kind,
		Table:     qb.meta.Table,
		Schema:    qb.meta.Schema,
		Alias:     qb.alias,
		OrderBy:   qb.order,
		Limit:     qb.limit,
		HasLimit:  qb.hasLimit,
		Offset:    qb.offset,
		HasOffset: qb.hasOffset,
	}

	switch qb.kind {
	case StmtSelect, StmtCount:
		joinByRelation := make(map[string]*JoinNode)
		for _, lr := range qb.loads {
			if lr.strategy != contracts.StrategyJoined {
				rel, ok := qb.meta.RelationByProperty(lr.relation)
				if !ok {
					return nil, ormerrors.NewInvalidRelationUsage(lr.relation, qb.meta.RelationNames())
				}
				stmt.Load = append(stmt.Load, rel)
				continue
			}
			node, _, err := ex.joins.ApplyJoin(stmt, qb.meta, qb.alias, lr.relation)
			if err != nil {
				return nil, err
			}
			joinByRelation[lr.relation] = node
		}

		if qb.kind == StmtSelect {
			stmt.Columns = ex.columns.ProjectRoot(qb.meta, qb.alias)
			for _, lr := range qb.loads {
				if lr.strategy != contracts.StrategyJoined {
					continue
				}
				node := joinByRelation[lr.relation]
				rel, _ := qb.meta.RelationByProperty(lr.relation)
				related, err := ex.registry.Get(rel.Entity)
				if err != nil {
					return nil, err
				}
				stmt.Columns = append(stmt.Columns, ex.columns.ProjectJoined(related, node.Alias)...)
			}
		}

		where, err := ex.cond.BuildForStatement(stmt, qb.meta, qb.alias, qb.filter)
		if err != nil {
			return nil, err
		}
		stmt.Where = where

		// A joined one-to-many relation fans the parent row out across N
		// child rows; appending the caller's LIMIT to the outer statement
		// would cap rows, not parents (spec.md §4.9).
		for _, node := range stmt.Joins {
			if node.Kind == contracts.OneToMany {
				stmt.HasLimit = false
			}
		}

	case StmtInsert:
		values, err := newProcessor(ex.registry).processForInsert(qb.meta, qb.writeValues)
		if err != nil {
			return nil, err
		}
		stmt.Values = propertiesToColumns(qb.meta, values)
		stmt.ReturningPrimaryKey = qb.meta.PrimaryKeyColumnName()

	case StmtUpdate:
		values, err := newProcessor(ex.registry).processForUpdate(qb.meta, qb.writeValues)
		if err != nil {
			return nil, err
		}
		stmt.Values = propertiesToColumns(qb.meta, values)
		where, err := ex.cond.Build(qb.meta, qb.alias, qb.filter)
		if err != nil {
			return nil, err
		}
		stmt.Where = where

	case StmtDelete:
		where, err := ex.cond.Build(qb.meta, qb.alias, qb.filter)
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	return stmt, nil
}

func propertiesToColumns(meta *EntityMeta, values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if isPassthroughKey(k) {
			out[k] = v
			continue
		}
		if prop, ok := meta.Properties[k]; ok {
			out[prop.ColumnName] = v
		}
	}
	return out
}

// ExecuteAndReturnAll runs the built SELECT and hydrates every
// matching row.
func (qb *QueryBuilder[T]) ExecuteAndReturnAll(ctx context.Context) ([]*T, error) {
	if qb.kind != StmtSelect {
		return nil, fmt.Errorf("orm: ExecuteAndReturnAll requires a select builder")
	}
	ex := newExecutor(qb.orm)
	stmt, err := qb.plan(ex)
	if err != nil {
		return nil, err
	}
	if qb.rawWhereSQL != "" {
		args := make([]any, len(qb.rawWhereArgs))
		for i, a := range qb.rawWhereArgs {
			lit, err := ex.cond.coerceLiteral(&PropertyMeta{PropertyName: "WhereRaw"}, a)
			if err != nil {
				return nil, err
			}
			args[i] = lit
		}
		stmt.Where = mergeRawWhere(stmt.Where, qb.rawWhereSQL, args)
	}
	return runSelect[T](ctx, ex, qb.meta, stmt, qb.cacheDirective)
}

// ExecuteAndReturnFirst runs the built SELECT with an implicit
// LIMIT 1, returning nil if nothing matched.
func (qb *QueryBuilder[T]) ExecuteAndReturnFirst(ctx context.Context) (*T, error) {
	qb.Limit(1)
	results, err := qb.ExecuteAndReturnAll(ctx)
	if err != nil {
		return nil, err
	}
	return firstOrNil(results), nil
}

// ExecuteAndReturnFirstOrFail is ExecuteAndReturnFirst, returning
// ormerrors.ResultNotFound instead of a nil instance.
func (qb *QueryBuilder[T]) ExecuteAndReturnFirstOrFail(ctx context.Context) (*T, error) {
	inst, err := qb.ExecuteAndReturnFirst(ctx)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, ormerrors.NewResultNotFound(qb.meta.Class)
	}
	return inst, nil
}

func firstOrNil[T any](items []*T) *T {
	if len(items) == 0 {
		return nil
	}
	return items[0]
}

// ExecuteCount runs a SELECT COUNT(*) over the builder's current
// filter, ignoring any requested Load relations.
func (qb *QueryBuilder[T]) ExecuteCount(ctx context.Context) (int64, error) {
	counter := *qb
	counter.kind = StmtCount
	counter.loads = nil
	ex := newExecutor(qb.orm)
	stmt, err := counter.plan(ex)
	if err != nil {
		return 0, err
	}
	res, err := ex.emit.Emit(stmt)
	if err != nil {
		return 0, err
	}
	rows, _, err := ex.driver.ExecuteStatement(ctx, stmt)
	if err != nil {
		return 0, err
	}
	_ = res
	if len(rows) == 0 {
		return 0, nil
	}
	for _, v := range rows[0] {
		if n, ok := toInt64(v); ok {
			return n, nil
		}
	}
	return 0, nil
}

// Execute runs the builder's current write statement (Insert/Update/
// Delete), invalidating any cache namespaces it touches. For Insert and
// Update it also runs the entity's Before/After hooks (base_entity.go)
// against a scratch instance populated from the write payload, feeding
// any hook mutation back into the statement before it is planned so a
// BeforeCreate/BeforeUpdate hook can set or rewrite a column the same
// way an Astra model's static create/update hook would.
func (qb *QueryBuilder[T]) Execute(ctx context.Context) (ExecResult, error) {
	if qb.kind != StmtInsert && qb.kind != StmtUpdate && qb.kind != StmtDelete {
		return ExecResult{}, fmt.Errorf("orm: Execute requires an insert/update/delete builder")
	}
	ex := newExecutor(qb.orm)

	var inst *T
	if qb.kind == StmtInsert || qb.kind == StmtUpdate {
		var err error
		inst, err = createInstance[T](qb.writeValues)
		if err != nil {
			return ExecResult{}, err
		}
		names := propertyNames(qb.meta)
		before, err := reflectStructValues(inst, names)
		if err != nil {
			return ExecResult{}, err
		}
		runHook(inst, hookFor(qb.kind, true))
		refreshed, err := reflectStructValues(inst, names)
		if err != nil {
			return ExecResult{}, err
		}
		for name, value := range refreshed {
			if !reflect.DeepEqual(value, before[name]) {
				qb.writeValues[name] = value
			}
		}
	}

	stmt, err := qb.plan(ex)
	if err != nil {
		return ExecResult{}, err
	}

	_, res, err := ex.driver.ExecuteStatement(ctx, stmt)
	if err != nil {
		return ExecResult{}, ormerrors.NewConstraintViolation(err)
	}
	ex.cache.InvalidateWrite(ctx, stmt)

	if inst != nil {
		runHook(inst, hookFor(qb.kind, false))
	}
	return res, nil
}

func propertyNames(meta *EntityMeta) []string {
	names := make([]string, 0, len(meta.Properties))
	for name := range meta.Properties {
		names = append(names, name)
	}
	return names
}

func hookFor(kind StatementKind, before bool) contracts.HookType {
	switch kind {
	case StmtInsert:
		if before {
			return contracts.BeforeCreate
		}
		return contracts.AfterCreate
	case StmtUpdate:
		if before {
			return contracts.BeforeUpdate
		}
		return contracts.AfterUpdate
	default:
		return ""
	}
}

// InTransaction runs fn with this builder's driver wrapped in a
// transaction, so every QueryBuilder call fn issues against the
// context it receives participates in the same commit/rollback.
func InTransaction(ctx context.Context, o *Orm, fn func(ctx context.Context) error) error {
	return o.driver.Transaction(ctx, fn)
}

func mergeRawWhere(where *Condition, sql string, args []any) *Condition {
	raw := &Condition{Operator: rawOperator, Column: sql, Args: args}
	if where == nil {
		return raw
	}
	return &Condition{Operator: contracts.OpAnd, Children: []*Condition{where, raw}}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
