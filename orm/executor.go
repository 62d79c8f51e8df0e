package orm

import (
	"context"
	"fmt"
	"time"

	"github.com/astra-lucid/lucidorm/contracts"
)

// executor wires the planning stages (C3-C6) to the Driver (C8) and
// the Hydrator (C9) for one Orm instance. A QueryBuilder delegates
// every terminal call (execute/executeAndReturnAll/count/...) to its
// methods.
type executor struct {
	orm      *Orm
	registry *Registry
	driver   Driver
	cond     *conditionBuilder
	joins    *joinPlanner
	columns  *columnPlanner
	hydrate  *hydrator
	emit     *emitter
	cache    *queryCache
}

func newExecutor(o *Orm) *executor {
	joins := newJoinPlanner(o.registry)
	return &executor{
		orm:      o,
		registry: o.registry,
		driver:   o.driver,
		cond:     newConditionBuilder(o.registry).withJoinPlanner(joins),
		joins:    joins,
		columns:  newColumnPlanner(o.registry),
		hydrate:  newHydrator(o.registry),
		emit:     newEmitter(o.driver.DBType()),
		cache:    o.queryCache,
	}
}

// runSelect executes a planned select Statement, consulting and
// populating the query cache, and hydrates the resulting rows into
// instances of T.
func runSelect[T any](ctx context.Context, ex *executor, meta *EntityMeta, stmt *Statement, directive contracts.CacheDirective) ([]*T, error) {
	ctx, session := scopeExecution(ctx, ex.orm)

	res, err := ex.emit.Emit(stmt)
	if err != nil {
		return nil, err
	}

	var rows []Row
	cached, hit := []Row(nil), false
	if _, _, bypass := contracts.TTLOf(directive, time.Now()); !bypass {
		cached, hit = ex.cache.Lookup(ctx, stmt, res.Args)
	}
	if hit {
		rows = cached
	} else {
		rows, _, err = ex.driver.ExecuteStatement(ctx, stmt)
		if err != nil {
			return nil, err
		}
		ex.cache.Store(ctx, stmt, res.Args, directive, rows)
	}

	instances, err := ex.hydrate.HydrateRoot(session.IdentityMap(), meta, stmt, rows)
	if err != nil {
		return nil, err
	}

	if err := ex.loadSelectStrategyRelations(ctx, meta, stmt, instances); err != nil {
		return nil, err
	}

	out := make([]*T, 0, len(instances))
	for _, inst := range instances {
		typed, ok := inst.(*T)
		if !ok {
			return nil, fmt.Errorf("orm: hydrated instance of %T does not match requested type %T", inst, typed)
		}
		out = append(out, typed)
	}
	return out, nil
}

// loadSelectStrategyRelations attaches every relation in stmt.Load
// (StrategySelect) via a batched secondary SELECT, after the root
// result set has been hydrated.
func (ex *executor) loadSelectStrategyRelations(ctx context.Context, rootMeta *EntityMeta, stmt *Statement, instances []any) error {
	if len(stmt.Load) == 0 || len(instances) == 0 {
		return nil
	}

	for _, rel := range stmt.Load {
		relatedMeta, err := ex.registry.Get(rel.Entity)
		if err != nil {
			return err
		}

		switch rel.Kind {
		case contracts.ManyToOne:
			if err := ex.attachManyToOneSelect(ctx, rootMeta, rel, relatedMeta, instances); err != nil {
				return err
			}
		case contracts.OneToMany:
			if err := ex.attachOneToManySelect(ctx, rootMeta, rel, relatedMeta, instances); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ex *executor) attachManyToOneSelect(ctx context.Context, rootMeta *EntityMeta, rel *RelationMeta, relatedMeta *EntityMeta, instances []any) error {
	loader := newRelationLoader(ex, relatedMeta, relatedMeta.PrimaryKeyColumnName())
	for _, inst := range instances {
		fkValue, err := readProperty(inst, rel.ForeignKey)
		if err != nil || fkValue == nil {
			continue
		}
		rows, err := loader.Load(ctx, fkValue)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}
		values := valuesForMeta(relatedMeta, rows[0], func(c string) string { return c })
		built, err := populateNew(relatedMeta, values)
		if err != nil {
			return err
		}
		if err := setPointerField(inst, rel.PropertyName, built); err != nil {
			return err
		}
	}
	return nil
}

func (ex *executor) attachOneToManySelect(ctx context.Context, rootMeta *EntityMeta, rel *RelationMeta, relatedMeta *EntityMeta, instances []any) error {
	fkProp, ok := relatedMeta.Properties[rel.ForeignKey]
	if !ok {
		return fmt.Errorf("orm: relation %q: foreign key property %q not found on %q", rel.PropertyName, rel.ForeignKey, relatedMeta.Class)
	}
	loader := newRelationLoader(ex, relatedMeta, fkProp.ColumnName)

	for _, inst := range instances {
		pkValue, err := readProperty(inst, rootMeta.PrimaryKeyPropertyName())
		if err != nil || pkValue == nil {
			continue
		}
		rows, err := loader.Load(ctx, pkValue)
		if err != nil {
			return err
		}
		for _, row := range rows {
			values := valuesForMeta(relatedMeta, row, func(c string) string { return c })
			built, err := populateNew(relatedMeta, values)
			if err != nil {
				return err
			}
			if err := appendSliceField(inst, rel.PropertyName, built); err != nil {
				return err
			}
		}
	}
	return nil
}

// selectByForeignKeys runs one SELECT ... WHERE fkColumn IN (keys) for
// a dataloader batch function.
func (ex *executor) selectByForeignKeys(ctx context.Context, meta *EntityMeta, fkColumn string, keys []string) ([]Row, error) {
	alias := defaultAliasFor(meta.Table)
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	stmt := &Statement{
		Kind:    StmtSelect,
		Table:   meta.Table,
		Schema:  meta.Schema,
		Alias:   alias,
		Columns: ex.columns.ProjectRoot(meta, alias),
		Where: &Condition{
			Operator: contracts.OpIn,
			Column:   fmt.Sprintf("%s.%s", alias, fkColumn),
			Args:     args,
		},
	}
	rows, _, err := ex.driver.ExecuteStatement(ctx, stmt)
	return rows, err
}

func readProperty(inst any, propertyName string) (any, error) {
	values, err := reflectStructValues(inst, []string{propertyName})
	if err != nil {
		return nil, err
	}
	return values[propertyName], nil
}
