package orm

import (
	"context"
	"fmt"

	"github.com/graph-gophers/dataloader/v7"

	"github.com/astra-lucid/lucidorm/contracts"
)

// buildExistsSubquery compiles a correlated EXISTS/NOT EXISTS subquery
// (C5) for a {"RelationName": {...}} filter. The subquery is
// correlated to the outer statement via rel's foreign-key predicate,
// with nested applied as an additional filter over the related
// entity.
func buildExistsSubquery(b *conditionBuilder, parentMeta *EntityMeta, parentAlias string, relatedMeta *EntityMeta, rel *RelationMeta, nested contracts.Filter) (*SubSelect, error) {
	subAlias := b.nextSubAlias(defaultAliasFor(relatedMeta.Table))

	correlation, err := correlationClause(parentMeta, parentAlias, relatedMeta, subAlias, rel)
	if err != nil {
		return nil, err
	}

	inner, err := b.Build(relatedMeta, subAlias, nested)
	if err != nil {
		return nil, err
	}

	where := correlation
	if inner != nil {
		where = &Condition{Operator: contracts.OpAnd, Children: []*Condition{correlation, inner}}
	}

	return &SubSelect{
		Alias:  subAlias,
		Table:  relatedMeta.Table,
		Schema: relatedMeta.Schema,
		Where:  where,
	}, nil
}

// correlationClause is the link between the outer row and the
// subquery, oriented the same way join_manager's onClause is:
// when filtering User by {"Posts": {...}} (one-to-many from User's
// perspective), the subquery correlates Posts.author_id = outer
// user's pk. When filtering Post by {"Author": {...}} (many-to-one),
// the subquery correlates Authors.id = outer post's fk column.
func correlationClause(parentMeta *EntityMeta, parentAlias string, relatedMeta *EntityMeta, subAlias string, rel *RelationMeta) (*Condition, error) {
	switch rel.Kind {
	case contracts.ManyToOne:
		return &Condition{
			Operator: contracts.OpEq,
			Column:   fmt.Sprintf("%s.%s", subAlias, relatedMeta.PrimaryKeyColumnName()),
			Args:     []any{rawColumnRef(fmt.Sprintf("%s.%s", parentAlias, rel.ColumnName))},
		}, nil
	case contracts.OneToMany:
		fkProp, ok := relatedMeta.Properties[rel.ForeignKey]
		if !ok {
			return nil, fmt.Errorf("orm: relation %q on %q: foreign key property %q not found on %q",
				rel.PropertyName, parentMeta.Class, rel.ForeignKey, relatedMeta.Class)
		}
		return &Condition{
			Operator: contracts.OpEq,
			Column:   fmt.Sprintf("%s.%s", subAlias, fkProp.ColumnName),
			Args:     []any{rawColumnRef(fmt.Sprintf("%s.%s", parentAlias, parentMeta.PrimaryKeyColumnName()))},
		}, nil
	default:
		return nil, fmt.Errorf("orm: unknown relation kind %q", rel.Kind)
	}
}

// relationLoader fetches StrategySelect relation rows through a
// graph-gophers/dataloader Loader. The executor waits on each Load
// before issuing the next, so every distinct foreign-key value costs
// one secondary SELECT; a repeated value is served from the Loader's
// cache. Keys of different root rows are not combined into one IN
// (...) query.
type relationLoader struct {
	exec   *executor
	loader *dataloader.Loader[string, []map[string]any]
}

// newRelationLoader builds a batched loader for one relation on one
// related entity, scoped to the lifetime of a single query execution
// (it must not be reused across queries: dataloader caches by key for
// the life of the Loader).
func newRelationLoader(exec *executor, relatedMeta *EntityMeta, fkColumn string) *relationLoader {
	rl := &relationLoader{exec: exec}
	batchFn := func(ctx context.Context, keys []string) []*dataloader.Result[[]map[string]any] {
		rows, err := exec.selectByForeignKeys(ctx, relatedMeta, fkColumn, keys)
		results := make([]*dataloader.Result[[]map[string]any], len(keys))
		if err != nil {
			for i := range keys {
				results[i] = &dataloader.Result[[]map[string]any]{Error: err}
			}
			return results
		}
		grouped := make(map[string][]map[string]any, len(keys))
		for _, row := range rows {
			k := fmt.Sprintf("%v", row[fkColumn])
			grouped[k] = append(grouped[k], row)
		}
		for i, k := range keys {
			results[i] = &dataloader.Result[[]map[string]any]{Data: grouped[k]}
		}
		return results
	}
	rl.loader = dataloader.NewBatchedLoader(batchFn)
	return rl
}

// Load fetches the related rows for one foreign-key value and waits
// for the result; the batch it joins holds only the keys already
// pending when its batch window closes.
func (rl *relationLoader) Load(ctx context.Context, fkValue any) ([]map[string]any, error) {
	thunk := rl.loader.Load(ctx, fmt.Sprintf("%v", fkValue))
	return thunk()
}
