package orm

import (
	"context"

	"github.com/astra-lucid/lucidorm/contracts"
)

// Repository is a thin, type-safe convenience layer over QueryBuilder
// for the common CRUD shapes, the way a generated Astra model's
// static methods wrapped GORM calls. Obtain one with NewRepository.
type Repository[T any] struct {
	orm  *Orm
	meta *EntityMeta
}

// NewRepository returns a Repository bound to T's registered
// metadata.
func NewRepository[T any](o *Orm) *Repository[T] {
	return &Repository[T]{orm: o, meta: o.registry.MustGet(NameOf[T]())}
}

// Find starts a fluent QueryBuilder for ad-hoc queries beyond this
// repository's fixed shapes.
func (r *Repository[T]) Find() *QueryBuilder[T] { return Find[T](r.orm) }

// FindAll returns every row matching filter.
func (r *Repository[T]) FindAll(ctx context.Context, filter contracts.Filter) ([]*T, error) {
	return Find[T](r.orm).Where(filter).ExecuteAndReturnAll(ctx)
}

// FindOne returns the first row matching filter, or nil.
func (r *Repository[T]) FindOne(ctx context.Context, filter contracts.Filter) (*T, error) {
	return Find[T](r.orm).Where(filter).ExecuteAndReturnFirst(ctx)
}

// FindOneOrFail is FindOne, returning ormerrors.ResultNotFound instead
// of a nil instance.
func (r *Repository[T]) FindOneOrFail(ctx context.Context, filter contracts.Filter) (*T, error) {
	return Find[T](r.orm).Where(filter).ExecuteAndReturnFirstOrFail(ctx)
}

// FindById returns the row with the given primary key, or nil.
func (r *Repository[T]) FindById(ctx context.Context, id any) (*T, error) {
	return r.FindOne(ctx, contracts.Filter{r.meta.PrimaryKeyPropertyName(): id})
}

// FindByIdOrFail is FindById, returning ormerrors.ResultNotFound
// instead of a nil instance.
func (r *Repository[T]) FindByIdOrFail(ctx context.Context, id any) (*T, error) {
	return r.FindOneOrFail(ctx, contracts.Filter{r.meta.PrimaryKeyPropertyName(): id})
}

// Count returns the number of rows matching filter.
func (r *Repository[T]) Count(ctx context.Context, filter contracts.Filter) (int64, error) {
	return Find[T](r.orm).Where(filter).ExecuteCount(ctx)
}

// Exists reports whether any row matches filter.
func (r *Repository[T]) Exists(ctx context.Context, filter contracts.Filter) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

// Create inserts a new row and returns the hydrated instance,
// including the primary key the driver generated/returned.
func (r *Repository[T]) Create(ctx context.Context, values map[string]any) (*T, error) {
	res, err := Find[T](r.orm).Insert(values).Execute(ctx)
	if err != nil {
		return nil, err
	}
	if res.InsertedPrimaryKey != nil {
		return r.FindById(ctx, res.InsertedPrimaryKey)
	}
	if pk, ok := values[r.meta.PrimaryKeyPropertyName()]; ok {
		return r.FindById(ctx, pk)
	}
	return nil, nil
}

// UpdateById updates the row with the given primary key and returns
// the refreshed instance.
func (r *Repository[T]) UpdateById(ctx context.Context, id any, values map[string]any) (*T, error) {
	_, err := Find[T](r.orm).
		Where(contracts.Filter{r.meta.PrimaryKeyPropertyName(): id}).
		Update(values).
		Execute(ctx)
	if err != nil {
		return nil, err
	}
	return r.FindById(ctx, id)
}

// DeleteById deletes the row with the given primary key.
func (r *Repository[T]) DeleteById(ctx context.Context, id any) error {
	_, err := Find[T](r.orm).
		Where(contracts.Filter{r.meta.PrimaryKeyPropertyName(): id}).
		Delete().
		Execute(ctx)
	return err
}

// Delete deletes every row matching filter.
func (r *Repository[T]) Delete(ctx context.Context, filter contracts.Filter) (int64, error) {
	res, err := Find[T](r.orm).Where(filter).Delete().Execute(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}
