package orm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astra-lucid/lucidorm/contracts"
)

// qbpDriver is a no-op Driver stub: plan() never issues a statement,
// it only needs a dialect to hand the emitter, which newExecutor reads
// off the driver at construction time.
type qbpDriver struct{}

func (qbpDriver) Connect(ctx context.Context) error    { return nil }
func (qbpDriver) Disconnect(ctx context.Context) error { return nil }
func (qbpDriver) DBType() contracts.DBType             { return contracts.Postgres }
func (qbpDriver) ExecuteSQL(ctx context.Context, sql string, args []any) ([]Row, error) {
	return nil, nil
}
func (qbpDriver) ExecuteStatement(ctx context.Context, stmt *Statement) ([]Row, ExecResult, error) {
	return nil, ExecResult{}, nil
}
func (qbpDriver) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func qbpRegistry() *Registry {
	reg := NewRegistry()
	_ = reg.Register(&EntityMeta{
		Class: "QBPAuthor",
		Table: "authors",
		Properties: map[string]*PropertyMeta{
			"ID":   {PropertyName: "ID", IsPrimary: true},
			"Name": {PropertyName: "Name"},
		},
		Relations: []*RelationMeta{
			{Kind: contracts.OneToMany, PropertyName: "Posts", Entity: "QBPPost", ForeignKey: "AuthorID"},
		},
	})
	_ = reg.Register(&EntityMeta{
		Class: "QBPPost",
		Table: "posts",
		Properties: map[string]*PropertyMeta{
			"ID":       {PropertyName: "ID", IsPrimary: true},
			"Title":    {PropertyName: "Title"},
			"AuthorID": {PropertyName: "AuthorID"},
		},
	})
	return reg
}

func TestPlanSuppressesLimitWhenJoinedOneToManyRelationLoaded(t *testing.T) {
	reg := qbpRegistry()
	meta, err := reg.Get("QBPAuthor")
	require.NoError(t, err)

	o := &Orm{registry: reg, driver: qbpDriver{}}
	ex := newExecutor(o)

	qb := &QueryBuilder[struct{}]{orm: o, meta: meta, alias: "a", kind: StmtSelect}
	qb.Load("Posts")
	qb.Limit(1)

	stmt, err := qb.plan(ex)
	require.NoError(t, err)
	assert.False(t, stmt.HasLimit, "LIMIT must not be appended once a one-to-many relation is joined")
}

func TestPlanKeepsLimitForPlainManyToOneJoin(t *testing.T) {
	reg := authorPostRegistry()
	meta, err := reg.Get("Post")
	require.NoError(t, err)

	o := &Orm{registry: reg, driver: qbpDriver{}}
	ex := newExecutor(o)

	qb := &QueryBuilder[struct{}]{orm: o, meta: meta, alias: "p", kind: StmtSelect}
	qb.Load("Author")
	qb.Limit(1)

	stmt, err := qb.plan(ex)
	require.NoError(t, err)
	assert.True(t, stmt.HasLimit)
}
