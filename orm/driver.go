package orm

import (
	"context"

	"github.com/astra-lucid/lucidorm/contracts"
)

// Row is one result row, keyed by the ProjectedColumn label the
// emitter assigned (e.g. "u_id" for a joined column, "id" for a root
// column).
type Row = map[string]any

// ExecResult is the outcome of an INSERT/UPDATE/DELETE.
type ExecResult struct {
	RowsAffected int64
	// InsertedPrimaryKey holds the primary key value for an INSERT,
	// populated from RETURNING (Postgres) or LAST_INSERT_ID() (MySQL).
	InsertedPrimaryKey any
}

// Driver is C8: the abstraction every dialect backend implements.
// orm/driver/pgdriver and orm/driver/mysqldriver are the two shipped
// implementations; ormtest.FakeDriver is an in-memory third for unit
// tests that must not touch a real database.
type Driver interface {
	// Connect establishes the underlying connection pool. Must be
	// called exactly once before any other method.
	Connect(ctx context.Context) error

	// Disconnect releases the connection pool.
	Disconnect(ctx context.Context) error

	// DBType reports which dialect this driver speaks, used by the
	// emitter to choose quoting/placeholder/RETURNING behaviour.
	DBType() contracts.DBType

	// ExecuteSQL runs a raw, caller-supplied SQL string with args (the
	// escape hatch reached through Orm.Driver(); QueryBuilder.WhereRaw
	// goes through ExecuteStatement instead) and returns its result
	// rows.
	ExecuteSQL(ctx context.Context, sql string, args []any) ([]Row, error)

	// ExecuteStatement renders stmt via the dialect emitter and runs
	// it, returning rows for StmtSelect/StmtCount and an ExecResult for
	// the write kinds.
	ExecuteStatement(ctx context.Context, stmt *Statement) ([]Row, ExecResult, error)

	// Transaction runs fn within a database transaction, committing if
	// fn returns nil and rolling back otherwise. The context passed to
	// fn carries the transaction handle (txcontext.go) so every
	// statement issued inside fn automatically participates.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
