// Package pgdriver implements orm.Driver over jackc/pgx/v5 for
// PostgreSQL. Grounded on Astra's providers/database_provider.go
// connection-pool construction, re-pointed from gorm.io/driver/
// postgres onto pgx directly since this engine emits its own SQL and
// no longer needs an ORM-of-an-ORM underneath it.
package pgdriver

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/astra-lucid/lucidorm/config"
	"github.com/astra-lucid/lucidorm/contracts"
	"github.com/astra-lucid/lucidorm/orm"
)

func init() {
	orm.RegisterDriver(contracts.Postgres, func(cfg config.Config) (orm.Driver, error) {
		return New(cfg), nil
	})
}

var tracer = otel.Tracer("github.com/astra-lucid/lucidorm/orm/driver/pgdriver")

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting
// every statement method run against whichever the current context
// carries.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Driver is orm.Driver backed by a pgxpool.Pool.
type Driver struct {
	cfg  config.Config
	pool *pgxpool.Pool
}

// New constructs an unconnected Driver; call Connect before use.
func New(cfg config.Config) *Driver {
	return &Driver{cfg: cfg}
}

func (d *Driver) DBType() contracts.DBType { return contracts.Postgres }

// Connect opens the pool, retrying the initial ping with exponential
// backoff — databases and app processes often start concurrently in
// a container orchestrator, so the first few attempts racing the
// database's boot are expected, not fatal.
func (d *Driver) Connect(ctx context.Context) error {
	poolCfg, err := pgxpool.ParseConfig(d.cfg.DSN())
	if err != nil {
		return fmt.Errorf("pgdriver: invalid DSN: %w", err)
	}
	if d.cfg.MaxPoolSize > 0 {
		poolCfg.MaxConns = int32(d.cfg.MaxPoolSize)
	}

	return backoff.Retry(func() error {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return err
		}
		d.pool = pool
		return nil
	}, backoff.WithContext(backoff.NewExponentialBackOff(), ctx))
}

func (d *Driver) Disconnect(ctx context.Context) error {
	if d.pool != nil {
		d.pool.Close()
	}
	return nil
}

func (d *Driver) querier(ctx context.Context) querier {
	if handle, ok := orm.TxFromContext(ctx); ok {
		if tx, ok := handle.(pgx.Tx); ok {
			return tx
		}
	}
	return d.pool
}

func (d *Driver) ExecuteSQL(ctx context.Context, sql string, args []any) ([]orm.Row, error) {
	ctx, span := tracer.Start(ctx, "pgdriver.ExecuteSQL", trace.WithAttributes(attribute.String("db.statement", sql)))
	defer span.End()

	rows, err := d.querier(ctx).Query(ctx, sql, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer rows.Close()
	return collectRows(rows)
}

func (d *Driver) ExecuteStatement(ctx context.Context, stmt *orm.Statement) ([]orm.Row, orm.ExecResult, error) {
	ctx, span := tracer.Start(ctx, "pgdriver.ExecuteStatement")
	defer span.End()

	res, err := orm.EmitForDriver(stmt, contracts.Postgres)
	if err != nil {
		span.RecordError(err)
		return nil, orm.ExecResult{}, err
	}
	span.SetAttributes(attribute.String("db.statement", res.SQL))
	q := d.querier(ctx)

	switch stmt.Kind {
	case orm.StmtSelect, orm.StmtCount:
		rows, err := q.Query(ctx, res.SQL, res.Args...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, orm.ExecResult{}, err
		}
		defer rows.Close()
		out, err := collectRows(rows)
		return out, orm.ExecResult{}, err

	case orm.StmtInsert:
		if stmt.ReturningPrimaryKey != "" {
			row := q.QueryRow(ctx, res.SQL, res.Args...)
			var pk any
			if err := row.Scan(&pk); err != nil {
				span.RecordError(err)
				return nil, orm.ExecResult{}, err
			}
			return nil, orm.ExecResult{RowsAffected: 1, InsertedPrimaryKey: pk}, nil
		}
		tag, err := q.Exec(ctx, res.SQL, res.Args...)
		if err != nil {
			span.RecordError(err)
			return nil, orm.ExecResult{}, err
		}
		return nil, orm.ExecResult{RowsAffected: tag.RowsAffected()}, nil

	default:
		tag, err := q.Exec(ctx, res.SQL, res.Args...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, orm.ExecResult{}, err
		}
		return nil, orm.ExecResult{RowsAffected: tag.RowsAffected()}, nil
	}
}

func (d *Driver) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "pgdriver.Transaction")
	defer span.End()

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	txCtx := orm.WithTx(ctx, tx)

	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return tx.Commit(ctx)
}

func collectRows(rows pgx.Rows) ([]orm.Row, error) {
	fields := rows.FieldDescriptions()
	var out []orm.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(orm.Row, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
