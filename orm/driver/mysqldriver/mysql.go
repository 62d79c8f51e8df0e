// Package mysqldriver implements orm.Driver over database/sql with
// go-sql-driver/mysql, the driver Astra's go.mod already carried
// (unused by Astra's GORM-backed code) for the MySQL dialect leg of
// spec.md's driver abstraction.
package mysqldriver

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/astra-lucid/lucidorm/config"
	"github.com/astra-lucid/lucidorm/contracts"
	"github.com/astra-lucid/lucidorm/orm"
)

func init() {
	orm.RegisterDriver(contracts.MySQL, func(cfg config.Config) (orm.Driver, error) {
		return New(cfg), nil
	})
}

var tracer = otel.Tracer("github.com/astra-lucid/lucidorm/orm/driver/mysqldriver")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Driver is orm.Driver backed by database/sql + go-sql-driver/mysql.
type Driver struct {
	cfg config.Config
	db  *sql.DB
}

// New constructs an unconnected Driver; call Connect before use.
func New(cfg config.Config) *Driver {
	return &Driver{cfg: cfg}
}

func (d *Driver) DBType() contracts.DBType { return contracts.MySQL }

// Connect opens the pool, retrying the initial ping with exponential
// backoff (mirrors pgdriver's boot-race tolerance).
func (d *Driver) Connect(ctx context.Context) error {
	db, err := sql.Open("mysql", d.cfg.DSN())
	if err != nil {
		return fmt.Errorf("mysqldriver: invalid DSN: %w", err)
	}
	if d.cfg.MaxPoolSize > 0 {
		db.SetMaxOpenConns(d.cfg.MaxPoolSize)
	}
	d.db = db

	return backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(backoff.NewExponentialBackOff(), ctx))
}

func (d *Driver) Disconnect(ctx context.Context) error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func (d *Driver) querier(ctx context.Context) querier {
	if handle, ok := orm.TxFromContext(ctx); ok {
		if tx, ok := handle.(*sql.Tx); ok {
			return tx
		}
	}
	return d.db
}

func (d *Driver) ExecuteSQL(ctx context.Context, sqlText string, args []any) ([]orm.Row, error) {
	ctx, span := tracer.Start(ctx, "mysqldriver.ExecuteSQL", trace.WithAttributes(attribute.String("db.statement", sqlText)))
	defer span.End()

	rows, err := d.querier(ctx).QueryContext(ctx, sqlText, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer rows.Close()
	return collectRows(rows)
}

func (d *Driver) ExecuteStatement(ctx context.Context, stmt *orm.Statement) ([]orm.Row, orm.ExecResult, error) {
	ctx, span := tracer.Start(ctx, "mysqldriver.ExecuteStatement")
	defer span.End()

	res, err := orm.EmitForDriver(stmt, contracts.MySQL)
	if err != nil {
		span.RecordError(err)
		return nil, orm.ExecResult{}, err
	}
	span.SetAttributes(attribute.String("db.statement", res.SQL))
	q := d.querier(ctx)

	switch stmt.Kind {
	case orm.StmtSelect, orm.StmtCount:
		rows, err := q.QueryContext(ctx, res.SQL, res.Args...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, orm.ExecResult{}, err
		}
		defer rows.Close()
		out, err := collectRows(rows)
		return out, orm.ExecResult{}, err

	case orm.StmtInsert:
		result, err := q.ExecContext(ctx, res.SQL, res.Args...)
		if err != nil {
			span.RecordError(err)
			return nil, orm.ExecResult{}, err
		}
		affected, _ := result.RowsAffected()
		var pk any
		if id, err := result.LastInsertId(); err == nil && id != 0 {
			pk = id
		}
		return nil, orm.ExecResult{RowsAffected: affected, InsertedPrimaryKey: pk}, nil

	default:
		result, err := q.ExecContext(ctx, res.SQL, res.Args...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, orm.ExecResult{}, err
		}
		affected, _ := result.RowsAffected()
		return nil, orm.ExecResult{RowsAffected: affected}, nil
	}
}

func (d *Driver) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "mysqldriver.Transaction")
	defer span.End()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	txCtx := orm.WithTx(ctx, tx)

	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return tx.Commit()
}

func collectRows(rows *sql.Rows) ([]orm.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []orm.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(orm.Row, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
