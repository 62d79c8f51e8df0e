// Package ormtest provides two test doubles for callers of package
// orm: FakeDriver, an in-memory orm.Driver for fast unit tests that
// must not touch a real database, and a testcontainers-backed
// Postgres harness (container.go) for integration tests that need
// real dialect behaviour.
package ormtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/astra-lucid/lucidorm/contracts"
	"github.com/astra-lucid/lucidorm/orm"
)

// FakeDriver is an in-memory orm.Driver: every table is a slice of
// Row held in process memory, with a simple Condition interpreter
// standing in for real SQL evaluation. It implements enough of the
// Statement AST (select/insert/update/delete/count, single-level
// joins, $eq/$ne/$gt/$gte/$lt/$lte/$like/$in/$nin, $and/$or) to
// exercise the Query Builder and Hydrator without a live database.
// $exists/$nexists correlated subqueries are not supported — use the
// testcontainers harness for tests that need them.
type FakeDriver struct {
	mu       sync.Mutex
	tables   map[string][]orm.Row
	autoincr map[string]int64
	dbType   contracts.DBType
}

// NewFakeDriver returns a FakeDriver reporting dbType from DBType(),
// so dialect-sensitive call sites (e.g. an emitter smoke test) can
// still be exercised meaningfully.
func NewFakeDriver(dbType contracts.DBType) *FakeDriver {
	return &FakeDriver{
		tables:   make(map[string][]orm.Row),
		autoincr: make(map[string]int64),
		dbType:   dbType,
	}
}

// Seed directly populates a table with rows, bypassing Insert — for
// tests that want to start from a known fixture.
func (d *FakeDriver) Seed(table string, rows ...orm.Row) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[table] = append(d.tables[table], rows...)
}

func (d *FakeDriver) DBType() contracts.DBType           { return d.dbType }
func (d *FakeDriver) Connect(ctx context.Context) error    { return nil }
func (d *FakeDriver) Disconnect(ctx context.Context) error { return nil }

func (d *FakeDriver) ExecuteSQL(ctx context.Context, sql string, args []any) ([]orm.Row, error) {
	return nil, fmt.Errorf("ormtest: FakeDriver does not support raw SQL (%q)", sql)
}

func (d *FakeDriver) ExecuteStatement(ctx context.Context, stmt *orm.Statement) ([]orm.Row, orm.ExecResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch stmt.Kind {
	case orm.StmtSelect:
		rows, err := d.evalSelect(stmt)
		return rows, orm.ExecResult{}, err
	case orm.StmtCount:
		rows, err := d.evalSelect(stmt)
		return []orm.Row{{"count": int64(len(rows))}}, orm.ExecResult{}, err
	case orm.StmtInsert:
		return d.evalInsert(stmt)
	case orm.StmtUpdate:
		return d.evalUpdate(stmt)
	case orm.StmtDelete:
		return d.evalDelete(stmt)
	default:
		return nil, orm.ExecResult{}, fmt.Errorf("ormtest: unsupported statement kind %d", stmt.Kind)
	}
}

// Transaction runs fn directly against the same in-memory tables,
// snapshotting and restoring state on error — FakeDriver has no real
// isolation, only enough rollback behaviour to exercise
// InTransaction's error path in a test.
func (d *FakeDriver) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	d.mu.Lock()
	snapshot := make(map[string][]orm.Row, len(d.tables))
	for k, v := range d.tables {
		snapshot[k] = append([]orm.Row(nil), v...)
	}
	d.mu.Unlock()

	if err := fn(ctx); err != nil {
		d.mu.Lock()
		d.tables = snapshot
		d.mu.Unlock()
		return err
	}
	return nil
}

func (d *FakeDriver) evalInsert(stmt *orm.Statement) ([]orm.Row, orm.ExecResult, error) {
	row := make(orm.Row, len(stmt.Values))
	for k, v := range stmt.Values {
		row[k] = v
	}
	if stmt.ReturningPrimaryKey != "" {
		if _, ok := row[stmt.ReturningPrimaryKey]; !ok {
			d.autoincr[stmt.Table]++
			row[stmt.ReturningPrimaryKey] = d.autoincr[stmt.Table]
		}
	}
	d.tables[stmt.Table] = append(d.tables[stmt.Table], row)
	return nil, orm.ExecResult{RowsAffected: 1, InsertedPrimaryKey: row[stmt.ReturningPrimaryKey]}, nil
}

func (d *FakeDriver) evalUpdate(stmt *orm.Statement) ([]orm.Row, orm.ExecResult, error) {
	rows := d.tables[stmt.Table]
	var affected int64
	for i, row := range rows {
		ok, err := evalCondition(stmt.Where, map[string]orm.Row{stmt.Alias: row})
		if err != nil {
			return nil, orm.ExecResult{}, err
		}
		if !ok {
			continue
		}
		for k, v := range stmt.Values {
			row[k] = v
		}
		rows[i] = row
		affected++
	}
	return nil, orm.ExecResult{RowsAffected: affected}, nil
}

func (d *FakeDriver) evalDelete(stmt *orm.Statement) ([]orm.Row, orm.ExecResult, error) {
	rows := d.tables[stmt.Table]
	var kept []orm.Row
	var affected int64
	for _, row := range rows {
		ok, err := evalCondition(stmt.Where, map[string]orm.Row{stmt.Alias: row})
		if err != nil {
			return nil, orm.ExecResult{}, err
		}
		if ok {
			affected++
			continue
		}
		kept = append(kept, row)
	}
	d.tables[stmt.Table] = kept
	return nil, orm.ExecResult{RowsAffected: affected}, nil
}

func (d *FakeDriver) evalSelect(stmt *orm.Statement) ([]orm.Row, error) {
	base := d.tables[stmt.Table]
	combos := make([]map[string]orm.Row, 0, len(base))
	for _, row := range base {
		combos = append(combos, map[string]orm.Row{stmt.Alias: row})
	}

	for _, join := range stmt.Joins {
		childRows := d.tables[join.Table]
		var next []map[string]orm.Row
		for _, combo := range combos {
			matched := false
			joinCond := join.On
			if join.JoinWhere != nil {
				joinCond = &orm.Condition{Operator: contracts.OpAnd, Children: []*orm.Condition{join.On, join.JoinWhere}}
			}
			for _, child := range childRows {
				trial := cloneCombo(combo)
				trial[join.Alias] = child
				ok, err := evalCondition(joinCond, trial)
				if err != nil {
					return nil, err
				}
				if ok {
					next = append(next, trial)
					matched = true
				}
			}
			if !matched {
				trial := cloneCombo(combo)
				trial[join.Alias] = nil
				next = append(next, trial)
			}
		}
		combos = next
	}

	var out []orm.Row
	for _, combo := range combos {
		ok, err := evalCondition(stmt.Where, combo)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, projectCombo(stmt, combo))
	}

	if len(stmt.OrderBy) > 0 {
		sortRows(out, stmt.OrderBy)
	}
	if stmt.HasOffset && stmt.Offset < len(out) {
		out = out[stmt.Offset:]
	} else if stmt.HasOffset {
		out = nil
	}
	if stmt.HasLimit && stmt.Limit < len(out) {
		out = out[:stmt.Limit]
	}
	return out, nil
}

func cloneCombo(combo map[string]orm.Row) map[string]orm.Row {
	out := make(map[string]orm.Row, len(combo)+1)
	for k, v := range combo {
		out[k] = v
	}
	return out
}

func projectCombo(stmt *orm.Statement, combo map[string]orm.Row) orm.Row {
	out := make(orm.Row, len(stmt.Columns))
	for _, col := range stmt.Columns {
		if src, ok := combo[col.SourceAlias]; ok && src != nil {
			out[col.Label] = src[col.Column]
		} else {
			out[col.Label] = nil
		}
	}
	return out
}

func sortRows(rows []orm.Row, order []orm.OrderTerm) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, term := range order {
			col := lastSegment(term.Column)
			vi, vj := rows[i][col], rows[j][col]
			cmp := compareAny(vi, vj)
			if cmp == 0 {
				continue
			}
			if term.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func lastSegment(qualified string) string {
	for i := len(qualified) - 1; i >= 0; i-- {
		if qualified[i] == '.' {
			return qualified[i+1:]
		}
	}
	return qualified
}
