package orm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/astra-lucid/lucidorm/contracts"
)

// emitter is C7's SQL emission half: it walks a Statement AST and
// renders dialect-specific SQL text plus a positional argument list,
// ready for the Driver to execute.
type emitter struct {
	dialect contracts.DBType
}

func newEmitter(dialect contracts.DBType) *emitter { return &emitter{dialect: dialect} }

// quote quotes a bare identifier per dialect: double quotes for
// Postgres, backticks for MySQL.
func (e *emitter) quote(ident string) string {
	if e.dialect == contracts.MySQL {
		return "`" + ident + "`"
	}
	return `"` + ident + `"`
}

// qualifiedTable renders schema.table, quoted, omitting the schema
// when it is empty and always for MySQL.
func (e *emitter) qualifiedTable(schema, table string) string {
	if schema == "" || e.dialect == contracts.MySQL {
		return e.quote(table)
	}
	return e.quote(schema) + "." + e.quote(table)
}

// placeholder renders the nth (1-indexed) bound-parameter marker.
func (e *emitter) placeholder(n int) string {
	if e.dialect == contracts.MySQL {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// emitResult is the rendered SQL plus its positional argument list.
type emitResult struct {
	SQL  string
	Args []any
}

// EmitResult is emitResult's exported mirror, returned to driver
// packages outside this module.
type EmitResult = emitResult

// EmitForDriver renders stmt for dialect, for use by orm/driver/
// pgdriver and orm/driver/mysqldriver (each a separate package, so
// they cannot reach this package's unexported emitter type directly).
func EmitForDriver(stmt *Statement, dialect contracts.DBType) (EmitResult, error) {
	return newEmitter(dialect).Emit(stmt)
}

// Emit renders stmt into dialect-specific SQL.
func (e *emitter) Emit(stmt *Statement) (emitResult, error) {
	switch stmt.Kind {
	case StmtSelect:
		return e.emitSelect(stmt)
	case StmtCount:
		return e.emitCount(stmt)
	case StmtInsert:
		return e.emitInsert(stmt)
	case StmtUpdate:
		return e.emitUpdate(stmt)
	case StmtDelete:
		return e.emitDelete(stmt)
	default:
		return emitResult{}, fmt.Errorf("orm: unknown statement kind %d", stmt.Kind)
	}
}

func (e *emitter) emitSelect(stmt *Statement) (emitResult, error) {
	var b strings.Builder
	var args []any

	b.WriteString("SELECT ")
	b.WriteString(e.renderProjection(stmt.Columns))
	b.WriteString(" FROM ")
	b.WriteString(e.qualifiedTable(stmt.Schema, stmt.Table))
	b.WriteString(" AS ")
	b.WriteString(e.quote(stmt.Alias))

	for _, j := range stmt.Joins {
		b.WriteString(" LEFT JOIN ")
		b.WriteString(e.qualifiedTable(j.Schema, j.Table))
		b.WriteString(" AS ")
		b.WriteString(e.quote(j.Alias))
		b.WriteString(" ON ")
		onSQL, onArgs, err := e.renderCondition(j.On, len(args)+1)
		if err != nil {
			return emitResult{}, err
		}
		b.WriteString(onSQL)
		args = append(args, onArgs...)

		if j.JoinWhere != nil {
			whereSQL, whereArgs, err := e.renderCondition(j.JoinWhere, len(args)+1)
			if err != nil {
				return emitResult{}, err
			}
			b.WriteString(" AND (")
			b.WriteString(whereSQL)
			b.WriteString(")")
			args = append(args, whereArgs...)
		}
	}

	if stmt.Where != nil {
		b.WriteString(" WHERE ")
		whereSQL, whereArgs, err := e.renderCondition(stmt.Where, len(args)+1)
		if err != nil {
			return emitResult{}, err
		}
		b.WriteString(whereSQL)
		args = append(args, whereArgs...)
	}

	if len(stmt.OrderBy) > 0 {
		terms := make([]string, 0, len(stmt.OrderBy))
		for _, o := range stmt.OrderBy {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			terms = append(terms, fmt.Sprintf("%s %s", o.Column, dir))
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(terms, ", "))
	}

	if stmt.HasLimit {
		b.WriteString(fmt.Sprintf(" LIMIT %d", stmt.Limit))
	}
	if stmt.HasOffset {
		b.WriteString(fmt.Sprintf(" OFFSET %d", stmt.Offset))
	}

	return emitResult{SQL: b.String(), Args: args}, nil
}

func (e *emitter) emitCount(stmt *Statement) (emitResult, error) {
	var b strings.Builder
	var args []any

	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(e.qualifiedTable(stmt.Schema, stmt.Table))
	b.WriteString(" AS ")
	b.WriteString(e.quote(stmt.Alias))

	for _, j := range stmt.Joins {
		b.WriteString(" LEFT JOIN ")
		b.WriteString(e.qualifiedTable(j.Schema, j.Table))
		b.WriteString(" AS ")
		b.WriteString(e.quote(j.Alias))
		b.WriteString(" ON ")
		onSQL, onArgs, err := e.renderCondition(j.On, len(args)+1)
		if err != nil {
			return emitResult{}, err
		}
		b.WriteString(onSQL)
		args = append(args, onArgs...)

		if j.JoinWhere != nil {
			whereSQL, whereArgs, err := e.renderCondition(j.JoinWhere, len(args)+1)
			if err != nil {
				return emitResult{}, err
			}
			b.WriteString(" AND (")
			b.WriteString(whereSQL)
			b.WriteString(")")
			args = append(args, whereArgs...)
		}
	}

	if stmt.Where != nil {
		b.WriteString(" WHERE ")
		whereSQL, whereArgs, err := e.renderCondition(stmt.Where, len(args)+1)
		if err != nil {
			return emitResult{}, err
		}
		b.WriteString(whereSQL)
		args = append(args, whereArgs...)
	}

	return emitResult{SQL: b.String(), Args: args}, nil
}

func (e *emitter) emitInsert(stmt *Statement) (emitResult, error) {
	keys := make([]string, 0, len(stmt.Values))
	for k := range stmt.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := make([]string, 0, len(keys))
	placeholders := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for i, k := range keys {
		cols = append(cols, e.quote(k))
		placeholders = append(placeholders, e.placeholder(i+1))
		args = append(args, stmt.Values[k])
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(e.qualifiedTable(stmt.Schema, stmt.Table))
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(strings.Join(placeholders, ", "))
	b.WriteString(")")

	if stmt.ReturningPrimaryKey != "" && e.dialect == contracts.Postgres {
		b.WriteString(" RETURNING ")
		b.WriteString(e.quote(stmt.ReturningPrimaryKey))
	}

	return emitResult{SQL: b.String(), Args: args}, nil
}

func (e *emitter) emitUpdate(stmt *Statement) (emitResult, error) {
	keys := make([]string, 0, len(stmt.Values))
	for k := range stmt.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(e.qualifiedTable(stmt.Schema, stmt.Table))
	b.WriteString(" SET ")

	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+4)
	n := 1
	for _, k := range keys {
		sets = append(sets, fmt.Sprintf("%s = %s", e.quote(k), e.placeholder(n)))
		args = append(args, stmt.Values[k])
		n++
	}
	b.WriteString(strings.Join(sets, ", "))

	if stmt.Where != nil {
		b.WriteString(" WHERE ")
		whereSQL, whereArgs, err := e.renderCondition(stmt.Where, n)
		if err != nil {
			return emitResult{}, err
		}
		b.WriteString(whereSQL)
		args = append(args, whereArgs...)
	}

	return emitResult{SQL: b.String(), Args: args}, nil
}

func (e *emitter) emitDelete(stmt *Statement) (emitResult, error) {
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(e.qualifiedTable(stmt.Schema, stmt.Table))

	var args []any
	if stmt.Where != nil {
		b.WriteString(" WHERE ")
		whereSQL, whereArgs, err := e.renderCondition(stmt.Where, 1)
		if err != nil {
			return emitResult{}, err
		}
		b.WriteString(whereSQL)
		args = whereArgs
	}

	return emitResult{SQL: b.String(), Args: args}, nil
}

func (e *emitter) renderProjection(cols []ProjectedColumn) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, fmt.Sprintf("%s.%s AS %s", c.SourceAlias, c.Column, e.quote(c.Label)))
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, ", ")
}

// renderCondition renders cond and every descendant, numbering bound
// placeholders starting at argStart (1-indexed, ignored for MySQL's
// "?" markers but required for Postgres's "$n" markers).
func (e *emitter) renderCondition(cond *Condition, argStart int) (string, []any, error) {
	if cond == nil {
		return "", nil, nil
	}

	if cond.Operator == rawOperator {
		return e.renderRaw(cond, argStart)
	}
	if isGroupOperator(cond.Operator) {
		return e.renderGroup(cond, argStart)
	}
	if isRelationOperator(cond.Operator) {
		return e.renderExists(cond, argStart)
	}
	return e.renderLeaf(cond, argStart)
}

// renderRaw substitutes a caller-supplied "?"-placeholder SQL fragment
// into this dialect's own marker style (a no-op for MySQL).
func (e *emitter) renderRaw(cond *Condition, argStart int) (string, []any, error) {
	if e.dialect != contracts.Postgres {
		return cond.Column, cond.Args, nil
	}
	var b strings.Builder
	n := argStart
	for _, r := range cond.Column {
		if r == '?' {
			b.WriteString(e.placeholder(n))
			n++
		} else {
			b.WriteRune(r)
		}
	}
	return b.String(), cond.Args, nil
}

func (e *emitter) renderGroup(cond *Condition, argStart int) (string, []any, error) {
	joiner := " AND "
	if cond.Operator == contracts.OpOr {
		joiner = " OR "
	}

	parts := make([]string, 0, len(cond.Children))
	var args []any
	n := argStart
	for _, child := range cond.Children {
		sql, childArgs, err := e.renderCondition(child, n)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sql+")")
		args = append(args, childArgs...)
		n += len(childArgs)
	}
	return strings.Join(parts, joiner), args, nil
}

func (e *emitter) renderExists(cond *Condition, argStart int) (string, []any, error) {
	sub := cond.Sub
	inner, args, err := e.renderCondition(sub.Where, argStart)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	if cond.Operator == contracts.OpNExists {
		b.WriteString("NOT ")
	}
	b.WriteString("EXISTS (SELECT 1 FROM ")
	b.WriteString(e.qualifiedTable(sub.Schema, sub.Table))
	b.WriteString(" AS ")
	b.WriteString(e.quote(sub.Alias))
	if inner != "" {
		b.WriteString(" WHERE ")
		b.WriteString(inner)
	}
	b.WriteString(")")
	return b.String(), args, nil
}

func (e *emitter) renderLeaf(cond *Condition, argStart int) (string, []any, error) {
	if len(cond.Args) == 1 && isColumnRef(cond.Args[0]) {
		return fmt.Sprintf("%s %s %s", cond.Column, sqlOperatorText(cond.Operator), string(cond.Args[0].(columnRef))), nil, nil
	}

	if sym, ok := binaryOperators[cond.Operator]; ok {
		if len(cond.Args) != 1 {
			return "", nil, fmt.Errorf("orm: operator %q expects exactly one argument", cond.Operator)
		}
		if cond.Args[0] == nil {
			return e.renderNullComparison(cond), nil, nil
		}
		return fmt.Sprintf("%s %s %s", cond.Column, sym, e.placeholder(argStart)), []any{cond.Args[0]}, nil
	}

	if sym, ok := listOperators[cond.Operator]; ok {
		if len(cond.Args) == 0 {
			// An empty IN()/NOT IN() list is always-false/always-true
			// respectively; degrade to a tautology to keep the WHERE
			// clause well-formed instead of emitting invalid SQL.
			if cond.Operator == contracts.OpIn {
				return "1 = 0", nil, nil
			}
			return "1 = 1", nil, nil
		}
		placeholders := make([]string, len(cond.Args))
		for i := range cond.Args {
			placeholders[i] = e.placeholder(argStart + i)
		}
		return fmt.Sprintf("%s %s (%s)", cond.Column, sym, strings.Join(placeholders, ", ")), cond.Args, nil
	}

	return "", nil, fmt.Errorf("orm: unsupported leaf operator %q", cond.Operator)
}

func (e *emitter) renderNullComparison(cond *Condition) string {
	if cond.Operator == contracts.OpNe {
		return cond.Column + " IS NOT NULL"
	}
	return cond.Column + " IS NULL"
}

func isColumnRef(v any) bool {
	_, ok := v.(columnRef)
	return ok
}

func sqlOperatorText(op string) string {
	if sym, ok := binaryOperators[op]; ok {
		return sym
	}
	return "="
}
