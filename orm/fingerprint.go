package orm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// fingerprint computes a deterministic cache key for a Statement plus
// its bound arguments. Built on plain SHA-256 rather than a pack
// library: this is internal-AST struct hashing with no natural
// serialisation format, and no third-party library in the corpus
// targets that shape (see DESIGN.md).
func fingerprint(stmt *Statement, args []any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "k=%d|t=%s.%s|a=%s|", stmt.Kind, stmt.Schema, stmt.Table, stmt.Alias)

	cols := make([]string, len(stmt.Columns))
	for i, c := range stmt.Columns {
		cols[i] = fmt.Sprintf("%s.%s>%s", c.SourceAlias, c.Column, c.Label)
	}
	b.WriteString("cols=[")
	b.WriteString(strings.Join(cols, ","))
	b.WriteString("]|")

	joins := make([]string, len(stmt.Joins))
	for i, j := range stmt.Joins {
		joins[i] = fmt.Sprintf("%s:%s.%s:%s", j.RelationProperty, j.Schema, j.Table, j.Alias)
	}
	b.WriteString("joins=[")
	b.WriteString(strings.Join(joins, ","))
	b.WriteString("]|")

	b.WriteString("where=")
	b.WriteString(conditionFingerprint(stmt.Where))
	b.WriteString("|")

	order := make([]string, len(stmt.OrderBy))
	for i, o := range stmt.OrderBy {
		order[i] = fmt.Sprintf("%s:%v", o.Column, o.Desc)
	}
	fmt.Fprintf(&b, "order=[%s]|limit=%d:%v|offset=%d:%v|",
		strings.Join(order, ","), stmt.Limit, stmt.HasLimit, stmt.Offset, stmt.HasOffset)

	argStrs := make([]string, len(args))
	for i, a := range args {
		argStrs[i] = fmt.Sprintf("%v", a)
	}
	b.WriteString("args=[")
	b.WriteString(strings.Join(argStrs, ","))
	b.WriteString("]")

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func conditionFingerprint(cond *Condition) string {
	if cond == nil {
		return "-"
	}
	if isGroupOperator(cond.Operator) {
		parts := make([]string, len(cond.Children))
		for i, c := range cond.Children {
			parts[i] = conditionFingerprint(c)
		}
		sort.Strings(parts)
		return fmt.Sprintf("%s(%s)", cond.Operator, strings.Join(parts, ";"))
	}
	if isRelationOperator(cond.Operator) {
		return fmt.Sprintf("%s(%s.%s:%s)", cond.Operator, cond.Sub.Schema, cond.Sub.Table, conditionFingerprint(cond.Sub.Where))
	}
	argStrs := make([]string, len(cond.Args))
	for i, a := range cond.Args {
		argStrs[i] = fmt.Sprintf("%v", a)
	}
	return fmt.Sprintf("%s(%s:%s)", cond.Operator, cond.Column, strings.Join(argStrs, ","))
}

// cacheNamespaces returns stmt's root table followed by every joined
// table. InvalidateWrite busts each of them for a write statement;
// cached reads are stored under their root table only, so a cached
// joined read is not invalidated by a write to one of its joined
// tables (spec.md §4.11).
func cacheNamespaces(stmt *Statement) []string {
	namespaces := []string{stmt.Table}
	for _, j := range stmt.Joins {
		namespaces = append(namespaces, j.Table)
	}
	return namespaces
}
