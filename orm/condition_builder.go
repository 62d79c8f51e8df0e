package orm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/astra-lucid/lucidorm/contracts"
	"github.com/astra-lucid/lucidorm/ormerrors"
)

// conditionBuilder is C3: it turns a caller-facing contracts.Filter
// tree into the Condition AST the emitter understands, resolving
// property names to qualified columns against a Registry and
// rejecting literals containing a null byte (spec.md §4.3, §7
// InjectionDetected).
type conditionBuilder struct {
	registry *Registry
	subAlias map[string]int
	joins    *joinPlanner
}

func newConditionBuilder(reg *Registry) *conditionBuilder {
	return &conditionBuilder{registry: reg, subAlias: make(map[string]int)}
}

// withJoinPlanner attaches the Join Manager instance shared with the
// rest of this execution's planning pipeline, enabling
// BuildForStatement's JOIN-based relation filtering. Build (used by
// the Subquery Builder's own recursive inner-filter construction, and
// by every caller with no Statement of its own to extend) never sees
// a join planner, so a relation key there always resolves to a
// correlated EXISTS instead.
func (b *conditionBuilder) withJoinPlanner(jp *joinPlanner) *conditionBuilder {
	b.joins = jp
	return b
}

// nextSubAlias allocates a fresh alias for a correlated subquery,
// disambiguating repeated $exists checks against the same table
// within one statement.
func (b *conditionBuilder) nextSubAlias(base string) string {
	n := b.subAlias[base]
	b.subAlias[base] = n + 1
	if n == 0 {
		return "x_" + base
	}
	return fmt.Sprintf("x_%s%d", base, n+1)
}

// aliasResolver resolves a property or relation name to a qualified
// column, consulting the join plan the Join Manager has already built
// for relation-qualified filter keys (e.g. filtering "Author.name").
type aliasResolver interface {
	// ColumnFor returns the "alias.column" SQL text for a bare property
	// name, rooted at rootAlias.
	ColumnFor(meta *EntityMeta, rootAlias, property string) (string, *EntityMeta, string, bool)
}

// Build compiles filter into a Condition tree rooted at alias, over
// meta's properties and relations, always resolving a relation key to
// a correlated EXISTS/NOT EXISTS subquery. Used where no Statement
// join set exists to extend — the Subquery Builder's own recursive
// inner-filter construction, and any other caller building a
// standalone condition.
func (b *conditionBuilder) Build(meta *EntityMeta, alias string, filter contracts.Filter) (*Condition, error) {
	return b.buildGroup(nil, meta, alias, filter, contracts.OpAnd)
}

// BuildForStatement is Build, but with stmt's in-progress join set
// available: a plain relation-keyed filter (not wrapped in an explicit
// $exists/$nexists) compiles to a predicate over that relation's LEFT
// JOIN alias, ANDed onto the join and returned as part of the WHERE
// condition, instead of a correlated subquery (spec.md §4.3 step 1, the
// Join Manager's join-based filtering path). An explicit
// $exists/$nexists nested under the relation key still goes through
// the Subquery Builder (step 5), regardless of stmt.
func (b *conditionBuilder) BuildForStatement(stmt *Statement, meta *EntityMeta, alias string, filter contracts.Filter) (*Condition, error) {
	return b.buildGroup(stmt, meta, alias, filter, contracts.OpAnd)
}

// buildGroup compiles a map whose keys may be property names, relation
// names, or $and/$or/$exists/$nexists sentinels, combining the results
// with defaultJoin (every caller passes $and; an explicit $or list is
// combined in buildKey). stmt is nil when there is no join set to
// extend (see Build).
func (b *conditionBuilder) buildGroup(stmt *Statement, meta *EntityMeta, alias string, filter contracts.Filter, defaultJoin string) (*Condition, error) {
	if len(filter) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	// Map iteration order is not declaration order in Go; sort keys so
	// a given filter always compiles to the same SQL text (needed for
	// the fingerprint cache key and for stable test assertions).
	sort.Strings(keys)

	var children []*Condition
	for _, key := range keys {
		val := filter[key]
		cond, err := b.buildKey(stmt, meta, alias, key, val)
		if err != nil {
			return nil, err
		}
		if cond != nil {
			children = append(children, cond)
		}
	}

	switch len(children) {
	case 0:
		return nil, nil
	case 1:
		return children[0], nil
	default:
		return &Condition{Operator: defaultJoin, Children: children}, nil
	}
}

func (b *conditionBuilder) buildKey(stmt *Statement, meta *EntityMeta, alias, key string, val any) (*Condition, error) {
	switch key {
	case contracts.OpAnd, contracts.OpOr:
		list, ok := val.([]contracts.Filter)
		if !ok {
			list = coerceFilterSlice(val)
		}
		children := make([]*Condition, 0, len(list))
		for _, sub := range list {
			c, err := b.buildGroup(stmt, meta, alias, sub, contracts.OpAnd)
			if err != nil {
				return nil, err
			}
			if c != nil {
				children = append(children, c)
			}
		}
		if len(children) == 0 {
			return nil, nil
		}
		if len(children) == 1 {
			return children[0], nil
		}
		return &Condition{Operator: key, Children: children}, nil
	}

	if rel, ok := meta.RelationByProperty(key); ok {
		if stmt != nil && b.joins != nil && !hasExistsSentinel(val) {
			return b.buildJoinFilter(stmt, meta, alias, rel, val)
		}
		return b.buildRelationFilter(meta, alias, rel, val, contracts.OpExists)
	}

	prop, ok := meta.Properties[key]
	if !ok {
		return nil, ormerrors.NewPropertyNotFound(key, meta.Class)
	}
	column := fmt.Sprintf("%s.%s", alias, prop.ColumnName)

	switch nested := val.(type) {
	case contracts.Filter:
		if hasExistsSentinel(nested) {
			return nil, ormerrors.NewInvalidRelationUsage(key, meta.RelationNames())
		}
		return b.buildLeafGroup(column, prop, nested)
	default:
		return b.buildLeaf(column, prop, contracts.OpEq, val)
	}
}

// hasExistsSentinel reports whether val is a nested filter explicitly
// wrapped in $exists/$nexists, the one case a relation-keyed filter
// still routes through the Subquery Builder even when a join set is
// available.
func hasExistsSentinel(val any) bool {
	nested, ok := val.(contracts.Filter)
	if !ok {
		return false
	}
	if _, ok := nested[contracts.OpExists]; ok {
		return true
	}
	_, ok = nested[contracts.OpNExists]
	return ok
}

// buildJoinFilter compiles a plain relation-keyed filter into a
// predicate against that relation's LEFT JOIN, reusing an
// already-planned join (e.g. from .Load()) if one exists for the same
// relation, or applying a fresh one otherwise. The predicate is both
// attached to the JoinNode (JoinWhere, rendered in its ON clause) and
// returned for the statement's WHERE, so a parent row whose related
// row does not match is excluded from the result.
func (b *conditionBuilder) buildJoinFilter(stmt *Statement, meta *EntityMeta, alias string, rel *RelationMeta, val any) (*Condition, error) {
	nested, ok := val.(contracts.Filter)
	if !ok {
		nested = contracts.Filter{}
	}

	node := findJoinForRelation(stmt, rel.PropertyName)
	if node == nil {
		var err error
		node, _, err = b.joins.ApplyJoin(stmt, meta, alias, rel.PropertyName)
		if err != nil {
			return nil, err
		}
	}

	childMeta, err := b.registry.Get(rel.Entity)
	if err != nil {
		return nil, err
	}

	where, err := b.buildGroup(stmt, childMeta, node.Alias, nested, contracts.OpAnd)
	if err != nil {
		return nil, err
	}
	if where != nil {
		node.JoinWhere = mergeJoinWhere(node.JoinWhere, where)
	}
	return where, nil
}

func findJoinForRelation(stmt *Statement, relationProperty string) *JoinNode {
	for _, j := range stmt.Joins {
		if j.RelationProperty == relationProperty {
			return j
		}
	}
	return nil
}

func mergeJoinWhere(existing, add *Condition) *Condition {
	if existing == nil {
		return add
	}
	return &Condition{Operator: contracts.OpAnd, Children: []*Condition{existing, add}}
}

// buildLeafGroup handles {"age": {"$gt": 18, "$lt": 65}} — an operator
// map nested under a property key.
func (b *conditionBuilder) buildLeafGroup(column string, prop *PropertyMeta, ops contracts.Filter) (*Condition, error) {
	keys := make([]string, 0, len(ops))
	for k := range ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var children []*Condition
	for _, op := range keys {
		c, err := b.buildLeaf(column, prop, op, ops[op])
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &Condition{Operator: contracts.OpAnd, Children: children}, nil
}

func (b *conditionBuilder) buildLeaf(column string, prop *PropertyMeta, op string, val any) (*Condition, error) {
	if _, ok := binaryOperators[op]; ok {
		arg, err := b.coerceLiteral(prop, val)
		if err != nil {
			return nil, err
		}
		return &Condition{Operator: op, Column: column, Args: []any{arg}}, nil
	}
	if _, ok := listOperators[op]; ok {
		items := toSlice(val)
		args := make([]any, 0, len(items))
		for _, item := range items {
			arg, err := b.coerceLiteral(prop, item)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
		return &Condition{Operator: op, Column: column, Args: args}, nil
	}
	return nil, fmt.Errorf("orm: unsupported operator %q on property %q", op, prop.PropertyName)
}

// coerceLiteral unwraps value-objects, rejects embedded null bytes
// (spec.md §7 InjectionDetected), and serialises map/slice literals
// destined for a json/jsonb column via sonic.
func (b *conditionBuilder) coerceLiteral(prop *PropertyMeta, val any) (any, error) {
	val = unwrapValue(val)
	if val == nil {
		return nil, nil
	}
	if s, ok := val.(string); ok {
		if strings.ContainsRune(s, 0) {
			return nil, ormerrors.NewInjectionDetected(prop.PropertyName)
		}
		return s, nil
	}
	if (prop.DBType == "json" || prop.DBType == "jsonb") && needsJSONEncoding(val) {
		encoded, err := sonic.MarshalString(val)
		if err != nil {
			return nil, fmt.Errorf("orm: failed to encode %q as json: %w", prop.PropertyName, err)
		}
		return encoded, nil
	}
	return val, nil
}

func needsJSONEncoding(val any) bool {
	switch val.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

// buildRelationFilter compiles {"Author": {...}} into a correlated
// $exists/$nexists Condition via the Subquery Builder (C5). sentinel
// lets callers flip polarity for $nexists.
func (b *conditionBuilder) buildRelationFilter(meta *EntityMeta, alias string, rel *RelationMeta, val any, sentinel string) (*Condition, error) {
	nested, ok := val.(contracts.Filter)
	if !ok {
		nested = contracts.Filter{}
	}
	if explicit, ok := nested[contracts.OpNExists]; ok {
		sentinel = contracts.OpNExists
		if nf, ok := explicit.(contracts.Filter); ok {
			nested = nf
		} else {
			nested = contracts.Filter{}
		}
	} else if explicit, ok := nested[contracts.OpExists]; ok {
		sentinel = contracts.OpExists
		if nf, ok := explicit.(contracts.Filter); ok {
			nested = nf
		} else {
			nested = contracts.Filter{}
		}
	}

	related, err := b.registry.Get(rel.Entity)
	if err != nil {
		return nil, err
	}

	sub, err := buildExistsSubquery(b, meta, alias, related, rel, nested)
	if err != nil {
		return nil, err
	}

	return &Condition{Operator: sentinel, Sub: sub}, nil
}

func coerceFilterSlice(val any) []contracts.Filter {
	items := toSlice(val)
	out := make([]contracts.Filter, 0, len(items))
	for _, item := range items {
		if f, ok := item.(contracts.Filter); ok {
			out = append(out, f)
		}
	}
	return out
}

func toSlice(val any) []any {
	switch v := val.(type) {
	case []any:
		return v
	default:
		return []any{v}
	}
}
