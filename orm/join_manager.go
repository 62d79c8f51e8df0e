package orm

import (
	"fmt"
	"strings"

	"github.com/astra-lucid/lucidorm/contracts"
	"github.com/astra-lucid/lucidorm/ormerrors"
)

// joinPlanner is C4: it turns a caller's load-relation request into
// JoinNode entries on a Statement, generating deterministic table
// aliases and ON-clause predicates, and preserves the caller's
// insertion order for the resulting join list (spec.md §4.4, §8
// property 6).
type joinPlanner struct {
	registry *Registry
	aliases  map[string]int // base alias -> next suffix
}

func newJoinPlanner(reg *Registry) *joinPlanner {
	return &joinPlanner{registry: reg, aliases: make(map[string]int)}
}

// nextAlias returns a fresh alias derived from base, disambiguating
// repeated joins to the same table ("u", "u2", "u3", ...).
func (jp *joinPlanner) nextAlias(base string) string {
	n := jp.aliases[base]
	jp.aliases[base] = n + 1
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s%d", base, n+1)
}

func defaultAliasFor(table string) string {
	if table == "" {
		return "t"
	}
	parts := strings.Split(table, "_")
	var b strings.Builder
	for _, p := range parts {
		if len(p) > 0 {
			b.WriteByte(p[0])
		}
	}
	if b.Len() == 0 {
		return "t"
	}
	return b.String()
}

// ApplyJoin adds one LEFT JOIN to stmt for relationProperty, loaded
// with StrategyJoined. parentAlias is the already-assigned alias of
// the side that owns the relation.
func (jp *joinPlanner) ApplyJoin(stmt *Statement, parentMeta *EntityMeta, parentAlias, relationProperty string) (*JoinNode, *EntityMeta, error) {
	rel, ok := parentMeta.RelationByProperty(relationProperty)
	if !ok {
		return nil, nil, ormerrors.NewInvalidRelationUsage(relationProperty, parentMeta.RelationNames())
	}

	childMeta, err := jp.registry.Get(rel.Entity)
	if err != nil {
		return nil, nil, err
	}

	childAlias := jp.nextAlias(defaultAliasFor(childMeta.Table))

	on, err := jp.onClause(parentMeta, parentAlias, childMeta, childAlias, rel)
	if err != nil {
		return nil, nil, err
	}

	node := &JoinNode{
		Alias:            childAlias,
		Table:            childMeta.Table,
		Schema:           childMeta.Schema,
		On:               on,
		RelationProperty: relationProperty,
		Kind:             rel.Kind,
	}
	stmt.Joins = append(stmt.Joins, node)
	return node, childMeta, nil
}

// onClause computes the ON predicate for rel: many-to-one compares
// the parent's FK column to the child's primary key; one-to-many
// compares the parent's primary key to the child's FK column.
func (jp *joinPlanner) onClause(parentMeta *EntityMeta, parentAlias string, childMeta *EntityMeta, childAlias string, rel *RelationMeta) (*Condition, error) {
	switch rel.Kind {
	case contracts.ManyToOne:
		return &Condition{
			Operator: contracts.OpEq,
			Column:   fmt.Sprintf("%s.%s", parentAlias, rel.ColumnName),
			Args:     []any{rawColumnRef(fmt.Sprintf("%s.%s", childAlias, childMeta.PrimaryKeyColumnName()))},
		}, nil
	case contracts.OneToMany:
		childRel, ok := childMeta.Properties[rel.ForeignKey]
		if !ok {
			return nil, fmt.Errorf("orm: relation %q on %q: foreign key property %q not found on %q",
				rel.PropertyName, parentMeta.Class, rel.ForeignKey, childMeta.Class)
		}
		return &Condition{
			Operator: contracts.OpEq,
			Column:   fmt.Sprintf("%s.%s", parentAlias, parentMeta.PrimaryKeyColumnName()),
			Args:     []any{rawColumnRef(fmt.Sprintf("%s.%s", childAlias, childRel.ColumnName))},
		}, nil
	default:
		return nil, fmt.Errorf("orm: unknown relation kind %q", rel.Kind)
	}
}

// columnRef marks a string as a raw "alias.column" reference rather
// than a bound literal, so the emitter writes it unquoted/unbound into
// the ON clause instead of passing it as a placeholder parameter.
type columnRef string

func rawColumnRef(s string) columnRef { return columnRef(s) }

// AsColumnRef reports whether v is a raw "alias.column" reference
// (as opposed to a bound literal), returning its text. Exported for
// ormtest's in-memory Condition interpreter, which has to resolve ON-
// clause operands against a joined row rather than bind them.
func AsColumnRef(v any) (string, bool) {
	ref, ok := v.(columnRef)
	return string(ref), ok
}
