package orm

import "fmt"

// columnPlanner is C6: it computes the projection list for a SELECT
// statement, namespacing joined columns as "alias_column" so the
// Hydrator (C9) can fan a flat row back out into root + relation
// instances, and resolves dotted relation paths ("Author.name") back
// to the alias the Join Manager assigned.
type columnPlanner struct {
	registry *Registry
}

func newColumnPlanner(reg *Registry) *columnPlanner { return &columnPlanner{registry: reg} }

// ProjectRoot appends every scalar property of meta to cols, labelled
// by bare column name (no namespacing on the root alias).
func (cp *columnPlanner) ProjectRoot(meta *EntityMeta, alias string) []ProjectedColumn {
	props := meta.OrderedProperties()
	cols := make([]ProjectedColumn, 0, len(props))
	for _, p := range props {
		cols = append(cols, ProjectedColumn{SourceAlias: alias, Column: p.ColumnName, Label: p.ColumnName})
	}
	return cols
}

// ProjectJoined appends every scalar property of a joined entity,
// labelled "alias_column" so it cannot collide with the root's own
// columns or with another join's columns.
func (cp *columnPlanner) ProjectJoined(meta *EntityMeta, alias string) []ProjectedColumn {
	props := meta.OrderedProperties()
	cols := make([]ProjectedColumn, 0, len(props))
	for _, p := range props {
		cols = append(cols, ProjectedColumn{
			SourceAlias: alias,
			Column:      p.ColumnName,
			Label:       fmt.Sprintf("%s_%s", alias, p.ColumnName),
		})
	}
	return cols
}

// DiscoverAlias resolves a dotted relation path (e.g. "Author.name" or
// just "name" at the root) to the alias the planned joins assigned,
// returning the leaf EntityMeta and its alias. joins maps relation
// property name to the JoinNode already added to the statement.
func (cp *columnPlanner) DiscoverAlias(meta *EntityMeta, rootAlias string, path []string, joins map[string]*JoinNode) (*EntityMeta, string, error) {
	currentMeta, currentAlias := meta, rootAlias
	for i := 0; i < len(path)-1; i++ {
		segment := path[i]
		node, ok := joins[segment]
		if !ok {
			return nil, "", fmt.Errorf("orm: column path %v references relation %q with no active join", path, segment)
		}
		rel, ok := currentMeta.RelationByProperty(segment)
		if !ok {
			return nil, "", fmt.Errorf("orm: column path %v references unknown relation %q", path, segment)
		}
		related, err := cp.registry.Get(rel.Entity)
		if err != nil {
			return nil, "", err
		}
		currentMeta = related
		currentAlias = node.Alias
	}
	return currentMeta, currentAlias, nil
}
