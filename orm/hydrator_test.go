package orm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astra-lucid/lucidorm/contracts"
)

type hydAuthor struct {
	BaseEntity
	ID    int64
	Name  string
	Posts []*hydPost
}

type hydPost struct {
	BaseEntity
	ID       int64
	Title    string
	AuthorID int64
	Author   *hydAuthor
}

func hydratorRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, RegisterEntity[hydAuthor](reg, EntityMeta{
		Properties: map[string]*PropertyMeta{
			"ID":   {PropertyName: "ID", IsPrimary: true},
			"Name": {PropertyName: "Name"},
		},
		Relations: []*RelationMeta{
			{Kind: contracts.OneToMany, PropertyName: "Posts", Entity: "hydPost", ForeignKey: "AuthorID"},
		},
	}))
	require.NoError(t, RegisterEntity[hydPost](reg, EntityMeta{
		Properties: map[string]*PropertyMeta{
			"ID":       {PropertyName: "ID", IsPrimary: true},
			"Title":    {PropertyName: "Title"},
			"AuthorID": {PropertyName: "AuthorID"},
		},
		Relations: []*RelationMeta{
			{Kind: contracts.ManyToOne, PropertyName: "Author", Entity: "hydAuthor", ForeignKey: "AuthorID"},
		},
	}))
	return reg
}

func TestHydrateRootOneToManyFanOutDeduplicates(t *testing.T) {
	reg := hydratorRegistry(t)
	authorMeta, err := reg.Get("hydAuthor")
	require.NoError(t, err)
	h := newHydrator(reg)

	stmt := &Statement{
		Joins: []*JoinNode{
			{Alias: "p", Table: "hyd_post", RelationProperty: "Posts", Kind: contracts.OneToMany},
		},
	}
	rows := []Row{
		{"id": int64(1), "name": "Ada", "p_id": int64(10), "p_title": "First", "p_author_id": int64(1)},
		{"id": int64(1), "name": "Ada", "p_id": int64(11), "p_title": "Second", "p_author_id": int64(1)},
	}

	instances, err := h.HydrateRoot(newIdentityMap(), authorMeta, stmt, rows)
	require.NoError(t, err)
	require.Len(t, instances, 1)

	author, ok := instances[0].(*hydAuthor)
	require.True(t, ok)
	assert.Equal(t, "Ada", author.Name)
	require.Len(t, author.Posts, 2)
	assert.ElementsMatch(t, []string{"First", "Second"}, []string{author.Posts[0].Title, author.Posts[1].Title})
}

func TestHydrateRootLeftJoinWithNoMatchLeavesRelationZero(t *testing.T) {
	reg := hydratorRegistry(t)
	authorMeta, err := reg.Get("hydAuthor")
	require.NoError(t, err)
	h := newHydrator(reg)

	stmt := &Statement{
		Joins: []*JoinNode{
			{Alias: "p", Table: "hyd_post", RelationProperty: "Posts", Kind: contracts.OneToMany},
		},
	}
	rows := []Row{
		{"id": int64(2), "name": "Alan", "p_id": nil, "p_title": nil, "p_author_id": nil},
	}

	instances, err := h.HydrateRoot(newIdentityMap(), authorMeta, stmt, rows)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	author := instances[0].(*hydAuthor)
	assert.Nil(t, author.Posts)
}

func TestHydrateRootManyToOneAttachesPointer(t *testing.T) {
	reg := hydratorRegistry(t)
	postMeta, err := reg.Get("hydPost")
	require.NoError(t, err)
	h := newHydrator(reg)

	stmt := &Statement{
		Joins: []*JoinNode{
			{Alias: "a", Table: "hyd_author", RelationProperty: "Author", Kind: contracts.ManyToOne},
		},
	}
	rows := []Row{
		{"id": int64(10), "title": "First", "author_id": int64(1), "a_id": int64(1), "a_name": "Ada"},
	}

	instances, err := h.HydrateRoot(newIdentityMap(), postMeta, stmt, rows)
	require.NoError(t, err)
	require.Len(t, instances, 1)

	post := instances[0].(*hydPost)
	require.NotNil(t, post.Author)
	assert.Equal(t, "Ada", post.Author.Name)
}

func TestHydrateRootPreservesRootRowOrder(t *testing.T) {
	reg := hydratorRegistry(t)
	authorMeta, err := reg.Get("hydAuthor")
	require.NoError(t, err)
	h := newHydrator(reg)

	rows := []Row{
		{"id": int64(2), "name": "Second"},
		{"id": int64(1), "name": "First"},
	}

	instances, err := h.HydrateRoot(newIdentityMap(), authorMeta, &Statement{}, rows)
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, "Second", instances[0].(*hydAuthor).Name)
	assert.Equal(t, "First", instances[1].(*hydAuthor).Name)
}
