package orm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityMapStoreThenGetReturnsSameInstance(t *testing.T) {
	im := newIdentityMap()

	_, existed := im.Get("User", int64(1))
	assert.False(t, existed)

	stored := im.Store("User", int64(1), &hydAuthor{Name: "Ada"})
	got, existed := im.Get("User", int64(1))
	assert.True(t, existed)
	assert.Same(t, stored, got)
}

func TestIdentityMapDistinguishesClassAndKey(t *testing.T) {
	im := newIdentityMap()
	im.Store("User", int64(1), "user-one")
	im.Store("Post", int64(1), "post-one")

	u, _ := im.Get("User", int64(1))
	p, _ := im.Get("Post", int64(1))
	assert.Equal(t, "user-one", u)
	assert.Equal(t, "post-one", p)
}
