package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetThenGetRoundTrips(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(10)

	require.NoError(t, m.Set(ctx, "users", "k1", []byte("payload"), time.Minute))
	payload, ok, err := m.Get(ctx, "users", "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), payload)
}

func TestMemoryStoreMissReturnsFalse(t *testing.T) {
	m := NewMemoryStore(10)
	_, ok, err := m.Get(context.Background(), "users", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreTTLZeroMeansForever(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(10)
	require.NoError(t, m.Set(ctx, "users", "k1", []byte("forever"), 0))

	time.Sleep(5 * time.Millisecond)
	payload, ok, err := m.Get(ctx, "users", "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("forever"), payload)
}

func TestMemoryStoreExpiredEntryIsRemovedOnRead(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(10)
	require.NoError(t, m.Set(ctx, "users", "k1", []byte("stale"), time.Millisecond))

	time.Sleep(5 * time.Millisecond)
	_, ok, err := m.Get(ctx, "users", "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreInvalidateNamespaceClearsAllKeys(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(10)
	require.NoError(t, m.Set(ctx, "users", "k1", []byte("a"), time.Minute))
	require.NoError(t, m.Set(ctx, "users", "k2", []byte("b"), time.Minute))

	require.NoError(t, m.InvalidateNamespace(ctx, "users"))

	_, ok1, _ := m.Get(ctx, "users", "k1")
	_, ok2, _ := m.Get(ctx, "users", "k2")
	assert.False(t, ok1)
	assert.False(t, ok2)
}

func TestMemoryStoreNamespacesAreIndependentlyBounded(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(1)
	require.NoError(t, m.Set(ctx, "users", "only", []byte("u"), time.Minute))
	require.NoError(t, m.Set(ctx, "posts", "only", []byte("p"), time.Minute))

	_, ok1, _ := m.Get(ctx, "users", "only")
	_, ok2, _ := m.Get(ctx, "posts", "only")
	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestMemoryStoreEvictsOldestWhenOverCapacity(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(1)
	require.NoError(t, m.Set(ctx, "users", "k1", []byte("first"), time.Minute))
	require.NoError(t, m.Set(ctx, "users", "k2", []byte("second"), time.Minute))

	_, ok1, _ := m.Get(ctx, "users", "k1")
	_, ok2, _ := m.Get(ctx, "users", "k2")
	assert.False(t, ok1)
	assert.True(t, ok2)
}
