package orm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astra-lucid/lucidorm/orm/cache"
)

type spyManager struct {
	store         map[string]map[string][]byte
	invalidatedNS []string
	failGet       bool
	failSet       bool
}

func newSpyManager() *spyManager {
	return &spyManager{store: make(map[string]map[string][]byte)}
}

func (s *spyManager) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	if s.failGet {
		return nil, false, assertError
	}
	ns, ok := s.store[namespace]
	if !ok {
		return nil, false, nil
	}
	v, ok := ns[key]
	return v, ok, nil
}

func (s *spyManager) Set(_ context.Context, namespace, key string, payload []byte, _ time.Duration) error {
	if s.failSet {
		return assertError
	}
	if s.store[namespace] == nil {
		s.store[namespace] = make(map[string][]byte)
	}
	s.store[namespace][key] = payload
	return nil
}

func (s *spyManager) InvalidateNamespace(_ context.Context, namespace string) error {
	s.invalidatedNS = append(s.invalidatedNS, namespace)
	delete(s.store, namespace)
	return nil
}

func (s *spyManager) Close() error { return nil }

var assertError = errSentinel{}

type errSentinel struct{}

func (errSentinel) Error() string { return "spy manager failure" }

var _ cache.Manager = (*spyManager)(nil)

func TestQueryCacheStoreThenLookupRoundTrips(t *testing.T) {
	ctx := context.Background()
	mgr := newSpyManager()
	qc := newQueryCache(mgr, true)
	stmt := &Statement{Kind: StmtSelect, Table: "users", Alias: "u"}
	rows := []Row{{"id": int64(1), "name": "ada"}}

	qc.Store(ctx, stmt, []any{"ada"}, time.Minute, rows)
	cached, ok := qc.Lookup(ctx, stmt, []any{"ada"})
	require.True(t, ok)
	assert.Equal(t, rows, cached)
}

func TestQueryCacheBypassDirectiveStoresNothing(t *testing.T) {
	ctx := context.Background()
	mgr := newSpyManager()
	qc := newQueryCache(mgr, true)
	stmt := &Statement{Kind: StmtSelect, Table: "users", Alias: "u"}

	qc.Store(ctx, stmt, nil, false, []Row{{"id": int64(1)}})
	_, ok := qc.Lookup(ctx, stmt, nil)
	assert.False(t, ok)
}

func TestQueryCacheNilManagerIsSilentNoop(t *testing.T) {
	ctx := context.Background()
	qc := newQueryCache(nil, true)
	stmt := &Statement{Kind: StmtSelect, Table: "users", Alias: "u"}

	qc.Store(ctx, stmt, nil, true, []Row{{"id": int64(1)}})
	_, ok := qc.Lookup(ctx, stmt, nil)
	assert.False(t, ok)
}

func TestQueryCacheLookupFailureDegradesSilently(t *testing.T) {
	ctx := context.Background()
	mgr := newSpyManager()
	mgr.failGet = true
	qc := newQueryCache(mgr, true)
	stmt := &Statement{Kind: StmtSelect, Table: "users", Alias: "u"}

	_, ok := qc.Lookup(ctx, stmt, nil)
	assert.False(t, ok)
}

func TestQueryCacheInvalidateWriteBustsJoinedNamespaces(t *testing.T) {
	ctx := context.Background()
	mgr := newSpyManager()
	qc := newQueryCache(mgr, true)
	stmt := &Statement{Table: "users", Joins: []*JoinNode{{Table: "posts"}}}

	qc.InvalidateWrite(ctx, stmt)
	assert.ElementsMatch(t, []string{"users", "posts"}, mgr.invalidatedNS)
}

func TestQueryCacheInvalidateWriteSkippedWhenDisabled(t *testing.T) {
	ctx := context.Background()
	mgr := newSpyManager()
	qc := newQueryCache(mgr, false)
	stmt := &Statement{Table: "users"}

	qc.InvalidateWrite(ctx, stmt)
	assert.Empty(t, mgr.invalidatedNS)
}
