package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	hitCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lucid_cache_hits_total",
		Help: "Query cache hits, by namespace.",
	}, []string{"namespace"})
	missCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lucid_cache_misses_total",
		Help: "Query cache misses, by namespace.",
	}, []string{"namespace"})
	evictionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lucid_cache_evictions_total",
		Help: "Query cache LRU evictions, by namespace.",
	}, []string{"namespace"})
)

func init() {
	prometheus.MustRegister(hitCounter, missCounter, evictionCounter)
}

type entry struct {
	payload   []byte
	expiresAt time.Time
	forever   bool
}

func (e entry) expired(now time.Time) bool {
	return !e.forever && now.After(e.expiresAt)
}

// MemoryStore is an in-process Manager backed by one bounded LRU per
// namespace, so a hot table cannot evict a cold one's keys out of the
// same budget. Grounded on app/Redis/cache.go's per-table-namespace
// convention, re-pointed from Redis onto hashicorp/golang-lru/v2 for
// the single-process case.
type MemoryStore struct {
	mu          sync.Mutex
	namespaces  map[string]*lru.Cache[string, entry]
	maxPerTable int
}

// NewMemoryStore creates a MemoryStore bounding every namespace's key
// count to maxPerTable (spec.md §6 cache.max_keys_per_table).
func NewMemoryStore(maxPerTable int) *MemoryStore {
	if maxPerTable <= 0 {
		maxPerTable = 10_000
	}
	return &MemoryStore{
		namespaces:  make(map[string]*lru.Cache[string, entry]),
		maxPerTable: maxPerTable,
	}
}

func (m *MemoryStore) cacheFor(namespace string) *lru.Cache[string, entry] {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.namespaces[namespace]
	if !ok {
		c, _ = lru.NewWithEvict[string, entry](m.maxPerTable, func(string, entry) {
			evictionCounter.WithLabelValues(namespace).Inc()
		})
		m.namespaces[namespace] = c
	}
	return c
}

func (m *MemoryStore) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	c := m.cacheFor(namespace)
	e, ok := c.Get(key)
	if !ok || e.expired(time.Now()) {
		missCounter.WithLabelValues(namespace).Inc()
		if ok {
			c.Remove(key)
		}
		return nil, false, nil
	}
	hitCounter.WithLabelValues(namespace).Inc()
	return e.payload, true, nil
}

func (m *MemoryStore) Set(_ context.Context, namespace, key string, payload []byte, ttl time.Duration) error {
	c := m.cacheFor(namespace)
	e := entry{payload: payload}
	if ttl <= 0 {
		e.forever = true
	} else {
		e.expiresAt = time.Now().Add(ttl)
	}
	c.Add(key, e)
	return nil
}

func (m *MemoryStore) InvalidateNamespace(_ context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.namespaces, namespace)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
