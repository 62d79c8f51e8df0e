// Package cache implements the Query Cache Manager (C11): a
// namespace-scoped store for query result sets, keyed by a statement
// fingerprint computed upstream in package orm. The Manager interface
// is deliberately statement-agnostic — it only ever sees plain
// namespace/key strings and already-encoded byte payloads — so this
// package never needs to import orm (package orm imports this one, so
// the reverse import would be a cycle).
package cache

import (
	"context"
	"time"
)

// Manager is C11's storage abstraction. Two implementations ship:
// MemoryStore (hashicorp/golang-lru, single process) and RedisStore
// (go-redis, shared across processes).
type Manager interface {
	// Get returns the cached payload for (namespace, key), or ok=false
	// on a miss.
	Get(ctx context.Context, namespace, key string) (payload []byte, ok bool, err error)

	// Set stores payload under (namespace, key). ttl == 0 means
	// never-expire.
	Set(ctx context.Context, namespace, key string, payload []byte, ttl time.Duration) error

	// InvalidateNamespace drops every key cached under namespace — the
	// write-path hook spec.md §4.11 requires after an insert/update/
	// delete touches a table.
	InvalidateNamespace(ctx context.Context, namespace string) error

	// Close releases any resources the store holds.
	Close() error
}
