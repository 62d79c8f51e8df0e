package orm

import (
	"context"
	"time"

	"github.com/bytedance/sonic"

	"github.com/astra-lucid/lucidorm/contracts"
	"github.com/astra-lucid/lucidorm/orm/cache"
	"github.com/astra-lucid/lucidorm/ormerrors"
)

// queryCache is C11's integration point inside the engine: it
// fingerprints a Statement, consults the configured cache.Manager,
// and degrades silently on any cache-layer failure (spec.md §7 —
// caching never fails a query, it only skips being fast).
type queryCache struct {
	manager           cache.Manager
	invalidateOnWrite bool
}

func newQueryCache(manager cache.Manager, invalidateOnWrite bool) *queryCache {
	return &queryCache{manager: manager, invalidateOnWrite: invalidateOnWrite}
}

// cacheDecoder decodes integer cells back to int64, so a cached row
// carries the same Go value types it was stored with.
var cacheDecoder = sonic.Config{UseInt64: true}.Froze()

// Lookup returns cached rows for stmt/args if present and unexpired.
func (qc *queryCache) Lookup(ctx context.Context, stmt *Statement, args []any) ([]Row, bool) {
	if qc == nil || qc.manager == nil {
		return nil, false
	}
	key := fingerprint(stmt, args)
	payload, ok, err := qc.manager.Get(ctx, stmt.Table, key)
	if err != nil {
		ormerrors.LogAndIgnore("cache lookup", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var rows []Row
	if err := cacheDecoder.Unmarshal(payload, &rows); err != nil {
		ormerrors.LogAndIgnore("cache decode", err)
		return nil, false
	}
	return rows, true
}

// Store caches rows for stmt/args under directive's TTL semantics. A
// bypass directive (false, or unset) is a silent no-op.
func (qc *queryCache) Store(ctx context.Context, stmt *Statement, args []any, directive contracts.CacheDirective, rows []Row) {
	if qc == nil || qc.manager == nil {
		return
	}
	ttl, forever, bypass := contracts.TTLOf(directive, time.Now())
	if bypass {
		return
	}
	if forever {
		ttl = 0
	}
	payload, err := sonic.Marshal(rows)
	if err != nil {
		ormerrors.LogAndIgnore("cache encode", err)
		return
	}
	key := fingerprint(stmt, args)
	if err := qc.manager.Set(ctx, stmt.Table, key, payload, ttl); err != nil {
		ormerrors.LogAndIgnore("cache store", err)
	}
}

// InvalidateWrite busts every namespace a write statement touches,
// honouring the cache.invalidate_cache_on_write config knob.
func (qc *queryCache) InvalidateWrite(ctx context.Context, stmt *Statement) {
	if qc == nil || qc.manager == nil || !qc.invalidateOnWrite {
		return
	}
	for _, ns := range cacheNamespaces(stmt) {
		if err := qc.manager.InvalidateNamespace(ctx, ns); err != nil {
			ormerrors.LogAndIgnore("cache invalidate", err)
		}
	}
}
