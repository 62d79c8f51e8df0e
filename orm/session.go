package orm

import "context"

// Session pairs the engine handle with the per-scope bookkeeping a
// query execution needs: the identity map and (inside a transaction)
// the transaction handle. spec.md §4.10 describes this as an
// async-local {Orm, EntityStorage} pair; Go has no async-local
// storage, so the pair travels as a context.Context value instead
// (see DESIGN.md).
type Session struct {
	orm *Orm
	ctx context.Context
}

// scopeExecution opens a fresh Session for one top-level Query
// Builder execution, establishing a new identity map unless one is
// already active on ctx (e.g. a context prepared by WithScope), in
// which case that scope is reused.
func scopeExecution(ctx context.Context, o *Orm) (context.Context, *Session) {
	if _, ok := ctx.Value(identityMapKey).(*identityMap); !ok {
		ctx = withIdentityMap(ctx)
	}
	return ctx, &Session{orm: o, ctx: ctx}
}

// IdentityMap returns the scope's identity map.
func (s *Session) IdentityMap() *identityMap { return identityMapFromContext(s.ctx) }

// Context returns the scope-carrying context, to pass to further
// driver or builder calls issued within this scope.
func (s *Session) Context() context.Context { return s.ctx }

// WithScope opens an identity-map scope on ctx that every QueryBuilder
// or Repository call threaded through it will share: two separate
// top-level Find/FindOne calls passed the same scoped context resolve
// the same primary key to the same hydrated instance reference
// (spec.md §8 property 3, scenario S5), because scopeExecution reuses
// an identity map already on ctx. Calling
// WithScope again on an already-scoped context is a no-op — scopes do
// not nest a fresh identity map inside an outer one.
func WithScope(ctx context.Context) context.Context {
	if _, ok := ctx.Value(identityMapKey).(*identityMap); ok {
		return ctx
	}
	return withIdentityMap(ctx)
}
