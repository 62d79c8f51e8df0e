package orm

import "context"

// ctxKey is a private type so this package's context keys never
// collide with another package's.
type ctxKey int

const txKey ctxKey = iota

// WithTx attaches a transaction-scoped driver handle to ctx. Go has no
// async-local storage (spec.md §9); context.Context threaded through
// every call is the idiomatic substitute, so a driver's Transaction
// implementation calls this around fn, and every statement-issuing
// method checks TxFromContext before falling back to its ambient
// connection pool. Exported so orm/driver/pgdriver and orm/driver/
// mysqldriver — which hold the concrete *pgx.Tx / *sql.Tx handles —
// can participate without this package knowing either driver's types.
func WithTx(ctx context.Context, handle any) context.Context {
	return context.WithValue(ctx, txKey, handle)
}

// TxFromContext returns the transaction handle ctx carries, if any.
func TxFromContext(ctx context.Context) (any, bool) {
	v := ctx.Value(txKey)
	return v, v != nil
}
