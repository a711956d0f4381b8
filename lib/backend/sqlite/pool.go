package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/agenthive/hivemem/lib/store"
	"golang.org/x/sync/semaphore"
)

// pool is a bounded logical connection pool over the shared sql.DB handle.
// database/sql already pools physical connections; the semaphore adds the
// explicit backpressure the store contract requires: when the pool is
// exhausted a caller waits up to acquireTimeout and then fails with a
// ResourceExhausted error instead of queueing unboundedly.
type pool struct {
	name           string
	db             *sql.DB
	sem            *semaphore.Weighted
	acquireTimeout time.Duration
	queryTimeout   time.Duration
}

func newPool(name string, db *sql.DB, size int, acquireTimeout, queryTimeout time.Duration) *pool {
	if size < 1 {
		size = 1
	}
	return &pool{
		name:           name,
		db:             db,
		sem:            semaphore.NewWeighted(int64(size)),
		acquireTimeout: acquireTimeout,
		queryTimeout:   queryTimeout,
	}
}

// acquire claims a pool slot. The returned release function must be called
// exactly once.
func (p *pool) acquire(ctx context.Context) (release func(), err error) {
	acquireCtx := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}
	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, store.WrapError(store.CodeTimeout, "", ctx.Err(), "%s pool acquire cancelled", p.name)
		}
		return nil, store.WrapError(store.CodeResourceExhausted, "", err,
			"%s pool exhausted after %s", p.name, p.acquireTimeout)
	}
	return func() { p.sem.Release(1) }, nil
}

// withConn runs fn under a pool slot and a query deadline.
func (p *pool) withConn(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	release, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if p.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.queryTimeout)
		defer cancel()
	}
	return fn(ctx, p.db)
}
