package memstore

import (
	"context"
	"time"

	"github.com/agenthive/hivemem/lib/store"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Atomic runs a read-modify-write sequence under an exclusive key lock
// (docu see store.IEntryStore).
//
// Every attempt runs the full acquire-read-apply-write sequence; a failure
// anywhere retries the whole sequence, never a partial one. The lock release
// is deferred per attempt so the lock cannot leak past a failing fn or write.
func (s *Store) Atomic(ctx context.Context, key string, fn store.UpdateFunc, opts store.AtomicOptions) (store.SetResult, error) {
	if err := validateKey(key); err != nil {
		return store.SetResult{}, err
	}
	if fn == nil {
		return store.SetResult{}, store.NewError(store.CodeValidation, key, "update function must not be nil")
	}

	holder := opts.Agent
	if holder == "" {
		holder = "atomic-" + uuid.NewString()
	}
	lockTTL := opts.LockTTL
	if lockTTL <= 0 {
		lockTTL = s.opts.LockTTL
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.opts.AtomicMaxAttempts
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	bo.Reset()

	setOpts := opts.SetOptions
	setOpts.Agent = holder

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return store.SetResult{}, store.WrapError(store.CodeTimeout, key, ctx.Err(), "atomic update cancelled")
			case <-time.After(bo.NextBackOff()):
			}
		}

		res, err := s.atomicAttempt(ctx, key, holder, lockTTL, fn, setOpts)
		if err == nil {
			return res, nil
		}
		if !store.Retryable(err) {
			return store.SetResult{}, err
		}
		lastErr = err
	}
	return store.SetResult{}, store.WrapError(store.CodeTimeout, key, lastErr,
		"atomic update gave up after %d attempts", maxAttempts)
}

// atomicAttempt is one acquire-read-apply-write pass.
func (s *Store) atomicAttempt(ctx context.Context, key, holder string, lockTTL time.Duration,
	fn store.UpdateFunc, setOpts store.SetOptions) (store.SetResult, error) {

	if _, err := s.locks.Acquire(key, holder, lockTTL); err != nil {
		return store.SetResult{}, err
	}
	defer func() {
		if _, err := s.locks.Release(key, holder); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("atomic lock release failed")
		}
	}()

	cur, err := s.Get(ctx, key, store.GetOptions{Agent: holder})
	if err != nil {
		return store.SetResult{}, err
	}

	next, err := fn(cur.Value, cur.Found)
	if err != nil {
		// fn errors are the caller's; they are never retried.
		return store.SetResult{}, store.WrapError(store.CodeInternal, key, err, "atomic update function failed")
	}

	return s.Set(ctx, key, next, setOpts)
}
