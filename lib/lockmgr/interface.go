package lockmgr

import (
	"time"
)

// Lock is an exclusive, TTL-bounded claim on a key.
type Lock struct {
	Key        string    `json:"key"`
	Holder     string    `json:"agent_id"`
	Mode       string    `json:"lock_type"` // always "exclusive"
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lock's TTL has passed at the given time. An
// expired lock is treated as absent, so an abandoned holder can never
// deadlock other callers.
func (l Lock) Expired(now time.Time) bool {
	return !l.ExpiresAt.IsZero() && !now.Before(l.ExpiresAt)
}

// ILockManager grants and releases TTL-bounded exclusive claims on keys.
type ILockManager interface {
	// Acquire takes the lock on key for holder. It fails with a Conflict
	// error while a live lock exists, including re-acquisition by the same
	// holder (no reentrant locking).
	Acquire(key, holder string, ttl time.Duration) (Lock, error)

	// Release frees the lock on key. It returns false when no live lock
	// existed and fails with a Permission error when holder does not match
	// the current owner.
	Release(key, holder string) (bool, error)

	// Holder returns the live lock on key, if any.
	Holder(key string) (Lock, bool)

	// Sweep removes locks whose TTL has passed and returns how many were
	// released. Called by the garbage collector.
	Sweep(now time.Time) int
}

// Journal receives best-effort notifications of lock table changes so the
// durable backend can mirror them for observability. Implementations must
// not block acquisition; errors are logged, never surfaced.
type Journal interface {
	RecordLock(l Lock)
	RemoveLock(key string)
}
