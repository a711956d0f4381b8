package lockmgr

import (
	"time"

	"github.com/agenthive/hivemem/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
)

type lockMgrImpl struct {
	locks   *xsync.MapOf[string, Lock]
	journal Journal
}

// NewLockManager creates a lock manager. journal may be nil.
func NewLockManager(journal Journal) ILockManager {
	return &lockMgrImpl{
		locks:   xsync.NewMapOf[string, Lock](),
		journal: journal,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see lockmgr/interface.go)
// --------------------------------------------------------------------------

func (m *lockMgrImpl) Acquire(key, holder string, ttl time.Duration) (Lock, error) {
	if key == "" {
		return Lock{}, store.NewError(store.CodeValidation, key, "lock key must not be empty")
	}
	if holder == "" {
		return Lock{}, store.NewError(store.CodeValidation, key, "lock holder must not be empty")
	}
	if ttl <= 0 {
		return Lock{}, store.NewError(store.CodeValidation, key, "lock ttl must be positive")
	}

	now := time.Now()
	var conflict Lock
	acquired := false

	// Compute gives an atomic check-and-set per key, so two concurrent
	// acquirers can never both observe the slot as free.
	lock, _ := m.locks.Compute(key, func(old Lock, loaded bool) (Lock, bool) {
		if loaded && !old.Expired(now) {
			conflict = old
			return old, false
		}
		acquired = true
		return Lock{
			Key:        key,
			Holder:     holder,
			Mode:       "exclusive",
			AcquiredAt: now,
			ExpiresAt:  now.Add(ttl),
		}, false
	})

	if !acquired {
		return Lock{}, store.NewError(store.CodeConflict, key,
			"lock held by %q until %s", conflict.Holder, conflict.ExpiresAt.Format(time.RFC3339Nano))
	}
	if m.journal != nil {
		m.journal.RecordLock(lock)
	}
	return lock, nil
}

func (m *lockMgrImpl) Release(key, holder string) (bool, error) {
	now := time.Now()
	var (
		released bool
		mismatch Lock
		bad      bool
	)

	m.locks.Compute(key, func(old Lock, loaded bool) (Lock, bool) {
		if !loaded {
			return old, true // nothing to release, don't materialize a slot
		}
		if old.Expired(now) {
			return old, true // expired locks are absent; clean up the slot
		}
		if old.Holder != holder {
			mismatch = old
			bad = true
			return old, false
		}
		released = true
		return old, true
	})

	if bad {
		return false, store.NewError(store.CodePermission, key,
			"lock held by %q, not %q", mismatch.Holder, holder)
	}
	if released && m.journal != nil {
		m.journal.RemoveLock(key)
	}
	return released, nil
}

func (m *lockMgrImpl) Holder(key string) (Lock, bool) {
	lock, ok := m.locks.Load(key)
	if !ok || lock.Expired(time.Now()) {
		return Lock{}, false
	}
	return lock, true
}

func (m *lockMgrImpl) Sweep(now time.Time) int {
	var expired []string
	m.locks.Range(func(key string, l Lock) bool {
		if l.Expired(now) {
			expired = append(expired, key)
		}
		return true
	})

	released := 0
	for _, key := range expired {
		removed := false
		m.locks.Compute(key, func(old Lock, loaded bool) (Lock, bool) {
			// Double-check: the slot may have been reacquired since Range.
			if loaded && old.Expired(now) {
				removed = true
				return old, true
			}
			return old, false
		})
		if removed {
			released++
			if m.journal != nil {
				m.journal.RemoveLock(key)
			}
		}
	}
	return released
}
