package store

import (
	"context"
	"time"
)

// --------------------------------------------------------------------------
// Operation Options & Results
// --------------------------------------------------------------------------

// GetOptions tunes a single Get call.
type GetOptions struct {
	// Agent identifies the calling agent for access logging.
	Agent string
}

// SetOptions tunes a single Set call.
type SetOptions struct {
	// Namespace groups the entry (e.g. agent_context, task_results,
	// shared_state). Empty means the default namespace.
	Namespace string
	// DataType selects the persistence/lifecycle policy. Empty means
	// DataTypeCached.
	DataType DataType
	// TTL sets the entry expiration relative to now. Zero means no expiry.
	TTL time.Duration
	// Agent identifies the calling (and owning) agent.
	Agent string
}

// DeleteOptions tunes a single Delete call.
type DeleteOptions struct {
	Agent string
	// PurgeVersions also removes the entry's VersionRecords.
	PurgeVersions bool
}

// AtomicOptions tunes an Atomic call.
type AtomicOptions struct {
	SetOptions
	// LockTTL bounds how long the key lock may be held. Zero uses the
	// store default.
	LockTTL time.Duration
	// MaxAttempts caps retries of the whole acquire-read-apply-write
	// sequence. Zero uses the store default.
	MaxAttempts int
}

// GetResult is the outcome of a Get.
type GetResult struct {
	Value any      // decoded payload, nil when not found
	Meta  Metadata // entry metadata, zero when not found
	Found bool
}

// SetResult is the outcome of a Set.
type SetResult struct {
	Version   uint64
	Size      int
	ExpiresAt time.Time // zero when the entry does not expire
}

// UpdateFunc transforms the current value of a key into its new value inside
// an Atomic call. found is false when the key does not exist yet.
type UpdateFunc func(current any, found bool) (next any, err error)

// SubscriberFunc receives mutation events. It is invoked synchronously within
// the mutating call; a panicking subscriber is recovered and logged.
type SubscriberFunc func(evt Event)

// CancelFunc removes a subscription. Calling it more than once is a no-op.
type CancelFunc func()

// --------------------------------------------------------------------------
// Store Interface
// --------------------------------------------------------------------------

// Stats is a point-in-time summary of the store, returned by GetStats.
type Stats struct {
	Entries       int    `json:"entries"`
	SizeBytes     int64  `json:"size_bytes"`
	MaxEntries    int    `json:"max_entries"`
	MaxMemorySize int64  `json:"max_memory_size"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	GCRuns        uint64 `json:"gc_runs"`
	Expired       uint64 `json:"expired"`
	Evicted       uint64 `json:"evicted"`
	Subscriptions int    `json:"subscriptions"`
	Backend       string `json:"backend"`
	Degraded      bool   `json:"degraded"`
}

// IEntryStore is the public contract consumed by all external collaborators
// (pool managers, scaling heuristics, optimizers). They never touch internal
// maps directly.
type IEntryStore interface {
	// Get returns the current value of key. Found is false when the key is
	// absent or its expiration has passed, regardless of physical removal.
	Get(ctx context.Context, key string, opts GetOptions) (GetResult, error)

	// Set inserts or updates key. It enforces the configured memory and
	// entry ceilings: a write that would exceed them triggers a GC sweep
	// first and fails with a ResourceExhausted error if usage is still over.
	Set(ctx context.Context, key string, value any, opts SetOptions) (SetResult, error)

	// Delete removes key from cache, persistence and indexes. It returns
	// whether the entry existed.
	Delete(ctx context.Context, key string, opts DeleteOptions) (bool, error)

	// Keys lists keys matching the filter, preferring index lookups over a
	// full scan where possible. Candidates are always re-validated against
	// authoritative metadata.
	Keys(ctx context.Context, f Filter) ([]string, error)

	// Atomic runs a read-modify-write sequence under an exclusive key lock
	// with bounded retries. The lock is always released, even when fn or the
	// write fails.
	Atomic(ctx context.Context, key string, fn UpdateFunc, opts AtomicOptions) (SetResult, error)

	// GetVersion retrieves a historical value of a versioned entry by its
	// explicit version number.
	GetVersion(ctx context.Context, key string, version uint64) (GetResult, error)

	// Subscribe registers a callback for mutations whose key matches the
	// pattern and whose event type is in events (nil = all events).
	Subscribe(pattern string, events []EventType, fn SubscriberFunc) (CancelFunc, error)

	// AcquireLock takes a TTL-bounded exclusive claim on key for holder.
	AcquireLock(key, holder string, ttl time.Duration) error

	// ReleaseLock releases the claim on key. It returns whether a live lock
	// existed and fails with a Permission error on a holder mismatch.
	ReleaseLock(key, holder string) (bool, error)

	// GetStats returns a point-in-time summary of the store.
	GetStats() Stats

	// Close stops the garbage collector and closes the persistence layer.
	Close() error
}
