package backend

import (
	"context"
	"time"

	"github.com/agenthive/hivemem/lib/lockmgr"
	"github.com/agenthive/hivemem/lib/store"
	"github.com/rs/zerolog"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// Kind identifies a persistence implementation.
type Kind string

const (
	KindSQLite Kind = "sqlite"
	KindFile   Kind = "file"
)

// Access types recorded in the cross-agent access log.
const (
	AccessRead   = "read"
	AccessWrite  = "write"
	AccessDelete = "delete"
)

// Info carries metadata about a backend. Not all fields are guaranteed to be
// filled in or up to date.
type Info struct {
	Kind      Kind   `json:"kind"`
	Path      string `json:"path"`
	Entries   int    `json:"entries"`
	Versions  int    `json:"versions"`
	SizeBytes int64  `json:"size_bytes"`
}

// Options configures backend creation.
type Options struct {
	// Dir is the validated storage directory.
	Dir string
	// PoolMinSize/PoolMaxSize bound the logical connection pools.
	PoolMinSize int
	PoolMaxSize int
	// ConnectTimeout bounds how long a caller waits for a pooled connection
	// before failing with a ResourceExhausted error.
	ConnectTimeout time.Duration
	// QueryTimeout bounds individual statements.
	QueryTimeout time.Duration
	// HealthCheckInterval drives the failover probe of the durable backend.
	HealthCheckInterval time.Duration
	// SaveInterval drives periodic snapshot writes of the file backend.
	SaveInterval time.Duration

	Logger zerolog.Logger
}

// --------------------------------------------------------------------------
// Backend Interface
// --------------------------------------------------------------------------

// Backend is the persistence contract of the entry store. Two interchangeable
// implementations exist: an embedded relational store (sqlite) as primary and
// a whole-store snapshot file as fallback. The store depends only on this
// interface.
type Backend interface {
	// PutEntry inserts or replaces the authoritative row for an entry.
	PutEntry(ctx context.Context, e *store.Entry) error
	// GetEntry returns the persisted entry for key, if any.
	GetEntry(ctx context.Context, key string) (*store.Entry, bool, error)
	// DeleteEntry removes the row for key, reporting whether it existed.
	DeleteEntry(ctx context.Context, key string) (bool, error)
	// Keys lists persisted keys whose envelope matches the filter's
	// namespace/data-type/owner fields. Pattern matching is the store's job.
	Keys(ctx context.Context, f store.Filter) ([]string, error)
	// LoadEntries streams the full persisted state for startup recovery.
	LoadEntries(ctx context.Context) ([]*store.Entry, error)

	// AppendVersion appends an immutable version snapshot. Appending an
	// already existing (key, version) fails with a Conflict error.
	AppendVersion(ctx context.Context, rec store.VersionRecord) error
	// GetVersion retrieves one snapshot by (key, version).
	GetVersion(ctx context.Context, key string, version uint64) (store.VersionRecord, bool, error)
	// ListVersions returns the stored version numbers for key, ascending.
	ListVersions(ctx context.Context, key string) ([]uint64, error)
	// PurgeVersions removes all snapshots for key (explicit version-purge).
	PurgeVersions(ctx context.Context, key string) (int, error)

	// RecordLock / RemoveLock mirror the in-memory lock table.
	RecordLock(ctx context.Context, l lockmgr.Lock) error
	RemoveLock(ctx context.Context, key string) error
	// RecordAccess appends to the cross-agent access log ("hive" pool).
	RecordAccess(ctx context.Context, agent, key, accessType string) error
	// RecordEvent appends a mutation event row ("hive" pool).
	RecordEvent(ctx context.Context, evt store.Event) error

	// Info returns backend metadata.
	Info(ctx context.Context) (Info, error)
	// Ping probes availability. Used by the startup capability probe and
	// the failover health check.
	Ping(ctx context.Context) error
	// Close flushes and releases all resources.
	Close() error
}
