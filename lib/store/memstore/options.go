package memstore

import (
	"os"
	"time"

	"github.com/agenthive/hivemem/lib/backend"
	"github.com/agenthive/hivemem/lib/serializer"
	"github.com/rs/zerolog"
)

// Watermarks for the garbage collector: a pressure sweep starts once usage
// crosses the high watermark, LRU eviction stops once it falls below the low
// watermark.
const (
	highWatermark = 0.8
	lowWatermark  = 0.7

	gcBatchSize = 128
)

// Options configures the entry store during initialization.
type Options struct {
	// Dir is the storage directory for the durable backend and snapshots.
	// Callers should validate it with config.ValidatePath first.
	Dir string

	// MaxMemorySize caps the total tracked payload bytes. The ceiling is
	// enforced, not advisory: a write that would exceed it after a GC sweep
	// fails with a ResourceExhausted error. 0 = default.
	MaxMemorySize int64
	// MaxEntries caps the number of live entries. 0 = default.
	MaxEntries int
	// GCInterval is the period of the full GC sweep; a quick expired-only
	// pass runs at a quarter of it. 0 = default.
	GCInterval time.Duration
	// CompressionThreshold is the encoded-payload size in bytes above which
	// values are compressed. 0 = default, negative = disabled.
	CompressionThreshold int

	// DefaultNamespace is used when SetOptions carry no namespace.
	DefaultNamespace string

	// LockTTL is the default lock duration for Atomic calls.
	LockTTL time.Duration
	// AtomicMaxAttempts caps retries of the whole atomic sequence.
	AtomicMaxAttempts int

	// IndexMaxTracked bounds the tag index size. Beyond it, Keys() degrades
	// to full scans. 0 = default.
	IndexMaxTracked int

	// Connection pool and backend tuning, passed through to backend.Options.
	PoolMinSize         int
	PoolMaxSize         int
	ConnectTimeout      time.Duration
	QueryTimeout        time.Duration
	HealthCheckInterval time.Duration
	SaveInterval        time.Duration

	// Backend overrides the startup capability probe. Used by tests and by
	// callers embedding their own persistence.
	Backend backend.Backend
	// Serializer overrides the default json codec.
	Serializer serializer.ISerializer

	Logger zerolog.Logger
}

// DefaultOptions returns the default store options rooted at dir.
func DefaultOptions(dir string) *Options {
	return &Options{
		Dir:                  dir,
		MaxMemorySize:        64 << 20, // 64 MB
		MaxEntries:           10_000,
		GCInterval:           30 * time.Second,
		CompressionThreshold: 8 << 10, // 8 KB
		DefaultNamespace:     "shared_state",
		LockTTL:              5 * time.Second,
		AtomicMaxAttempts:    10,
		IndexMaxTracked:      100_000,
		PoolMinSize:          2,
		PoolMaxSize:          8,
		ConnectTimeout:       5 * time.Second,
		QueryTimeout:         10 * time.Second,
		HealthCheckInterval:  15 * time.Second,
		SaveInterval:         30 * time.Second,
		Logger:               zerolog.New(os.Stderr).With().Timestamp().Logger(),
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o *Options) withDefaults() *Options {
	def := DefaultOptions(o.Dir)
	out := *o
	if out.MaxMemorySize == 0 {
		out.MaxMemorySize = def.MaxMemorySize
	}
	if out.MaxEntries == 0 {
		out.MaxEntries = def.MaxEntries
	}
	if out.GCInterval == 0 {
		out.GCInterval = def.GCInterval
	}
	if out.CompressionThreshold == 0 {
		out.CompressionThreshold = def.CompressionThreshold
	}
	if out.DefaultNamespace == "" {
		out.DefaultNamespace = def.DefaultNamespace
	}
	if out.LockTTL == 0 {
		out.LockTTL = def.LockTTL
	}
	if out.AtomicMaxAttempts == 0 {
		out.AtomicMaxAttempts = def.AtomicMaxAttempts
	}
	if out.IndexMaxTracked == 0 {
		out.IndexMaxTracked = def.IndexMaxTracked
	}
	if out.PoolMinSize == 0 {
		out.PoolMinSize = def.PoolMinSize
	}
	if out.PoolMaxSize == 0 {
		out.PoolMaxSize = def.PoolMaxSize
	}
	if out.ConnectTimeout == 0 {
		out.ConnectTimeout = def.ConnectTimeout
	}
	if out.QueryTimeout == 0 {
		out.QueryTimeout = def.QueryTimeout
	}
	if out.HealthCheckInterval == 0 {
		out.HealthCheckInterval = def.HealthCheckInterval
	}
	if out.SaveInterval == 0 {
		out.SaveInterval = def.SaveInterval
	}
	if out.Serializer == nil {
		out.Serializer = serializer.NewCompressed(serializer.NewJSONSerializer(), out.CompressionThreshold)
	}
	return &out
}

// backendOptions maps store options onto backend options.
func (o *Options) backendOptions() backend.Options {
	return backend.Options{
		Dir:                 o.Dir,
		PoolMinSize:         o.PoolMinSize,
		PoolMaxSize:         o.PoolMaxSize,
		ConnectTimeout:      o.ConnectTimeout,
		QueryTimeout:        o.QueryTimeout,
		HealthCheckInterval: o.HealthCheckInterval,
		SaveInterval:        o.SaveInterval,
		Logger:              o.Logger,
	}
}
