package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/agenthive/hivemem/lib/backend"
	"github.com/agenthive/hivemem/lib/backend/file"
	"github.com/agenthive/hivemem/lib/backend/sqlite"
	"github.com/agenthive/hivemem/lib/lockmgr"
	"github.com/agenthive/hivemem/lib/pubsub"
	"github.com/agenthive/hivemem/lib/serializer"
	"github.com/agenthive/hivemem/lib/store"
	"github.com/agenthive/hivemem/lib/store/memstore/internal"
	"github.com/agenthive/hivemem/lib/version"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

// Store is the entry store façade: it orchestrates the in-memory cache,
// tiered persistence, indexing, locking, versioning and pub/sub notification
// behind the store.IEntryStore contract.
//
// Concurrency: the cache and lock tables are concurrent maps; every entry
// mutation and its index updates happen under one store mutex so indexes and
// entries can never disagree. Backend I/O runs outside the mutex.
type Store struct {
	opts  *Options
	codec serializer.ISerializer

	cache *xsync.MapOf[string, *store.Entry]

	// mu guards index, curBytes and the commit of every entry mutation.
	mu       sync.Mutex
	index    *internal.Index
	curBytes int64

	// lastVersion tracks the highest version ever assigned per key. It is
	// kept across deletes so a version number is never reused.
	lastVersion *xsync.MapOf[string, uint64]

	locks    lockmgr.ILockManager
	notifier *pubsub.Notifier
	versions version.IVersionStore
	backend  backend.Backend

	hits, misses atomic.Uint64
	gcRuns       atomic.Uint64
	expiredTotal atomic.Uint64
	evictedTotal atomic.Uint64

	pressureCh chan struct{}
	stopCh     chan struct{}
	gcDone     chan struct{}
	closeOnce  sync.Once
	closeErr   error
	logger     zerolog.Logger
}

var _ store.IEntryStore = (*Store)(nil)

// New creates an entry store. It probes the durable backend, loads the
// persisted state into the cache and starts the garbage collector.
func New(opts *Options) (*Store, error) {
	if opts == nil || opts.Dir == "" {
		return nil, store.NewError(store.CodeValidation, "", "store directory must be configured")
	}
	o := opts.withDefaults()

	b := o.Backend
	if b == nil {
		var err error
		b, err = openBackend(o)
		if err != nil {
			return nil, err
		}
	}

	s := &Store{
		opts:        o,
		codec:       o.Serializer,
		cache:       xsync.NewMapOf[string, *store.Entry](),
		index:       internal.NewIndex(o.IndexMaxTracked),
		lastVersion: xsync.NewMapOf[string, uint64](),
		notifier:    pubsub.NewNotifier(o.Logger),
		versions:    version.New(b),
		backend:     b,
		pressureCh:  make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		gcDone:      make(chan struct{}),
		logger:      o.Logger.With().Str("component", "store").Logger(),
	}
	s.locks = lockmgr.NewLockManager(&backendJournal{backend: b, timeout: o.QueryTimeout, logger: s.logger})

	if err := s.recover(context.Background()); err != nil {
		b.Close()
		return nil, err
	}

	go s.gcLoop()
	return s, nil
}

// openBackend performs the startup capability probe: the embedded relational
// store is primary, the snapshot file is the fallback. When the primary is
// unusable the store degrades to the file backend alone (logged, not fatal);
// when both fail the error surfaces loudly.
func openBackend(o *Options) (backend.Backend, error) {
	bopts := o.backendOptions()
	logger := o.Logger.With().Str("component", "store").Logger()

	primary, sqErr := sqlite.New(bopts)
	if sqErr == nil {
		ctx, cancel := context.WithTimeout(context.Background(), bopts.ConnectTimeout)
		sqErr = primary.Ping(ctx)
		cancel()
	}

	fallback, fErr := file.New(bopts)
	switch {
	case sqErr == nil && fErr == nil:
		return backend.NewFailover(primary, fallback, o.HealthCheckInterval, o.Logger), nil
	case sqErr == nil:
		logger.Warn().Err(fErr).Msg("file fallback unavailable, running on the durable backend only")
		return primary, nil
	case fErr == nil:
		logger.Warn().Err(sqErr).Msg("durable backend unavailable, running on the file fallback")
		return fallback, nil
	default:
		return nil, store.WrapError(store.CodeBackendUnavailable, "", sqErr,
			"both persistence paths failed (file fallback: %v)", fErr)
	}
}

// recover loads the persisted state into the cache and seeds indexes, size
// accounting and the per-key version clock.
func (s *Store) recover(ctx context.Context) error {
	entries, err := s.backend.LoadEntries(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	var stale []string
	s.mu.Lock()
	for _, e := range entries {
		s.lastVersion.Store(e.Key, e.Version)
		if e.Expired(now) {
			stale = append(stale, e.Key)
			continue
		}
		s.cache.Store(e.Key, e)
		s.index.Put(e.Key, entryTags(e))
		s.curBytes += int64(e.Meta.Size)
	}
	s.mu.Unlock()

	// Entries that expired while the store was down are cleaned up now; only
	// their version clock entry survives.
	for _, key := range stale {
		if _, err := s.backend.DeleteEntry(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("expired entry cleanup failed")
		}
	}

	s.logger.Info().
		Int("entries", s.cache.Size()).
		Int("expired", len(stale)).
		Msg("store recovered from backend")
	return nil
}

func entryTags(e *store.Entry) internal.EntryTags {
	var expires int64
	if !e.Meta.ExpiresAt.IsZero() {
		expires = e.Meta.ExpiresAt.UnixNano()
	}
	return internal.EntryTags{
		Namespace:    e.Namespace,
		DataType:     string(e.DataType),
		Owner:        e.Meta.Owner,
		ExpiresAt:    expires,
		LastAccessed: e.Meta.LastAccessed.UnixNano(),
	}
}

// validateKey rejects malformed keys fast instead of coercing them.
func validateKey(key string) error {
	if key == "" {
		return store.NewError(store.CodeValidation, key, "key must not be empty")
	}
	if strings.ContainsAny(key, "\x00\n\r") {
		return store.NewError(store.CodeValidation, key, "key contains control characters")
	}
	return nil
}

func (s *Store) newEvent(t store.EventType, key, agent, namespace string, ver uint64) store.Event {
	return store.Event{
		ID:        uuid.NewString(),
		Type:      t,
		Key:       key,
		Namespace: namespace,
		Agent:     agent,
		Version:   ver,
		Timestamp: time.Now(),
	}
}

// logEvent records the event row and delivers it to subscribers. Event-log
// failures are logged, never surfaced: observability must not fail writes.
func (s *Store) logEvent(ctx context.Context, evt store.Event) {
	if err := s.backend.RecordEvent(ctx, evt); err != nil {
		s.logger.Warn().Err(err).Str("key", evt.Key).Msg("event log write failed")
	}
	s.notifier.Publish(evt)
}

func (s *Store) logAccess(ctx context.Context, agent, key, accessType string) {
	if err := s.backend.RecordAccess(ctx, agent, key, accessType); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("access log write failed")
	}
}

// --------------------------------------------------------------------------
// Get
// --------------------------------------------------------------------------

// Get returns the current value of key (docu see store.IEntryStore).
func (s *Store) Get(ctx context.Context, key string, opts store.GetOptions) (store.GetResult, error) {
	if err := validateKey(key); err != nil {
		return store.GetResult{}, err
	}
	now := time.Now()

	e, ok := s.cache.Load(key)
	if ok && e.Expired(now) {
		// Lazily destroy the expired entry; it is logically absent already.
		s.removeExpired(ctx, key, e)
		ok = false
	}
	if !ok {
		// Cache miss: consult the persistence layer and promote on a hit.
		var err error
		e, ok, err = s.promote(ctx, key, now)
		if err != nil {
			return store.GetResult{}, err
		}
		if !ok {
			s.misses.Add(1)
			metrics.GetOrCreateCounter(`hivemem_gets_total{result="miss"}`).Inc()
			return store.GetResult{}, nil
		}
	}

	e = s.touch(key, e, now)
	s.hits.Add(1)
	metrics.GetOrCreateCounter(`hivemem_gets_total{result="hit"}`).Inc()
	s.logAccess(ctx, opts.Agent, key, backend.AccessRead)

	var value any
	if err := s.codec.Decode(e.Value, &value); err != nil {
		return store.GetResult{}, store.WrapError(store.CodeSerialization, key, err, "decode value")
	}
	return store.GetResult{Value: value, Meta: e.Meta, Found: true}, nil
}

// promote back-fills the cache from the persistence layer.
func (s *Store) promote(ctx context.Context, key string, now time.Time) (*store.Entry, bool, error) {
	e, found, err := s.backend.GetEntry(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	if e.Expired(now) {
		// Physically remove what is logically absent.
		if _, err := s.backend.DeleteEntry(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("expired entry cleanup failed")
		}
		return nil, false, nil
	}

	s.mu.Lock()
	if cur, ok := s.cache.Load(key); ok {
		// Lost the race against a concurrent writer; theirs is newer.
		s.mu.Unlock()
		return cur, true, nil
	}
	s.cache.Store(key, e)
	s.index.Put(key, entryTags(e))
	s.curBytes += int64(e.Meta.Size)
	if v, ok := s.lastVersion.Load(key); !ok || e.Version > v {
		s.lastVersion.Store(key, e.Version)
	}
	s.mu.Unlock()
	return e, true, nil
}

// touch updates the access metadata of an entry. Entries are immutable once
// cached, so the update commits a clone.
func (s *Store) touch(key string, e *store.Entry, now time.Time) *store.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.cache.Load(key)
	if !ok || cur.Version != e.Version {
		return e // concurrently mutated; access stats belong to the old life
	}
	updated := cur.Clone()
	updated.Meta.AccessCount++
	updated.Meta.LastAccessed = now
	s.cache.Store(key, updated)
	s.index.Touch(key, now.UnixNano())
	return updated
}

// --------------------------------------------------------------------------
// Set
// --------------------------------------------------------------------------

// Set inserts or updates key (docu see store.IEntryStore).
func (s *Store) Set(ctx context.Context, key string, value any, opts store.SetOptions) (store.SetResult, error) {
	if err := validateKey(key); err != nil {
		return store.SetResult{}, err
	}
	dataType := opts.DataType
	if dataType == "" {
		dataType = store.DataTypeCached
	}
	if !dataType.Valid() {
		return store.SetResult{}, store.NewError(store.CodeValidation, key, "unknown data type %q", dataType)
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = s.opts.DefaultNamespace
	}
	if opts.TTL < 0 {
		return store.SetResult{}, store.NewError(store.CodeValidation, key, "ttl must not be negative")
	}

	encoded, err := s.codec.Encode(value)
	if err != nil {
		return store.SetResult{}, store.WrapError(store.CodeSerialization, key, err, "encode value")
	}
	size := len(encoded)

	// Seed the version clock for keys first seen after a restart, so a
	// delete-then-recreate across restarts cannot reuse a recorded version.
	if _, ok := s.lastVersion.Load(key); !ok {
		if latest, err := s.versions.Latest(ctx, key); err == nil && latest > 0 {
			s.lastVersion.Compute(key, func(old uint64, loaded bool) (uint64, bool) {
				return max(old, latest), false
			})
		}
	}

	entry, res, err := s.commit(ctx, key, encoded, size, namespace, dataType, opts)
	if err != nil {
		return store.SetResult{}, err
	}

	// Persist depending on policy; transient entries stay cache-only. A
	// transient write also clears any persisted row left by an earlier life
	// of the key, so stale values cannot resurrect after a restart.
	if dataType != store.DataTypeTransient {
		if err := s.backend.PutEntry(ctx, entry); err != nil {
			return store.SetResult{}, err
		}
	} else if _, err := s.backend.DeleteEntry(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("transient overwrite cleanup failed")
	}
	if dataType == store.DataTypeVersioned {
		rec := store.VersionRecord{
			Key:       key,
			Version:   entry.Version,
			Value:     entry.Value,
			Meta:      entry.Meta,
			CreatedAt: entry.Meta.UpdatedAt,
		}
		if err := s.versions.Append(ctx, rec); err != nil {
			return store.SetResult{}, err
		}
	}

	metrics.GetOrCreateCounter(`hivemem_sets_total`).Inc()
	s.logAccess(ctx, opts.Agent, key, backend.AccessWrite)
	s.logEvent(ctx, s.newEvent(store.EventSet, key, opts.Agent, namespace, entry.Version))
	s.maybeSignalPressure()
	return res, nil
}

// commit performs the in-memory mutation of a Set under the store mutex:
// capacity enforcement, version computation, cache and index update.
func (s *Store) commit(ctx context.Context, key string, encoded []byte, size int,
	namespace string, dataType store.DataType, opts store.SetOptions) (*store.Entry, store.SetResult, error) {

	now := time.Now()

	checkCapacity := func() (int64, int, bool) {
		prev, loaded := s.cache.Load(key)
		projBytes := s.curBytes + int64(size)
		projEntries := s.cache.Size()
		if loaded && !prev.Expired(now) {
			projBytes -= int64(prev.Meta.Size)
		} else {
			projEntries++
		}
		return projBytes, projEntries, projBytes <= s.opts.MaxMemorySize && projEntries <= s.opts.MaxEntries
	}

	s.mu.Lock()
	if _, _, ok := checkCapacity(); !ok {
		// Over the ceiling: sweep ahead of schedule, then re-check. The
		// ceiling is enforced, not advisory.
		s.mu.Unlock()
		s.sweep(ctx, sweepPressure)
		s.mu.Lock()
		if projBytes, projEntries, ok := checkCapacity(); !ok {
			s.mu.Unlock()
			metrics.GetOrCreateCounter(`hivemem_capacity_rejections_total`).Inc()
			return nil, store.SetResult{}, store.NewError(store.CodeResourceExhausted, key,
				"write would exceed capacity (%d bytes of %d, %d entries of %d) after GC",
				projBytes, s.opts.MaxMemorySize, projEntries, s.opts.MaxEntries)
		}
	}
	defer s.mu.Unlock()

	prev, loaded := s.cache.Load(key)

	// Writes to a locked entry require the caller to hold the key lock.
	if (loaded && prev.DataType == store.DataTypeLocked) || dataType == store.DataTypeLocked {
		holder, ok := s.locks.Holder(key)
		if !ok || holder.Holder != opts.Agent {
			return nil, store.SetResult{}, store.NewError(store.CodePermission, key,
				"locked entry requires the current lock holder")
		}
	}

	var ver uint64
	s.lastVersion.Compute(key, func(old uint64, _ bool) (uint64, bool) {
		ver = old + 1
		return ver, false
	})

	var expiresAt time.Time
	if opts.TTL > 0 {
		expiresAt = now.Add(opts.TTL)
	}

	entry := &store.Entry{
		Key:       key,
		Namespace: namespace,
		DataType:  dataType,
		Value:     encoded,
		Version:   ver,
		Meta: store.Metadata{
			CreatedAt:    now,
			UpdatedAt:    now,
			ExpiresAt:    expiresAt,
			Size:         size,
			AccessCount:  0,
			LastAccessed: now,
			Owner:        opts.Agent,
		},
	}
	if loaded && !prev.Expired(now) {
		entry.Meta.CreatedAt = prev.Meta.CreatedAt
		entry.Meta.AccessCount = prev.Meta.AccessCount
		s.curBytes -= int64(prev.Meta.Size)
	}
	s.curBytes += int64(size)
	s.cache.Store(key, entry)
	s.index.Put(key, entryTags(entry))

	return entry, store.SetResult{Version: ver, Size: size, ExpiresAt: expiresAt}, nil
}

// --------------------------------------------------------------------------
// Delete
// --------------------------------------------------------------------------

// Delete removes key everywhere (docu see store.IEntryStore).
func (s *Store) Delete(ctx context.Context, key string, opts store.DeleteOptions) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	s.mu.Lock()
	prev, cached := s.cache.LoadAndDelete(key)
	if cached {
		s.index.Remove(key)
		s.curBytes -= int64(prev.Meta.Size)
	}
	s.mu.Unlock()

	persisted, err := s.backend.DeleteEntry(ctx, key)
	if err != nil {
		return cached, err
	}
	existed := cached || persisted
	if !existed {
		return false, nil
	}

	if opts.PurgeVersions {
		if _, err := s.versions.Purge(ctx, key); err != nil {
			return true, err
		}
	}

	metrics.GetOrCreateCounter(`hivemem_deletes_total`).Inc()
	s.logAccess(ctx, opts.Agent, key, backend.AccessDelete)
	var ver uint64
	if cached {
		ver = prev.Version
	}
	s.logEvent(ctx, s.newEvent(store.EventDelete, key, opts.Agent, "", ver))
	return true, nil
}

// removeExpired destroys an entry whose expiration has passed. Called lazily
// from Get and from the GC sweep.
func (s *Store) removeExpired(ctx context.Context, key string, expected *store.Entry) {
	s.mu.Lock()
	cur, ok := s.cache.Load(key)
	if !ok || cur.Version != expected.Version || !cur.Expired(time.Now()) {
		s.mu.Unlock()
		return // re-created or refreshed in the meantime
	}
	s.cache.Delete(key)
	s.index.Remove(key)
	s.curBytes -= int64(cur.Meta.Size)
	s.mu.Unlock()

	if _, err := s.backend.DeleteEntry(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("expired entry cleanup failed")
	}
	s.expiredTotal.Add(1)
	metrics.GetOrCreateCounter(`hivemem_expired_total`).Inc()
	s.logEvent(ctx, s.newEvent(store.EventExpire, key, "", cur.Namespace, cur.Version))
}

// --------------------------------------------------------------------------
// Keys
// --------------------------------------------------------------------------

// Keys lists keys matching the filter (docu see store.IEntryStore).
func (s *Store) Keys(ctx context.Context, f store.Filter) ([]string, error) {
	var matcher *pubsub.Matcher
	if f.Pattern != "" {
		var err error
		matcher, err = pubsub.CompileMatcher(f.Pattern)
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	candidates, indexed := s.index.Lookup(f.Namespace, string(f.DataType), f.Owner)
	s.mu.Unlock()

	seen := make(map[string]struct{})
	if !indexed {
		// No usable index: full scan across the cache and persistent key
		// sets. Slower, never incorrect.
		s.cache.Range(func(key string, _ *store.Entry) bool {
			seen[key] = struct{}{}
			return true
		})
		persisted, err := s.backend.Keys(ctx, f)
		if err != nil {
			return nil, err
		}
		for _, k := range persisted {
			seen[k] = struct{}{}
		}
	} else {
		for _, k := range candidates {
			seen[k] = struct{}{}
		}
	}

	// Candidates are always re-validated against authoritative metadata, so
	// index staleness can never surface wrong results.
	now := time.Now()
	keys := make([]string, 0, len(seen))
	for key := range seen {
		e, ok := s.cache.Load(key)
		if !ok {
			var err error
			e, ok, err = s.backend.GetEntry(ctx, key)
			if err != nil {
				return nil, err
			}
		}
		if !ok || e.Expired(now) || !f.MatchMeta(e) {
			continue
		}
		if matcher != nil && !matcher.Match(key) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// --------------------------------------------------------------------------
// Versions, Locks, Subscriptions, Stats
// --------------------------------------------------------------------------

// GetVersion retrieves a historical value (docu see store.IEntryStore).
func (s *Store) GetVersion(ctx context.Context, key string, ver uint64) (store.GetResult, error) {
	if err := validateKey(key); err != nil {
		return store.GetResult{}, err
	}
	rec, found, err := s.versions.Get(ctx, key, ver)
	if err != nil || !found {
		return store.GetResult{}, err
	}
	var value any
	if err := s.codec.Decode(rec.Value, &value); err != nil {
		return store.GetResult{}, store.WrapError(store.CodeSerialization, key, err, "decode version %d", ver)
	}
	return store.GetResult{Value: value, Meta: rec.Meta, Found: true}, nil
}

// Subscribe registers a mutation callback (docu see store.IEntryStore).
func (s *Store) Subscribe(pattern string, events []store.EventType, fn store.SubscriberFunc) (store.CancelFunc, error) {
	return s.notifier.Subscribe(pattern, "", events, fn)
}

// AcquireLock takes an exclusive claim on key (docu see store.IEntryStore).
func (s *Store) AcquireLock(key, holder string, ttl time.Duration) error {
	_, err := s.locks.Acquire(key, holder, ttl)
	return err
}

// ReleaseLock frees the claim on key (docu see store.IEntryStore).
func (s *Store) ReleaseLock(key, holder string) (bool, error) {
	return s.locks.Release(key, holder)
}

// GetStats returns a point-in-time summary (docu see store.IEntryStore).
func (s *Store) GetStats() store.Stats {
	s.mu.Lock()
	bytes := s.curBytes
	s.mu.Unlock()

	st := store.Stats{
		Entries:       s.cache.Size(),
		SizeBytes:     bytes,
		MaxEntries:    s.opts.MaxEntries,
		MaxMemorySize: s.opts.MaxMemorySize,
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		GCRuns:        s.gcRuns.Load(),
		Expired:       s.expiredTotal.Load(),
		Evicted:       s.evictedTotal.Load(),
		Subscriptions: s.notifier.Len(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.QueryTimeout)
	defer cancel()
	if info, err := s.backend.Info(ctx); err == nil {
		st.Backend = string(info.Kind)
	}
	if d, ok := s.backend.(interface{ Degraded() bool }); ok {
		st.Degraded = d.Degraded()
	}
	return st
}

// Close stops the garbage collector and closes the persistence layer.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.gcDone
		s.closeErr = s.backend.Close()
	})
	return s.closeErr
}

// --------------------------------------------------------------------------
// Lock Journal Adapter
// --------------------------------------------------------------------------

// backendJournal mirrors lock table changes into the durable backend,
// best-effort. Locking must never block on or fail with backend trouble.
type backendJournal struct {
	backend backend.Backend
	timeout time.Duration
	logger  zerolog.Logger
}

func (j *backendJournal) RecordLock(l lockmgr.Lock) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.backend.RecordLock(ctx, l); err != nil {
		j.logger.Debug().Err(err).Str("key", l.Key).Msg("lock journal write failed")
	}
}

func (j *backendJournal) RemoveLock(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.backend.RemoveLock(ctx, key); err != nil {
		j.logger.Debug().Err(err).Str("key", key).Msg("lock journal delete failed")
	}
}
