// Package file implements the fallback backend of the entry store: the whole
// store is held in memory and persisted as a single JSON snapshot file.
//
// Snapshots are written to a temp file and atomically renamed into place so a
// crash mid-write can never corrupt the previous snapshot. Before each
// rewrite the current snapshot is copied to a timestamped backup; only the
// most recent backups are kept.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/agenthive/hivemem/lib/backend"
	"github.com/agenthive/hivemem/lib/lockmgr"
	"github.com/agenthive/hivemem/lib/store"
	"github.com/rs/zerolog"
)

const (
	snapshotName = "hivemem-snapshot.json"
	backupKeep   = 3
)

// snapshot is the on-disk format: {entries, versions, stats} plus a save
// timestamp. Lock and access-log state is runtime-only and not persisted.
type snapshot struct {
	SavedAt  time.Time                        `json:"saved_at"`
	Entries  map[string]*store.Entry          `json:"entries"`
	Versions map[string][]store.VersionRecord `json:"versions"`
	Stats    snapshotStats                    `json:"stats"`
}

type snapshotStats struct {
	Saves    uint64 `json:"saves"`
	Accesses uint64 `json:"accesses"`
	Events   uint64 `json:"events"`
}

type fileBackend struct {
	mu       sync.RWMutex
	entries  map[string]*store.Entry
	versions map[string][]store.VersionRecord
	locks    map[string]lockmgr.Lock
	stats    snapshotStats
	dirty    bool

	path   string
	logger zerolog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New creates a file backend rooted at opts.Dir, loading an existing
// snapshot when present and starting the periodic save loop.
func New(opts backend.Options) (backend.Backend, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, store.WrapError(store.CodeBackendUnavailable, "", err, "create backend dir %q", opts.Dir)
	}

	b := &fileBackend{
		entries:  make(map[string]*store.Entry),
		versions: make(map[string][]store.VersionRecord),
		locks:    make(map[string]lockmgr.Lock),
		path:     filepath.Join(opts.Dir, snapshotName),
		logger:   opts.Logger.With().Str("component", "backend.file").Logger(),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	if err := b.load(); err != nil {
		return nil, err
	}

	saveInterval := opts.SaveInterval
	if saveInterval <= 0 {
		saveInterval = 30 * time.Second
	}
	go b.saveLoop(saveInterval)

	return b, nil
}

// --------------------------------------------------------------------------
// Snapshot I/O
// --------------------------------------------------------------------------

func (b *fileBackend) load() error {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return store.WrapError(store.CodeBackendUnavailable, "", err, "read snapshot %q", b.path)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return store.WrapError(store.CodeSerialization, "", err, "decode snapshot %q", b.path)
	}
	if snap.Entries != nil {
		b.entries = snap.Entries
	}
	if snap.Versions != nil {
		b.versions = snap.Versions
	}
	b.stats = snap.Stats
	return nil
}

// save writes the current state as a new snapshot. Write-to-temp-then-rename
// keeps the previous snapshot intact on a crash mid-write.
func (b *fileBackend) save() error {
	b.mu.Lock()
	if !b.dirty {
		b.mu.Unlock()
		return nil
	}
	b.stats.Saves++
	snap := snapshot{
		SavedAt:  time.Now(),
		Entries:  b.entries,
		Versions: b.versions,
		Stats:    b.stats,
	}
	data, err := json.Marshal(&snap)
	b.dirty = false
	b.mu.Unlock()
	if err != nil {
		return store.WrapError(store.CodeSerialization, "", err, "encode snapshot")
	}

	b.backupCurrent()

	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".hivemem-snapshot-*")
	if err != nil {
		return store.WrapError(store.CodeBackendUnavailable, "", err, "create temp snapshot")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return store.WrapError(store.CodeBackendUnavailable, "", err, "write temp snapshot")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return store.WrapError(store.CodeBackendUnavailable, "", err, "close temp snapshot")
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		os.Remove(tmpName)
		return store.WrapError(store.CodeBackendUnavailable, "", err, "replace snapshot")
	}
	return nil
}

// backupCurrent copies the live snapshot to a timestamped sibling and prunes
// backups beyond backupKeep. Failures only cost history, never correctness.
func (b *fileBackend) backupCurrent() {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return
	}
	name := fmt.Sprintf("%s.%s.bak", b.path, time.Now().UTC().Format("20060102T150405.000"))
	if err := os.WriteFile(name, data, 0o644); err != nil {
		b.logger.Warn().Err(err).Msg("snapshot backup failed")
		return
	}
	backups, err := filepath.Glob(b.path + ".*.bak")
	if err != nil || len(backups) <= backupKeep {
		return
	}
	sort.Strings(backups)
	for _, old := range backups[:len(backups)-backupKeep] {
		os.Remove(old)
	}
}

func (b *fileBackend) saveLoop(interval time.Duration) {
	defer close(b.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			if err := b.save(); err != nil {
				b.logger.Error().Err(err).Msg("periodic snapshot save failed")
			}
		}
	}
}

// --------------------------------------------------------------------------
// Interface Methods - Entries (docu see backend/interface.go)
// --------------------------------------------------------------------------

func (b *fileBackend) PutEntry(_ context.Context, e *store.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[e.Key] = e.Clone()
	b.dirty = true
	return nil
}

func (b *fileBackend) GetEntry(_ context.Context, key string) (*store.Entry, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[key]
	if !ok {
		return nil, false, nil
	}
	return e.Clone(), true, nil
}

func (b *fileBackend) DeleteEntry(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, existed := b.entries[key]
	if existed {
		delete(b.entries, key)
		b.dirty = true
	}
	return existed, nil
}

func (b *fileBackend) Keys(_ context.Context, f store.Filter) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var keys []string
	for k, e := range b.entries {
		if f.MatchMeta(e) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (b *fileBackend) LoadEntries(_ context.Context) ([]*store.Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entries := make([]*store.Entry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e.Clone())
	}
	return entries, nil
}

// --------------------------------------------------------------------------
// Interface Methods - Versions
// --------------------------------------------------------------------------

func (b *fileBackend) AppendVersion(_ context.Context, rec store.VersionRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.versions[rec.Key] {
		if existing.Version == rec.Version {
			return store.NewError(store.CodeConflict, rec.Key,
				"version %d already recorded", rec.Version)
		}
	}
	b.versions[rec.Key] = append(b.versions[rec.Key], rec)
	b.dirty = true
	return nil
}

func (b *fileBackend) GetVersion(_ context.Context, key string, version uint64) (store.VersionRecord, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, rec := range b.versions[key] {
		if rec.Version == version {
			return rec, true, nil
		}
	}
	return store.VersionRecord{}, false, nil
}

func (b *fileBackend) ListVersions(_ context.Context, key string) ([]uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	recs := b.versions[key]
	versions := make([]uint64, 0, len(recs))
	for _, rec := range recs {
		versions = append(versions, rec.Version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}

func (b *fileBackend) PurgeVersions(_ context.Context, key string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.versions[key])
	if n > 0 {
		delete(b.versions, key)
		b.dirty = true
	}
	return n, nil
}

// --------------------------------------------------------------------------
// Interface Methods - Locks and Hive Logs
// --------------------------------------------------------------------------

func (b *fileBackend) RecordLock(_ context.Context, l lockmgr.Lock) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locks[l.Key] = l
	return nil
}

func (b *fileBackend) RemoveLock(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.locks, key)
	return nil
}

func (b *fileBackend) RecordAccess(_ context.Context, agent, _, _ string) error {
	if agent == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.Accesses++
	return nil
}

func (b *fileBackend) RecordEvent(_ context.Context, _ store.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.Events++
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods - Metadata and Lifecycle
// --------------------------------------------------------------------------

func (b *fileBackend) Info(_ context.Context) (backend.Info, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	info := backend.Info{Kind: backend.KindFile, Path: b.path, Entries: len(b.entries)}
	for _, recs := range b.versions {
		info.Versions += len(recs)
	}
	for _, e := range b.entries {
		info.SizeBytes += int64(e.Meta.Size)
	}
	return info, nil
}

func (b *fileBackend) Ping(_ context.Context) error {
	// The fallback is available as long as its directory is writable.
	f, err := os.CreateTemp(filepath.Dir(b.path), ".hivemem-ping-*")
	if err != nil {
		return store.WrapError(store.CodeBackendUnavailable, "", err, "snapshot dir not writable")
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return nil
}

func (b *fileBackend) Close() error {
	b.stopOnce.Do(func() { close(b.stopCh) })
	<-b.done
	return b.save()
}
