// Package testing provides a reusable conformance suite for backend
// implementations. Every backend (and every backend wrapper) must pass the
// same suite; behavior differences between backends are bugs.
package testing

import (
	"context"
	"testing"
	"time"

	"github.com/agenthive/hivemem/lib/backend"
	"github.com/agenthive/hivemem/lib/lockmgr"
	"github.com/agenthive/hivemem/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// BackendFactory creates a fresh, empty backend per test.
type BackendFactory func(t *testing.T) backend.Backend

// RunBackendTests runs the conformance suite against a backend implementation.
func RunBackendTests(t *testing.T, name string, factory BackendFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("PutGetEntry", func(t *testing.T) {
			testPutGetEntry(t, factory(t))
		})

		t.Run("DeleteEntry", func(t *testing.T) {
			testDeleteEntry(t, factory(t))
		})

		t.Run("KeysFilter", func(t *testing.T) {
			testKeysFilter(t, factory(t))
		})

		t.Run("LoadEntries", func(t *testing.T) {
			testLoadEntries(t, factory(t))
		})

		t.Run("Versions", func(t *testing.T) {
			testVersions(t, factory(t))
		})

		t.Run("VersionConflict", func(t *testing.T) {
			testVersionConflict(t, factory(t))
		})

		t.Run("Locks", func(t *testing.T) {
			testLocks(t, factory(t))
		})

		t.Run("AccessAndEvents", func(t *testing.T) {
			testAccessAndEvents(t, factory(t))
		})

		t.Run("InfoPing", func(t *testing.T) {
			testInfoPing(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func newEntry(key, namespace string, dataType store.DataType, value []byte, version uint64) *store.Entry {
	now := time.Now().Truncate(time.Millisecond)
	return &store.Entry{
		Key:       key,
		Namespace: namespace,
		DataType:  dataType,
		Value:     value,
		Version:   version,
		Meta: store.Metadata{
			CreatedAt:    now,
			UpdatedAt:    now,
			Size:         len(value),
			LastAccessed: now,
			Owner:        "agent-1",
		},
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGetEntry(t *testing.T, b backend.Backend) {
	t.Cleanup(func() { b.Close() })
	ctx := context.Background()

	_, found, err := b.GetEntry(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	want := newEntry("k1", "shared_state", store.DataTypeCached, []byte(`"hello"`), 1)
	require.NoError(t, b.PutEntry(ctx, want))

	got, found, err := b.GetEntry(ctx, "k1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want.Key, got.Key)
	assert.Equal(t, want.Namespace, got.Namespace)
	assert.Equal(t, want.DataType, got.DataType)
	assert.Equal(t, want.Value, got.Value)
	assert.Equal(t, want.Version, got.Version)
	assert.Equal(t, want.Meta.Owner, got.Meta.Owner)
	assert.Equal(t, want.Meta.Size, got.Meta.Size)

	// upsert overwrites
	want2 := newEntry("k1", "shared_state", store.DataTypeCached, []byte(`"world"`), 2)
	require.NoError(t, b.PutEntry(ctx, want2))
	got, found, err = b.GetEntry(ctx, "k1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(2), got.Version)
	assert.Equal(t, []byte(`"world"`), got.Value)
}

func testDeleteEntry(t *testing.T, b backend.Backend) {
	t.Cleanup(func() { b.Close() })
	ctx := context.Background()

	existed, err := b.DeleteEntry(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, existed)

	require.NoError(t, b.PutEntry(ctx, newEntry("k1", "ns", store.DataTypeCached, []byte("1"), 1)))
	existed, err = b.DeleteEntry(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, existed)

	_, found, err := b.GetEntry(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, found)
}

func testKeysFilter(t *testing.T, b backend.Backend) {
	t.Cleanup(func() { b.Close() })
	ctx := context.Background()

	require.NoError(t, b.PutEntry(ctx, newEntry("a", "agent_context", store.DataTypeCached, []byte("1"), 1)))
	require.NoError(t, b.PutEntry(ctx, newEntry("b", "task_results", store.DataTypePersistent, []byte("2"), 1)))
	e := newEntry("c", "task_results", store.DataTypeCached, []byte("3"), 1)
	e.Meta.Owner = "agent-2"
	require.NoError(t, b.PutEntry(ctx, e))

	keys, err := b.Keys(ctx, store.Filter{Namespace: "task_results"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c"}, keys)

	keys, err = b.Keys(ctx, store.Filter{DataType: store.DataTypePersistent})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b"}, keys)

	keys, err = b.Keys(ctx, store.Filter{Owner: "agent-2"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c"}, keys)

	keys, err = b.Keys(ctx, store.Filter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, keys)
}

func testLoadEntries(t *testing.T, b backend.Backend) {
	t.Cleanup(func() { b.Close() })
	ctx := context.Background()

	for _, key := range []string{"x", "y", "z"} {
		require.NoError(t, b.PutEntry(ctx, newEntry(key, "ns", store.DataTypeCached, []byte(key), 1)))
	}
	entries, err := b.LoadEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	seen := map[string]bool{}
	for _, e := range entries {
		seen[e.Key] = true
	}
	assert.True(t, seen["x"] && seen["y"] && seen["z"])
}

func testVersions(t *testing.T, b backend.Backend) {
	t.Cleanup(func() { b.Close() })
	ctx := context.Background()

	for v := uint64(1); v <= 3; v++ {
		require.NoError(t, b.AppendVersion(ctx, store.VersionRecord{
			Key:       "k",
			Version:   v,
			Value:     []byte{byte(v)},
			CreatedAt: time.Now(),
		}))
	}

	versions, err := b.ListVersions(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, versions)

	rec, found, err := b.GetVersion(ctx, "k", 2)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte{2}, rec.Value)

	_, found, err = b.GetVersion(ctx, "k", 99)
	require.NoError(t, err)
	assert.False(t, found)

	n, err := b.PurgeVersions(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	versions, err = b.ListVersions(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func testVersionConflict(t *testing.T, b backend.Backend) {
	t.Cleanup(func() { b.Close() })
	ctx := context.Background()

	rec := store.VersionRecord{Key: "k", Version: 1, Value: []byte("v1"), CreatedAt: time.Now()}
	require.NoError(t, b.AppendVersion(ctx, rec))

	err := b.AppendVersion(ctx, rec)
	require.Error(t, err)
	assert.True(t, store.IsConflict(err), "re-appending an existing version must be a conflict, got %v", err)

	// the original record is untouched
	got, found, err := b.GetVersion(ctx, "k", 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v1"), got.Value)
}

func testLocks(t *testing.T, b backend.Backend) {
	t.Cleanup(func() { b.Close() })
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, b.RecordLock(ctx, lockmgr.Lock{
		Key:        "k",
		Holder:     "agent-1",
		Mode:       "exclusive",
		AcquiredAt: now,
		ExpiresAt:  now.Add(5 * time.Second),
	}))
	require.NoError(t, b.RemoveLock(ctx, "k"))
	// removing an absent lock is not an error
	require.NoError(t, b.RemoveLock(ctx, "k"))
}

func testAccessAndEvents(t *testing.T, b backend.Backend) {
	t.Cleanup(func() { b.Close() })
	ctx := context.Background()

	require.NoError(t, b.RecordAccess(ctx, "agent-1", "k", backend.AccessRead))
	// empty agent is skipped, not an error
	require.NoError(t, b.RecordAccess(ctx, "", "k", backend.AccessRead))

	require.NoError(t, b.RecordEvent(ctx, store.Event{
		ID:        "evt-1",
		Type:      store.EventSet,
		Key:       "k",
		Namespace: "ns",
		Agent:     "agent-1",
		Version:   1,
		Timestamp: time.Now(),
	}))
}

func testInfoPing(t *testing.T, b backend.Backend) {
	t.Cleanup(func() { b.Close() })
	ctx := context.Background()

	require.NoError(t, b.Ping(ctx))

	require.NoError(t, b.PutEntry(ctx, newEntry("k", "ns", store.DataTypeCached, []byte("abc"), 1)))
	info, err := b.Info(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, info.Kind)
	assert.Equal(t, 1, info.Entries)
}
