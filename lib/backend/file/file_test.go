package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agenthive/hivemem/lib/backend"
	"github.com/agenthive/hivemem/lib/backend/file"
	backendtesting "github.com/agenthive/hivemem/lib/backend/testing"
	"github.com/agenthive/hivemem/lib/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(dir string) backend.Options {
	return backend.Options{
		Dir:          dir,
		SaveInterval: 50 * time.Millisecond,
		Logger:       zerolog.Nop(),
	}
}

func TestFileBackendConformance(t *testing.T) {
	backendtesting.RunBackendTests(t, "file", func(t *testing.T) backend.Backend {
		b, err := file.New(testOptions(t.TempDir()))
		require.NoError(t, err)
		return b
	})
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := file.New(testOptions(dir))
	require.NoError(t, err)
	require.NoError(t, b.PutEntry(ctx, &store.Entry{
		Key:      "k",
		DataType: store.DataTypePersistent,
		Value:    []byte(`"v"`),
		Version:  2,
		Meta:     store.Metadata{CreatedAt: time.Now(), UpdatedAt: time.Now(), Size: 3},
	}))
	require.NoError(t, b.AppendVersion(ctx, store.VersionRecord{
		Key: "k", Version: 2, Value: []byte(`"v"`), CreatedAt: time.Now(),
	}))
	require.NoError(t, b.Close()) // Close saves the final snapshot

	b2, err := file.New(testOptions(dir))
	require.NoError(t, err)
	defer b2.Close()

	got, found, err := b2.GetEntry(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(2), got.Version)

	versions, err := b2.ListVersions(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, versions)
}

func TestSnapshotBackupsArePruned(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// every reopen-with-changes rewrites the snapshot and creates a backup
	for i := 0; i < 6; i++ {
		b, err := file.New(testOptions(dir))
		require.NoError(t, err)
		require.NoError(t, b.PutEntry(ctx, &store.Entry{
			Key:      "k",
			DataType: store.DataTypeCached,
			Value:    []byte{byte(i)},
			Version:  uint64(i + 1),
			Meta:     store.Metadata{CreatedAt: time.Now(), UpdatedAt: time.Now(), Size: 1},
		}))
		require.NoError(t, b.Close())
		time.Sleep(5 * time.Millisecond) // distinct backup timestamps
	}

	backups, err := filepath.Glob(filepath.Join(dir, "*.bak"))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(backups), 3, "old backups must be pruned")
	assert.NotEmpty(t, backups)
}

func TestCorruptSnapshotFailsLoudly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hivemem-snapshot.json"), []byte("{not json"), 0o644))

	_, err := file.New(testOptions(dir))
	require.Error(t, err)
	assert.True(t, store.IsSerialization(err), "corrupt snapshot must surface as Serialization, got %v", err)
}
