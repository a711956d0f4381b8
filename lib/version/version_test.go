package version_test

import (
	"context"
	"testing"
	"time"

	"github.com/agenthive/hivemem/lib/backend"
	"github.com/agenthive/hivemem/lib/backend/file"
	"github.com/agenthive/hivemem/lib/store"
	"github.com/agenthive/hivemem/lib/version"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVersionStore(t *testing.T) version.IVersionStore {
	t.Helper()
	b, err := file.New(backend.Options{
		Dir:          t.TempDir(),
		SaveInterval: time.Minute,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return version.New(b)
}

func TestAppendAndRetrieve(t *testing.T) {
	v := newVersionStore(t)
	ctx := context.Background()

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, v.Append(ctx, store.VersionRecord{
			Key:     "doc",
			Version: i,
			Value:   []byte{byte(i)},
		}))
	}

	rec, found, err := v.Get(ctx, "doc", 2)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte{2}, rec.Value)
	assert.False(t, rec.CreatedAt.IsZero(), "Append must default CreatedAt")

	versions, err := v.List(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, versions)

	latest, err := v.Latest(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), latest)

	latest, err = v.Latest(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), latest)
}

func TestAppendValidation(t *testing.T) {
	v := newVersionStore(t)
	ctx := context.Background()

	err := v.Append(ctx, store.VersionRecord{Key: "", Version: 1})
	assert.True(t, store.IsValidation(err))

	err = v.Append(ctx, store.VersionRecord{Key: "doc", Version: 0})
	assert.True(t, store.IsValidation(err))
}

func TestAppendIsImmutable(t *testing.T) {
	v := newVersionStore(t)
	ctx := context.Background()

	require.NoError(t, v.Append(ctx, store.VersionRecord{Key: "doc", Version: 1, Value: []byte("first")}))

	err := v.Append(ctx, store.VersionRecord{Key: "doc", Version: 1, Value: []byte("overwrite")})
	assert.True(t, store.IsConflict(err), "recorded versions must never be mutated, got %v", err)

	rec, found, err := v.Get(ctx, "doc", 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("first"), rec.Value)
}

func TestPurge(t *testing.T) {
	v := newVersionStore(t)
	ctx := context.Background()

	for i := uint64(1); i <= 4; i++ {
		require.NoError(t, v.Append(ctx, store.VersionRecord{Key: "doc", Version: i}))
	}

	n, err := v.Purge(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	versions, err := v.List(ctx, "doc")
	require.NoError(t, err)
	assert.Empty(t, versions)

	n, err = v.Purge(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
