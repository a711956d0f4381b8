package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agenthive/hivemem/lib/backend"
	"github.com/agenthive/hivemem/lib/backend/sqlite"
	backendtesting "github.com/agenthive/hivemem/lib/backend/testing"
	"github.com/agenthive/hivemem/lib/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(dir string) backend.Options {
	return backend.Options{
		Dir:            dir,
		PoolMinSize:    1,
		PoolMaxSize:    4,
		ConnectTimeout: 2 * time.Second,
		QueryTimeout:   5 * time.Second,
		Logger:         zerolog.Nop(),
	}
}

func TestSQLiteBackendConformance(t *testing.T) {
	backendtesting.RunBackendTests(t, "sqlite", func(t *testing.T) backend.Backend {
		b, err := sqlite.New(testOptions(t.TempDir()))
		require.NoError(t, err)
		return b
	})
}

func TestEntriesSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := sqlite.New(testOptions(dir))
	require.NoError(t, err)
	require.NoError(t, b.PutEntry(ctx, &store.Entry{
		Key:       "k",
		Namespace: "ns",
		DataType:  store.DataTypePersistent,
		Value:     []byte(`"v"`),
		Version:   3,
		Meta:      store.Metadata{CreatedAt: time.Now(), UpdatedAt: time.Now(), Size: 3},
	}))
	require.NoError(t, b.Close())

	b2, err := sqlite.New(testOptions(dir))
	require.NoError(t, err)
	defer b2.Close()

	got, found, err := b2.GetEntry(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(3), got.Version)
	assert.Equal(t, []byte(`"v"`), got.Value)

	entries, err := b2.LoadEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPoolExhaustion(t *testing.T) {
	opts := testOptions(t.TempDir())
	opts.PoolMaxSize = 1
	opts.ConnectTimeout = 50 * time.Millisecond
	opts.QueryTimeout = 5 * time.Second

	b, err := sqlite.New(opts)
	require.NoError(t, err)
	defer b.Close()

	// With a single slot and a tiny acquire timeout, parallel writers either
	// get the slot in time or fail with ResourceExhausted. Any other error
	// class is a bug.
	const writers = 16
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errCh <- b.PutEntry(context.Background(), &store.Entry{
				Key:      "k",
				DataType: store.DataTypeCached,
				Value:    []byte(`"v"`),
				Version:  uint64(i + 1),
				Meta:     store.Metadata{CreatedAt: time.Now(), UpdatedAt: time.Now(), Size: 3},
			})
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			assert.True(t, store.IsResourceExhausted(err),
				"pool exhaustion must surface as ResourceExhausted, got %v", err)
		}
	}
}
