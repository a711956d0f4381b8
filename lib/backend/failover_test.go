package backend_test

import (
	"context"
	"sync/atomic"
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

func newFileBackend(t *testing.T) backend.Backend {
	t.Helper()
	b, err := file.New(backend.Options{
		Dir:          t.TempDir(),
		SaveInterval: time.Minute,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return b
}

// flaky wraps a backend and can be switched into a failing state where every
// overridden call reports unavailability.
type flaky struct {
	backend.Backend
	fail atomic.Bool
}

func (f *flaky) unavailable() error {
	return store.NewError(store.CodeBackendUnavailable, "", "injected failure")
}

func (f *flaky) PutEntry(ctx context.Context, e *store.Entry) error {
	if f.fail.Load() {
		return f.unavailable()
	}
	return f.Backend.PutEntry(ctx, e)
}

func (f *flaky) GetEntry(ctx context.Context, key string) (*store.Entry, bool, error) {
	if f.fail.Load() {
		return nil, false, f.unavailable()
	}
	return f.Backend.GetEntry(ctx, key)
}

func (f *flaky) Ping(ctx context.Context) error {
	if f.fail.Load() {
		return f.unavailable()
	}
	return f.Backend.Ping(ctx)
}

func TestFailoverConformance(t *testing.T) {
	// the wrapper must be indistinguishable from a plain backend
	backendtesting.RunBackendTests(t, "failover", func(t *testing.T) backend.Backend {
		return backend.NewFailover(newFileBackend(t), newFileBackend(t), 0, zerolog.Nop())
	})
}

func TestFailoverDegradesAndRecovers(t *testing.T) {
	ctx := context.Background()
	primary := &flaky{Backend: newFileBackend(t)}
	fallback := newFileBackend(t)

	f := backend.NewFailover(primary, fallback, 20*time.Millisecond, zerolog.Nop())
	t.Cleanup(func() { f.Close() })

	entry := &store.Entry{
		Key:      "k",
		DataType: store.DataTypeCached,
		Value:    []byte(`"v"`),
		Version:  1,
		Meta:     store.Metadata{CreatedAt: time.Now(), UpdatedAt: time.Now(), Size: 3},
	}

	// healthy: writes land on the primary
	require.NoError(t, f.PutEntry(ctx, entry))
	_, found, err := primary.Backend.GetEntry(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)

	// primary failure: the same write degrades and succeeds on the fallback
	primary.fail.Store(true)
	require.NoError(t, f.PutEntry(ctx, entry))
	d, ok := f.(interface{ Degraded() bool })
	require.True(t, ok)
	assert.True(t, d.Degraded())
	_, found, err = fallback.GetEntry(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)

	// reads keep working while degraded
	_, found, err = f.GetEntry(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)

	// primary recovery: the health loop switches back
	primary.fail.Store(false)
	assert.Eventually(t, func() bool { return !d.Degraded() },
		2*time.Second, 10*time.Millisecond, "health loop must leave degraded mode")
}
