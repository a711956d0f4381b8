package backend

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agenthive/hivemem/lib/lockmgr"
	"github.com/agenthive/hivemem/lib/store"
	"github.com/rs/zerolog"
)

// failover routes calls to the primary backend and degrades to the fallback
// when the primary reports unavailability. A health check ticker probes the
// primary and switches back once it answers.
type failover struct {
	primary  Backend
	fallback Backend
	degraded atomic.Bool
	logger   zerolog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewFailover wraps primary with a fallback. healthInterval <= 0 disables
// automatic recovery (the wrapper still degrades on failure).
func NewFailover(primary, fallback Backend, healthInterval time.Duration, logger zerolog.Logger) Backend {
	f := &failover{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With().Str("component", "backend").Logger(),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	if healthInterval > 0 {
		go f.healthLoop(healthInterval)
	} else {
		close(f.done)
	}
	return f
}

func (f *failover) healthLoop(interval time.Duration) {
	defer close(f.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			if !f.degraded.Load() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := f.primary.Ping(ctx)
			cancel()
			if err == nil {
				f.degraded.Store(false)
				f.logger.Info().Msg("durable backend recovered, leaving degraded mode")
			}
		}
	}
}

// do runs op against the active backend. A primary failure classified as
// unavailability flips the wrapper into degraded mode and retries the
// operation once on the fallback.
func (f *failover) do(op func(b Backend) error) error {
	if f.degraded.Load() {
		return op(f.fallback)
	}
	err := op(f.primary)
	if err == nil || !store.IsBackendUnavailable(err) {
		return err
	}
	f.degraded.Store(true)
	f.logger.Warn().Err(err).Msg("durable backend unavailable, degrading to file fallback")
	return op(f.fallback)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see backend/interface.go)
// --------------------------------------------------------------------------

func (f *failover) PutEntry(ctx context.Context, e *store.Entry) error {
	return f.do(func(b Backend) error { return b.PutEntry(ctx, e) })
}

func (f *failover) GetEntry(ctx context.Context, key string) (e *store.Entry, found bool, err error) {
	err = f.do(func(b Backend) error {
		e, found, err = b.GetEntry(ctx, key)
		return err
	})
	return
}

func (f *failover) DeleteEntry(ctx context.Context, key string) (existed bool, err error) {
	err = f.do(func(b Backend) error {
		existed, err = b.DeleteEntry(ctx, key)
		return err
	})
	return
}

func (f *failover) Keys(ctx context.Context, filter store.Filter) (keys []string, err error) {
	err = f.do(func(b Backend) error {
		keys, err = b.Keys(ctx, filter)
		return err
	})
	return
}

func (f *failover) LoadEntries(ctx context.Context) (entries []*store.Entry, err error) {
	err = f.do(func(b Backend) error {
		entries, err = b.LoadEntries(ctx)
		return err
	})
	return
}

func (f *failover) AppendVersion(ctx context.Context, rec store.VersionRecord) error {
	return f.do(func(b Backend) error { return b.AppendVersion(ctx, rec) })
}

func (f *failover) GetVersion(ctx context.Context, key string, version uint64) (rec store.VersionRecord, found bool, err error) {
	err = f.do(func(b Backend) error {
		rec, found, err = b.GetVersion(ctx, key, version)
		return err
	})
	return
}

func (f *failover) ListVersions(ctx context.Context, key string) (versions []uint64, err error) {
	err = f.do(func(b Backend) error {
		versions, err = b.ListVersions(ctx, key)
		return err
	})
	return
}

func (f *failover) PurgeVersions(ctx context.Context, key string) (n int, err error) {
	err = f.do(func(b Backend) error {
		n, err = b.PurgeVersions(ctx, key)
		return err
	})
	return
}

func (f *failover) RecordLock(ctx context.Context, l lockmgr.Lock) error {
	return f.do(func(b Backend) error { return b.RecordLock(ctx, l) })
}

func (f *failover) RemoveLock(ctx context.Context, key string) error {
	return f.do(func(b Backend) error { return b.RemoveLock(ctx, key) })
}

func (f *failover) RecordAccess(ctx context.Context, agent, key, accessType string) error {
	return f.do(func(b Backend) error { return b.RecordAccess(ctx, agent, key, accessType) })
}

func (f *failover) RecordEvent(ctx context.Context, evt store.Event) error {
	return f.do(func(b Backend) error { return b.RecordEvent(ctx, evt) })
}

func (f *failover) Info(ctx context.Context) (info Info, err error) {
	err = f.do(func(b Backend) error {
		info, err = b.Info(ctx)
		return err
	})
	return
}

func (f *failover) Ping(ctx context.Context) error {
	if f.degraded.Load() {
		return f.fallback.Ping(ctx)
	}
	return f.primary.Ping(ctx)
}

// Degraded reports whether the wrapper currently routes to the fallback.
func (f *failover) Degraded() bool { return f.degraded.Load() }

func (f *failover) Close() error {
	f.stopOnce.Do(func() { close(f.stopCh) })
	<-f.done
	errP := f.primary.Close()
	errF := f.fallback.Close()
	if errP != nil {
		return errP
	}
	return errF
}
