package memstore

import (
	"context"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/agenthive/hivemem/lib/store"
)

// sweepReason selects how much work a GC pass does.
type sweepReason string

const (
	// sweepFull removes expired entries, sweeps expired locks and evicts LRU
	// entries while usage is above the high watermark.
	sweepFull sweepReason = "full"
	// sweepQuick only removes expired entries. Runs at a quarter of the full
	// interval to keep expiration latency low.
	sweepQuick sweepReason = "quick"
	// sweepPressure is a full sweep triggered by a write near the ceiling.
	sweepPressure sweepReason = "pressure"
)

// maybeSignalPressure nudges the GC loop when usage crosses the high
// watermark. Non-blocking: a pending signal is enough.
func (s *Store) maybeSignalPressure() {
	s.mu.Lock()
	bytes := s.curBytes
	s.mu.Unlock()
	if float64(bytes) < highWatermark*float64(s.opts.MaxMemorySize) &&
		float64(s.cache.Size()) < highWatermark*float64(s.opts.MaxEntries) {
		return
	}
	select {
	case s.pressureCh <- struct{}{}:
	default:
	}
}

func (s *Store) gcLoop() {
	defer close(s.gcDone)

	full := time.NewTicker(s.opts.GCInterval)
	defer full.Stop()
	quick := time.NewTicker(s.opts.GCInterval / 4)
	defer quick.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-full.C:
			s.sweep(context.Background(), sweepFull)
		case <-quick.C:
			s.sweep(context.Background(), sweepQuick)
		case <-s.pressureCh:
			s.sweep(context.Background(), sweepPressure)
		}
	}
}

// sweep is one garbage collection pass. The mutex is held in short batches so
// foreground operations are never starved by a large sweep.
func (s *Store) sweep(ctx context.Context, reason sweepReason) {
	start := time.Now()
	expired := s.sweepExpired(ctx)

	var evicted, lockSwept int
	if reason != sweepQuick {
		lockSwept = s.locks.Sweep(time.Now())
		evicted = s.evictLRU()
	}

	s.gcRuns.Add(1)
	metrics.GetOrCreateCounter(`hivemem_gc_runs_total`).Inc()
	if expired > 0 || evicted > 0 || lockSwept > 0 {
		s.logger.Debug().
			Str("reason", string(reason)).
			Int("expired", expired).
			Int("evicted", evicted).
			Int("locks_swept", lockSwept).
			Dur("took", time.Since(start)).
			Msg("gc sweep")
	}
}

// sweepExpired destroys all entries whose expiration has passed, in batches.
func (s *Store) sweepExpired(ctx context.Context) int {
	total := 0
	for {
		now := time.Now()

		s.mu.Lock()
		var victims []*store.Entry
		for len(victims) < gcBatchSize {
			key, ok := s.index.NextExpired(now.UnixNano())
			if !ok {
				break
			}
			e, live := s.cache.Load(key)
			if !live {
				continue
			}
			if !e.Expired(now) {
				// Refreshed since it was queued; put it back on the queue.
				s.index.Put(key, entryTags(e))
				continue
			}
			s.cache.Delete(key)
			s.index.Remove(key)
			s.curBytes -= int64(e.Meta.Size)
			victims = append(victims, e)
		}
		s.mu.Unlock()

		if len(victims) == 0 {
			return total
		}
		for _, e := range victims {
			if _, err := s.backend.DeleteEntry(ctx, e.Key); err != nil {
				s.logger.Warn().Err(err).Str("key", e.Key).Msg("expired entry cleanup failed")
			}
			s.expiredTotal.Add(1)
			metrics.GetOrCreateCounter(`hivemem_expired_total`).Inc()
			s.logEvent(ctx, s.newEvent(store.EventExpire, e.Key, "", e.Namespace, e.Version))
		}
		total += len(victims)
	}
}

// evictLRU removes least recently accessed entries from the cache until usage
// falls below the low watermark. Eviction is cache-only: persisted entries
// keep their backend row and re-promote on the next Get. Locked entries and
// entries under a live key lock are never evicted. No events are published
// for evictions.
func (s *Store) evictLRU() int {
	maxBytes := lowWatermark * float64(s.opts.MaxMemorySize)
	maxEntries := lowWatermark * float64(s.opts.MaxEntries)

	skip := func(key string) bool {
		if e, ok := s.cache.Load(key); ok && e.DataType == store.DataTypeLocked {
			return true
		}
		_, held := s.locks.Holder(key)
		return held
	}

	total := 0
	for {
		s.mu.Lock()
		if float64(s.curBytes) <= maxBytes && float64(s.cache.Size()) <= maxEntries {
			s.mu.Unlock()
			break
		}
		candidates := s.index.OldestAccessed(gcBatchSize, skip)
		evicted := 0
		for _, key := range candidates {
			e, ok := s.cache.Load(key)
			if !ok {
				s.index.Remove(key)
				continue
			}
			s.cache.Delete(key)
			s.index.Remove(key)
			s.curBytes -= int64(e.Meta.Size)
			evicted++
			if float64(s.curBytes) <= maxBytes && float64(s.cache.Size()) <= maxEntries {
				break
			}
		}
		s.mu.Unlock()

		if evicted == 0 {
			break // everything left is pinned
		}
		total += evicted
	}
	if total > 0 {
		s.evictedTotal.Add(uint64(total))
		metrics.GetOrCreateCounter(`hivemem_evicted_total`).Add(total)
	}
	return total
}
