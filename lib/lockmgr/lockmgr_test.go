package lockmgr

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agenthive/hivemem/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	m := NewLockManager(nil)

	lock, err := m.Acquire("k", "a1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "k", lock.Key)
	assert.Equal(t, "a1", lock.Holder)
	assert.Equal(t, "exclusive", lock.Mode)
	assert.True(t, lock.ExpiresAt.After(lock.AcquiredAt))

	holder, ok := m.Holder("k")
	require.True(t, ok)
	assert.Equal(t, "a1", holder.Holder)

	released, err := m.Release("k", "a1")
	require.NoError(t, err)
	assert.True(t, released)

	_, ok = m.Holder("k")
	assert.False(t, ok)

	// releasing again is a no-op, not an error
	released, err = m.Release("k", "a1")
	require.NoError(t, err)
	assert.False(t, released)
}

func TestAcquireConflicts(t *testing.T) {
	m := NewLockManager(nil)

	_, err := m.Acquire("k", "a1", time.Minute)
	require.NoError(t, err)

	// another holder is rejected
	_, err = m.Acquire("k", "a2", time.Minute)
	assert.True(t, store.IsConflict(err), "want Conflict, got %v", err)

	// no reentrant locking: the same holder is rejected too
	_, err = m.Acquire("k", "a1", time.Minute)
	assert.True(t, store.IsConflict(err), "want Conflict, got %v", err)
}

func TestReleaseWrongHolder(t *testing.T) {
	m := NewLockManager(nil)

	_, err := m.Acquire("k", "a1", time.Minute)
	require.NoError(t, err)

	released, err := m.Release("k", "a2")
	assert.False(t, released)
	assert.True(t, store.IsPermission(err), "want Permission, got %v", err)

	// the lock is untouched
	holder, ok := m.Holder("k")
	require.True(t, ok)
	assert.Equal(t, "a1", holder.Holder)
}

func TestExpiredLockIsAbsent(t *testing.T) {
	m := NewLockManager(nil)

	_, err := m.Acquire("k", "a1", 20*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)

	// the expired lock no longer blocks anyone
	_, ok := m.Holder("k")
	assert.False(t, ok)

	_, err = m.Acquire("k", "a2", time.Minute)
	assert.NoError(t, err, "an abandoned holder must never deadlock others")
}

func TestValidation(t *testing.T) {
	m := NewLockManager(nil)

	_, err := m.Acquire("", "a1", time.Minute)
	assert.True(t, store.IsValidation(err))

	_, err = m.Acquire("k", "", time.Minute)
	assert.True(t, store.IsValidation(err))

	_, err = m.Acquire("k", "a1", 0)
	assert.True(t, store.IsValidation(err))
}

func TestSweep(t *testing.T) {
	m := NewLockManager(nil)

	_, err := m.Acquire("short", "a1", 10*time.Millisecond)
	require.NoError(t, err)
	_, err = m.Acquire("long", "a1", time.Minute)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	released := m.Sweep(time.Now())
	assert.Equal(t, 1, released)

	_, ok := m.Holder("long")
	assert.True(t, ok, "a live lock must survive the sweep")
}

func TestConcurrentAcquireExactlyOneWinner(t *testing.T) {
	m := NewLockManager(nil)

	const contenders = 32
	var (
		wins atomic.Int32
		wg   sync.WaitGroup
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if _, err := m.Acquire("k", fmt.Sprintf("holder-%d", id), time.Minute); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load(), "exactly one contender may win the lock")
}

type recordingJournal struct {
	mu      sync.Mutex
	records []string
	removes []string
}

func (j *recordingJournal) RecordLock(l Lock) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, l.Key)
}

func (j *recordingJournal) RemoveLock(key string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.removes = append(j.removes, key)
}

func TestJournalMirrorsChanges(t *testing.T) {
	j := &recordingJournal{}
	m := NewLockManager(j)

	_, err := m.Acquire("k", "a1", time.Minute)
	require.NoError(t, err)
	_, err = m.Release("k", "a1")
	require.NoError(t, err)

	j.mu.Lock()
	defer j.mu.Unlock()
	assert.Equal(t, []string{"k"}, j.records)
	assert.Equal(t, []string{"k"}, j.removes)
}
