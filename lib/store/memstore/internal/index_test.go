package internal

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tags(namespace, dataType, owner string) EntryTags {
	return EntryTags{
		Namespace:    namespace,
		DataType:     dataType,
		Owner:        owner,
		LastAccessed: time.Now().UnixNano(),
	}
}

func TestIndexLookup(t *testing.T) {
	ix := NewIndex(100)
	ix.Put("a", tags("ns1", "cached", "w1"))
	ix.Put("b", tags("ns1", "persistent", "w2"))
	ix.Put("c", tags("ns2", "cached", "w1"))

	keys, ok := ix.Lookup("ns1", "", "")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)

	keys, ok = ix.Lookup("", "cached", "")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"a", "c"}, keys)

	keys, ok = ix.Lookup("", "", "w2")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"b"}, keys)

	// the most selective usable index wins
	keys, ok = ix.Lookup("ns1", "", "w2")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"b"}, keys)

	// no filter, no usable index
	_, ok = ix.Lookup("", "", "")
	assert.False(t, ok)

	// complete knowledge of an unknown tag: empty result, still usable
	keys, ok = ix.Lookup("no-such-ns", "", "")
	require.True(t, ok)
	assert.Empty(t, keys)
}

func TestIndexPutUpdatesTags(t *testing.T) {
	ix := NewIndex(100)
	ix.Put("a", tags("ns1", "cached", "w1"))
	ix.Put("a", tags("ns2", "cached", "w1")) // moved namespace

	keys, ok := ix.Lookup("ns1", "", "")
	require.True(t, ok)
	assert.Empty(t, keys)

	keys, ok = ix.Lookup("ns2", "", "")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"a"}, keys)
	assert.Equal(t, 1, ix.Len())
}

func TestIndexRemove(t *testing.T) {
	ix := NewIndex(100)
	ix.Put("a", tags("ns1", "cached", "w1"))
	ix.Remove("a")
	ix.Remove("a") // idempotent

	keys, ok := ix.Lookup("ns1", "", "")
	require.True(t, ok)
	assert.Empty(t, keys)
	assert.Equal(t, 0, ix.Len())
}

func TestIndexBoundDegradesToFullScan(t *testing.T) {
	ix := NewIndex(3)
	for i := 0; i < 5; i++ {
		ix.Put(fmt.Sprintf("k%d", i), tags("ns", "cached", "w"))
	}

	// once trimmed, the tag index refuses lookups instead of lying
	_, ok := ix.Lookup("ns", "", "")
	assert.False(t, ok, "a trimmed index must signal a full scan")

	// the expiry and access queues stay authoritative
	assert.Equal(t, 5, ix.Len())
	oldest := ix.OldestAccessed(5, nil)
	assert.Len(t, oldest, 5)
}

func TestIndexNextExpired(t *testing.T) {
	ix := NewIndex(100)
	now := time.Now().UnixNano()

	expired := tags("ns", "cached", "w")
	expired.ExpiresAt = now - 1000
	ix.Put("old", expired)

	future := tags("ns", "cached", "w")
	future.ExpiresAt = now + int64(time.Hour)
	ix.Put("new", future)

	forever := tags("ns", "cached", "w")
	ix.Put("forever", forever) // no expiry, never queued

	key, ok := ix.NextExpired(now)
	require.True(t, ok)
	assert.Equal(t, "old", key)

	_, ok = ix.NextExpired(now)
	assert.False(t, ok, "future and non-expiring keys must not be returned")
}

func TestIndexOldestAccessedSkipsPinned(t *testing.T) {
	ix := NewIndex(100)
	base := time.Now().UnixNano()
	for i := 0; i < 4; i++ {
		tg := tags("ns", "cached", "w")
		tg.LastAccessed = base + int64(i)
		ix.Put(fmt.Sprintf("k%d", i), tg)
	}

	got := ix.OldestAccessed(2, func(key string) bool { return key == "k0" })
	assert.Equal(t, []string{"k1", "k2"}, got)

	// non-destructive: the heap still knows all keys
	again := ix.OldestAccessed(4, nil)
	assert.Equal(t, []string{"k0", "k1", "k2", "k3"}, again)
}

func TestIndexTouchReorders(t *testing.T) {
	ix := NewIndex(100)
	base := time.Now().UnixNano()
	a := tags("ns", "cached", "w")
	a.LastAccessed = base
	ix.Put("a", a)
	b := tags("ns", "cached", "w")
	b.LastAccessed = base + 1
	ix.Put("b", b)

	ix.Touch("a", base+2)
	got := ix.OldestAccessed(1, nil)
	assert.Equal(t, []string{"b"}, got)
}
