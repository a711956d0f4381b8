package pubsub

import (
	"sync"
	"testing"
	"time"

	"github.com/agenthive/hivemem/lib/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(t store.EventType, key string) store.Event {
	return store.Event{ID: "evt", Type: t, Key: key, Timestamp: time.Now()}
}

func TestMatcherPatterns(t *testing.T) {
	cases := []struct {
		pattern string
		key     string
		want    bool
	}{
		// literal
		{"task:1", "task:1", true},
		{"task:1", "task:12", false},
		// glob
		{"task:*", "task:1", true},
		{"task:*", "task:1:result", true},
		{"task:*", "job:1", false},
		{"task:?", "task:1", true},
		{"task:?", "task:12", false},
		{"*", "anything", true},
		// glob metacharacters must not act as regexp
		{"a.b*", "a.b.c", true},
		{"a.b*", "aXb.c", false},
		// explicit regexp
		{"re:^task:[0-9]+$", "task:42", true},
		{"re:^task:[0-9]+$", "task:abc", false},
	}
	for _, c := range cases {
		m, err := CompileMatcher(c.pattern)
		require.NoError(t, err, "pattern %q", c.pattern)
		assert.Equal(t, c.want, m.Match(c.key), "pattern %q against %q", c.pattern, c.key)
	}
}

func TestInvalidRegexpPattern(t *testing.T) {
	_, err := CompileMatcher("re:[unclosed")
	require.Error(t, err)
	assert.True(t, store.IsValidation(err))
}

func TestSubscribeAndPublish(t *testing.T) {
	n := NewNotifier(zerolog.Nop())

	var mu sync.Mutex
	var got []store.Event
	cancel, err := n.Subscribe("task:*", "", nil, func(evt store.Event) {
		mu.Lock()
		got = append(got, evt)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer cancel()

	n.Publish(event(store.EventSet, "task:1"))
	n.Publish(event(store.EventSet, "other:1"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "task:1", got[0].Key)
}

func TestEventTypeFilter(t *testing.T) {
	n := NewNotifier(zerolog.Nop())

	var mu sync.Mutex
	var got []store.EventType
	_, err := n.Subscribe("*", "", []store.EventType{store.EventDelete}, func(evt store.Event) {
		mu.Lock()
		got = append(got, evt.Type)
		mu.Unlock()
	})
	require.NoError(t, err)

	n.Publish(event(store.EventSet, "k"))
	n.Publish(event(store.EventDelete, "k"))
	n.Publish(event(store.EventExpire, "k"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []store.EventType{store.EventDelete}, got)
}

func TestCancelStopsDelivery(t *testing.T) {
	n := NewNotifier(zerolog.Nop())

	calls := 0
	cancel, err := n.Subscribe("*", "", nil, func(store.Event) { calls++ })
	require.NoError(t, err)

	n.Publish(event(store.EventSet, "k"))
	cancel()
	cancel() // idempotent
	n.Publish(event(store.EventSet, "k"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, n.Len())
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	n := NewNotifier(zerolog.Nop())

	_, err := n.Subscribe("*", "", nil, func(store.Event) { panic("boom") })
	require.NoError(t, err)

	delivered := false
	_, err = n.Subscribe("*", "", nil, func(store.Event) { delivered = true })
	require.NoError(t, err)

	assert.NotPanics(t, func() { n.Publish(event(store.EventSet, "k")) })
	assert.True(t, delivered, "a panicking subscriber must not starve others")
}

func TestNilCallbackRejected(t *testing.T) {
	n := NewNotifier(zerolog.Nop())
	_, err := n.Subscribe("*", "", nil, nil)
	assert.True(t, store.IsValidation(err))
}
