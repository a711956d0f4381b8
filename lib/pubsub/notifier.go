package pubsub

import (
	"github.com/agenthive/hivemem/lib/store"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

// subscription is one registered (pattern, callback) pair.
type subscription struct {
	id      string
	owner   string
	matcher *Matcher
	events  map[store.EventType]struct{} // nil = all event types
	fn      store.SubscriberFunc
}

func (s *subscription) wants(t store.EventType) bool {
	if s.events == nil {
		return true
	}
	_, ok := s.events[t]
	return ok
}

// Notifier delivers mutation events to pattern-matched subscribers.
//
// Delivery is synchronous: Publish invokes every matching callback within
// the calling goroutine, so subscribers observe the mutation as part of the
// same logical operation. A panicking callback is recovered and logged; it
// never aborts the triggering operation or starves other subscribers.
type Notifier struct {
	subs   *xsync.MapOf[string, *subscription]
	logger zerolog.Logger
}

// NewNotifier creates an empty notifier.
func NewNotifier(logger zerolog.Logger) *Notifier {
	return &Notifier{
		subs:   xsync.NewMapOf[string, *subscription](),
		logger: logger.With().Str("component", "pubsub").Logger(),
	}
}

// Subscribe registers fn for mutations whose key matches pattern and whose
// event type is contained in events (nil or empty = all). The returned
// cancel function removes the subscription; after it returns, the callback
// never fires again.
func (n *Notifier) Subscribe(pattern, owner string, events []store.EventType, fn store.SubscriberFunc) (store.CancelFunc, error) {
	if fn == nil {
		return nil, store.NewError(store.CodeValidation, "", "subscription callback must not be nil")
	}
	matcher, err := CompileMatcher(pattern)
	if err != nil {
		return nil, err
	}

	var filter map[store.EventType]struct{}
	if len(events) > 0 {
		filter = make(map[store.EventType]struct{}, len(events))
		for _, e := range events {
			filter[e] = struct{}{}
		}
	}

	sub := &subscription{
		id:      uuid.NewString(),
		owner:   owner,
		matcher: matcher,
		events:  filter,
		fn:      fn,
	}
	n.subs.Store(sub.id, sub)

	return func() { n.subs.Delete(sub.id) }, nil
}

// Publish delivers evt to all matching subscribers, synchronously.
func (n *Notifier) Publish(evt store.Event) {
	n.subs.Range(func(_ string, sub *subscription) bool {
		if !sub.wants(evt.Type) || !sub.matcher.Match(evt.Key) {
			return true
		}
		n.dispatch(sub, evt)
		return true
	})
}

// dispatch invokes one callback with panic isolation.
func (n *Notifier) dispatch(sub *subscription, evt store.Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error().
				Str("subscription", sub.id).
				Str("owner", sub.owner).
				Str("key", evt.Key).
				Str("event", string(evt.Type)).
				Interface("panic", r).
				Msg("subscriber panicked")
		}
	}()
	sub.fn(evt)
}

// Len returns the number of live subscriptions.
func (n *Notifier) Len() int {
	return n.subs.Size()
}
