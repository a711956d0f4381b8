// Package pubsub implements the mutation notifier of the entry store.
// Subscribers register a key pattern (literal, glob or "re:" regex), an
// optional event type filter and a callback; every matching mutation invokes
// the callback synchronously within the mutating call.
package pubsub
