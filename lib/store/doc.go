// Package store defines the shared data model, typed error taxonomy and the
// public IEntryStore contract of hivemem: a shared, namespaced key-value
// object store used for cross-agent coordination.
//
// The package focuses on:
//   - A unified interface (IEntryStore) for entry operations, locking,
//     subscriptions and statistics
//   - A structured error system using typed codes (Validation, Conflict,
//     Permission, ResourceExhausted, BackendUnavailable, Serialization,
//     Timeout) so callers can react to specific conditions
//   - The entry envelope (key, namespace, data type, version, metadata)
//     kept strongly typed while the payload stays an opaque serialized blob
//
// Implementations:
//
//	The canonical implementation lives in the
//	"github.com/agenthive/hivemem/lib/store/memstore" package. It orchestrates
//	the in-memory cache, tiered persistence, indexing, locking, versioning
//	and pub/sub notification behind this interface.
package store
