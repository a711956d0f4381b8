// Package memstore is the reference implementation of store.IEntryStore: a
// shared, namespaced entry store for cross-agent coordination with tiered
// persistence, locking, versioning and change notification.
//
// The package focuses on:
//   - A concurrent in-memory cache as the authority for entry liveness,
//     backed by a durable persistence layer with automatic failover
//   - Data-type driven lifecycle policies (transient, cached, persistent,
//     versioned, shared, locked)
//   - Monotonic per-key versioning where a version number is never reused,
//     even across delete-and-recreate and process restarts
//   - A batched garbage collector handling expiration, lock sweeping and
//     watermark-driven LRU eviction
//
// Key Components:
//
//   - Store: the façade implementing store.IEntryStore. Entries in the cache
//     are immutable; every mutation commits a freshly built entry under one
//     store mutex together with its index updates, so readers never observe
//     partial updates and indexes never disagree with entries.
//
//   - Options / DefaultOptions: construction-time configuration covering
//     capacity ceilings, GC cadence, compression, lock defaults and the
//     persistence layer.
//
//   - openBackend: the startup capability probe. The embedded relational
//     store is primary, the JSON snapshot file is the fallback; when both are
//     healthy they are combined behind an automatic failover wrapper.
//
// Persistence is tiered by data type: transient entries never leave the
// cache, cached and persistent entries are written through to the backend,
// versioned entries additionally append an immutable snapshot per version,
// and locked entries accept writes from the current lock holder only.
//
// The garbage collector runs a full sweep on a fixed interval, a quick
// expired-only pass at a quarter of it, and a pressure sweep when a write
// pushes usage over the high watermark. Eviction is LRU, cache-only and
// stops at the low watermark; persisted entries re-promote on the next Get.
//
// Usage Example:
//
//	s, err := memstore.New(memstore.DefaultOptions("/var/lib/hivemem"))
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer s.Close()
//
//	_, err = s.Set(ctx, "task:42:result", result, store.SetOptions{
//	  Namespace: "task_results",
//	  DataType:  store.DataTypeVersioned,
//	  Agent:     "worker-7",
//	})
package memstore
