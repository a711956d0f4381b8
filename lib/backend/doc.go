// Package backend defines the tiered persistence layer of the entry store.
//
// One interface, two implementations: an embedded relational store
// ("github.com/agenthive/hivemem/lib/backend/sqlite", primary) and a
// whole-store snapshot file
// ("github.com/agenthive/hivemem/lib/backend/file", fallback). Open performs
// a capability probe at startup and wires the two together behind a failover
// wrapper: when the durable backend becomes unreachable mid-run, operations
// degrade transparently to the file fallback (logged, not surfaced) and a
// periodic health check restores the primary once it answers again.
package backend
