package store

import (
	"time"
)

// --------------------------------------------------------------------------
// Data Types
// --------------------------------------------------------------------------

// DataType governs the persistence and access policy of an entry.
type DataType string

const (
	// DataTypePersistent entries survive restarts via the durable backend.
	DataTypePersistent DataType = "persistent"
	// DataTypeTransient entries live only in the in-memory cache and are
	// never written to the persistence layer.
	DataTypeTransient DataType = "transient"
	// DataTypeCached entries are regular entries that are primarily served
	// from the cache but still written through to the backend.
	DataTypeCached DataType = "cached"
	// DataTypeVersioned entries additionally append an immutable
	// VersionRecord on every write.
	DataTypeVersioned DataType = "versioned"
	// DataTypeShared entries are visible to all agents (grouping tag only,
	// persistence behaves like persistent).
	DataTypeShared DataType = "shared"
	// DataTypeLocked entries may only be written by the current holder of
	// the key lock. They are also exempt from LRU eviction.
	DataTypeLocked DataType = "locked"
)

// Valid reports whether dt is one of the recognized data types.
func (dt DataType) Valid() bool {
	switch dt {
	case DataTypePersistent, DataTypeTransient, DataTypeCached,
		DataTypeVersioned, DataTypeShared, DataTypeLocked:
		return true
	}
	return false
}

// --------------------------------------------------------------------------
// Entry
// --------------------------------------------------------------------------

// Metadata holds the bookkeeping fields of an entry.
type Metadata struct {
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"` // zero = no expiration
	Size         int       `json:"size"`
	AccessCount  uint64    `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`
	Owner        string    `json:"owner,omitempty"` // owning agent id
}

// Entry is a versioned key-value pair. The value is kept as the serialized
// payload; callers own its interpretation.
type Entry struct {
	Key       string   `json:"key"`
	Namespace string   `json:"namespace"`
	DataType  DataType `json:"data_type"`
	Value     []byte   `json:"value"`
	Version   uint64   `json:"version"`
	Meta      Metadata `json:"metadata"`
}

// Expired reports whether the entry is logically absent at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return !e.Meta.ExpiresAt.IsZero() && !now.Before(e.Meta.ExpiresAt)
}

// Clone returns a deep copy of the entry. The store hands out clones so
// callers can never mutate cached state.
func (e *Entry) Clone() *Entry {
	cp := *e
	cp.Value = make([]byte, len(e.Value))
	copy(cp.Value, e.Value)
	return &cp
}

// --------------------------------------------------------------------------
// Version Records
// --------------------------------------------------------------------------

// VersionRecord is an immutable snapshot of a single write to a versioned
// entry, keyed by (Key, Version).
type VersionRecord struct {
	Key       string    `json:"key"`
	Version   uint64    `json:"version"`
	Value     []byte    `json:"value"`
	Meta      Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

// --------------------------------------------------------------------------
// Events
// --------------------------------------------------------------------------

// EventType identifies the kind of mutation that produced an Event.
type EventType string

const (
	EventSet    EventType = "set"
	EventDelete EventType = "delete"
	EventExpire EventType = "expire"
)

// Event describes a single mutation of the store. Events are delivered
// synchronously to matching subscribers as part of the mutating call.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"event_type"`
	Key       string    `json:"memory_key"`
	Namespace string    `json:"namespace,omitempty"`
	Agent     string    `json:"agent_id,omitempty"`
	Version   uint64    `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// --------------------------------------------------------------------------
// Key Filters
// --------------------------------------------------------------------------

// Filter narrows a Keys() listing. Zero fields match everything.
type Filter struct {
	Namespace string
	DataType  DataType
	Owner     string
	Pattern   string // key literal, glob ("agent:*") or "re:" prefixed regex
}

// Empty reports whether the filter matches all keys.
func (f Filter) Empty() bool {
	return f.Namespace == "" && f.DataType == "" && f.Owner == "" && f.Pattern == ""
}

// MatchMeta reports whether an entry's envelope satisfies the non-pattern
// fields of the filter. Pattern matching is handled by the caller since it
// requires a compiled matcher.
func (f Filter) MatchMeta(e *Entry) bool {
	if f.Namespace != "" && e.Namespace != f.Namespace {
		return false
	}
	if f.DataType != "" && e.DataType != f.DataType {
		return false
	}
	if f.Owner != "" && e.Meta.Owner != f.Owner {
		return false
	}
	return true
}
