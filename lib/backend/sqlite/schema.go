package sqlite

// Schema of the embedded relational store. Two logical pools operate on it:
// "memory" serves entry data (shared_memory, memory_versions, memory_locks),
// "hive" serves cross-agent access logs (agent_memory, memory_events).
const schema = `
CREATE TABLE IF NOT EXISTS shared_memory (
	key           TEXT PRIMARY KEY,
	namespace     TEXT NOT NULL DEFAULT '',
	data_type     TEXT NOT NULL,
	value         BLOB,
	metadata      TEXT NOT NULL DEFAULT '{}',
	version       INTEGER NOT NULL,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	expires_at    INTEGER NOT NULL DEFAULT 0,
	size_bytes    INTEGER NOT NULL DEFAULT 0,
	access_count  INTEGER NOT NULL DEFAULT 0,
	last_accessed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_shared_memory_namespace     ON shared_memory(namespace);
CREATE INDEX IF NOT EXISTS idx_shared_memory_data_type     ON shared_memory(data_type);
CREATE INDEX IF NOT EXISTS idx_shared_memory_expires_at    ON shared_memory(expires_at);
CREATE INDEX IF NOT EXISTS idx_shared_memory_last_accessed ON shared_memory(last_accessed);

CREATE TABLE IF NOT EXISTS memory_versions (
	key        TEXT NOT NULL,
	version    INTEGER NOT NULL,
	value      BLOB,
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	PRIMARY KEY (key, version)
);

CREATE TABLE IF NOT EXISTS memory_locks (
	key         TEXT PRIMARY KEY,
	agent_id    TEXT NOT NULL,
	lock_type   TEXT NOT NULL DEFAULT 'exclusive',
	acquired_at INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_memory (
	agent_id    TEXT NOT NULL,
	memory_key  TEXT NOT NULL,
	access_type TEXT NOT NULL,
	timestamp   INTEGER NOT NULL,
	PRIMARY KEY (agent_id, memory_key)
);

CREATE TABLE IF NOT EXISTS memory_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	memory_key TEXT NOT NULL,
	agent_id   TEXT,
	timestamp  INTEGER NOT NULL,
	data       TEXT
);
`
