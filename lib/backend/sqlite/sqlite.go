// Package sqlite implements the durable backend of the entry store on an
// embedded relational database (modernc.org/sqlite, pure Go driver).
//
// The database runs in WAL mode with a busy timeout so concurrent pools can
// interleave readers and writers. All exported methods are safe for
// concurrent use; bounding happens in the logical pools, not with a mutex.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agenthive/hivemem/lib/backend"
	"github.com/agenthive/hivemem/lib/lockmgr"
	"github.com/agenthive/hivemem/lib/store"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const dbFileName = "hivemem.db"

type sqliteBackend struct {
	db     *sql.DB
	path   string
	mem    *pool // entry data: shared_memory, memory_versions, memory_locks
	hive   *pool // cross-agent logs: agent_memory, memory_events
	logger zerolog.Logger
}

// New opens (or creates) the database under opts.Dir and prepares the schema
// and both logical pools.
func New(opts backend.Options) (backend.Backend, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, store.WrapError(store.CodeBackendUnavailable, "", err, "create backend dir %q", opts.Dir)
	}
	path := filepath.Join(opts.Dir, dbFileName)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, store.WrapError(store.CodeBackendUnavailable, "", err, "open sqlite database %q", path)
	}

	poolMax := opts.PoolMaxSize
	if poolMax < 1 {
		poolMax = 4
	}
	// Both logical pools share one handle; size the physical pool for both.
	db.SetMaxOpenConns(poolMax * 2)
	db.SetMaxIdleConns(max(opts.PoolMinSize, 1))

	// WAL lets the hive pool log accesses while the memory pool writes
	// entries. synchronous=NORMAL is safe under WAL and much faster.
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, store.WrapError(store.CodeBackendUnavailable, "", err, "apply %q", pragma)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, store.WrapError(store.CodeBackendUnavailable, "", err, "initialize schema")
	}

	b := &sqliteBackend{
		db:     db,
		path:   path,
		mem:    newPool("memory", db, poolMax, opts.ConnectTimeout, opts.QueryTimeout),
		hive:   newPool("hive", db, poolMax, opts.ConnectTimeout, opts.QueryTimeout),
		logger: opts.Logger.With().Str("component", "backend.sqlite").Logger(),
	}
	return b, nil
}

// --------------------------------------------------------------------------
// Row Mapping
// --------------------------------------------------------------------------

func nanoOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func timeOrZero(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// wrapErr classifies a driver error. Context deadline hits on a statement
// become Timeout errors; everything else is treated as backend trouble so
// the failover wrapper can degrade.
func wrapErr(err error, format string, args ...any) error {
	var se *store.Error
	if errors.As(err, &se) {
		return err
	}
	code := store.CodeBackendUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		code = store.CodeTimeout
	}
	return store.WrapError(code, "", err, format, args...)
}

func scanEntry(scan func(dest ...any) error) (*store.Entry, error) {
	var (
		e                                   store.Entry
		metaJSON                            string
		createdAt, updatedAt, expiresAt, la int64
	)
	if err := scan(&e.Key, &e.Namespace, (*string)(&e.DataType), &e.Value, &metaJSON,
		&e.Version, &createdAt, &updatedAt, &expiresAt, &e.Meta.Size,
		&e.Meta.AccessCount, &la); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metaJSON), &e.Meta); err != nil {
		return nil, store.WrapError(store.CodeSerialization, e.Key, err, "decode entry metadata")
	}
	// The indexed columns are authoritative over the metadata blob.
	e.Meta.CreatedAt = timeOrZero(createdAt)
	e.Meta.UpdatedAt = timeOrZero(updatedAt)
	e.Meta.ExpiresAt = timeOrZero(expiresAt)
	e.Meta.LastAccessed = timeOrZero(la)
	return &e, nil
}

const entryColumns = `key, namespace, data_type, value, metadata, version,
	created_at, updated_at, expires_at, size_bytes, access_count, last_accessed`

// --------------------------------------------------------------------------
// Interface Methods - Entries (docu see backend/interface.go)
// --------------------------------------------------------------------------

func (b *sqliteBackend) PutEntry(ctx context.Context, e *store.Entry) error {
	metaJSON, err := json.Marshal(e.Meta)
	if err != nil {
		return store.WrapError(store.CodeSerialization, e.Key, err, "encode entry metadata")
	}
	return b.mem.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO shared_memory (`+entryColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				namespace=excluded.namespace, data_type=excluded.data_type,
				value=excluded.value, metadata=excluded.metadata,
				version=excluded.version, updated_at=excluded.updated_at,
				expires_at=excluded.expires_at, size_bytes=excluded.size_bytes,
				access_count=excluded.access_count, last_accessed=excluded.last_accessed`,
			e.Key, e.Namespace, string(e.DataType), e.Value, string(metaJSON), e.Version,
			nanoOrZero(e.Meta.CreatedAt), nanoOrZero(e.Meta.UpdatedAt), nanoOrZero(e.Meta.ExpiresAt),
			e.Meta.Size, e.Meta.AccessCount, nanoOrZero(e.Meta.LastAccessed))
		if err != nil {
			return wrapErr(err, "put entry")
		}
		return nil
	})
}

func (b *sqliteBackend) GetEntry(ctx context.Context, key string) (*store.Entry, bool, error) {
	var (
		entry *store.Entry
		found bool
	)
	err := b.mem.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		row := db.QueryRowContext(ctx,
			`SELECT `+entryColumns+` FROM shared_memory WHERE key = ?`, key)
		e, err := scanEntry(row.Scan)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return wrapErr(err, "get entry")
		}
		entry, found = e, true
		return nil
	})
	return entry, found, err
}

func (b *sqliteBackend) DeleteEntry(ctx context.Context, key string) (bool, error) {
	var existed bool
	err := b.mem.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx, `DELETE FROM shared_memory WHERE key = ?`, key)
		if err != nil {
			return wrapErr(err, "delete entry")
		}
		n, _ := res.RowsAffected()
		existed = n > 0
		return nil
	})
	return existed, err
}

func (b *sqliteBackend) Keys(ctx context.Context, f store.Filter) ([]string, error) {
	var (
		conds []string
		args  []any
	)
	if f.Namespace != "" {
		conds = append(conds, "namespace = ?")
		args = append(args, f.Namespace)
	}
	if f.DataType != "" {
		conds = append(conds, "data_type = ?")
		args = append(args, string(f.DataType))
	}
	if f.Owner != "" {
		conds = append(conds, "json_extract(metadata, '$.owner') = ?")
		args = append(args, f.Owner)
	}
	query := `SELECT key FROM shared_memory`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	var keys []string
	err := b.mem.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return wrapErr(err, "list keys")
		}
		defer rows.Close()
		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				return wrapErr(err, "scan key")
			}
			keys = append(keys, k)
		}
		return rows.Err()
	})
	return keys, err
}

func (b *sqliteBackend) LoadEntries(ctx context.Context) ([]*store.Entry, error) {
	var entries []*store.Entry
	err := b.mem.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `SELECT `+entryColumns+` FROM shared_memory`)
		if err != nil {
			return wrapErr(err, "load entries")
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanEntry(rows.Scan)
			if err != nil {
				return wrapErr(err, "scan entry")
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	return entries, err
}

// --------------------------------------------------------------------------
// Interface Methods - Versions
// --------------------------------------------------------------------------

func (b *sqliteBackend) AppendVersion(ctx context.Context, rec store.VersionRecord) error {
	metaJSON, err := json.Marshal(rec.Meta)
	if err != nil {
		return store.WrapError(store.CodeSerialization, rec.Key, err, "encode version metadata")
	}
	return b.mem.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			INSERT OR IGNORE INTO memory_versions (key, version, value, metadata, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			rec.Key, rec.Version, rec.Value, string(metaJSON), nanoOrZero(rec.CreatedAt))
		if err != nil {
			return wrapErr(err, "append version")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.NewError(store.CodeConflict, rec.Key,
				"version %d already recorded", rec.Version)
		}
		return nil
	})
}

func (b *sqliteBackend) GetVersion(ctx context.Context, key string, version uint64) (store.VersionRecord, bool, error) {
	var (
		rec   store.VersionRecord
		found bool
	)
	err := b.mem.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		var (
			metaJSON  string
			createdAt int64
		)
		row := db.QueryRowContext(ctx, `
			SELECT key, version, value, metadata, created_at
			FROM memory_versions WHERE key = ? AND version = ?`, key, version)
		err := row.Scan(&rec.Key, &rec.Version, &rec.Value, &metaJSON, &createdAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return wrapErr(err, "get version")
		}
		if err := json.Unmarshal([]byte(metaJSON), &rec.Meta); err != nil {
			return store.WrapError(store.CodeSerialization, key, err, "decode version metadata")
		}
		rec.CreatedAt = timeOrZero(createdAt)
		found = true
		return nil
	})
	return rec, found, err
}

func (b *sqliteBackend) ListVersions(ctx context.Context, key string) ([]uint64, error) {
	var versions []uint64
	err := b.mem.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT version FROM memory_versions WHERE key = ? ORDER BY version ASC`, key)
		if err != nil {
			return wrapErr(err, "list versions")
		}
		defer rows.Close()
		for rows.Next() {
			var v uint64
			if err := rows.Scan(&v); err != nil {
				return wrapErr(err, "scan version")
			}
			versions = append(versions, v)
		}
		return rows.Err()
	})
	return versions, err
}

func (b *sqliteBackend) PurgeVersions(ctx context.Context, key string) (int, error) {
	var purged int
	err := b.mem.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx, `DELETE FROM memory_versions WHERE key = ?`, key)
		if err != nil {
			return wrapErr(err, "purge versions")
		}
		n, _ := res.RowsAffected()
		purged = int(n)
		return nil
	})
	return purged, err
}

// --------------------------------------------------------------------------
// Interface Methods - Locks and Hive Logs
// --------------------------------------------------------------------------

func (b *sqliteBackend) RecordLock(ctx context.Context, l lockmgr.Lock) error {
	return b.mem.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO memory_locks (key, agent_id, lock_type, acquired_at, expires_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				agent_id=excluded.agent_id, lock_type=excluded.lock_type,
				acquired_at=excluded.acquired_at, expires_at=excluded.expires_at`,
			l.Key, l.Holder, l.Mode, nanoOrZero(l.AcquiredAt), nanoOrZero(l.ExpiresAt))
		if err != nil {
			return wrapErr(err, "record lock")
		}
		return nil
	})
}

func (b *sqliteBackend) RemoveLock(ctx context.Context, key string) error {
	return b.mem.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		if _, err := db.ExecContext(ctx, `DELETE FROM memory_locks WHERE key = ?`, key); err != nil {
			return wrapErr(err, "remove lock")
		}
		return nil
	})
}

func (b *sqliteBackend) RecordAccess(ctx context.Context, agent, key, accessType string) error {
	if agent == "" {
		return nil // anonymous callers leave no access trail
	}
	return b.hive.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO agent_memory (agent_id, memory_key, access_type, timestamp)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(agent_id, memory_key) DO UPDATE SET
				access_type=excluded.access_type, timestamp=excluded.timestamp`,
			agent, key, accessType, time.Now().UnixNano())
		if err != nil {
			return wrapErr(err, "record access")
		}
		return nil
	})
}

func (b *sqliteBackend) RecordEvent(ctx context.Context, evt store.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return store.WrapError(store.CodeSerialization, evt.Key, err, "encode event")
	}
	return b.hive.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO memory_events (event_type, memory_key, agent_id, timestamp, data)
			VALUES (?, ?, ?, ?, ?)`,
			string(evt.Type), evt.Key, evt.Agent, evt.Timestamp.UnixNano(), string(data))
		if err != nil {
			return wrapErr(err, "record event")
		}
		return nil
	})
}

// --------------------------------------------------------------------------
// Interface Methods - Metadata and Lifecycle
// --------------------------------------------------------------------------

func (b *sqliteBackend) Info(ctx context.Context) (backend.Info, error) {
	info := backend.Info{Kind: backend.KindSQLite, Path: b.path}
	err := b.mem.withConn(ctx, func(ctx context.Context, db *sql.DB) error {
		var size sql.NullInt64
		if err := db.QueryRowContext(ctx,
			`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM shared_memory`).
			Scan(&info.Entries, &size); err != nil {
			return wrapErr(err, "count entries")
		}
		info.SizeBytes = size.Int64
		if err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM memory_versions`).Scan(&info.Versions); err != nil {
			return wrapErr(err, "count versions")
		}
		return nil
	})
	return info, err
}

func (b *sqliteBackend) Ping(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return wrapErr(err, "ping")
	}
	return nil
}

func (b *sqliteBackend) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close sqlite backend: %w", err)
	}
	return nil
}
