// Package version implements the version store: an append-only history of
// immutable per-key snapshots for entries whose policy requires version
// history.
//
// The package does not enforce the monotonic-version invariant (that is a
// property of the entry store's version computation); it guarantees that
// every assigned version is preserved immutably once appended, until an
// explicit purge.
package version

import (
	"context"
	"time"

	"github.com/agenthive/hivemem/lib/backend"
	"github.com/agenthive/hivemem/lib/store"
)

// IVersionStore appends and retrieves immutable version snapshots.
type IVersionStore interface {
	// Append records one snapshot. Re-appending an existing (key, version)
	// fails with a Conflict error; records are never mutated in place.
	Append(ctx context.Context, rec store.VersionRecord) error
	// Get retrieves a snapshot by explicit version number.
	Get(ctx context.Context, key string, version uint64) (store.VersionRecord, bool, error)
	// List returns the recorded version numbers for key, ascending.
	List(ctx context.Context, key string) ([]uint64, error)
	// Purge removes all snapshots for key (explicit version-purge only).
	Purge(ctx context.Context, key string) (int, error)
	// Latest returns the highest recorded version number for key, 0 if none.
	Latest(ctx context.Context, key string) (uint64, error)
}

type versionStoreImpl struct {
	backend backend.Backend
}

// New creates a version store on top of a persistence backend.
func New(b backend.Backend) IVersionStore {
	return &versionStoreImpl{backend: b}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IVersionStore)
// --------------------------------------------------------------------------

func (v *versionStoreImpl) Append(ctx context.Context, rec store.VersionRecord) error {
	if rec.Key == "" {
		return store.NewError(store.CodeValidation, "", "version record key must not be empty")
	}
	if rec.Version == 0 {
		return store.NewError(store.CodeValidation, rec.Key, "version numbers start at 1")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	return v.backend.AppendVersion(ctx, rec)
}

func (v *versionStoreImpl) Get(ctx context.Context, key string, version uint64) (store.VersionRecord, bool, error) {
	return v.backend.GetVersion(ctx, key, version)
}

func (v *versionStoreImpl) List(ctx context.Context, key string) ([]uint64, error) {
	return v.backend.ListVersions(ctx, key)
}

func (v *versionStoreImpl) Purge(ctx context.Context, key string) (int, error) {
	return v.backend.PurgeVersions(ctx, key)
}

func (v *versionStoreImpl) Latest(ctx context.Context, key string) (uint64, error) {
	versions, err := v.backend.ListVersions(ctx, key)
	if err != nil || len(versions) == 0 {
		return 0, err
	}
	return versions[len(versions)-1], nil
}
