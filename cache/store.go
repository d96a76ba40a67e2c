package cache

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by UpdateGroup when no record exists for the
	// group.
	ErrNotFound = errors.New("cache: group not found")

	// ErrConflict is returned by InsertGroup when a record already exists.
	// Hitting it signals a bug or a race between reconcilers.
	ErrConflict = errors.New("cache: group already exists")
)

// Store is the snapshot cache port. These are the only mutation points for
// synchronized state; the diff engine only ever reads.
type Store interface {
	// FindGroup returns the cached record for a group, or (nil, nil) when
	// the group has never been synchronized.
	FindGroup(ctx context.Context, groupGUID uuid.UUID) (*CachedDirectoryGroup, error)

	// InsertGroup stores a first-sync record. Fails with ErrConflict if a
	// record is already present.
	InsertGroup(ctx context.Context, group *CachedDirectoryGroup) error

	// UpdateGroup atomically replaces an existing record. Fails with
	// ErrNotFound if absent.
	UpdateGroup(ctx context.Context, group *CachedDirectoryGroup) error
}
