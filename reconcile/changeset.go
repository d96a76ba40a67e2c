// Package reconcile turns "directory state now" plus "last synchronized
// snapshot" into the minimal set of create/update/delete operations. The
// engine is pure: it never touches the cache or the remote service.
package reconcile

import (
	"github.com/google/uuid"

	"f0oster/adsync/fingerprint"
	"f0oster/adsync/identity"
	"f0oster/adsync/remote"
)

// ChangeSet is the diff output for one group: three disjoint collections
// keyed by member GUID. A member present in both snapshot and reference with
// an unchanged attribute fingerprint appears in none of them, so no remote
// call is issued for it.
type ChangeSet struct {
	GroupGUID uuid.UUID

	// FirstSync marks a group with no cached record; after a successful
	// apply the group gets a first-time cache insertion instead of a
	// replacement.
	FirstSync bool

	ToCreate []Change
	ToUpdate []Change
	ToDelete []Deletion

	// SkippedNoIdentity lists reference members whose identity attribute was
	// blank. They cannot be addressed remotely and are left out of the pass;
	// the caller logs them.
	SkippedNoIdentity []uuid.UUID
}

// Change is one member create or update, carrying the remote payload plus
// the attribute fingerprint to record in the cache once the item is
// confirmed applied.
type Change struct {
	Member         remote.Member
	AttributesHash fingerprint.Fingerprint
}

// Deletion is one member removal.
type Deletion struct {
	ObjectGUID uuid.UUID
	Identity   identity.Identity
}

// Empty reports whether the change-set requires no remote calls.
func (cs *ChangeSet) Empty() bool {
	return len(cs.ToCreate) == 0 && len(cs.ToUpdate) == 0 && len(cs.ToDelete) == 0
}

// Size returns the total number of planned operations.
func (cs *ChangeSet) Size() int {
	return len(cs.ToCreate) + len(cs.ToUpdate) + len(cs.ToDelete)
}
