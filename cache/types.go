// Package cache holds the durable "last confirmed synchronized state" per
// directory group, and the store port the reconciliation engine consumes.
// Only fingerprints are persisted, never raw attribute values.
package cache

import (
	"github.com/google/uuid"

	"f0oster/adsync/fingerprint"
	"f0oster/adsync/identity"
)

// CachedDirectoryGroup is the snapshot of one synchronized group as last
// confirmed applied to the remote service. Records are replaced atomically
// as a unit after a pass; a group is never partially updated in the store.
type CachedDirectoryGroup struct {
	ObjectGUID  uuid.UUID
	EntriesHash fingerprint.Fingerprint
	Members     []CachedDirectoryGroupMember
}

// CachedDirectoryGroupMember is the per-member snapshot: GUID, the
// normalized identity the remote service keys the user by, and the
// fingerprint of the attribute set last pushed.
type CachedDirectoryGroupMember struct {
	ObjectGUID     uuid.UUID
	Identity       identity.Identity
	AttributesHash fingerprint.Fingerprint
}

// MemberIndex returns the members keyed by GUID.
func (g *CachedDirectoryGroup) MemberIndex() map[uuid.UUID]CachedDirectoryGroupMember {
	index := make(map[uuid.UUID]CachedDirectoryGroupMember, len(g.Members))
	for _, m := range g.Members {
		index[m.ObjectGUID] = m
	}
	return index
}

// MemberGUIDs returns the GUIDs of all cached members.
func (g *CachedDirectoryGroup) MemberGUIDs() []uuid.UUID {
	guids := make([]uuid.UUID, len(g.Members))
	for i, m := range g.Members {
		guids[i] = m.ObjectGUID
	}
	return guids
}
