// Package directory defines the read port and transient reference types for
// the authoritative enterprise directory. Reference state is rebuilt on every
// reconciliation pass and is never persisted; it only feeds the diff engine.
package directory

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ErrNotFound indicates the requested group or member no longer exists in
// the directory.
var ErrNotFound = errors.New("directory: object not found")

// ReferenceDirectoryGroup is the just-fetched directory truth for one group.
type ReferenceDirectoryGroup struct {
	ObjectGUID uuid.UUID
	DN         string
	Members    []ReferenceDirectoryGroupMember
}

// MemberGUIDs returns the GUIDs of all members, in fetch order.
func (g *ReferenceDirectoryGroup) MemberGUIDs() []uuid.UUID {
	guids := make([]uuid.UUID, len(g.Members))
	for i, m := range g.Members {
		guids[i] = m.ObjectGUID
	}
	return guids
}

// ReferenceDirectoryGroupMember is one member of a reference group: its GUID
// plus the raw scalar attribute values the configuration requires.
// Multi-valued directory attributes are collapsed to their first value.
type ReferenceDirectoryGroupMember struct {
	ObjectGUID uuid.UUID
	DN         string
	Attributes map[string]string
}

// Reader is the capability interface for directory access. Implementations
// are transport-specific adapters selected at startup; the reconciliation
// core never branches on which one is active.
type Reader interface {
	// FetchReferenceGroup fetches one group and its members with the given
	// attribute names populated. Returns ErrNotFound if the group no longer
	// exists.
	FetchReferenceGroup(ctx context.Context, groupGUID uuid.UUID, requiredAttributes []string) (*ReferenceDirectoryGroup, error)

	// FetchReferenceMember fetches a single member by GUID. Returns
	// (nil, nil) when the object is absent.
	FetchReferenceMember(ctx context.Context, memberGUID uuid.UUID, requiredAttributes []string) (*ReferenceDirectoryGroupMember, error)
}
