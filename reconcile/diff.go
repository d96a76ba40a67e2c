package reconcile

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"f0oster/adsync/cache"
	"f0oster/adsync/directory"
	"f0oster/adsync/fingerprint"
	"f0oster/adsync/identity"
	"f0oster/adsync/remote"
)

// ErrNoIdentityAttribute is returned when the engine is invoked without a
// configured identity attribute. It is a configuration error: the pass for
// the group is aborted before any remote or cache call.
var ErrNoIdentityAttribute = errors.New("reconcile: no identity attribute configured")

// Options carries the per-group configuration the engine needs: which
// directory attribute names the identity and contact fields come from, and
// the directory-group to remote-group mapping.
type Options struct {
	// IdentityAttribute names the directory attribute holding the raw login
	// value. Required.
	IdentityAttribute string

	// Prioritized candidate attribute names; the first non-empty value wins.
	NameAttributes  []string
	EmailAttributes []string
	PhoneAttributes []string

	// RemoteGroups are the remote sign-up groups mapped to this directory
	// group. Creates carry the full set; updates re-assert it so remote-side
	// drift heals on the next attribute change.
	RemoteGroups []string

	// RetiredRemoteGroups are remote groups formerly mapped to this
	// directory group; updates carry them as removals.
	RetiredRemoteGroups []string
}

// BuildChangeSet diffs the cached snapshot (nil on first sync) against the
// freshly fetched reference state and returns the change-set.
//
// When the membership fingerprints match, membership is unchanged and only
// per-member attribute fingerprints are compared. Otherwise creates are
// reference minus cached, deletes are cached minus reference, and the
// intersection is checked member by member for attribute drift.
func BuildChangeSet(cached *cache.CachedDirectoryGroup, reference *directory.ReferenceDirectoryGroup, opts Options) (*ChangeSet, error) {
	if opts.IdentityAttribute == "" {
		return nil, ErrNoIdentityAttribute
	}

	cs := &ChangeSet{
		GroupGUID: reference.ObjectGUID,
		FirstSync: cached == nil,
	}

	if cached == nil {
		for _, member := range reference.Members {
			change, ok := buildChange(member, opts)
			if !ok {
				cs.SkippedNoIdentity = append(cs.SkippedNoIdentity, member.ObjectGUID)
				continue
			}
			cs.ToCreate = append(cs.ToCreate, change)
		}
		return cs, nil
	}

	cachedIndex := cached.MemberIndex()
	referenceHash := fingerprint.ComputeEntriesHash(reference.MemberGUIDs())

	if referenceHash == cached.EntriesHash {
		// Same membership; attributes can still have drifted.
		for _, member := range reference.Members {
			change, ok := buildChange(member, opts)
			if !ok {
				cs.SkippedNoIdentity = append(cs.SkippedNoIdentity, member.ObjectGUID)
				continue
			}
			if prev, exists := cachedIndex[member.ObjectGUID]; exists && prev.AttributesHash != change.AttributesHash {
				cs.ToUpdate = append(cs.ToUpdate, change)
			}
		}
		return cs, nil
	}

	seen := make(map[uuid.UUID]bool, len(reference.Members))
	for _, member := range reference.Members {
		seen[member.ObjectGUID] = true

		change, ok := buildChange(member, opts)
		if !ok {
			cs.SkippedNoIdentity = append(cs.SkippedNoIdentity, member.ObjectGUID)
			continue
		}

		prev, exists := cachedIndex[member.ObjectGUID]
		switch {
		case !exists:
			cs.ToCreate = append(cs.ToCreate, change)
		case prev.AttributesHash != change.AttributesHash:
			cs.ToUpdate = append(cs.ToUpdate, change)
		}
	}

	for _, prev := range cached.Members {
		if !seen[prev.ObjectGUID] {
			cs.ToDelete = append(cs.ToDelete, Deletion{
				ObjectGUID: prev.ObjectGUID,
				Identity:   prev.Identity,
			})
		}
	}

	return cs, nil
}

// buildChange assembles the remote payload for one reference member. Returns
// ok=false when the identity attribute is blank for this member.
func buildChange(member directory.ReferenceDirectoryGroupMember, opts Options) (Change, bool) {
	rawIdentity := identity.SelectAttribute(member.Attributes, []string{opts.IdentityAttribute})
	if rawIdentity == "" {
		return Change{}, false
	}

	return Change{
		Member: remote.Member{
			ObjectGUID:     member.ObjectGUID,
			Identity:       identity.Normalize(rawIdentity),
			RealName:       identity.SelectAttribute(member.Attributes, opts.NameAttributes),
			Email:          identity.SelectAttribute(member.Attributes, opts.EmailAttributes),
			Phone:          identity.SelectAttribute(member.Attributes, opts.PhoneAttributes),
			GroupsToAdd:    opts.RemoteGroups,
			GroupsToRemove: opts.RetiredRemoteGroups,
		},
		AttributesHash: fingerprint.ComputeAttributesHash(member.Attributes),
	}, true
}
