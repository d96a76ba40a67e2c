package activedirectory

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"

	"f0oster/adsync/activedirectory/ldaphelpers"
	"f0oster/adsync/directory"
)

// FetchReferenceGroup resolves a group by objectGUID and fetches its member
// users with the required attributes populated. Returns directory.ErrNotFound
// when the group no longer exists.
func (ad *ActiveDirectoryInstance) FetchReferenceGroup(
	ctx context.Context, groupGUID uuid.UUID, requiredAttributes []string,
) (*directory.ReferenceDirectoryGroup, error) {
	groupDN, err := ad.resolveGroupDN(ctx, groupGUID)
	if err != nil {
		return nil, err
	}

	group := &directory.ReferenceDirectoryGroup{
		ObjectGUID: groupGUID,
		DN:         groupDN,
	}

	memberFilter := ldaphelpers.And(
		ldaphelpers.EqRaw("objectCategory", "person"),
		ldaphelpers.EqRaw("objectClass", "user"),
		ldaphelpers.Eq("memberOf", groupDN),
	).String()

	attributes := append([]string{"objectGUID"}, requiredAttributes...)
	err = ad.fetchPagedEntries(ctx, memberFilter, attributes, func(entries []*ldap.Entry) error {
		for _, entry := range entries {
			member, err := parseMemberEntry(entry, requiredAttributes)
			if err != nil {
				ad.logger.Warnw("skipping member entry", "dn", entry.DN, "error", err)
				continue
			}
			group.Members = append(group.Members, *member)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching members of group %s", groupGUID)
	}

	return group, nil
}

// FetchReferenceMember fetches a single user by objectGUID. Returns
// (nil, nil) when no such object exists.
func (ad *ActiveDirectoryInstance) FetchReferenceMember(
	ctx context.Context, memberGUID uuid.UUID, requiredAttributes []string,
) (*directory.ReferenceDirectoryGroupMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filter := ldaphelpers.And(
		ldaphelpers.EqRaw("objectClass", "user"),
		guidFilter(memberGUID),
	).String()

	attributes := append([]string{"objectGUID"}, requiredAttributes...)
	request := ldap.NewSearchRequest(
		ad.BaseDn,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		1, 0, false,
		filter,
		attributes,
		nil,
	)

	results, err := ad.ldapConnection.Search(request)
	if err != nil && !ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
		return nil, errors.Wrapf(err, "searching for member %s", memberGUID)
	}
	if results == nil || len(results.Entries) == 0 {
		return nil, nil
	}

	return parseMemberEntry(results.Entries[0], requiredAttributes)
}

// resolveGroupDN finds the DN for a group GUID.
func (ad *ActiveDirectoryInstance) resolveGroupDN(ctx context.Context, groupGUID uuid.UUID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	filter := ldaphelpers.And(
		ldaphelpers.EqRaw("objectClass", "group"),
		guidFilter(groupGUID),
	).String()

	request := ldap.NewSearchRequest(
		ad.BaseDn,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		1, 0, false,
		filter,
		[]string{"distinguishedName"},
		nil,
	)

	results, err := ad.ldapConnection.Search(request)
	if err != nil && !ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
		return "", errors.Wrapf(err, "searching for group %s", groupGUID)
	}
	if results == nil || len(results.Entries) == 0 {
		return "", errors.Wrapf(directory.ErrNotFound, "group %s", groupGUID)
	}

	return results.Entries[0].DN, nil
}

// guidFilter builds an objectGUID equality filter from the AD mixed-endian
// binary encoding.
func guidFilter(guid uuid.UUID) ldaphelpers.Filter {
	return ldaphelpers.EqRaw("objectGUID", ldaphelpers.EscapeBinary(uuidToADGuid(guid)))
}

// parseMemberEntry converts an LDAP entry into a reference member with the
// required attributes collapsed to their first value. Attribute names are
// matched case-insensitively; absent attributes stay out of the map (they
// fingerprint the same as empty).
func parseMemberEntry(entry *ldap.Entry, requiredAttributes []string) (*directory.ReferenceDirectoryGroupMember, error) {
	rawGuids := entry.GetRawAttributeValues("objectGUID")
	if len(rawGuids) == 0 {
		return nil, errors.New("entry has no objectGUID")
	}
	objectGUID, err := adGuidToUUID(rawGuids[0])
	if err != nil {
		return nil, err
	}

	attributes := make(map[string]string, len(requiredAttributes))
	for _, name := range requiredAttributes {
		for _, attr := range entry.Attributes {
			if strings.EqualFold(attr.Name, name) && len(attr.Values) > 0 {
				attributes[name] = attr.Values[0]
				break
			}
		}
	}

	return &directory.ReferenceDirectoryGroupMember{
		ObjectGUID: objectGUID,
		DN:         entry.DN,
		Attributes: attributes,
	}, nil
}
