package database

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"f0oster/adsync/cache"
	"f0oster/adsync/fingerprint"
	"f0oster/adsync/identity"
)

// GroupStore implements cache.Store on Postgres. A group's record is always
// replaced as a unit inside one transaction, so a crash mid-pass can never
// leave a half-updated snapshot.
type GroupStore struct {
	db *Database
}

func NewGroupStore(db *Database) *GroupStore {
	return &GroupStore{db: db}
}

const (
	findGroupQuery = `
		SELECT entries_hash
		FROM SyncedGroups
		WHERE group_id = $1`

	findMembersQuery = `
		SELECT member_id, identity, attributes_hash
		FROM SyncedGroupMembers
		WHERE group_id = $1
		ORDER BY position`

	insertGroupQuery = `
		INSERT INTO SyncedGroups (group_id, entries_hash)
		VALUES ($1, $2)`

	updateGroupQuery = `
		UPDATE SyncedGroups
		SET entries_hash = $2, updated_at = NOW()
		WHERE group_id = $1`

	deleteMembersQuery = `
		DELETE FROM SyncedGroupMembers
		WHERE group_id = $1`

	insertMemberQuery = `
		INSERT INTO SyncedGroupMembers (group_id, member_id, identity, attributes_hash, position)
		VALUES ($1, $2, $3, $4, $5)`

	listGroupIDsQuery = `
		SELECT group_id
		FROM SyncedGroups
		ORDER BY group_id`
)

// FindGroup loads the cached record for a group, or (nil, nil) when the
// group has never been synchronized.
func (s *GroupStore) FindGroup(ctx context.Context, groupGUID uuid.UUID) (*cache.CachedDirectoryGroup, error) {
	var entriesHashHex string
	err := s.db.ConnectionPool.QueryRow(ctx, findGroupQuery, groupGUID).Scan(&entriesHashHex)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find group %s", groupGUID)
	}

	entriesHash, err := fingerprint.FromHex(entriesHashHex)
	if err != nil {
		return nil, errors.Wrapf(err, "group %s has corrupt entries hash", groupGUID)
	}

	group := &cache.CachedDirectoryGroup{
		ObjectGUID:  groupGUID,
		EntriesHash: entriesHash,
	}

	rows, err := s.db.ConnectionPool.Query(ctx, findMembersQuery, groupGUID)
	if err != nil {
		return nil, errors.Wrapf(err, "find members of group %s", groupGUID)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			memberID    uuid.UUID
			rawIdentity string
			attrHashHex string
		)
		if err := rows.Scan(&memberID, &rawIdentity, &attrHashHex); err != nil {
			return nil, errors.Wrap(err, "scan member row")
		}
		attrHash, err := fingerprint.FromHex(attrHashHex)
		if err != nil {
			return nil, errors.Wrapf(err, "member %s has corrupt attributes hash", memberID)
		}
		group.Members = append(group.Members, cache.CachedDirectoryGroupMember{
			ObjectGUID:     memberID,
			Identity:       identity.Identity(rawIdentity),
			AttributesHash: attrHash,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating member rows")
	}

	return group, nil
}

// InsertGroup stores a first-sync record. cache.ErrConflict if present.
func (s *GroupStore) InsertGroup(ctx context.Context, group *cache.CachedDirectoryGroup) (err error) {
	tx, err := s.db.ConnectionPool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer rollbackOrCommit(ctx, tx, &err)

	if _, err = tx.Exec(ctx, insertGroupQuery, group.ObjectGUID, group.EntriesHash.Hex()); err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(cache.ErrConflict, "group %s", group.ObjectGUID)
		}
		return errors.Wrapf(err, "insert group %s", group.ObjectGUID)
	}

	err = s.insertMembers(ctx, tx, group)
	return err
}

// UpdateGroup atomically replaces an existing record. cache.ErrNotFound if
// absent.
func (s *GroupStore) UpdateGroup(ctx context.Context, group *cache.CachedDirectoryGroup) (err error) {
	tx, err := s.db.ConnectionPool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer rollbackOrCommit(ctx, tx, &err)

	tag, err := tx.Exec(ctx, updateGroupQuery, group.ObjectGUID, group.EntriesHash.Hex())
	if err != nil {
		return errors.Wrapf(err, "update group %s", group.ObjectGUID)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(cache.ErrNotFound, "group %s", group.ObjectGUID)
	}

	if _, err = tx.Exec(ctx, deleteMembersQuery, group.ObjectGUID); err != nil {
		return errors.Wrapf(err, "clear members of group %s", group.ObjectGUID)
	}

	err = s.insertMembers(ctx, tx, group)
	return err
}

// ListGroups loads every cached record, for the status surface.
func (s *GroupStore) ListGroups(ctx context.Context) ([]*cache.CachedDirectoryGroup, error) {
	rows, err := s.db.ConnectionPool.Query(ctx, listGroupIDsQuery)
	if err != nil {
		return nil, errors.Wrap(err, "list groups")
	}

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan group id")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating group rows")
	}

	groups := make([]*cache.CachedDirectoryGroup, 0, len(ids))
	for _, id := range ids {
		group, err := s.FindGroup(ctx, id)
		if err != nil {
			return nil, err
		}
		if group != nil {
			groups = append(groups, group)
		}
	}
	return groups, nil
}

func (s *GroupStore) insertMembers(ctx context.Context, tx pgx.Tx, group *cache.CachedDirectoryGroup) error {
	for i, member := range group.Members {
		_, err := tx.Exec(ctx, insertMemberQuery,
			group.ObjectGUID,
			member.ObjectGUID,
			member.Identity.String(),
			member.AttributesHash.Hex(),
			i,
		)
		if err != nil {
			return errors.Wrapf(err, "insert member %s of group %s", member.ObjectGUID, group.ObjectGUID)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
