package syncer

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"f0oster/adsync/cache"
	"f0oster/adsync/config"
	"f0oster/adsync/fingerprint"
	"f0oster/adsync/identity"
	"f0oster/adsync/reconcile"
	"f0oster/adsync/remote"
)

// Dispatcher applies one group's change-set against the remote port in
// size-bounded batches and builds the post-pass snapshot from the confirmed
// outcomes.
//
// Apply order within a group is fixed: delete, then create, then update.
// Batches are submitted sequentially; a batch's outcome must be known before
// the working copy absorbs it. On the first batch that fails (after the
// remote adapter's retries are exhausted) the dispatcher stops and reports a
// recoverable error; nothing from that group reaches the durable store, so
// the next pass recomputes the same pending delta.
type Dispatcher struct {
	client     remote.Client
	batchSizes config.BatchSizes
	logger     *zap.SugaredLogger
}

func NewDispatcher(client remote.Client, batchSizes config.BatchSizes, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		client:     client,
		batchSizes: batchSizes,
		logger:     logger,
	}
}

// ApplyStats counts what one Apply confirmed.
type ApplyStats struct {
	Created  int
	Updated  int
	Deleted  int
	Rejected int
}

// Apply pushes the change-set and returns the snapshot to persist, built
// from the cached record (nil on first sync) plus every confirmed item.
// Rejected items keep their pre-pass cached view so the next pass retries
// them.
func (d *Dispatcher) Apply(
	ctx context.Context,
	cached *cache.CachedDirectoryGroup,
	cs *reconcile.ChangeSet,
) (*cache.CachedDirectoryGroup, ApplyStats, error) {
	var stats ApplyStats

	working := make(map[uuid.UUID]cache.CachedDirectoryGroupMember)
	if cached != nil {
		for _, member := range cached.Members {
			working[member.ObjectGUID] = member
		}
	}

	if err := d.applyDeletes(ctx, cs, working, &stats); err != nil {
		return nil, stats, err
	}
	if err := d.applyChanges(ctx, cs.GroupGUID, "create", cs.ToCreate, d.batchSizes.Create, d.client.CreateMany, working, &stats.Created, &stats.Rejected); err != nil {
		return nil, stats, err
	}
	if err := d.applyChanges(ctx, cs.GroupGUID, "update", cs.ToUpdate, d.batchSizes.Update, d.client.UpdateMany, working, &stats.Updated, &stats.Rejected); err != nil {
		return nil, stats, err
	}

	return buildSnapshot(cs.GroupGUID, working), stats, nil
}

func (d *Dispatcher) applyDeletes(
	ctx context.Context,
	cs *reconcile.ChangeSet,
	working map[uuid.UUID]cache.CachedDirectoryGroupMember,
	stats *ApplyStats,
) error {
	for _, batch := range partition(cs.ToDelete, d.batchSizes.Delete) {
		identities := make([]identity.Identity, len(batch))
		byIdentity := make(map[identity.Identity]uuid.UUID, len(batch))
		for i, deletion := range batch {
			identities[i] = deletion.Identity
			byIdentity[deletion.Identity] = deletion.ObjectGUID
		}

		outcomes, err := d.client.DeleteMany(ctx, identities)
		if err != nil {
			return errors.Wrapf(err, "delete batch for group %s", cs.GroupGUID)
		}

		for _, outcome := range outcomes {
			memberGUID, ok := byIdentity[outcome.Identity]
			if !ok {
				d.logger.Warnw("remote reported unknown identity in delete batch",
					"group", cs.GroupGUID, "identity", outcome.Identity)
				continue
			}
			if outcome.Rejected {
				stats.Rejected++
				d.logger.Warnw("delete rejected",
					"group", cs.GroupGUID, "identity", outcome.Identity, "reason", outcome.Reason)
				continue
			}
			delete(working, memberGUID)
			stats.Deleted++
		}
	}
	return nil
}

// applyChanges handles the create and update legs, which share the batch /
// outcome / working-copy shape and differ only in the remote call.
func (d *Dispatcher) applyChanges(
	ctx context.Context,
	groupGUID uuid.UUID,
	kind string,
	changes []reconcile.Change,
	batchSize int,
	call func(context.Context, []remote.Member) ([]remote.Outcome, error),
	working map[uuid.UUID]cache.CachedDirectoryGroupMember,
	applied *int,
	rejected *int,
) error {
	for _, batch := range partition(changes, batchSize) {
		members := make([]remote.Member, len(batch))
		byIdentity := make(map[identity.Identity]reconcile.Change, len(batch))
		for i, change := range batch {
			members[i] = change.Member
			byIdentity[change.Member.Identity] = change
		}

		outcomes, err := call(ctx, members)
		if err != nil {
			return errors.Wrapf(err, "%s batch for group %s", kind, groupGUID)
		}

		for _, outcome := range outcomes {
			change, ok := byIdentity[outcome.Identity]
			if !ok {
				d.logger.Warnw("remote reported unknown identity in batch",
					"group", groupGUID, "kind", kind, "identity", outcome.Identity)
				continue
			}
			if outcome.Rejected {
				*rejected++
				d.logger.Warnw("item rejected",
					"group", groupGUID, "kind", kind, "identity", outcome.Identity, "reason", outcome.Reason)
				continue
			}
			working[change.Member.ObjectGUID] = cache.CachedDirectoryGroupMember{
				ObjectGUID:     change.Member.ObjectGUID,
				Identity:       change.Member.Identity,
				AttributesHash: change.AttributesHash,
			}
			*applied++
		}
	}
	return nil
}

// buildSnapshot assembles the replacement record. Members are ordered by
// GUID so the persisted record is deterministic regardless of apply order.
func buildSnapshot(groupGUID uuid.UUID, working map[uuid.UUID]cache.CachedDirectoryGroupMember) *cache.CachedDirectoryGroup {
	members := make([]cache.CachedDirectoryGroupMember, 0, len(working))
	for _, member := range working {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].ObjectGUID.String() < members[j].ObjectGUID.String()
	})

	guids := make([]uuid.UUID, len(members))
	for i, member := range members {
		guids[i] = member.ObjectGUID
	}

	return &cache.CachedDirectoryGroup{
		ObjectGUID:  groupGUID,
		EntriesHash: fingerprint.ComputeEntriesHash(guids),
		Members:     members,
	}
}

// partition splits items into consecutive batches of at most size elements.
func partition[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	var batches [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
