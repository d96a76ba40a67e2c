package syncer_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"f0oster/adsync/cache"
	"f0oster/adsync/config"
	"f0oster/adsync/identity"
	"f0oster/adsync/reconcile"
	"f0oster/adsync/remote"
	"f0oster/adsync/syncer"
)

// remoteCall records one batch submitted to the fake client.
type remoteCall struct {
	kind       string
	identities []identity.Identity
}

// fakeClient implements remote.Client, recording every batch. Identities in
// reject come back with a rejected outcome; a kind listed in failKind fails
// the whole batch.
type fakeClient struct {
	calls      []remoteCall
	reject     map[identity.Identity]string
	failKind   string
	identities []identity.Identity
}

func (f *fakeClient) record(kind string, ids []identity.Identity) []remote.Outcome {
	f.calls = append(f.calls, remoteCall{kind: kind, identities: ids})
	outcomes := make([]remote.Outcome, len(ids))
	for i, id := range ids {
		outcomes[i] = remote.Outcome{Identity: id}
		if reason, ok := f.reject[id]; ok {
			outcomes[i].Rejected = true
			outcomes[i].Reason = reason
		}
	}
	return outcomes
}

func (f *fakeClient) submit(kind string, ids []identity.Identity) ([]remote.Outcome, error) {
	if f.failKind == kind {
		return nil, errors.Newf("%s batch refused", kind)
	}
	return f.record(kind, ids), nil
}

func (f *fakeClient) CreateMany(_ context.Context, members []remote.Member) ([]remote.Outcome, error) {
	return f.submit("create", memberIdentities(members))
}

func (f *fakeClient) UpdateMany(_ context.Context, members []remote.Member) ([]remote.Outcome, error) {
	return f.submit("update", memberIdentities(members))
}

func (f *fakeClient) DeleteMany(_ context.Context, identities []identity.Identity) ([]remote.Outcome, error) {
	return f.submit("delete", identities)
}

func (f *fakeClient) GetAllIdentities(_ context.Context) ([]identity.Identity, error) {
	return f.identities, nil
}

func memberIdentities(members []remote.Member) []identity.Identity {
	ids := make([]identity.Identity, len(members))
	for i, m := range members {
		ids[i] = m.Identity
	}
	return ids
}

func newDispatcher(client remote.Client, sizes config.BatchSizes) *syncer.Dispatcher {
	return syncer.NewDispatcher(client, sizes, zap.NewNop().Sugar())
}

func makeChanges(prefix string, n int) []reconcile.Change {
	changes := make([]reconcile.Change, n)
	for i := range changes {
		changes[i] = reconcile.Change{
			Member: remote.Member{
				ObjectGUID: uuid.New(),
				Identity:   identity.Identity(prefix + string(rune('a'+i%26)) + uuid.NewString()[:8]),
			},
		}
	}
	return changes
}

func TestDispatcherApply_BatchPartitioning(t *testing.T) {
	client := &fakeClient{}
	d := newDispatcher(client, config.BatchSizes{Create: 20, Update: 50, Delete: 50})

	cs := &reconcile.ChangeSet{
		GroupGUID: uuid.New(),
		FirstSync: true,
		ToCreate:  makeChanges("u", 25),
	}

	snapshot, stats, err := d.Apply(context.Background(), nil, cs)
	require.NoError(t, err)

	require.Len(t, client.calls, 2)
	assert.Equal(t, "create", client.calls[0].kind)
	assert.Len(t, client.calls[0].identities, 20)
	assert.Len(t, client.calls[1].identities, 5)

	assert.Equal(t, 25, stats.Created)
	assert.Len(t, snapshot.Members, 25)
}

func TestDispatcherApply_DeleteCreateUpdateOrder(t *testing.T) {
	client := &fakeClient{}
	d := newDispatcher(client, config.BatchSizes{Create: 10, Update: 10, Delete: 10})

	stale := cache.CachedDirectoryGroupMember{ObjectGUID: uuid.New(), Identity: "stale"}
	drifted := cache.CachedDirectoryGroupMember{ObjectGUID: uuid.New(), Identity: "drifted"}
	cached := &cache.CachedDirectoryGroup{
		ObjectGUID: uuid.New(),
		Members:    []cache.CachedDirectoryGroupMember{stale, drifted},
	}

	cs := &reconcile.ChangeSet{
		GroupGUID: cached.ObjectGUID,
		ToCreate: []reconcile.Change{{Member: remote.Member{
			ObjectGUID: uuid.New(), Identity: "fresh",
		}}},
		ToUpdate: []reconcile.Change{{Member: remote.Member{
			ObjectGUID: drifted.ObjectGUID, Identity: drifted.Identity,
		}}},
		ToDelete: []reconcile.Deletion{{ObjectGUID: stale.ObjectGUID, Identity: stale.Identity}},
	}

	snapshot, stats, err := d.Apply(context.Background(), cached, cs)
	require.NoError(t, err)

	require.Len(t, client.calls, 3)
	assert.Equal(t, "delete", client.calls[0].kind)
	assert.Equal(t, "create", client.calls[1].kind)
	assert.Equal(t, "update", client.calls[2].kind)

	assert.Equal(t, syncer.ApplyStats{Created: 1, Updated: 1, Deleted: 1}, stats)

	require.Len(t, snapshot.Members, 2)
	for _, member := range snapshot.Members {
		assert.NotEqual(t, stale.ObjectGUID, member.ObjectGUID)
	}
}

func TestDispatcherApply_FailedBatchStopsAndReturnsNothing(t *testing.T) {
	client := &fakeClient{failKind: "create"}
	d := newDispatcher(client, config.BatchSizes{Create: 10, Update: 10, Delete: 10})

	stale := cache.CachedDirectoryGroupMember{ObjectGUID: uuid.New(), Identity: "stale"}
	cached := &cache.CachedDirectoryGroup{
		ObjectGUID: uuid.New(),
		Members:    []cache.CachedDirectoryGroupMember{stale},
	}

	cs := &reconcile.ChangeSet{
		GroupGUID: cached.ObjectGUID,
		ToCreate:  makeChanges("u", 3),
		ToDelete:  []reconcile.Deletion{{ObjectGUID: stale.ObjectGUID, Identity: stale.Identity}},
	}

	snapshot, _, err := d.Apply(context.Background(), cached, cs)
	require.Error(t, err)
	assert.Nil(t, snapshot)

	// The delete batch already went out before create failed; only the create
	// leg is cut short.
	require.Len(t, client.calls, 1)
	assert.Equal(t, "delete", client.calls[0].kind)
}

func TestDispatcherApply_RejectedCreateExcludedFromSnapshot(t *testing.T) {
	accepted := reconcile.Change{Member: remote.Member{ObjectGUID: uuid.New(), Identity: "alice"}}
	rejected := reconcile.Change{Member: remote.Member{ObjectGUID: uuid.New(), Identity: "bob"}}

	client := &fakeClient{reject: map[identity.Identity]string{"bob": "duplicate email"}}
	d := newDispatcher(client, config.BatchSizes{Create: 10, Update: 10, Delete: 10})

	cs := &reconcile.ChangeSet{
		GroupGUID: uuid.New(),
		FirstSync: true,
		ToCreate:  []reconcile.Change{accepted, rejected},
	}

	snapshot, stats, err := d.Apply(context.Background(), nil, cs)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Rejected)

	require.Len(t, snapshot.Members, 1)
	assert.Equal(t, accepted.Member.ObjectGUID, snapshot.Members[0].ObjectGUID)
}

func TestDispatcherApply_RejectedDeleteKeepsCachedView(t *testing.T) {
	stubborn := cache.CachedDirectoryGroupMember{ObjectGUID: uuid.New(), Identity: "carol"}
	cached := &cache.CachedDirectoryGroup{
		ObjectGUID: uuid.New(),
		Members:    []cache.CachedDirectoryGroupMember{stubborn},
	}

	client := &fakeClient{reject: map[identity.Identity]string{"carol": "user is locked"}}
	d := newDispatcher(client, config.BatchSizes{Create: 10, Update: 10, Delete: 10})

	cs := &reconcile.ChangeSet{
		GroupGUID: cached.ObjectGUID,
		ToDelete:  []reconcile.Deletion{{ObjectGUID: stubborn.ObjectGUID, Identity: stubborn.Identity}},
	}

	snapshot, stats, err := d.Apply(context.Background(), cached, cs)
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Deleted)
	assert.Equal(t, 1, stats.Rejected)

	// The member stays cached so the next pass tries the delete again.
	require.Len(t, snapshot.Members, 1)
	assert.Equal(t, stubborn.ObjectGUID, snapshot.Members[0].ObjectGUID)
}
