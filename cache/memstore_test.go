package cache_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"f0oster/adsync/cache"
)

func sampleGroup() *cache.CachedDirectoryGroup {
	return &cache.CachedDirectoryGroup{
		ObjectGUID: uuid.New(),
		Members: []cache.CachedDirectoryGroupMember{
			{ObjectGUID: uuid.New(), Identity: "alice"},
			{ObjectGUID: uuid.New(), Identity: "bob"},
		},
	}
}

func TestMemoryStore_FindGroupAbsent(t *testing.T) {
	store := cache.NewMemoryStore()

	group, err := store.FindGroup(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, group)
}

func TestMemoryStore_InsertThenFind(t *testing.T) {
	store := cache.NewMemoryStore()
	group := sampleGroup()

	require.NoError(t, store.InsertGroup(context.Background(), group))

	found, err := store.FindGroup(context.Background(), group.ObjectGUID)
	require.NoError(t, err)
	assert.Equal(t, group, found)
}

func TestMemoryStore_DoubleInsertConflicts(t *testing.T) {
	store := cache.NewMemoryStore()
	group := sampleGroup()

	require.NoError(t, store.InsertGroup(context.Background(), group))
	assert.ErrorIs(t, store.InsertGroup(context.Background(), group), cache.ErrConflict)
}

func TestMemoryStore_UpdateAbsentGroup(t *testing.T) {
	store := cache.NewMemoryStore()

	assert.ErrorIs(t, store.UpdateGroup(context.Background(), sampleGroup()), cache.ErrNotFound)
}

func TestMemoryStore_UpdateReplacesRecord(t *testing.T) {
	store := cache.NewMemoryStore()
	group := sampleGroup()
	require.NoError(t, store.InsertGroup(context.Background(), group))

	group.Members = group.Members[:1]
	require.NoError(t, store.UpdateGroup(context.Background(), group))

	found, err := store.FindGroup(context.Background(), group.ObjectGUID)
	require.NoError(t, err)
	assert.Len(t, found.Members, 1)
}

func TestMemoryStore_CopiesOnTheWayInAndOut(t *testing.T) {
	store := cache.NewMemoryStore()
	group := sampleGroup()
	require.NoError(t, store.InsertGroup(context.Background(), group))

	// Mutating the caller's record after insert must not change stored state.
	group.Members[0].Identity = "mallory"

	found, err := store.FindGroup(context.Background(), group.ObjectGUID)
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Members[0].Identity.String())

	// Nor must mutating a returned record.
	found.Members[0].Identity = "mallory"
	again, err := store.FindGroup(context.Background(), group.ObjectGUID)
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Members[0].Identity.String())
}

func TestMemoryStore_ListGroups(t *testing.T) {
	store := cache.NewMemoryStore()
	a := sampleGroup()
	b := sampleGroup()
	require.NoError(t, store.InsertGroup(context.Background(), a))
	require.NoError(t, store.InsertGroup(context.Background(), b))

	groups, err := store.ListGroups(context.Background())
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}
