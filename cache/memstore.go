package cache

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and by dev runs without a
// database. Records are deep-copied on the way in and out so callers can
// never mutate stored state through a shared slice.
type MemoryStore struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]*CachedDirectoryGroup
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups: make(map[uuid.UUID]*CachedDirectoryGroup),
	}
}

func (s *MemoryStore) FindGroup(_ context.Context, groupGUID uuid.UUID) (*CachedDirectoryGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group, ok := s.groups[groupGUID]
	if !ok {
		return nil, nil
	}
	return copyGroup(group), nil
}

func (s *MemoryStore) InsertGroup(_ context.Context, group *CachedDirectoryGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[group.ObjectGUID]; ok {
		return ErrConflict
	}
	s.groups[group.ObjectGUID] = copyGroup(group)
	return nil
}

func (s *MemoryStore) UpdateGroup(_ context.Context, group *CachedDirectoryGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[group.ObjectGUID]; !ok {
		return ErrNotFound
	}
	s.groups[group.ObjectGUID] = copyGroup(group)
	return nil
}

// ListGroups returns all cached records, for the status surface.
func (s *MemoryStore) ListGroups(_ context.Context) ([]*CachedDirectoryGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*CachedDirectoryGroup, 0, len(s.groups))
	for _, group := range s.groups {
		out = append(out, copyGroup(group))
	}
	return out, nil
}

func copyGroup(group *CachedDirectoryGroup) *CachedDirectoryGroup {
	members := make([]CachedDirectoryGroupMember, len(group.Members))
	copy(members, group.Members)
	return &CachedDirectoryGroup{
		ObjectGUID:  group.ObjectGUID,
		EntriesHash: group.EntriesHash,
		Members:     members,
	}
}
