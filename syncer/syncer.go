// Package syncer orchestrates reconciliation passes: fetch reference state,
// diff against the snapshot cache, dispatch the change-set in batches, and
// persist the confirmed outcome. Groups are processed independently; a
// failure in one never aborts the sweep over the others.
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"f0oster/adsync/cache"
	"f0oster/adsync/config"
	"f0oster/adsync/directory"
	"f0oster/adsync/reconcile"
	"f0oster/adsync/remote"
)

// Store is the snapshot cache surface the syncer needs: the mutation port
// plus listing for the drift scan and status reporting.
type Store interface {
	cache.Store
	ListGroups(ctx context.Context) ([]*cache.CachedDirectoryGroup, error)
}

// PassResult records the outcome of one group's reconciliation pass for the
// status surface.
type PassResult struct {
	GroupGUID  uuid.UUID  `json:"group_guid"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	FirstSync  bool       `json:"first_sync"`
	Stats      ApplyStats `json:"stats"`
	Skipped    int        `json:"skipped"`
	Error      string     `json:"error,omitempty"`
}

type Syncer struct {
	reader     directory.Reader
	store      Store
	dispatcher *Dispatcher
	cfg        *config.SyncConfig
	logger     *zap.SugaredLogger

	locks groupLocks

	mu          sync.RWMutex
	lastResults map[uuid.UUID]PassResult
	lastScan    *DriftReport
}

func NewSyncer(
	reader directory.Reader,
	store Store,
	client remote.Client,
	cfg *config.SyncConfig,
	logger *zap.SugaredLogger,
) *Syncer {
	return &Syncer{
		reader:      reader,
		store:       store,
		dispatcher:  NewDispatcher(client, cfg.BatchSizes, logger),
		cfg:         cfg,
		logger:      logger,
		lastResults: make(map[uuid.UUID]PassResult),
	}
}

// SyncAll runs one reconciliation pass over every configured group, with at
// most cfg.Workers groups in flight. Per-group failures are collected and
// returned combined; the sweep itself always visits every group unless the
// context is canceled.
func (s *Syncer) SyncAll(ctx context.Context) error {
	var (
		errMu    sync.Mutex
		sweepErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for _, mapping := range s.cfg.Groups {
		mapping := mapping
		g.Go(func() error {
			if err := s.SyncGroup(gctx, mapping); err != nil {
				if errors.Is(err, context.Canceled) {
					return err // tear the sweep down
				}
				errMu.Lock()
				sweepErr = errors.CombineErrors(sweepErr, err)
				errMu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return sweepErr
}

// SyncGroup runs one reconciliation pass for a single group: fetch → find →
// diff → dispatch → persist. Passes for the same group are serialized by a
// per-group lock; distinct groups never contend.
func (s *Syncer) SyncGroup(ctx context.Context, mapping config.GroupMapping) error {
	unlock := s.locks.lock(mapping.GroupGUID)
	defer unlock()

	result := PassResult{
		GroupGUID: mapping.GroupGUID,
		StartedAt: time.Now(),
	}
	err := s.syncGroupLocked(ctx, mapping, &result)
	result.FinishedAt = time.Now()
	if err != nil {
		result.Error = err.Error()
	}

	s.mu.Lock()
	s.lastResults[mapping.GroupGUID] = result
	s.mu.Unlock()

	if err != nil {
		s.logger.Errorw("group pass failed", "group", mapping.GroupGUID, "error", err)
		return err
	}

	s.logger.Infow("group pass complete",
		"group", mapping.GroupGUID,
		"created", result.Stats.Created,
		"updated", result.Stats.Updated,
		"deleted", result.Stats.Deleted,
		"rejected", result.Stats.Rejected,
		"first_sync", result.FirstSync,
	)
	return nil
}

func (s *Syncer) syncGroupLocked(ctx context.Context, mapping config.GroupMapping, result *PassResult) error {
	reference, err := s.reader.FetchReferenceGroup(ctx, mapping.GroupGUID, s.cfg.Attributes.RequiredAttributeNames())
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return errors.Wrapf(err, "group %s vanished from directory", mapping.GroupGUID)
		}
		return errors.Wrapf(err, "fetching reference state for group %s", mapping.GroupGUID)
	}

	cached, err := s.store.FindGroup(ctx, mapping.GroupGUID)
	if err != nil {
		return errors.Wrapf(err, "loading snapshot for group %s", mapping.GroupGUID)
	}

	cs, err := reconcile.BuildChangeSet(cached, reference, reconcile.Options{
		IdentityAttribute:   s.cfg.Attributes.Identity,
		NameAttributes:      s.cfg.Attributes.Name,
		EmailAttributes:     s.cfg.Attributes.Email,
		PhoneAttributes:     s.cfg.Attributes.Phone,
		RemoteGroups:        mapping.RemoteGroups,
		RetiredRemoteGroups: mapping.RetiredRemoteGroups,
	})
	if err != nil {
		return errors.Wrapf(err, "diffing group %s", mapping.GroupGUID)
	}

	result.FirstSync = cs.FirstSync
	result.Skipped = len(cs.SkippedNoIdentity)
	for _, memberGUID := range cs.SkippedNoIdentity {
		s.logger.Warnw("member has no identity attribute value, skipping",
			"group", mapping.GroupGUID, "member", memberGUID)
	}

	if cs.Empty() && !cs.FirstSync {
		s.logger.Debugw("no changes for group", "group", mapping.GroupGUID)
		return nil
	}

	snapshot, stats, err := s.dispatcher.Apply(ctx, cached, cs)
	result.Stats = stats
	if err != nil {
		// Nothing is persisted; the next pass recomputes the same delta.
		return errors.Wrapf(err, "applying change-set for group %s", mapping.GroupGUID)
	}

	if cs.FirstSync {
		if err := s.store.InsertGroup(ctx, snapshot); err != nil {
			if errors.Is(err, cache.ErrConflict) {
				return errors.Wrapf(err, "group %s was cached concurrently", mapping.GroupGUID)
			}
			return errors.Wrapf(err, "inserting snapshot for group %s", mapping.GroupGUID)
		}
		return nil
	}

	if err := s.store.UpdateGroup(ctx, snapshot); err != nil {
		return errors.Wrapf(err, "replacing snapshot for group %s", mapping.GroupGUID)
	}
	return nil
}

// LastResults returns the most recent pass outcome per group.
func (s *Syncer) LastResults() []PassResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]PassResult, 0, len(s.lastResults))
	for _, result := range s.lastResults {
		results = append(results, result)
	}
	return results
}

// groupLocks hands out one mutex per group GUID so concurrent passes can
// never race on the same group's record.
type groupLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func (l *groupLocks) lock(groupGUID uuid.UUID) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[uuid.UUID]*sync.Mutex)
	}
	lock, ok := l.locks[groupGUID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[groupGUID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
