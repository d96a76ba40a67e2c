// Package scheduler drives the periodic sweeps: a full sync pass over every
// configured group and a lighter drift scan, each on its own cadence.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"f0oster/adsync/config"
	"f0oster/adsync/syncer"
)

type Ticker struct {
	syncer       *syncer.Syncer
	syncInterval time.Duration
	scanInterval time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	logger       *zap.SugaredLogger

	syncRunning sync.Mutex
	scanRunning sync.Mutex
}

func NewTicker(ctx context.Context, s *syncer.Syncer, cfg *config.SyncConfig, logger *zap.SugaredLogger) *Ticker {
	tickerCtx, cancel := context.WithCancel(ctx)
	return &Ticker{
		syncer:       s,
		syncInterval: cfg.SyncInterval.Duration,
		scanInterval: cfg.ScanInterval.Duration,
		ctx:          tickerCtx,
		cancel:       cancel,
		logger:       logger,
	}
}

// Start launches both cadences. An immediate sync pass runs before the first
// tick so a restart converges without waiting a full interval.
func (t *Ticker) Start() {
	t.wg.Add(2)
	go t.runSync()
	go t.runScan()
	t.logger.Infow("scheduler started",
		"sync_interval", t.syncInterval,
		"scan_interval", t.scanInterval,
	)
}

// Stop cancels in-flight work and waits for both loops to drain.
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.logger.Infow("scheduler stopped")
}

func (t *Ticker) runSync() {
	defer t.wg.Done()

	t.syncOnce()

	ticker := time.NewTicker(t.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.syncOnce()
		}
	}
}

func (t *Ticker) runScan() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.scanOnce()
		}
	}
}

// syncOnce runs one sweep unless the previous one is still in flight, in
// which case the tick is skipped rather than queued.
func (t *Ticker) syncOnce() {
	if !t.syncRunning.TryLock() {
		t.logger.Warnw("previous sync sweep still running, skipping tick")
		return
	}
	defer t.syncRunning.Unlock()

	if err := t.syncer.SyncAll(t.ctx); err != nil {
		t.logger.Errorw("sync sweep finished with errors", "error", err)
	}
}

func (t *Ticker) scanOnce() {
	if !t.scanRunning.TryLock() {
		t.logger.Warnw("previous drift scan still running, skipping tick")
		return
	}
	defer t.scanRunning.Unlock()

	if _, err := t.syncer.Scan(t.ctx); err != nil {
		t.logger.Errorw("drift scan failed", "error", err)
	}
}
