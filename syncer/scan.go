package syncer

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"f0oster/adsync/identity"
)

// DriftReport is the outcome of one drift scan: identities the remote
// service holds that no cached group accounts for, and identities the cache
// claims were pushed but the remote no longer has.
type DriftReport struct {
	ScannedAt time.Time `json:"scanned_at"`

	// Unexpected exist remotely but in no cached group.
	Unexpected []identity.Identity `json:"unexpected,omitempty"`

	// Missing are cached but absent remotely; the next sync pass will not
	// recreate them on its own (their fingerprints still match), so they are
	// surfaced for operator attention.
	Missing []identity.Identity `json:"missing,omitempty"`
}

// Scan is the lighter drift sweep: it compares the remote service's full
// identity set against the union of cached identities without touching the
// directory or mutating anything.
func (s *Syncer) Scan(ctx context.Context) (*DriftReport, error) {
	remoteIdentities, err := s.dispatcher.client.GetAllIdentities(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetching remote identities")
	}

	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing cached groups")
	}

	cachedIdentities := make(map[identity.Identity]bool)
	for _, group := range groups {
		for _, member := range group.Members {
			cachedIdentities[member.Identity] = true
		}
	}

	remoteSet := make(map[identity.Identity]bool, len(remoteIdentities))
	report := &DriftReport{ScannedAt: time.Now()}

	for _, id := range remoteIdentities {
		remoteSet[id] = true
		if !cachedIdentities[id] {
			report.Unexpected = append(report.Unexpected, id)
		}
	}
	for id := range cachedIdentities {
		if !remoteSet[id] {
			report.Missing = append(report.Missing, id)
		}
	}

	sort.Slice(report.Unexpected, func(i, j int) bool { return report.Unexpected[i] < report.Unexpected[j] })
	sort.Slice(report.Missing, func(i, j int) bool { return report.Missing[i] < report.Missing[j] })

	s.mu.Lock()
	s.lastScan = report
	s.mu.Unlock()

	if len(report.Unexpected) > 0 || len(report.Missing) > 0 {
		s.logger.Warnw("drift detected",
			"unexpected", len(report.Unexpected),
			"missing", len(report.Missing),
		)
	} else {
		s.logger.Infow("no drift detected", "remote_identities", len(remoteIdentities))
	}

	return report, nil
}

// LastScan returns the most recent drift report, or nil before the first
// scan.
func (s *Syncer) LastScan() *DriftReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastScan
}
