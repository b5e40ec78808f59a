// Package monitoring reports collection health: point-in-time snapshots of
// the run log and catalog, threshold alerts delivered by webhook, and
// Prometheus metrics for fetches and cycles.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/moviesync/internal/model"
	"github.com/sells-group/moviesync/internal/refresh"
	"github.com/sells-group/moviesync/internal/store"
)

// Snapshot holds a point-in-time view of collection health.
type Snapshot struct {
	// Cycle metrics (within lookback window).
	CyclesTotal    int     `json:"cycles_total"`
	CyclesComplete int     `json:"cycles_complete"`
	CyclesFailed   int     `json:"cycles_failed"`
	CyclesRunning  int     `json:"cycles_running"`
	FailRate       float64 `json:"fail_rate"`
	LastError      string  `json:"last_error,omitempty"`

	// Work done by completed cycles in the window.
	Updated model.CycleStats `json:"updated"`

	// Catalog state.
	Movies store.MovieCounts `json:"movies"`
	Due    int               `json:"due"`

	LastSuccess   *time.Time `json:"last_success,omitempty"`
	LookbackHours int        `json:"lookback_hours"`
	CollectedAt   time.Time  `json:"collected_at"`
}

// RunLister abstracts the run log methods needed by the collector.
type RunLister interface {
	List(ctx context.Context, limit int) ([]model.Run, error)
}

// Collector gathers snapshots from the store and run log.
type Collector struct {
	store  store.Gateway
	runs   RunLister
	policy refresh.Policy
	now    func() time.Time
}

// NewCollector creates a snapshot collector. policy decides which movies
// count as due.
func NewCollector(g store.Gateway, runs RunLister, policy refresh.Policy) *Collector {
	return &Collector{store: g, runs: runs, policy: policy, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.List(ctx, 0)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	// Runs are most recent first.
	for _, r := range runs {
		if r.Status == model.RunStatusComplete && snap.LastSuccess == nil && r.CompletedAt != nil {
			done := *r.CompletedAt
			snap.LastSuccess = &done
		}
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.CyclesTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.CyclesComplete++
			snap.Updated.Discovered += r.Stats.Discovered
			snap.Updated.SourceAUpdated += r.Stats.SourceAUpdated
			snap.Updated.SourceBUpdated += r.Stats.SourceBUpdated
			snap.Updated.Frozen += r.Stats.Frozen
		case model.RunStatusFailed:
			snap.CyclesFailed++
			if snap.LastError == "" {
				snap.LastError = r.Error
			}
		case model.RunStatusRunning:
			snap.CyclesRunning++
		}
	}
	if finished := snap.CyclesComplete + snap.CyclesFailed; finished > 0 {
		snap.FailRate = float64(snap.CyclesFailed) / float64(finished)
	}

	counts, err := store.CountMovies(ctx, c.store)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count movies")
	}
	snap.Movies = counts

	q, args := c.policy.DueQuery(now, 0)
	due, err := store.SelectMovies(ctx, c.store, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: select due movies")
	}
	snap.Due = len(due)

	return snap, nil
}
