// Package collect runs collection cycles: discovery of new movies, selection
// of stale ones, concurrent per-source refresh, merge into storage and the
// freeze sweep.
package collect

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/moviesync/internal/model"
	"github.com/sells-group/moviesync/internal/refresh"
	"github.com/sells-group/moviesync/internal/source"
	"github.com/sells-group/moviesync/internal/store"
)

// Primary is the catalog source: details by TMDB id and discovery pages.
type Primary interface {
	FetchByID(ctx context.Context, id int64) (model.Record, bool)
	DiscoverPage(ctx context.Context, f source.DiscoverFilter, page int) ([]model.Record, int)
	Concurrency() int
}

// Secondary is the ratings source, keyed by IMDb id.
type Secondary interface {
	FetchByID(ctx context.Context, imdbID string) (model.Record, bool)
	Concurrency() int
}

// Observer receives fetch outcomes and cycle results.
type Observer interface {
	ObserveFetch(source string, ok bool)
	ObserveCycle(stats model.CycleStats, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveFetch(string, bool)                               {}
func (nopObserver) ObserveCycle(model.CycleStats, time.Duration, error) {}

// Options controls one cycle.
type Options struct {
	// StartYear..EndYear is the discovery range. A zero StartYear skips
	// discovery; a zero EndYear means StartYear only.
	StartYear    int
	EndYear      int
	MaxPages     int // 0 fetches every page
	MinVoteCount int
	// RefreshLimit caps the refresh batch. 0 selects every due movie.
	RefreshLimit int
	SkipRefresh  bool
}

// Orchestrator coordinates collection cycles. One cycle at a time owns the
// store; Run is not safe for concurrent use.
type Orchestrator struct {
	store     store.Gateway
	primary   Primary
	secondary Secondary
	policy    refresh.Policy
	runs      *store.RunLog
	observer  Observer
	now       func() time.Time
	log       *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Orchestrator) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithClock sets the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(c *Orchestrator) { c.now = now }
}

// New creates an Orchestrator.
func New(g store.Gateway, primary Primary, secondary Secondary, policy refresh.Policy, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     g,
		primary:   primary,
		secondary: secondary,
		policy:    policy,
		runs:      store.NewRunLog(g),
		observer:  nopObserver{},
		now:       time.Now,
		log:       zap.L().With(zap.String("component", "collect")),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one cycle and records it in the run log. A storage error
// aborts the cycle and is returned with the statistics gathered so far.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (model.CycleStats, error) {
	start := time.Now()
	runID, err := o.runs.Start(ctx)
	if err != nil {
		return model.CycleStats{}, err
	}
	log := o.log.With(zap.String("run_id", runID))
	log.Info("collection cycle started",
		zap.Int("start_year", opts.StartYear),
		zap.Int("end_year", opts.EndYear),
		zap.Int("refresh_limit", opts.RefreshLimit),
	)

	stats, err := o.cycle(ctx, opts)
	if err == nil {
		err = o.runs.Complete(ctx, runID, stats)
	}
	elapsed := time.Since(start)
	o.observer.ObserveCycle(stats, elapsed, err)

	if err != nil {
		// The cycle context may be cancelled; the failure is still recorded.
		if ferr := o.runs.Fail(context.WithoutCancel(ctx), runID, stats, err.Error()); ferr != nil {
			log.Error("failed to record run failure", zap.Error(ferr))
		}
		log.Error("collection cycle failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return stats, err
	}

	log.Info("collection cycle complete",
		zap.Int("discovered", stats.Discovered),
		zap.Int("tmdb_updated", stats.SourceAUpdated),
		zap.Int("omdb_updated", stats.SourceBUpdated),
		zap.Int("frozen", stats.Frozen),
		zap.Duration("elapsed", elapsed),
	)
	return stats, nil
}

func (o *Orchestrator) cycle(ctx context.Context, opts Options) (model.CycleStats, error) {
	var stats model.CycleStats

	if opts.StartYear > 0 {
		n, err := o.Discover(ctx, opts)
		stats.Discovered = n
		if err != nil {
			return stats, err
		}
	}

	if opts.SkipRefresh {
		return stats, nil
	}

	rs, err := o.Refresh(ctx, opts.RefreshLimit)
	stats.SourceAUpdated = rs.SourceAUpdated
	stats.SourceBUpdated = rs.SourceBUpdated
	stats.Frozen = rs.Frozen
	return stats, err
}

// fanOut runs fn for every item with at most limit in flight. Launching
// stops once ctx is done; fn must observe ctx itself.
func fanOut[T any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, item T)) error {
	if limit <= 0 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for _, it := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(ctx, it)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// results collects fetch outcomes from concurrent workers.
type results[K comparable] struct {
	mu   sync.Mutex
	recs map[K]model.Record
}

func newResults[K comparable](n int) *results[K] {
	return &results[K]{recs: make(map[K]model.Record, n)}
}

func (r *results[K]) put(k K, rec model.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs[k] = rec
}

// stamp returns the cycle timestamp. Stored timestamps are UTC at second
// precision so every dialect compares them the same way.
func (o *Orchestrator) stamp() time.Time {
	return o.now().UTC().Truncate(time.Second)
}

func wrapStorage(err error, op string) error {
	if err == nil {
		return nil
	}
	return eris.Wrapf(err, "collect: %s", op)
}
