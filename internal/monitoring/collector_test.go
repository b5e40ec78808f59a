package monitoring

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/moviesync/internal/model"
	"github.com/sells-group/moviesync/internal/refresh"
	"github.com/sells-group/moviesync/internal/store"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

// mockRuns implements RunLister for testing.
type mockRuns struct {
	runs []model.Run
	err  error
}

func (m *mockRuns) List(_ context.Context, _ int) ([]model.Run, error) {
	return m.runs, m.err
}

func newTestStore(t *testing.T) store.Gateway {
	t.Helper()
	g, err := store.NewSQLite(filepath.Join(t.TempDir(), "monitoring.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	require.NoError(t, g.Migrate(context.Background()))
	return g
}

func seedMovies(t *testing.T, g store.Gateway) {
	t.Helper()
	released := time.Date(2008, 7, 16, 0, 0, 0, 0, time.UTC)
	_, err := store.SaveMovies(context.Background(), g, []model.Movie{
		// Never refreshed: due.
		{TMDBID: 1, Title: "New"},
		// Fresh on both sources: not due.
		{TMDBID: 2, IMDbID: "tt2", Title: "Fresh", ReleaseDate: &released,
			LastTMDBUpdate: ago(time.Hour), LastOMDBUpdate: ago(time.Hour), LastFullRefresh: ago(48 * time.Hour)},
		// Frozen: never due.
		{TMDBID: 3, IMDbID: "tt3", Title: "Frozen", ReleaseDate: &released, Frozen: true,
			LastTMDBUpdate: ago(400 * 24 * time.Hour), LastOMDBUpdate: ago(400 * 24 * time.Hour), LastFullRefresh: ago(400 * 24 * time.Hour)},
	})
	require.NoError(t, err)
}

func newTestCollector(g store.Gateway, runs RunLister) *Collector {
	c := NewCollector(g, runs, refresh.DefaultPolicy())
	c.now = func() time.Time { return now }
	return c
}

func TestCollector_Collect(t *testing.T) {
	g := newTestStore(t)
	seedMovies(t, g)

	runs := &mockRuns{runs: []model.Run{
		{ID: "r5", Status: model.RunStatusRunning, StartedAt: now.Add(-time.Minute)},
		{ID: "r4", Status: model.RunStatusFailed, StartedAt: now.Add(-2 * time.Hour), CompletedAt: ago(2 * time.Hour), Error: "store: upsert movies: disk full"},
		{ID: "r3", Status: model.RunStatusComplete, StartedAt: now.Add(-5 * time.Hour), CompletedAt: ago(4 * time.Hour),
			Stats: model.CycleStats{Discovered: 10, SourceAUpdated: 8, SourceBUpdated: 6, Frozen: 1}},
		{ID: "r2", Status: model.RunStatusComplete, StartedAt: now.Add(-10 * time.Hour), CompletedAt: ago(9 * time.Hour),
			Stats: model.CycleStats{SourceAUpdated: 2, SourceBUpdated: 2}},
		// Outside the window.
		{ID: "r1", Status: model.RunStatusFailed, StartedAt: now.Add(-72 * time.Hour)},
	}}

	snap, err := newTestCollector(g, runs).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.CyclesTotal)
	assert.Equal(t, 2, snap.CyclesComplete)
	assert.Equal(t, 1, snap.CyclesFailed)
	assert.Equal(t, 1, snap.CyclesRunning)
	assert.InDelta(t, 1.0/3.0, snap.FailRate, 0.001)
	assert.Equal(t, "store: upsert movies: disk full", snap.LastError)
	assert.Equal(t, model.CycleStats{Discovered: 10, SourceAUpdated: 10, SourceBUpdated: 8, Frozen: 1}, snap.Updated)
	require.NotNil(t, snap.LastSuccess)
	assert.Equal(t, now.Add(-4*time.Hour), *snap.LastSuccess)

	assert.Equal(t, int64(3), snap.Movies.Total)
	assert.Equal(t, int64(1), snap.Movies.Frozen)
	assert.Equal(t, int64(2), snap.Movies.WithIMDbID)
	assert.Equal(t, int64(1), snap.Movies.NeverRefreshed)
	assert.Equal(t, 1, snap.Due)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, now, snap.CollectedAt)
}

func TestCollector_EmptyStore(t *testing.T) {
	g := newTestStore(t)

	snap, err := newTestCollector(g, &mockRuns{}).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.CyclesTotal)
	assert.Zero(t, snap.FailRate)
	assert.Nil(t, snap.LastSuccess)
	assert.Zero(t, snap.Movies.Total)
	assert.Zero(t, snap.Due)
}

func TestCollector_LastSuccessOutsideWindow(t *testing.T) {
	g := newTestStore(t)
	runs := &mockRuns{runs: []model.Run{
		{ID: "old", Status: model.RunStatusComplete, StartedAt: now.Add(-50 * time.Hour), CompletedAt: ago(49 * time.Hour)},
	}}

	snap, err := newTestCollector(g, runs).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.CyclesComplete)
	require.NotNil(t, snap.LastSuccess)
	assert.Equal(t, now.Add(-49*time.Hour), *snap.LastSuccess)
}

func TestCollector_RunListError(t *testing.T) {
	g := newTestStore(t)
	_, err := newTestCollector(g, &mockRuns{err: errors.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}

func TestCollector_StoreError(t *testing.T) {
	g := newTestStore(t)
	require.NoError(t, g.Close())

	_, err := newTestCollector(g, &mockRuns{}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: count movies")
}
