package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/moviesync/internal/collect"
	"github.com/sells-group/moviesync/internal/model"
	"github.com/sells-group/moviesync/internal/monitoring"
	"github.com/sells-group/moviesync/internal/refresh"
	"github.com/sells-group/moviesync/internal/store"
)

// fakeRunner records cycle options and blocks until released.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []collect.Options
	release chan struct{}
	started chan struct{}
	err     error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{release: make(chan struct{}), started: make(chan struct{}, 10)}
}

func (f *fakeRunner) Run(ctx context.Context, opts collect.Options) (model.CycleStats, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.mu.Unlock()
	select {
	case f.started <- struct{}{}:
	default:
	}
	select {
	case <-f.release:
	case <-ctx.Done():
		return model.CycleStats{}, ctx.Err()
	}
	return model.CycleStats{SourceAUpdated: 1}, f.err
}

func (f *fakeRunner) options() []collect.Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]collect.Options(nil), f.calls...)
}

type serverHarness struct {
	srv     *collectServer
	runner  *fakeRunner
	handler http.Handler
	g       store.Gateway
}

func newServerHarness(t *testing.T) *serverHarness {
	t.Helper()
	g, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	require.NoError(t, g.Migrate(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	runner := newFakeRunner()
	runLog := store.NewRunLog(g)
	srv := newCollectServer(ctx, runner, monitoring.NewCollector(g, runLog, refresh.DefaultPolicy()), runLog,
		func() collect.Options { return collect.Options{StartYear: 2025, RefreshLimit: 100} }, 24)
	t.Cleanup(func() {
		cancel()
		srv.wait()
	})

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	return &serverHarness{
		srv:     srv,
		runner:  runner,
		handler: srv.router([]string{"*"}, metrics, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		g:       g,
	}
}

func (h *serverHarness) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func waitStarted(t *testing.T, r *fakeRunner) {
	t.Helper()
	select {
	case <-r.started:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not start")
	}
}

func TestServer_Health(t *testing.T) {
	h := newServerHarness(t)

	rec := h.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["running"])
}

func TestServer_CollectAcceptedThenConflict(t *testing.T) {
	h := newServerHarness(t)

	rec := h.do(http.MethodPost, "/collect", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitStarted(t, h.runner)

	rec = h.do(http.MethodPost, "/collect", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(h.runner.release)
	h.srv.wait()
	assert.False(t, h.srv.running.Load())

	calls := h.runner.options()
	require.Len(t, calls, 1)
	assert.Equal(t, collect.Options{StartYear: 2025, RefreshLimit: 100}, calls[0])
}

func TestServer_CollectBodyOverrides(t *testing.T) {
	h := newServerHarness(t)
	close(h.runner.release)

	rec := h.do(http.MethodPost, "/collect", `{"start_year": 2010, "end_year": 2012, "refresh_limit": 5}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	h.srv.wait()

	rec = h.do(http.MethodPost, "/collect", `{"refresh_only": true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	h.srv.wait()

	calls := h.runner.options()
	require.Len(t, calls, 2)
	assert.Equal(t, collect.Options{StartYear: 2010, EndYear: 2012, RefreshLimit: 5}, calls[0])
	assert.Equal(t, collect.Options{RefreshLimit: 100}, calls[1])
}

func TestServer_CollectBadBody(t *testing.T) {
	h := newServerHarness(t)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/collect", `{not json`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/collect", `{"start_year": 2020, "end_year": 2019}`).Code)
	assert.Empty(t, h.runner.options())
}

func TestServer_CycleFailureClearsRunning(t *testing.T) {
	h := newServerHarness(t)
	h.runner.err = errors.New("store down")
	close(h.runner.release)

	require.True(t, h.srv.trigger("test", collect.Options{}))
	h.srv.wait()
	assert.False(t, h.srv.running.Load())
	assert.True(t, h.srv.trigger("test", collect.Options{}))
	h.srv.wait()
}

func TestServer_StatusAndRuns(t *testing.T) {
	h := newServerHarness(t)
	ctx := context.Background()

	_, err := store.SaveMovies(ctx, h.g, []model.Movie{{TMDBID: 155, Title: "The Dark Knight"}})
	require.NoError(t, err)
	runLog := store.NewRunLog(h.g)
	id, err := runLog.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, runLog.Complete(ctx, id, model.CycleStats{Discovered: 1}))

	rec := h.do(http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap monitoring.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, int64(1), snap.Movies.Total)
	assert.Equal(t, 1, snap.Due)

	rec = h.do(http.MethodGet, "/runs?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []model.Run
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, 1, runs[0].Stats.Discovered)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/runs?limit=abc", "").Code)
}

func TestServer_StatusStoreError(t *testing.T) {
	h := newServerHarness(t)
	require.NoError(t, h.g.Close())

	assert.Equal(t, http.StatusInternalServerError, h.do(http.MethodGet, "/status", "").Code)
	assert.Equal(t, http.StatusInternalServerError, h.do(http.MethodGet, "/runs", "").Code)
}

func TestServer_Metrics(t *testing.T) {
	h := newServerHarness(t)
	h.do(http.MethodGet, "/health", "")

	rec := h.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `moviesync_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestServer_CORSPreflight(t *testing.T) {
	h := newServerHarness(t)

	req := httptest.NewRequest(http.MethodOptions, "/collect", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_ScheduleTriggersAndStops(t *testing.T) {
	h := newServerHarness(t)
	close(h.runner.release)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.srv.schedule(ctx, 10*time.Millisecond)
		close(done)
	}()

	waitStarted(t, h.runner)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	h.srv.wait()
	assert.NotEmpty(t, h.runner.options())
}
