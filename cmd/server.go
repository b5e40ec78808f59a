package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/moviesync/internal/collect"
	"github.com/sells-group/moviesync/internal/model"
	"github.com/sells-group/moviesync/internal/monitoring"
)

// cycleRunner runs one collection cycle.
type cycleRunner interface {
	Run(ctx context.Context, opts collect.Options) (model.CycleStats, error)
}

// runLister lists recent runs from the run log.
type runLister interface {
	List(ctx context.Context, limit int) ([]model.Run, error)
}

// collectServer exposes the collector over HTTP and runs scheduled cycles.
// At most one cycle runs at a time.
type collectServer struct {
	runner    cycleRunner
	collector *monitoring.Collector
	runs      runLister
	options   func() collect.Options
	lookback  int

	// base is the context cycles run under; it outlives HTTP requests.
	base    context.Context
	running atomic.Bool
	wg      sync.WaitGroup
	log     *zap.Logger
}

func newCollectServer(base context.Context, runner cycleRunner, collector *monitoring.Collector, runs runLister, options func() collect.Options, lookback int) *collectServer {
	return &collectServer{
		runner:    runner,
		collector: collector,
		runs:      runs,
		options:   options,
		lookback:  lookback,
		base:      base,
		log:       zap.L().With(zap.String("component", "server")),
	}
}

// router builds the chi router. metrics and metricsHandler may be nil.
func (s *collectServer) router(origins []string, metrics *monitoring.Metrics, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if metrics != nil {
		r.Use(metrics.Middleware)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/runs", s.handleRuns)
	r.Post("/collect", s.handleCollect)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}
	return r
}

func (s *collectServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": s.running.Load(),
	})
}

func (s *collectServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.collector.Collect(r.Context(), s.lookback)
	if err != nil {
		s.log.Error("status snapshot failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "status unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *collectServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.log.Error("list runs failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "runs unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// collectRequest optionally overrides the cycle options of POST /collect.
type collectRequest struct {
	StartYear    *int `json:"start_year"`
	EndYear      *int `json:"end_year"`
	RefreshLimit *int `json:"refresh_limit"`
	RefreshOnly  bool `json:"refresh_only"`
	SkipRefresh  bool `json:"skip_refresh"`
}

func (s *collectServer) handleCollect(w http.ResponseWriter, r *http.Request) {
	opts := s.options()
	var req collectRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	switch {
	case errors.Is(err, io.EOF):
		// No body: configured options.
	case err != nil:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	default:
		if req.StartYear != nil {
			opts.StartYear = *req.StartYear
		}
		if req.EndYear != nil {
			opts.EndYear = *req.EndYear
		}
		if req.RefreshLimit != nil {
			opts.RefreshLimit = *req.RefreshLimit
		}
		if req.RefreshOnly {
			opts.StartYear, opts.EndYear = 0, 0
		}
		opts.SkipRefresh = req.SkipRefresh
		if opts.EndYear != 0 && opts.EndYear < opts.StartYear {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "end_year is before start_year"})
			return
		}
	}

	if !s.trigger("api", opts) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a collection cycle is already running"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// trigger starts a cycle in the background unless one is already running.
func (s *collectServer) trigger(reason string, opts collect.Options) bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		log := s.log.With(zap.String("trigger", reason))
		stats, err := s.runner.Run(s.base, opts)
		if err != nil {
			log.Error("collection cycle failed", zap.Error(err))
			return
		}
		log.Info("collection cycle finished",
			zap.Int("discovered", stats.Discovered),
			zap.Int("tmdb_updated", stats.SourceAUpdated),
			zap.Int("omdb_updated", stats.SourceBUpdated),
			zap.Int("frozen", stats.Frozen),
		)
	}()
	return true
}

// schedule starts a cycle every interval until ctx is done. Ticks that
// land while a cycle is running are skipped.
func (s *collectServer) schedule(ctx context.Context, interval time.Duration) {
	s.log.Info("cycle scheduler started", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("cycle scheduler stopped")
			return
		case <-ticker.C:
			if !s.trigger("schedule", s.options()) {
				s.log.Info("scheduled cycle skipped, previous cycle still running")
			}
		}
	}
}

// wait blocks until the running cycle, if any, returns.
func (s *collectServer) wait() { s.wg.Wait() }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
