package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/moviesync/internal/model"
)

// Metrics records fetch outcomes, cycle results and HTTP traffic. It
// satisfies collect.Observer.
type Metrics struct {
	fetches       *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	cycleUpdates  *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	lastSuccess   prometheus.Gauge
	moviesTotal   *prometheus.GaugeVec
	moviesDue     prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetrics registers the collector metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "moviesync_fetches_total",
			Help: "Source fetches by outcome",
		}, []string{"source", "outcome"}), // outcome: ok, failed
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "moviesync_cycles_total",
			Help: "Collection cycles by status",
		}, []string{"status"}),
		cycleUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "moviesync_cycle_updates_total",
			Help: "Movies touched by collection cycles",
		}, []string{"kind"}), // kind: discovered, tmdb_updated, omdb_updated, frozen
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "moviesync_cycle_duration_seconds",
			Help:    "Duration of collection cycles",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s … ~2.3h
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "moviesync_last_success_timestamp_seconds",
			Help: "Unix time of the last completed cycle",
		}),
		moviesTotal: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "moviesync_movies",
			Help: "Movies in the catalog by state",
		}, []string{"state"}),
		moviesDue: f.NewGauge(prometheus.GaugeOpts{
			Name: "moviesync_movies_due",
			Help: "Movies currently due for refresh",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "moviesync_http_requests_total",
			Help: "HTTP requests served",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moviesync_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveFetch counts one fetch against source.
func (m *Metrics) ObserveFetch(source string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.fetches.WithLabelValues(source, outcome).Inc()
}

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(stats model.CycleStats, elapsed time.Duration, err error) {
	m.cycleDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.cycles.WithLabelValues(string(model.RunStatusFailed)).Inc()
	} else {
		m.cycles.WithLabelValues(string(model.RunStatusComplete)).Inc()
		m.lastSuccess.SetToCurrentTime()
	}
	m.cycleUpdates.WithLabelValues("discovered").Add(float64(stats.Discovered))
	m.cycleUpdates.WithLabelValues("tmdb_updated").Add(float64(stats.SourceAUpdated))
	m.cycleUpdates.WithLabelValues("omdb_updated").Add(float64(stats.SourceBUpdated))
	m.cycleUpdates.WithLabelValues("frozen").Add(float64(stats.Frozen))
}

// ObserveSnapshot sets the catalog gauges from a snapshot.
func (m *Metrics) ObserveSnapshot(snap *Snapshot) {
	m.moviesTotal.WithLabelValues("total").Set(float64(snap.Movies.Total))
	m.moviesTotal.WithLabelValues("frozen").Set(float64(snap.Movies.Frozen))
	m.moviesTotal.WithLabelValues("with_imdb_id").Set(float64(snap.Movies.WithIMDbID))
	m.moviesTotal.WithLabelValues("never_refreshed").Set(float64(snap.Movies.NeverRefreshed))
	m.moviesDue.Set(float64(snap.Due))
}

// Middleware records request counts and durations labelled by chi route
// pattern, keeping path parameters out of the label set.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
