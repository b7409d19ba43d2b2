package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/marketsync/internal/model"
)

const namespace = "marketsync"

// Refresh results.
const (
	ResultOK       = "ok"       // every attempted range succeeded
	ResultPartial  = "partial"  // some ranges degraded
	ResultFailed   = "failed"   // every range degraded
	ResultSkipped  = "skipped"  // snapshot still fresh
	ResultWriteErr = "write_error"
)

// Metrics holds the service collectors on a dedicated registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	refreshes       *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	degradedRanges  *prometheus.CounterVec
	snapshotEvents  *prometheus.GaugeVec
	cacheReads      *prometheus.CounterVec

	feedState      prometheus.Gauge
	feedReconnects prometheus.Counter
	feedTicks      prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "calendar",
				Name:      "refreshes_total",
				Help:      "Calendar refreshes by kind and result.",
			},
			[]string{"kind", "result"},
		),
		refreshDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "calendar",
				Name:      "refresh_duration_seconds",
				Help:      "Duration of calendar refreshes.",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~32s
			},
			[]string{"kind"},
		),
		degradedRanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "calendar",
				Name:      "degraded_ranges_total",
				Help:      "Sub-range fetches that failed and contributed no events.",
			},
			[]string{"kind"},
		),
		snapshotEvents: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "calendar",
				Name:      "snapshot_events",
				Help:      "Events in the most recently written snapshot.",
			},
			[]string{"kind"},
		),
		cacheReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "reads_total",
				Help:      "Snapshot cache reads by kind and entry state.",
			},
			[]string{"kind", "state"},
		),

		feedState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "connection_state",
				Help:      "Live feed state (0=disconnected, 1=connecting, 2=connected, 3=error).",
			},
		),
		feedReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "reconnects_total",
				Help:      "Scheduled live feed reconnect attempts.",
			},
		),
		feedTicks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "ticks_total",
				Help:      "Trade ticks received from the live feed.",
			},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
			},
			[]string{"method", "route"},
		),
	}

	m.Registry.MustRegister(
		m.refreshes,
		m.refreshDuration,
		m.degradedRanges,
		m.snapshotEvents,
		m.cacheReads,
		m.feedState,
		m.feedReconnects,
		m.feedTicks,
		m.httpRequests,
		m.httpDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveRefresh records one completed refresh.
func (m *Metrics) ObserveRefresh(kind model.CalendarKind, result string, degraded, events int, d time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(string(kind), result).Inc()
	if result == ResultSkipped {
		return
	}
	m.refreshDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
	m.degradedRanges.WithLabelValues(string(kind)).Add(float64(degraded))
	if result != ResultFailed && result != ResultWriteErr {
		m.snapshotEvents.WithLabelValues(string(kind)).Set(float64(events))
	}
}

// ObserveCacheRead records a cache lookup.
func (m *Metrics) ObserveCacheRead(kind model.CalendarKind, state string) {
	if m == nil {
		return
	}
	m.cacheReads.WithLabelValues(string(kind), state).Inc()
}

// SetFeedState records the live feed state.
func (m *Metrics) SetFeedState(s model.ConnectionState) {
	if m == nil {
		return
	}
	m.feedState.Set(float64(s))
}

// IncReconnects counts a scheduled reconnect.
func (m *Metrics) IncReconnects() {
	if m == nil {
		return
	}
	m.feedReconnects.Inc()
}

// IncTicks counts received ticks.
func (m *Metrics) IncTicks(n int) {
	if m == nil {
		return
	}
	m.feedTicks.Add(float64(n))
}

// InstrumentHandler records request metrics labelled by chi route pattern.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		method := strings.ToUpper(r.Method)

		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
