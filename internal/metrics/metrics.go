package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
// All methods are no-ops on a nil receiver.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	upstreamRequests    *prometheus.CounterVec
	upstreamDuration    prometheus.Histogram
	breakerState        *prometheus.GaugeVec
	renderedMarkers     *prometheus.CounterVec
	renderDropped       prometheus.Counter
	pollRunsTotal       prometheus.Counter
	pollRunDuration     prometheus.Histogram
	activeSessions      prometheus.Gauge
	geocodeCache        *prometheus.CounterVec
}

// New creates a fresh Metrics registry with HTTP, upstream, render and poller
// metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trafikkarta",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by trafikkarta",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trafikkarta",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by trafikkarta",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	upstreamRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trafikkarta",
		Name:      "upstream_requests_total",
		Help:      "Requests sent to the Trafikverket API by outcome",
	}, []string{"outcome"})

	upstreamDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trafikkarta",
		Name:      "upstream_request_duration_seconds",
		Help:      "Duration of Trafikverket API requests",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	})

	breakerState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "trafikkarta",
		Name:      "upstream_breaker_state",
		Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})

	renderedMarkers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trafikkarta",
		Name:      "rendered_markers_total",
		Help:      "Markers placed on view maps by kind",
	}, []string{"kind", "precision"})

	renderDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trafikkarta",
		Name:      "render_dropped_events_total",
		Help:      "Events dropped during render because no position could be resolved",
	})

	pollRunsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trafikkarta",
		Name:      "poll_runs_total",
		Help:      "Total number of county poll runs processed",
	})

	pollRunDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trafikkarta",
		Name:      "poll_run_duration_seconds",
		Help:      "Duration of county poll runs from start to finish",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trafikkarta",
		Name:      "active_sessions",
		Help:      "Map view sessions currently held in memory",
	})

	geocodeCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trafikkarta",
		Name:      "geocode_cache_lookups_total",
		Help:      "Reverse geocode cache lookups by result",
	}, []string{"result"})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		upstreamRequests,
		upstreamDuration,
		breakerState,
		renderedMarkers,
		renderDropped,
		pollRunsTotal,
		pollRunDuration,
		activeSessions,
		geocodeCache,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		upstreamRequests:    upstreamRequests,
		upstreamDuration:    upstreamDuration,
		breakerState:        breakerState,
		renderedMarkers:     renderedMarkers,
		renderDropped:       renderDropped,
		pollRunsTotal:       pollRunsTotal,
		pollRunDuration:     pollRunDuration,
		activeSessions:      activeSessions,
		geocodeCache:        geocodeCache,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// ObserveUpstream records one Trafikverket request.
func (m *Metrics) ObserveUpstream(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(outcome).Inc()
	m.upstreamDuration.Observe(duration.Seconds())
}

// SetBreakerState publishes a circuit breaker state transition.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

// IncRenderedMarker counts one marker placed on a map.
func (m *Metrics) IncRenderedMarker(kind string, imprecise bool) {
	if m == nil {
		return
	}
	precision := "exact"
	if imprecise {
		precision = "approximate"
	}
	m.renderedMarkers.WithLabelValues(kind, precision).Inc()
}

// IncRenderDropped counts an event without a resolvable position.
func (m *Metrics) IncRenderDropped() {
	if m == nil {
		return
	}
	m.renderDropped.Inc()
}

// IncPollRun increments the poll run counter.
func (m *Metrics) IncPollRun() {
	if m == nil {
		return
	}
	m.pollRunsTotal.Inc()
}

// ObservePollRunDuration observes a poll run duration.
func (m *Metrics) ObservePollRunDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.pollRunDuration.Observe(duration.Seconds())
}

// SetActiveSessions publishes the session registry size.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// IncGeocodeCache counts a cache "hit" or "miss".
func (m *Metrics) IncGeocodeCache(result string) {
	if m == nil {
		return
	}
	m.geocodeCache.WithLabelValues(result).Inc()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
