// Package metrics holds the process's Prometheus collectors: HTTP request
// metrics for the control surface plus fan-out/encoder health gauges and
// counters, generalized from the teacher's in-memory Recorder to the
// group/stream-target cardinality this engine produces.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a struct of pre-registered collectors. Construct one with New
// and pass it to the control server via controlserver.Config.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	groupStateTransitions *prometheus.CounterVec
	spawnFailuresTotal    *prometheus.CounterVec
	activeGroups          prometheus.Gauge
	sampleRate            *prometheus.GaugeVec
	eventsDroppedTotal    prometheus.Counter
}

// New constructs a Metrics with its own registry (never the global
// DefaultRegisterer) so multiple instances can coexist in tests.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spiritstream_http_requests_total",
			Help: "Total control-surface HTTP requests processed.",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spiritstream_http_request_duration_seconds",
			Help:    "Control-surface HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		groupStateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spiritstream_group_state_transitions_total",
			Help: "Output-group lifecycle transitions by destination state.",
		}, []string{"to_state"}),

		spawnFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spiritstream_encoder_spawn_failures_total",
			Help: "Encoder child-process spawn failures by reason.",
		}, []string{"reason"}),

		activeGroups: factory.NewGauge(prometheus.GaugeOpts{
			Name: "spiritstream_active_groups",
			Help: "Current number of output groups with a running encoder.",
		}),

		sampleRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spiritstream_encoder_fps",
			Help: "Most recently observed encoder output frame rate per group.",
		}, []string{"group_id"}),

		eventsDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "spiritstream_eventbus_dropped_total",
			Help: "Event-bus messages dropped because a subscriber's queue was full.",
		}),
	}
}

// Handler exposes the registry in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware returns HTTP middleware that records request count and
// duration for every request passing through it.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := NewResponseRecorder(w)
		next.ServeHTTP(recorder, r)
		m.ObserveRequest(r.Method, r.URL.Path, recorder.Status(), time.Since(start).Seconds())
	})
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(method, path string, status int, seconds float64) {
	labels := prometheus.Labels{"method": method, "path": path, "status": statusLabel(status)}
	m.httpRequestsTotal.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(seconds)
}

// ObserveGroupStateChange increments the transition counter for toState.
func (m *Metrics) ObserveGroupStateChange(toState string) {
	m.groupStateTransitions.WithLabelValues(toState).Inc()
}

// ObserveSpawnFailure increments the spawn-failure counter for reason.
func (m *Metrics) ObserveSpawnFailure(reason string) {
	m.spawnFailuresTotal.WithLabelValues(reason).Inc()
}

// SetActiveGroups sets the active-groups gauge.
func (m *Metrics) SetActiveGroups(n int) {
	m.activeGroups.Set(float64(n))
}

// ObserveSampleRate records the most recent fps sample for groupID.
func (m *Metrics) ObserveSampleRate(groupID string, fps float64) {
	m.sampleRate.WithLabelValues(groupID).Set(fps)
}

// ObserveEventDropped increments the event-bus drop counter.
func (m *Metrics) ObserveEventDropped() {
	m.eventsDroppedTotal.Inc()
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}

// ResponseRecorder wraps an http.ResponseWriter to capture the status code
// written, defaulting to 200 if WriteHeader is never called explicitly.
type ResponseRecorder struct {
	http.ResponseWriter
	status int
}

// NewResponseRecorder wraps w for status capture.
func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader records status and delegates to the wrapped writer.
func (rr *ResponseRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

// Status returns the captured status code.
func (rr *ResponseRecorder) Status() int {
	return rr.status
}
