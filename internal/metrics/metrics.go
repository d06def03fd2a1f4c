// Package metrics exposes Prometheus instrumentation for the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "todaymission"

// Metrics groups the collectors recorded by handlers and middleware.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authCallbacks   *prometheus.CounterVec
	missionActions  *prometheus.CounterVec
	sessionRefresh  *prometheus.CounterVec
	syncStreams     prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves them from gatherer.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		authCallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_callbacks_total",
			Help:      "OAuth callback outcomes by flow.",
		}, []string{"flow", "outcome"}),
		missionActions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mission_actions_total",
			Help:      "Mission form actions by intent and outcome.",
		}, []string{"intent", "outcome"}),
		sessionRefresh: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_refreshes_total",
			Help:      "Background session refresh attempts by outcome.",
		}, []string{"outcome"}),
		syncStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_sync_streams",
			Help:      "Open session synchronisation streams.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// AuthCallback records the outcome of an OAuth callback.
func (m *Metrics) AuthCallback(flow, outcome string) {
	if m == nil {
		return
	}
	m.authCallbacks.WithLabelValues(flow, outcome).Inc()
}

// MissionAction records the outcome of a mission form action.
func (m *Metrics) MissionAction(intent, outcome string) {
	if m == nil {
		return
	}
	m.missionActions.WithLabelValues(intent, outcome).Inc()
}

// SessionRefresh records a background refresh attempt.
func (m *Metrics) SessionRefresh(outcome string) {
	if m == nil {
		return
	}
	m.sessionRefresh.WithLabelValues(outcome).Inc()
}

// StreamOpened tracks a new synchronisation stream; call the returned func when it closes.
func (m *Metrics) StreamOpened() func() {
	if m == nil {
		return func() {}
	}
	m.syncStreams.Inc()
	return m.syncStreams.Dec
}
