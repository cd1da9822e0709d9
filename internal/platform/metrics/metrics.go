package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the live avatar service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	sessionsStarted     prometheus.Counter
	sessionsStopped     prometheus.Counter
	sessionStartFailed  prometheus.Counter
	activeSessions      prometheus.Gauge
	unitsRendered       prometheus.Counter
	unitFailures        *prometheus.CounterVec
	segmentsClaimed     prometheus.Counter
	queueRejections     prometheus.Counter
	discardedCommands   prometheus.Counter
	renderDuration      prometheus.Histogram
	websocketConnection prometheus.Gauge
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avatar_live_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avatar_live_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avatar_live_sessions_started_total",
			Help: "Sessions that rendered their placeholder and became active",
		}),
		sessionsStopped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avatar_live_sessions_stopped_total",
			Help: "Sessions whose worker fully exited",
		}),
		sessionStartFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avatar_live_session_start_failures_total",
			Help: "Sessions that failed while starting and were never registered",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "avatar_live_active_sessions",
			Help: "Number of registered sessions",
		}),
		unitsRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avatar_live_units_rendered_total",
			Help: "Speech units rendered and appended to a live playlist",
		}),
		unitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avatar_live_unit_failures_total",
			Help: "Units that failed, by pipeline stage",
		}, []string{"stage"}),
		segmentsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avatar_live_segments_claimed_total",
			Help: "Segment indices consumed by rendered units",
		}),
		queueRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avatar_live_queue_rejections_total",
			Help: "Texts rejected because a session queue was full",
		}),
		discardedCommands: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avatar_live_discarded_commands_total",
			Help: "Queued texts dropped when their session stopped",
		}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "avatar_live_render_duration_seconds",
			Help:    "Wall time to render one unit",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		websocketConnection: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "avatar_live_websocket_connections",
			Help: "Open WebSocket text channels",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.sessionsStarted,
		m.sessionsStopped,
		m.sessionStartFailed,
		m.activeSessions,
		m.unitsRendered,
		m.unitFailures,
		m.segmentsClaimed,
		m.queueRejections,
		m.discardedCommands,
		m.renderDuration,
		m.websocketConnection,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m != nil {
		m.requestsTotal.Inc()
	}
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m != nil {
		m.errorsTotal.Inc()
	}
}

func (m *Metrics) IncSessionsStarted() {
	if m != nil {
		m.sessionsStarted.Inc()
	}
}

func (m *Metrics) IncSessionsStopped() {
	if m != nil {
		m.sessionsStopped.Inc()
	}
}

func (m *Metrics) IncSessionStartFailed() {
	if m != nil {
		m.sessionStartFailed.Inc()
	}
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m != nil {
		m.activeSessions.Set(float64(n))
	}
}

// ObserveUnit records a successfully rendered unit, the indices it claimed
// and how long it took.
func (m *Metrics) ObserveUnit(claimed int, took time.Duration) {
	if m == nil {
		return
	}
	m.unitsRendered.Inc()
	m.segmentsClaimed.Add(float64(claimed))
	m.renderDuration.Observe(took.Seconds())
}

// IncUnitFailure records a failed unit at the given pipeline stage.
func (m *Metrics) IncUnitFailure(stage string) {
	if m != nil {
		m.unitFailures.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) IncQueueRejections() {
	if m != nil {
		m.queueRejections.Inc()
	}
}

func (m *Metrics) AddDiscarded(n int) {
	if m != nil && n > 0 {
		m.discardedCommands.Add(float64(n))
	}
}

// WebSocketOpened and WebSocketClosed track open text channels.
func (m *Metrics) WebSocketOpened() {
	if m != nil {
		m.websocketConnection.Inc()
	}
}

func (m *Metrics) WebSocketClosed() {
	if m != nil {
		m.websocketConnection.Dec()
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
