// Package metrics exposes the gateway's Prometheus metrics behind a
// private registry so tests can construct isolated instances.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the voice gateway.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Audio pipeline metrics
	AudioBytesTotal    *prometheus.CounterVec
	FramesForwarded    prometheus.Counter
	FramesGated        prometheus.Counter
	InterruptionsTotal prometheus.Counter
	DisplayEventsTotal *prometheus.CounterVec
	SetupFailuresTotal *prometheus.CounterVec

	// Tool and order metrics
	ToolCallsTotal       *prometheus.CounterVec
	OrdersFinalizedTotal *prometheus.CounterVec

	// Persistence metrics
	PersistQueueDepth prometheus.Gauge
	PersistJobsTotal  *prometheus.CounterVec
}

// New creates a Metrics instance with every collector registered on a
// fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tablevox"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of active voice sessions",
		},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of voice sessions by terminal status",
		},
		[]string{"status"},
	)

	sessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Voice session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	audioBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Total PCM bytes processed by direction",
		},
		[]string{"direction"},
	)

	framesForwarded := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_forwarded_total",
			Help:      "Caller audio frames forwarded to the model",
		},
	)

	framesGated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_gated_total",
			Help:      "Caller audio frames suppressed by the speech gate",
		},
	)

	interruptionsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Barge-in interruptions of assistant speech",
		},
	)

	displayEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "display_events_total",
			Help:      "Display events emitted to clients",
		},
		[]string{"event"},
	)

	setupFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_setup_failures_total",
			Help:      "Model transport setup failures by reason",
		},
		[]string{"reason"},
	)

	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by name and outcome",
		},
		[]string{"tool", "status"},
	)

	ordersFinalizedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_finalized_total",
			Help:      "Orders finalized by order type",
		},
		[]string{"order_type"},
	)

	persistQueueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "persist_queue_depth",
			Help:      "Jobs waiting in the write-behind persistence queue",
		},
	)

	persistJobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_jobs_total",
			Help:      "Write-behind persistence jobs by outcome",
		},
		[]string{"status"},
	)

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		audioBytesTotal,
		framesForwarded,
		framesGated,
		interruptionsTotal,
		displayEventsTotal,
		setupFailuresTotal,
		toolCallsTotal,
		ordersFinalizedTotal,
		persistQueueDepth,
		persistJobsTotal,
	)

	return &Metrics{
		registry:             registry,
		SessionsActive:       sessionsActive,
		SessionsTotal:        sessionsTotal,
		SessionDuration:      sessionDuration,
		AudioBytesTotal:      audioBytesTotal,
		FramesForwarded:      framesForwarded,
		FramesGated:          framesGated,
		InterruptionsTotal:   interruptionsTotal,
		DisplayEventsTotal:   displayEventsTotal,
		SetupFailuresTotal:   setupFailuresTotal,
		ToolCallsTotal:       toolCallsTotal,
		OrdersFinalizedTotal: ordersFinalizedTotal,
		PersistQueueDepth:    persistQueueDepth,
		PersistJobsTotal:     persistJobsTotal,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSessionStart records a new voice session starting.
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a voice session ending with a terminal status.
func (m *Metrics) RecordSessionEnd(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(status).Inc()
	m.SessionDuration.Observe(duration.Seconds())
}

// RecordAudio records PCM bytes flowing through the pipeline.
func (m *Metrics) RecordAudio(direction string, bytes int) {
	if m == nil || bytes <= 0 {
		return
	}
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

// RecordFrameForwarded records a caller frame forwarded to the model.
func (m *Metrics) RecordFrameForwarded() {
	if m == nil {
		return
	}
	m.FramesForwarded.Inc()
}

// RecordFrameGated records a caller frame suppressed by the gate.
func (m *Metrics) RecordFrameGated() {
	if m == nil {
		return
	}
	m.FramesGated.Inc()
}

// RecordInterruption records a barge-in over assistant speech.
func (m *Metrics) RecordInterruption() {
	if m == nil {
		return
	}
	m.InterruptionsTotal.Inc()
}

// RecordDisplayEvent records a display event sent to a client.
func (m *Metrics) RecordDisplayEvent(event string) {
	if m == nil {
		return
	}
	m.DisplayEventsTotal.WithLabelValues(event).Inc()
}

// RecordSetupFailure records a model transport setup failure.
func (m *Metrics) RecordSetupFailure(reason string) {
	if m == nil {
		return
	}
	m.SetupFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordToolCall records a tool invocation outcome.
func (m *Metrics) RecordToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
}

// RecordOrderFinalized records a finalized order.
func (m *Metrics) RecordOrderFinalized(orderType string) {
	if m == nil {
		return
	}
	m.OrdersFinalizedTotal.WithLabelValues(orderType).Inc()
}

// SetPersistQueueDepth updates the write-behind queue depth gauge.
func (m *Metrics) SetPersistQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.PersistQueueDepth.Set(float64(depth))
}

// RecordPersistJob records a write-behind job outcome.
func (m *Metrics) RecordPersistJob(status string) {
	if m == nil {
		return
	}
	m.PersistJobsTotal.WithLabelValues(status).Inc()
}
