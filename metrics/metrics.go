// Package metrics holds the Prometheus instrumentation for the server. All
// recording methods are safe to call on a nil *Metrics, which is how
// components run uninstrumented in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the metric names.
type Config struct {
	// Namespace is the metrics namespace (default: "sleuth").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels
}

// Option configures the metrics.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// Metrics is the set of collectors shared by the event loop, the router and
// the game sessions.
type Metrics struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	framesReceived    prometheus.Counter
	framesSent        prometheus.Counter
	protocolErrors    *prometheus.CounterVec
	commandsRejected  *prometheus.CounterVec
	sessionsActive    prometheus.Gauge
	sessionsCreated   prometheus.Counter
	sessionsEnded     *prometheus.CounterVec
}

// New registers the collectors with reg.
//
// Parameters:
//   - reg: The registry to register with (e.g. prometheus.NewRegistry())
//   - opts: Optional naming overrides
//
// Returns:
//   - The registered Metrics
func New(reg prometheus.Registerer, opts ...Option) *Metrics {
	cfg := Config{Namespace: "sleuth"}
	for _, opt := range opts {
		opt(&cfg)
	}

	factory := promauto.With(reg)
	gauge := func(subsystem, name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: subsystem, Name: name, Help: help, ConstLabels: cfg.ConstLabels,
		})
	}
	counter := func(subsystem, name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: subsystem, Name: name, Help: help, ConstLabels: cfg.ConstLabels,
		})
	}
	counterVec := func(subsystem, name, help, label string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: subsystem, Name: name, Help: help, ConstLabels: cfg.ConstLabels,
		}, []string{label})
	}

	return &Metrics{
		connectionsActive: gauge("server", "connections_active", "Currently open client connections."),
		connectionsTotal:  counter("server", "connections_total", "Accepted client connections."),
		framesReceived:    counter("server", "frames_received_total", "Frames decoded from clients."),
		framesSent:        counter("server", "frames_sent_total", "Frames fully written to clients."),
		protocolErrors:    counterVec("server", "protocol_errors_total", "Connections dropped for protocol violations.", "reason"),
		commandsRejected:  counterVec("session", "commands_rejected_total", "Commands answered with a rejection.", "command"),
		sessionsActive:    gauge("session", "active", "Game sessions not yet in a terminal state."),
		sessionsCreated:   counter("session", "created_total", "Game sessions created."),
		sessionsEnded:     counterVec("session", "ended_total", "Game sessions that reached a terminal state.", "state"),
	}
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}

	m.connectionsActive.Inc()
	m.connectionsTotal.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}

	m.connectionsActive.Dec()
}

func (m *Metrics) FrameReceived() {
	if m == nil {
		return
	}

	m.framesReceived.Inc()
}

func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}

	m.framesSent.Inc()
}

// ProtocolError counts a connection dropped for reason (e.g. "oversize", "decode").
func (m *Metrics) ProtocolError(reason string) {
	if m == nil {
		return
	}

	m.protocolErrors.WithLabelValues(reason).Inc()
}

// CommandRejected counts a rejection notification for the named command kind.
func (m *Metrics) CommandRejected(command string) {
	if m == nil {
		return
	}

	m.commandsRejected.WithLabelValues(command).Inc()
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}

	m.sessionsCreated.Inc()
	m.sessionsActive.Inc()
}

// SessionEnded records a session reaching the terminal state named state.
func (m *Metrics) SessionEnded(state string) {
	if m == nil {
		return
	}

	m.sessionsActive.Dec()
	m.sessionsEnded.WithLabelValues(state).Inc()
}
