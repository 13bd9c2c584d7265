// Package metrics defines the Prometheus instruments exported by the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "relay"

// Message sources.
const (
	SourceSocket = "socket"
	SourceHTTP   = "http"
)

// Metrics holds the relay's Prometheus instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	MessagesReceived  *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	HeartbeatsSent    prometheus.Counter
	HistoryLength     prometheus.Gauge
	HistoryEvictions  prometheus.Counter
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of registered WebSocket clients.",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages accepted for relaying, by source.",
		}, []string{"source"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-client broadcast deliveries, by result.",
		}, []string{"result"}),
		HeartbeatsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Heartbeat ticks broadcast.",
		}),
		HistoryLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_length",
			Help:      "Entries currently held in the history log.",
		}),
		HistoryEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_evictions_total",
			Help:      "History entries dropped to stay within capacity.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.MessagesReceived, m.Deliveries, m.HeartbeatsSent, m.HistoryLength, m.HistoryEvictions)
	return m
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

func (m *Metrics) MessageReceived(source string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(source).Inc()
}

// Delivered records the outcome of one broadcast.
func (m *Metrics) Delivered(succeeded, failed int) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues("success").Add(float64(succeeded))
	m.Deliveries.WithLabelValues("failure").Add(float64(failed))
}

func (m *Metrics) HeartbeatSent() {
	if m == nil {
		return
	}
	m.HeartbeatsSent.Inc()
}

func (m *Metrics) SetHistoryLength(n int) {
	if m == nil {
		return
	}
	m.HistoryLength.Set(float64(n))
}

func (m *Metrics) HistoryEvicted() {
	if m == nil {
		return
	}
	m.HistoryEvictions.Inc()
}
