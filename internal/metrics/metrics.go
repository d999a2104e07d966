package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "callroom"

// Relay outcomes.
const (
	OutcomeDelivered           = "delivered"
	OutcomeDroppedNotFound     = "dropped_not_found"
	OutcomeDroppedBackpressure = "dropped_backpressure"
)

// Rejection reasons.
const (
	RejectMalformed         = "malformed"
	RejectInvalidTransition = "invalid_transition"
	RejectAlreadyMember     = "already_member"
	RejectRateLimited       = "rate_limited"
)

// Metrics groups the coordinator collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Connections prometheus.Gauge
	Rooms       prometheus.Gauge
	Events      *prometheus.CounterVec
	Relayed     *prometheus.CounterVec
	Rejected    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A fresh registry
// per coordinator keeps independent instances from colliding.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Registered signaling connections.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound events accepted by the dispatcher.",
		}, []string{"event"}),
		Relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_total",
			Help:      "Relay attempts by message kind and outcome.",
		}, []string{"kind", "outcome"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_total",
			Help:      "Inbound events rejected before dispatch.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.Connections, m.Rooms, m.Events, m.Relayed, m.Rejected)
	}
	return m
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) RoomCreated() {
	if m != nil {
		m.Rooms.Inc()
	}
}

func (m *Metrics) RoomDeleted() {
	if m != nil {
		m.Rooms.Dec()
	}
}

func (m *Metrics) Event(event string) {
	if m != nil {
		m.Events.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) Relay(kind, outcome string) {
	if m != nil {
		m.Relayed.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) Reject(reason string) {
	if m != nil {
		m.Rejected.WithLabelValues(reason).Inc()
	}
}
