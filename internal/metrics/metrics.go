// Package metrics holds the Prometheus collectors of the relay and recorder.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	sessions          prometheus.Gauge
	rooms             prometheus.Gauge
	messages          *prometheus.CounterVec
	backpressureDrops prometheus.Counter
	relayForwarded    prometheus.Counter
	relayDiscarded    *prometheus.CounterVec
	relayPeers        prometheus.Gauge
	recordings        prometheus.Counter
	encoderFailures   prometheus.Counter
	framesEncoded     prometheus.Counter
	recorderDrops     prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meet_sessions",
			Help: "Connected reliable-transport sessions",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meet_rooms",
			Help: "Rooms with at least one member",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meet_messages_total",
			Help: "Messages received by the hub, by type",
		}, []string{"type"}),
		backpressureDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meet_backpressure_drops_total",
			Help: "Media frames skipped for recipients over the backlog threshold",
		}),
		relayForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meet_relay_forwarded_total",
			Help: "Chunk datagrams forwarded to peers",
		}),
		relayDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meet_relay_discarded_total",
			Help: "Datagrams dropped by the relay, by reason",
		}, []string{"reason"}),
		relayPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meet_relay_peers",
			Help: "Registered relay peers",
		}),
		recordings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meet_recordings_finalized_total",
			Help: "Room recordings written to the catalog",
		}),
		encoderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meet_encoder_failures_total",
			Help: "Recording streams discarded because the encoder failed",
		}),
		framesEncoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meet_frames_encoded_total",
			Help: "Composed frames handed to encoders",
		}),
		recorderDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meet_recorder_dropped_frames_total",
			Help: "Incoming media frames dropped because the recorder queue was full",
		}),
	}

	registry.MustRegister(
		m.sessions,
		m.rooms,
		m.messages,
		m.backpressureDrops,
		m.relayForwarded,
		m.relayDiscarded,
		m.relayPeers,
		m.recordings,
		m.encoderFailures,
		m.framesEncoded,
		m.recorderDrops,
	)
	return m
}

func (m *Metrics) SetSessions(n int) {
	if m != nil {
		m.sessions.Set(float64(n))
	}
}

func (m *Metrics) SetRooms(n int) {
	if m != nil {
		m.rooms.Set(float64(n))
	}
}

func (m *Metrics) IncMessage(typ string) {
	if m != nil {
		m.messages.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) AddBackpressureDrops(n int) {
	if m != nil && n > 0 {
		m.backpressureDrops.Add(float64(n))
	}
}

func (m *Metrics) AddRelayForwarded(n int) {
	if m != nil && n > 0 {
		m.relayForwarded.Add(float64(n))
	}
}

func (m *Metrics) IncRelayDiscarded(reason string) {
	if m != nil {
		m.relayDiscarded.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) SetRelayPeers(n int) {
	if m != nil {
		m.relayPeers.Set(float64(n))
	}
}

func (m *Metrics) IncRecordings() {
	if m != nil {
		m.recordings.Inc()
	}
}

func (m *Metrics) IncEncoderFailures() {
	if m != nil {
		m.encoderFailures.Inc()
	}
}

func (m *Metrics) IncFramesEncoded() {
	if m != nil {
		m.framesEncoded.Inc()
	}
}

func (m *Metrics) IncRecorderDrops() {
	if m != nil {
		m.recorderDrops.Inc()
	}
}

// Handler serves the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
