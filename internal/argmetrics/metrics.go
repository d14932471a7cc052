// Package argmetrics is the gateway's read-only admin status surface
// (§9's "Admin status surface" supplement): Prometheus collectors on an
// isolated registry, matching the original's debug/admin visibility
// into NAT table and peer state without any control-plane mutation.
package argmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/argnet/arg/internal/argpeer"
)

// Metrics implements argdirector.Recorder over an isolated
// prometheus.Registry, the same isolation pattern the teacher uses so
// these collectors never collide with a process-wide default registry.
type Metrics struct {
	Registry *prometheus.Registry

	peerPhase     *prometheus.GaugeVec
	hopAccepted   *prometheus.CounterVec
	replayDropped *prometheus.CounterVec
	natBuckets    prometheus.Gauge
	natEntries    prometheus.Gauge
}

// New creates a Metrics instance with all collectors registered on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		peerPhase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "arg_peer_phase",
				Help: "Current handshake phase per peer (1 for the active phase, 0 otherwise).",
			},
			[]string{"peer", "phase"},
		),
		hopAccepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arg_hop_accepted_total",
				Help: "Total number of inbound packets accepted at a peer's current or previous hop address.",
			},
			[]string{"peer"},
		),
		replayDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arg_replay_dropped_total",
				Help: "Total number of inbound frames dropped by the sequence-number replay check.",
			},
			[]string{"peer"},
		),
		natBuckets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arg_nat_buckets",
			Help: "Number of occupied NAT table buckets.",
		}),
		natEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arg_nat_entries",
			Help: "Number of live NAT table entries across all buckets.",
		}),
	}

	reg.MustRegister(
		m.peerPhase,
		m.hopAccepted,
		m.replayDropped,
		m.natBuckets,
		m.natEntries,
	)
	return m
}

// PeerPhase records peer's current handshake phase, zeroing every other
// phase label for that peer so the gauge always has exactly one "1" per
// peer (a dashboard panel can then graph phase as a step function).
func (m *Metrics) PeerPhase(peerName string, phase argpeer.Phase) {
	for p := argpeer.PhaseIdle; p <= argpeer.PhaseConnected; p++ {
		v := 0.0
		if p == phase {
			v = 1.0
		}
		m.peerPhase.WithLabelValues(peerName, p.String()).Set(v)
	}
}

// HopAccepted increments the accepted-inbound-at-hop-address counter
// for peerName.
func (m *Metrics) HopAccepted(peerName string) {
	m.hopAccepted.WithLabelValues(peerName).Inc()
}

// ReplayDropped increments the replay-drop counter for peerName.
func (m *Metrics) ReplayDropped(peerName string) {
	m.replayDropped.WithLabelValues(peerName).Inc()
}

// NATTableSize sets the current bucket and entry gauges, called after
// every NAT cleanup sweep.
func (m *Metrics) NATTableSize(buckets, entries int) {
	m.natBuckets.Set(float64(buckets))
	m.natEntries.Set(float64(entries))
}

// Handler serves the Prometheus text exposition format for this
// registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
