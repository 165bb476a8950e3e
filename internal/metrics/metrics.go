// Package metrics is an EXPANSION of the ambient observability surface:
// operational visibility is not one of the Non-goals (those exclude
// features like cross-key transactions, not metrics), so this repo
// carries a small Prometheus registry the way a production Go service
// in this corpus would.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// QuorumOutcome labels the quorum result counters.
type QuorumOutcome string

const (
	OutcomeSuccess QuorumOutcome = "success"
	OutcomeFailure QuorumOutcome = "failure"
)

// Metrics bundles every Prometheus collector this repo exposes. Held
// behind one struct (rather than package-level globals) so a test can
// build its own registry without colliding with another test's.
type Metrics struct {
	Registry *prometheus.Registry

	QuorumWrites      *prometheus.CounterVec
	QuorumReads       *prometheus.CounterVec
	ReplicaRPCLatency *prometheus.HistogramVec
	HandoffQueueDepth prometheus.Gauge
	GossipRoundsSent  prometheus.Counter
}

// New builds a Metrics bundle registered against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		QuorumWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dynamokv_quorum_writes_total",
			Help: "Write-quorum outcomes, labeled by outcome.",
		}, []string{"outcome"}),
		QuorumReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dynamokv_quorum_reads_total",
			Help: "Read-quorum outcomes, labeled by outcome.",
		}, []string{"outcome"}),
		ReplicaRPCLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dynamokv_replica_rpc_duration_seconds",
			Help:    "Replica RPC latency, labeled by peer id and operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"peer", "operation"}),
		HandoffQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dynamokv_handoff_queue_depth",
			Help: "Number of keys with a pending hinted-handoff record.",
		}),
		GossipRoundsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dynamokv_gossip_rounds_sent_total",
			Help: "Number of gossip fanout rounds sent by this node.",
		}),
	}

	reg.MustRegister(
		m.QuorumWrites,
		m.QuorumReads,
		m.ReplicaRPCLatency,
		m.HandoffQueueDepth,
		m.GossipRoundsSent,
	)
	return m
}

// Handler returns the HTTP handler serving this bundle's registry in
// Prometheus text format, mounted at /admin/metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveQuorumWrite records one write-quorum outcome. A nil receiver is
// a no-op, so callers (and tests) can pass a nil *Metrics without a
// separate code path.
func (m *Metrics) ObserveQuorumWrite(outcome QuorumOutcome) {
	if m == nil {
		return
	}
	m.QuorumWrites.WithLabelValues(string(outcome)).Inc()
}

// ObserveQuorumRead records one read-quorum outcome.
func (m *Metrics) ObserveQuorumRead(outcome QuorumOutcome) {
	if m == nil {
		return
	}
	m.QuorumReads.WithLabelValues(string(outcome)).Inc()
}

// ObserveReplicaRPC records one replica RPC's latency, labeled by peer
// id and operation (put/handoff/get).
func (m *Metrics) ObserveReplicaRPC(peer, operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.ReplicaRPCLatency.WithLabelValues(peer, operation).Observe(d.Seconds())
}

// SetHandoffQueueDepth records the number of keys with a pending
// handoff record, as of the worker's most recent replay pass.
func (m *Metrics) SetHandoffQueueDepth(n int) {
	if m == nil {
		return
	}
	m.HandoffQueueDepth.Set(float64(n))
}

// IncGossipRoundsSent records one gossip fanout round sent by this node.
func (m *Metrics) IncGossipRoundsSent() {
	if m == nil {
		return
	}
	m.GossipRoundsSent.Inc()
}
