// Package metrics exposes the agent's Prometheus collectors.
//
// All Record methods are safe to call on a nil *Metrics, so components built
// without metrics (tests, the inventory command) need no special casing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bridgeagent"

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	healRuns             prometheus.Counter
	vlansAdded           *prometheus.CounterVec
	vlansRemoved         *prometheus.CounterVec
	vlanRemovalFailures  *prometheus.CounterVec
	provisionBatches     prometheus.Counter
	provisionFailures    prometheus.Counter
	provisionedRequests  prometheus.Counter
	droppedRequests      prometheus.Counter
	confirmations        *prometheus.CounterVec
	pendingConfirmations prometheus.Gauge
	heartbeats           *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		healRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "heal_runs_total",
			Help:      "Number of heal and optimize cycles run.",
		}),
		vlansAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "vlans_added_total",
			Help:      "VLANs added to bridges by reconciliation.",
		}, []string{"bridge"}),
		vlansRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "vlans_removed_total",
			Help:      "Stale VLANs removed from bridges.",
		}, []string{"bridge"}),
		vlanRemovalFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "vlan_removal_failures_total",
			Help:      "Stale VLAN removals that failed.",
		}, []string{"bridge"}),
		provisionBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provisioner",
			Name:      "batches_total",
			Help:      "Provisioning batches attempted.",
		}),
		provisionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provisioner",
			Name:      "batch_failures_total",
			Help:      "Provisioning batches that failed and were reported down.",
		}),
		provisionedRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provisioner",
			Name:      "requests_total",
			Help:      "Provision requests handed to the confirmation queue.",
		}),
		droppedRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provisioner",
			Name:      "unmapped_requests_total",
			Help:      "Provision requests whose physical network has no bridge mapping.",
		}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "confirmation",
			Name:      "completed_total",
			Help:      "Confirmation entries completed, by result.",
		}, []string{"result"}),
		pendingConfirmations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "confirmation",
			Name:      "pending",
			Help:      "Confirmation entries waiting for their adapter.",
		}),
		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "heartbeats_total",
			Help:      "State reports sent to the controller, by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.healRuns,
		m.vlansAdded,
		m.vlansRemoved,
		m.vlanRemovalFailures,
		m.provisionBatches,
		m.provisionFailures,
		m.provisionedRequests,
		m.droppedRequests,
		m.confirmations,
		m.pendingConfirmations,
		m.heartbeats,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHeal records one heal cycle and its per-bridge VLAN changes.
func (m *Metrics) RecordHeal(added, removed, failed map[string]int) {
	if m == nil {
		return
	}
	m.healRuns.Inc()
	for bridge, n := range added {
		m.vlansAdded.WithLabelValues(bridge).Add(float64(n))
	}
	for bridge, n := range removed {
		m.vlansRemoved.WithLabelValues(bridge).Add(float64(n))
	}
	for bridge, n := range failed {
		m.vlanRemovalFailures.WithLabelValues(bridge).Add(float64(n))
	}
}

// RecordProvisionBatch records a batch attempt of size n.
func (m *Metrics) RecordProvisionBatch(n int, err error) {
	if m == nil {
		return
	}
	m.provisionBatches.Inc()
	if err != nil {
		m.provisionFailures.Inc()
		return
	}
	m.provisionedRequests.Add(float64(n))
}

// RecordUnmapped records requests dropped for lack of a bridge mapping.
func (m *Metrics) RecordUnmapped(n int) {
	if m == nil || n == 0 {
		return
	}
	m.droppedRequests.Add(float64(n))
}

// RecordConfirmed records an entry whose adapter appeared.
func (m *Metrics) RecordConfirmed() {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues("confirmed").Inc()
}

// RecordConfirmationFailed records an entry that timed out.
func (m *Metrics) RecordConfirmationFailed() {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues("failed").Inc()
}

// SetPendingConfirmations sets the pending entry gauge.
func (m *Metrics) SetPendingConfirmations(n int) {
	if m == nil {
		return
	}
	m.pendingConfirmations.Set(float64(n))
}

// RecordHeartbeat records a state report to the controller.
func (m *Metrics) RecordHeartbeat(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.heartbeats.WithLabelValues(result).Inc()
}
