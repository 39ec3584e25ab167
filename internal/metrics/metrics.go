// Package metrics exposes the authorisation service's health to
// Prometheus: how often mutations and deletions are accepted or
// rejected, how often room reconciliation actually changes state, and
// how deep the service's two queues and the writer's queue are
// running, the earliest signal of a peer or client outpacing this
// node.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder wraps the counters and gauges graphauthd exports. It is
// safe for concurrent use: every field is a prometheus collector,
// already safe for concurrent use by construction.
type Recorder struct {
	registry *prometheus.Registry

	mutationsTotal   *prometheus.CounterVec
	deletionsTotal   *prometheus.CounterVec
	reconcilesTotal  *prometheus.CounterVec
	queueDepth       *prometheus.GaugeVec
}

// NewRecorder builds a Recorder registered against a private registry
// (not the global default one, so tests can build more than one
// without colliding).
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		registry: reg,
		mutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphauthd",
			Name:      "mutations_total",
			Help:      "Mutations processed, partitioned by outcome.",
		}, []string{"outcome"}),
		deletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphauthd",
			Name:      "deletions_total",
			Help:      "Deletions processed, partitioned by outcome.",
		}, []string{"outcome"}),
		reconcilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphauthd",
			Name:      "room_reconciles_total",
			Help:      "Room-node reconciliations, partitioned by outcome and whether they changed local state.",
		}, []string{"outcome", "changed"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "graphauthd",
			Name:      "queue_depth",
			Help:      "Number of messages currently buffered on a named internal queue.",
		}, []string{"queue"}),
	}

	reg.MustRegister(r.mutationsTotal, r.deletionsTotal, r.reconcilesTotal, r.queueDepth)
	return r
}

// ObserveMutation records a mutation's outcome ("accepted" or
// "rejected").
func (r *Recorder) ObserveMutation(outcome string) {
	r.mutationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDeletion records a deletion's outcome.
func (r *Recorder) ObserveDeletion(outcome string) {
	r.deletionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveReconcile records a RoomNodeAdd reconciliation's outcome and
// whether it produced a new write.
func (r *Recorder) ObserveReconcile(outcome string, changed bool) {
	r.reconcilesTotal.WithLabelValues(outcome, boolLabel(changed)).Inc()
}

// SetQueueDepth reports queue's current buffered length.
func (r *Recorder) SetQueueDepth(queue string, depth int) {
	r.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// Handler returns the HTTP handler that serves the registry's metrics;
// peerapi mounts it at /metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
