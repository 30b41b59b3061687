package disposition

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks evaluation outcomes for the disposition engine. All
// methods are nil-safe so engines built without metrics skip collection.
type Metrics struct {
	registry *prometheus.Registry

	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	snapshotFailures   prometheus.Counter
}

// NewMetrics creates and registers the engine metrics. A nil registry
// creates a private one, which Handler exposes.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "returns",
				Subsystem: "disposition",
				Name:      "evaluations_total",
				Help:      "Total disposition evaluations by final status",
			},
			[]string{"status"},
		),
		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "returns",
				Subsystem: "disposition",
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of one disposition evaluation",
				// Evaluations are in-memory and bounded by rule count;
				// anything past a few milliseconds is anomalous.
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 15),
			},
		),
		snapshotFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "returns",
				Subsystem: "disposition",
				Name:      "snapshot_failures_total",
				Help:      "Evaluations aborted because the rule snapshot could not be read",
			},
		),
	}

	registry.MustRegister(m.evaluationsTotal, m.evaluationDuration, m.snapshotFailures)
	return m
}

// Handler exposes the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// ObserveEvaluation records one completed evaluation.
func (m *Metrics) ObserveEvaluation(status Disposition, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.evaluationsTotal.WithLabelValues(string(status)).Inc()
	m.evaluationDuration.Observe(elapsed.Seconds())
}

// ObserveSnapshotFailure records an evaluation aborted on snapshot read.
func (m *Metrics) ObserveSnapshotFailure() {
	if m == nil {
		return
	}
	m.snapshotFailures.Inc()
}
