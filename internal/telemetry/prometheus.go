// internal/telemetry/prometheus.go
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stevedore_batches_total",
			Help: "Total number of batches completed",
		},
		[]string{"strategy"},
	)

	objectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stevedore_objects_total",
			Help: "Total number of objects reaching a terminal state",
		},
		[]string{"strategy"},
	)

	bytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stevedore_bytes_transferred_total",
			Help: "Total bytes transferred",
		},
		[]string{"strategy"},
	)

	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stevedore_object_errors_total",
			Help: "Total number of failed objects",
		},
		[]string{"strategy"},
	)

	fallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stevedore_fallbacks_total",
			Help: "Total number of fallback transitions",
		},
	)

	batchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stevedore_batch_duration_seconds",
			Help:    "Batch execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)
)

// PrometheusSink exports engine events as Prometheus metrics.
type PrometheusSink struct{}

// NewPrometheusSink creates a Prometheus-backed sink. Metrics register
// on the default registry; serve them with promhttp.
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{}
}

func (s *PrometheusSink) BatchCompleted(e Event) {
	batchesTotal.WithLabelValues(e.Strategy).Inc()
	objectsTotal.WithLabelValues(e.Strategy).Add(float64(e.ObjectCount))
	bytesTotal.WithLabelValues(e.Strategy).Add(float64(e.BytesTransferred))
	errorsTotal.WithLabelValues(e.Strategy).Add(float64(e.ErrorCount))
	batchDuration.WithLabelValues(e.Strategy).Observe(e.Duration.Seconds())
}

func (s *PrometheusSink) FallbackTriggered(e Event) {
	fallbacksTotal.Inc()
}
