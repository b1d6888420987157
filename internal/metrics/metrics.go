// Package metrics exposes the pipeline's operational counters.
//
// Collectors are package-level and register on a dedicated registry so a
// host process can mount them wherever it serves its own metrics; the
// library itself never opens an HTTP listener. Components record through
// the helper functions rather than touching collectors directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var (
	// Counter for records admitted past the min-level check
	RecordsEmittedTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "logpipe_records_emitted_total",
			Help: "Total number of records admitted into the pipeline",
		},
		[]string{"level"},
	)

	// Counter for records a handler's filter rejected
	RecordsFilteredTotal = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "logpipe_records_filtered_total",
			Help: "Total number of records rejected by handler filters",
		},
	)

	// Counter for records dropped on the enqueued path
	RecordsDroppedTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "logpipe_records_dropped_total",
			Help: "Total number of records dropped by enqueued sinks",
		},
		[]string{"sink", "reason"},
	)

	// Counter for sink-side failures, swallowed after reporting
	SinkErrorsTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "logpipe_sink_errors_total",
			Help: "Total number of errors captured inside sinks",
		},
		[]string{"sink", "kind"},
	)

	// Counter for completed file rotations
	RotationsTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "logpipe_rotations_total",
			Help: "Total number of file sink rotations",
		},
		[]string{"policy"},
	)

	// Counter for rotated files deleted by retention
	RetentionDeletesTotal = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "logpipe_retention_deletes_total",
			Help: "Total number of rotated files deleted by retention",
		},
	)

	// Counter for rotated files compressed in the background
	CompressionsTotal = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "logpipe_compressions_total",
			Help: "Total number of rotated files gzipped",
		},
	)

	// Gauge for enqueued sink channel utilization
	QueueUtilization = promauto.With(registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logpipe_queue_utilization",
			Help: "Current utilization of an enqueued sink channel (0.0 to 1.0)",
		},
		[]string{"sink"},
	)
)

// Registry returns the registry holding all pipeline collectors.
func Registry() *prometheus.Registry {
	return registry
}

// RecordEmitted counts one admitted record.
func RecordEmitted(level string) {
	RecordsEmittedTotal.WithLabelValues(level).Inc()
}

// RecordFiltered counts one filter rejection.
func RecordFiltered() {
	RecordsFilteredTotal.Inc()
}

// RecordDropped counts one dropped record on the enqueued path.
func RecordDropped(sink, reason string) {
	RecordsDroppedTotal.WithLabelValues(sink, reason).Inc()
}

// RecordSinkError counts one swallowed sink failure.
func RecordSinkError(sink, kind string) {
	SinkErrorsTotal.WithLabelValues(sink, kind).Inc()
}

// RecordRotation counts one completed rotation.
func RecordRotation(policy string) {
	RotationsTotal.WithLabelValues(policy).Inc()
}

// RecordRetentionDelete counts one file removed by retention.
func RecordRetentionDelete() {
	RetentionDeletesTotal.Inc()
}

// RecordCompression counts one rotated file gzipped.
func RecordCompression() {
	CompressionsTotal.Inc()
}

// SetQueueUtilization publishes an enqueued sink's channel fill ratio.
func SetQueueUtilization(sink string, utilization float64) {
	QueueUtilization.WithLabelValues(sink).Set(utilization)
}
