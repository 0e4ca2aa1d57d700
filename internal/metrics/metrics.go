// Package metrics owns the four counters the ingestion API contract
// requires (metrics_received, batches_processed, validation_errors,
// rate_limited_requests) and mirrors them into Prometheus for operators
// via promauto registration.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/23skdu/ingestord/internal/model"
)

// =============================================================================
// API-contract counters
// =============================================================================
//
// These are the counters GET /metrics reports verbatim as JSON. They are
// plain uint64s updated with relaxed atomics: the contract only promises
// monotonic increase, not linearizability across counters.

var (
	MetricsReceivedTotal     uint64
	BatchesProcessedTotal    uint64
	ValidationErrorsTotal    uint64
	RateLimitedRequestsTotal uint64
)

// AddMetricsReceived increments metrics_received by n.
func AddMetricsReceived(n uint64) {
	atomic.AddUint64(&MetricsReceivedTotal, n)
	promMetricsReceived.Add(float64(n))
}

// IncBatchesProcessed increments batches_processed by one.
func IncBatchesProcessed() {
	atomic.AddUint64(&BatchesProcessedTotal, 1)
	promBatchesProcessed.Inc()
}

// IncValidationErrors increments validation_errors by one.
func IncValidationErrors() {
	atomic.AddUint64(&ValidationErrorsTotal, 1)
	promValidationErrors.Inc()
}

// IncRateLimitedRequests increments rate_limited_requests by one.
func IncRateLimitedRequests() {
	atomic.AddUint64(&RateLimitedRequestsTotal, 1)
	promRateLimitedRequests.Inc()
}

// Snapshot is the body GET /metrics serializes to JSON.
type Snapshot struct {
	MetricsReceived     uint64 `json:"metrics_received"`
	BatchesProcessed    uint64 `json:"batches_processed"`
	ValidationErrors    uint64 `json:"validation_errors"`
	RateLimitedRequests uint64 `json:"rate_limited_requests"`
}

// Snap reads all four counters. There is no cross-counter ordering
// guarantee between the individual atomic loads.
func Snap() Snapshot {
	return Snapshot{
		MetricsReceived:     atomic.LoadUint64(&MetricsReceivedTotal),
		BatchesProcessed:    atomic.LoadUint64(&BatchesProcessedTotal),
		ValidationErrors:    atomic.LoadUint64(&ValidationErrorsTotal),
		RateLimitedRequests: atomic.LoadUint64(&RateLimitedRequestsTotal),
	}
}

// =============================================================================
// Prometheus mirror, served on the dedicated --metrics-addr server
// =============================================================================

var (
	promMetricsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingestord_metrics_received_total",
			Help: "Total number of individual metric points accepted across all batches",
		},
	)

	promBatchesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingestord_batches_processed_total",
			Help: "Total number of metric batches successfully enqueued for writing",
		},
	)

	promValidationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingestord_validation_errors_total",
			Help: "Total number of requests rejected for malformed or invalid bodies",
		},
	)

	promRateLimitedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingestord_rate_limited_requests_total",
			Help: "Total number of requests rejected by the admission rate limiter",
		},
	)
)

// =============================================================================
// Internal operational metrics, exercised by other packages
// =============================================================================

var (
	// WriterQueueDepth tracks the async writer's pending handoff queue
	// length. The health QueueDepthChecker reads the depth through
	// Writer.Depth, not through this gauge.
	WriterQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingestord_writer_queue_depth",
			Help: "Current depth of the async writer's handoff queue",
		},
	)

	// WorkerPoolQueueDepth tracks the bounded worker pool's task queue
	// length.
	WorkerPoolQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingestord_workerpool_queue_depth",
			Help: "Current depth of the worker pool's task queue",
		},
	)

	// SinkWriteDuration measures latency of a single Produce call against
	// the active sink (local log or remote broker).
	SinkWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingestord_sink_write_duration_seconds",
			Help:    "Latency of sink Produce calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sink"},
	)

	// SinkWriteFailures counts failed Produce calls by sink kind.
	SinkWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestord_sink_write_failures_total",
			Help: "Total number of failed sink Produce calls",
		},
		[]string{"sink"},
	)

	// CircuitBreakerState exposes the writer's sink breaker's current state
	// (0=closed, 1=open, 2=half-open).
	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingestord_circuit_breaker_state",
			Help: "Sink circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)

	// EventLoopConnections tracks the number of open client connections.
	EventLoopConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingestord_eventloop_connections",
			Help: "Number of currently open client connections",
		},
	)

	// RateLimiterRingDrops counts telemetry ring buffer entries dropped
	// because the reader could not keep up with producers.
	RateLimiterRingDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingestord_ratelimiter_ring_drops_total",
			Help: "Total number of rate limiter telemetry events dropped due to ring buffer overflow",
		},
	)

	// BatchMetricSum tracks the running sum of values seen per metric
	// name, mirroring the per-batch summary the original ingestion
	// service logged on every accepted batch.
	BatchMetricSum = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingestord_batch_metric_sum",
			Help: "Running sum of metric values observed per metric name",
		},
		[]string{"name"},
	)

	// BatchMetricCount tracks the running count of observations per
	// metric name.
	BatchMetricCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingestord_batch_metric_count",
			Help: "Running count of metric observations per metric name",
		},
		[]string{"name"},
	)
)

// ObserveBatchStats folds per-batch aggregate statistics into the gauge
// vectors above. Called once per accepted batch from the worker pool.
func ObserveBatchStats(stats map[string]*model.BatchStats) {
	for name, s := range stats {
		BatchMetricSum.WithLabelValues(name).Add(s.Sum)
		BatchMetricCount.WithLabelValues(name).Add(float64(s.Count))
	}
}
