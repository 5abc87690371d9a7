package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Search pipeline Prometheus metrics.
var (
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total chat completion requests",
		},
		[]string{"call", "status"}, // call: tools, summary
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Chat completion request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"call"},
	)

	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Search tool executions by intent and outcome",
		},
		[]string{"intent", "status"},
	)

	VectorQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vector_query_duration_seconds",
			Help:      "Vector similarity query duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Retry decisions by operation and outcome",
		},
		[]string{"op", "outcome"}, // outcome: retry, recovered, exhausted
	)

	ChartsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "charts_emitted_total",
			Help:      "Charts attached to search responses by type",
		},
		[]string{"type"},
	)

	EntityAggregationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_aggregations_total",
			Help:      "Detected entity intents and whether aggregation ran",
		},
		[]string{"entity", "aggregated"},
	)
)

var registerPipeline sync.Once

// RegisterPipelineMetrics registers search pipeline metrics with the default registry.
func RegisterPipelineMetrics() {
	registerPipeline.Do(func() {
		prometheus.MustRegister(
			LLMRequestsTotal,
			LLMRequestDuration,
			ToolCallsTotal,
			VectorQueryDuration,
			RetryAttemptsTotal,
			ChartsEmittedTotal,
			EntityAggregationsTotal,
		)
	})
}
