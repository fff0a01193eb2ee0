package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	synthesisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_synthesis_total",
			Help: "SQL synthesis attempts by provider and outcome (accepted, refused, error).",
		},
		[]string{"provider", "outcome"},
	)
	synthesisLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querypilot_synthesis_latency_ms",
			Help:    "Latency of language model calls in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"provider"},
	)
	validationRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_validation_rejections_total",
			Help: "Statements rejected by the read-only validator, by origin (generated, submitted).",
		},
		[]string{"origin"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_query_executions_total",
			Help: "Warehouse query executions by status.",
		},
		[]string{"status"},
	)
	queryLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querypilot_query_latency_ms",
			Help:    "Warehouse query latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
	)
	auditWriteFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_audit_write_failures_total",
			Help: "Audit log writes that failed and were dropped.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		synthesisTotal,
		synthesisLatencyMs,
		validationRejectionsTotal,
		queryExecutionsTotal,
		queryLatencyMs,
		auditWriteFailuresTotal,
	)
}

func ObserveSynthesis(provider, outcome string, elapsed time.Duration) {
	synthesisTotal.WithLabelValues(provider, outcome).Inc()
	synthesisLatencyMs.WithLabelValues(provider).Observe(float64(elapsed.Milliseconds()))
}

func IncrementValidationRejection(origin string) {
	validationRejectionsTotal.WithLabelValues(origin).Inc()
}

func ObserveQueryExecution(status string, elapsed time.Duration) {
	queryExecutionsTotal.WithLabelValues(status).Inc()
	queryLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func IncrementAuditWriteFailure(kind string) {
	auditWriteFailuresTotal.WithLabelValues(kind).Inc()
}
