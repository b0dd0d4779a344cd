package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval, citation and drift Prometheus metrics.
var (
	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end retrieval duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	GateDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "relevance_gate_dropped_total",
			Help:      "Candidates dropped by the relevance gate",
		},
		[]string{"tier"},
	)

	SearchAbstainedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "search_abstained_total",
			Help:      "Searches that returned no results",
		},
	)

	CitationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "citations_total",
			Help:      "Validated citations by status",
		},
		[]string{"status"},
	)

	// DriftStatus is 0 stable, 1 warning, 2 degraded.
	DriftStatus = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "drift_status",
			Help:      "Latest drift verdict (0 stable, 1 warning, 2 degraded)",
		},
	)

	DriftAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "drift_alerts_total",
			Help:      "Drift alerts raised",
		},
		[]string{"metric", "severity"},
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers retrieval, citation and drift metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		SearchDuration,
		GateDroppedTotal,
		SearchAbstainedTotal,
		CitationsTotal,
		DriftStatus,
		DriftAlertsTotal,
	)
	retrievalMetricsRegistered = true
}
