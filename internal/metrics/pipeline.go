package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	PipelineTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pipeline_transitions_total",
			Help:      "Document stage transitions",
		},
		[]string{"from", "to", "action"},
	)

	PipelineFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pipeline_failures_total",
			Help:      "Stage failures by stage and reason code",
		},
		[]string{"stage", "reason"},
	)

	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Time spent doing one stage's work",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"stage"},
	)

	PipelineBatchDocuments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pipeline_batch_documents_total",
			Help:      "Documents attempted by batch runs",
		},
		[]string{"result"}, // processed / failed
	)

	PipelineStageDocuments = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pipeline_stage_documents",
			Help:      "Documents currently in each stage, refreshed on stats queries",
		},
		[]string{"stage"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		PipelineTransitionsTotal,
		PipelineFailuresTotal,
		PipelineStageDuration,
		PipelineBatchDocuments,
		PipelineStageDocuments,
	)
	pipelineMetricsRegistered = true
}
