package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(flowsExecutedTotal, flowStepSeconds, flowQueueRejects)
}

var (
	flowsExecutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flows_executed_total",
			Help: "Flow executions by flow type and terminal status.",
		},
		[]string{"flow_type", "status"},
	)

	flowStepSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flow_step_duration_seconds",
			Help:    "Wall-clock duration of individual pipeline steps.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		},
		[]string{"pipeline", "step"},
	)

	flowQueueRejects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flow_queue_rejects_total",
			Help: "Flow submissions rejected because the worker queue was full.",
		},
	)
)

func IncFlowExecuted(flowType, status string) {
	flowsExecutedTotal.WithLabelValues(norm(flowType), norm(status)).Inc()
}

func ObserveFlowStep(pipeline, step string, seconds float64) {
	flowStepSeconds.WithLabelValues(norm(pipeline), step).Observe(seconds)
}

func IncQueueReject() {
	flowQueueRejects.Inc()
}
