package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(generationJobsStartedTotal, generationJobsCancelledTotal, generationJobsRetriedTotal, workflowCallsTotal)
}

var generationJobsStartedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "generation_jobs_started_total",
		Help: "Total number of generation jobs started, labeled by type.",
	},
	[]string{"type"},
)

var generationJobsCancelledTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "generation_jobs_cancelled_total",
		Help: "Total number of generation jobs cancelled, labeled by type.",
	},
	[]string{"type"},
)

var generationJobsRetriedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "generation_jobs_retried_total",
		Help: "Total number of generation job retries, labeled by type.",
	},
	[]string{"type"},
)

var workflowCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "workflow_gateway_calls_total",
		Help: "Workflow gateway calls, labeled by operation ('start', 'stop') and outcome.",
	},
	[]string{"op", "success"},
)

func IncJobStarted(typ string)   { generationJobsStartedTotal.WithLabelValues(norm(typ)).Inc() }
func IncJobCancelled(typ string) { generationJobsCancelledTotal.WithLabelValues(norm(typ)).Inc() }
func IncJobRetried(typ string)   { generationJobsRetriedTotal.WithLabelValues(norm(typ)).Inc() }

func IncWorkflowCall(op string, success bool) {
	label := "false"
	if success {
		label = "true"
	}
	workflowCallsTotal.WithLabelValues(norm(op), label).Inc()
}
