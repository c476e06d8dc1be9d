package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	transcriber = "transcriber"

	admissionDecisionsTotal = "admission_decisions_total"
	activeJobs              = "active_jobs"
	reconciliationsTotal    = "reconciliations_total"
	reconcileRetriesTotal   = "reconcile_retries_total"
	pollCyclesTotal         = "poll_cycles_total"
	pollJobsTotal           = "poll_jobs_total"
	webhooksTotal           = "webhooks_total"
	dispatcherTasksTotal    = "dispatcher_tasks_total"
	dispatcherQueueDepth    = "dispatcher_queue_depth"

	// Labels
	decisionLabel = "decision"
	outcomeLabel  = "outcome"
	strategyLabel = "strategy"
	resultLabel   = "result"
)

// Reconciliation outcomes
const (
	OutcomeCompleted = "completed"
	OutcomeError     = "error"
	OutcomeNoop      = "noop"
	OutcomeAborted   = "aborted"
)

// Webhook results
const (
	WebhookAccepted     = "accepted"
	WebhookUnauthorized = "unauthorized"
	WebhookUnknownJob   = "unknown_job"
	WebhookDropped      = "dropped"
	WebhookTerminal     = "terminal"
)

// Dispatcher task results
const (
	TaskSucceeded = "succeeded"
	TaskFailed    = "failed"
	TaskPanicked  = "panicked"
	TaskRejected  = "rejected"
)

var admissionDecisionsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: transcriber,
		Name:      admissionDecisionsTotal,
		Help:      "number of job admission decisions",
	},
	[]string{decisionLabel},
)

var activeJobsMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: transcriber,
		Name:      activeJobs,
		Help:      "number of queued and processing jobs seen by the last admission check",
	},
)

var reconciliationsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: transcriber,
		Name:      reconciliationsTotal,
		Help:      "number of reconciliations partitioned by outcome",
	},
	[]string{outcomeLabel},
)

var reconcileRetriesMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: transcriber,
		Name:      reconcileRetriesTotal,
		Help:      "number of transient reconciliation failures",
	},
)

var pollCyclesMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: transcriber,
		Name:      pollCyclesTotal,
		Help:      "number of poll cycles partitioned by strategy",
	},
	[]string{strategyLabel},
)

var pollJobsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: transcriber,
		Name:      pollJobsTotal,
		Help:      "number of jobs picked up by the poller partitioned by strategy",
	},
	[]string{strategyLabel},
)

var webhooksMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: transcriber,
		Name:      webhooksTotal,
		Help:      "number of completion webhooks partitioned by result",
	},
	[]string{resultLabel},
)

var dispatcherTasksMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: transcriber,
		Name:      dispatcherTasksTotal,
		Help:      "number of background tasks partitioned by result",
	},
	[]string{resultLabel},
)

var dispatcherQueueMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: transcriber,
		Name:      dispatcherQueueDepth,
		Help:      "number of background tasks waiting for a worker",
	},
)

func IncreaseAdmissionDecisionsMetric(allowed bool) {
	decision := "rejected"
	if allowed {
		decision = "allowed"
	}
	admissionDecisionsMetric.With(prometheus.Labels{decisionLabel: decision}).Inc()
}

func UpdateActiveJobsMetric(count int64) {
	activeJobsMetric.Set(float64(count))
}

func IncreaseReconciliationsMetric(outcome string) {
	reconciliationsMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func IncreaseReconcileRetriesMetric() {
	reconcileRetriesMetric.Inc()
}

func IncreasePollCyclesMetric(strategy string, jobs int) {
	labels := prometheus.Labels{strategyLabel: strategy}
	pollCyclesMetric.With(labels).Inc()
	pollJobsMetric.With(labels).Add(float64(jobs))
}

func IncreaseWebhooksMetric(result string) {
	webhooksMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func IncreaseDispatcherTasksMetric(result string) {
	dispatcherTasksMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func UpdateDispatcherQueueMetric(depth int) {
	dispatcherQueueMetric.Set(float64(depth))
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(admissionDecisionsMetric)
	prometheus.MustRegister(activeJobsMetric)
	prometheus.MustRegister(reconciliationsMetric)
	prometheus.MustRegister(reconcileRetriesMetric)
	prometheus.MustRegister(pollCyclesMetric)
	prometheus.MustRegister(pollJobsMetric)
	prometheus.MustRegister(webhooksMetric)
	prometheus.MustRegister(dispatcherTasksMetric)
	prometheus.MustRegister(dispatcherQueueMetric)
}
