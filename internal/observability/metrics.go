// Package observability exposes the coordinator's performance counters as
// Prometheus collectors. The fields mirror the PerformanceMetrics surface
// the coordinator reports in its status snapshots: tasks processed, plans
// generated, user interruptions, decompositions performed, average task
// time, LLM calls made, context updates, and uptime.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report coordinator activity.
type Metrics struct {
	startedAt time.Time

	tasksProcessed       prometheus.Counter
	plansGenerated       prometheus.Counter
	planningFailures     prometheus.Counter
	userInterruptions    prometheus.Counter
	decompositions       prometheus.Counter
	llmCalls             *prometheus.CounterVec
	contextUpdates       prometheus.Counter
	taskDuration         prometheus.Histogram
	promptQueueDepth     prometheus.Gauge
	readyTaskQueueDepth  prometheus.Gauge
	executionState       *prometheus.GaugeVec
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// Default returns the process-wide metrics instance registered with the
// global Prometheus registry. Collectors are created only once so repeated
// coordinator construction in tests does not panic on duplicate
// registration.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance registered against reg. Pass
// a fresh prometheus.NewRegistry() in tests that want isolated collectors;
// nil falls back to the global DefaultRegisterer.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	tasksProcessed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kaix",
		Subsystem: "coordinator",
		Name:      "tasks_processed_total",
		Help:      "Total number of tasks that reached a terminal state.",
	})
	plansGenerated := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kaix",
		Subsystem: "coordinator",
		Name:      "plans_generated_total",
		Help:      "Total number of plans generated from a user prompt.",
	})
	planningFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kaix",
		Subsystem: "coordinator",
		Name:      "planning_failures_total",
		Help:      "Total number of user prompts whose plan generation exhausted its retry budget.",
	})
	userInterruptions := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kaix",
		Subsystem: "coordinator",
		Name:      "user_interruptions_total",
		Help:      "Total number of user prompts accepted, of any priority.",
	})
	decompositions := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kaix",
		Subsystem: "coordinator",
		Name:      "decompositions_total",
		Help:      "Total number of adaptive task decompositions performed.",
	})
	llmCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kaix",
		Subsystem: "provider",
		Name:      "llm_calls_total",
		Help:      "Total number of model provider calls, by operation and outcome.",
	}, []string{"operation", "status"})
	contextUpdates := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kaix",
		Subsystem: "contextstore",
		Name:      "updates_total",
		Help:      "Total number of ProjectSummary refreshes.",
	})
	taskDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kaix",
		Subsystem: "coordinator",
		Name:      "task_duration_seconds",
		Help:      "Wall-clock duration of the refine-execute-analyze cycle per task.",
		Buckets:   prometheus.DefBuckets,
	})
	promptQueueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kaix",
		Subsystem: "coordinator",
		Name:      "prompt_queue_depth",
		Help:      "Current number of queued user prompts awaiting processing.",
	})
	readyTaskQueueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kaix",
		Subsystem: "coordinator",
		Name:      "ready_task_queue_depth",
		Help:      "Current number of tasks whose dependencies are satisfied.",
	})
	executionState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "kaix",
		Subsystem: "coordinator",
		Name:      "execution_state",
		Help:      "1 for the coordinator's current execution state, 0 otherwise.",
	}, []string{"state"})

	collectors := []prometheus.Collector{
		tasksProcessed, plansGenerated, planningFailures, userInterruptions, decompositions,
		llmCalls, contextUpdates, taskDuration, promptQueueDepth,
		readyTaskQueueDepth, executionState,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		startedAt:           time.Now(),
		tasksProcessed:      tasksProcessed,
		plansGenerated:      plansGenerated,
		planningFailures:    planningFailures,
		userInterruptions:   userInterruptions,
		decompositions:      decompositions,
		llmCalls:            llmCalls,
		contextUpdates:      contextUpdates,
		taskDuration:        taskDuration,
		promptQueueDepth:    promptQueueDepth,
		readyTaskQueueDepth: readyTaskQueueDepth,
		executionState:      executionState,
	}
}

func (m *Metrics) TaskCompleted(d time.Duration) {
	if m == nil {
		return
	}
	m.tasksProcessed.Inc()
	m.taskDuration.Observe(d.Seconds())
}

func (m *Metrics) PlanGenerated() {
	if m == nil {
		return
	}
	m.plansGenerated.Inc()
}

func (m *Metrics) PlanGenerationFailed() {
	if m == nil {
		return
	}
	m.planningFailures.Inc()
}

func (m *Metrics) UserInterruption() {
	if m == nil {
		return
	}
	m.userInterruptions.Inc()
}

func (m *Metrics) Decomposition() {
	if m == nil {
		return
	}
	m.decompositions.Inc()
}

func (m *Metrics) LLMCall(operation string, status string) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) ContextUpdate() {
	if m == nil {
		return
	}
	m.contextUpdates.Inc()
}

func (m *Metrics) SetPromptQueueDepth(n int) {
	if m == nil {
		return
	}
	m.promptQueueDepth.Set(float64(n))
}

func (m *Metrics) SetReadyTaskQueueDepth(n int) {
	if m == nil {
		return
	}
	m.readyTaskQueueDepth.Set(float64(n))
}

// SetExecutionState zeroes every other known state and sets state to 1, so
// a Prometheus query for execution_state == 1 names the current state.
func (m *Metrics) SetExecutionState(state string, allStates []string) {
	if m == nil {
		return
	}
	for _, s := range allStates {
		if s == state {
			m.executionState.WithLabelValues(s).Set(1)
		} else {
			m.executionState.WithLabelValues(s).Set(0)
		}
	}
}

// Uptime reports the duration since the metrics collector was constructed.
// Status snapshots do not use it; the coordinator computes UptimeSeconds
// from its own start time.
func (m *Metrics) Uptime() time.Duration {
	if m == nil {
		return 0
	}
	return time.Since(m.startedAt)
}
