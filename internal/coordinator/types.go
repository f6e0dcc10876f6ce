// Package coordinator implements the Agentic Planning Coordinator: the
// single-writer cooperative scheduler that drains the prompt and control
// queues, drives each ready task through the refine->execute->analyze
// cycle, and emits monotonically-numbered status snapshots to its
// embedder. Every exported mutable type in internal/plan and
// internal/contextstore is intended to be touched from exactly the one
// goroutine this package runs.
package coordinator

import (
	"time"

	"github.com/ReOpsIL/KAIX/internal/plan"
)

// ExecutionState is the coordinator's single logical state.
type ExecutionState string

const (
	StateIdle             ExecutionState = "idle"
	StatePlanning          ExecutionState = "planning"
	StateContextAssembly   ExecutionState = "context-assembly"
	StateTaskRefinement    ExecutionState = "task-refinement"
	StateTaskExecution     ExecutionState = "task-execution"
	StateResultAnalysis    ExecutionState = "result-analysis"
	StateStateUpdate       ExecutionState = "state-update"
	StatePaused            ExecutionState = "paused"
	StateCancelled         ExecutionState = "cancelled"
	StateShutdown          ExecutionState = "shutdown"
)

// allStates feeds the one-hot execution-state gauge vector; keep in sync
// with the constants above.
var allStates = []string{
	string(StateIdle), string(StatePlanning), string(StateContextAssembly),
	string(StateTaskRefinement), string(StateTaskExecution), string(StateResultAnalysis),
	string(StateStateUpdate), string(StatePaused), string(StateCancelled), string(StateShutdown),
}

// Config tunes the coordinator's loop cadence and retry/size ceilings.
// Defaults are grounded on original_source/src/planning/manager.rs's
// CoordinatorConfig, retargeted from milliseconds to time.Duration.
type Config struct {
	MaxPlanSize                int
	MaxUserPromptQueue         int
	MaxControlQueue            int
	TaskTimeout                time.Duration
	ProviderTimeout            time.Duration
	RetryCeiling               int // needs-retry ceiling before retry-exhausted
	RefinementRetryCeiling     int // malformed-refinement retry ceiling
	PlanningRetryCeiling       int // plan/subplan validation retry ceiling
	CycleInterval              time.Duration
	HealthCheckInterval        time.Duration
}

// DefaultConfig mirrors CoordinatorConfig::default()'s values, converted
// to Go durations.
func DefaultConfig() Config {
	return Config{
		MaxPlanSize:            100,
		MaxUserPromptQueue:     50,
		MaxControlQueue:        50,
		TaskTimeout:            300 * time.Second,
		ProviderTimeout:        30 * time.Second,
		RetryCeiling:           3,
		RefinementRetryCeiling: 2,
		PlanningRetryCeiling:   2,
		CycleInterval:          100 * time.Millisecond,
		HealthCheckInterval:    30 * time.Second,
	}
}

// ControlKind enumerates the control queue's message types (spec.md §5's
// "start-plan, modify-plan, cancel-plan, shutdown, get-status,
// decompose-task").
type ControlKind string

const (
	ControlStartPlan     ControlKind = "start-plan"
	ControlModifyPlan    ControlKind = "modify-plan"
	ControlCancelPlan    ControlKind = "cancel-plan"
	ControlPause         ControlKind = "pause"
	ControlResume        ControlKind = "resume"
	ControlShutdown      ControlKind = "shutdown"
	ControlGetStatus     ControlKind = "get-status"
	ControlDecomposeTask ControlKind = "decompose-task"
)

// ControlMessage is one admission to the control queue. Reply, when
// non-nil, receives the operation's immediate result exactly once.
type ControlMessage struct {
	Kind   ControlKind
	Plan   *plan.Plan
	PlanID string
	TaskID string
	Reply  chan error
}

// PlanStatusInfo is the read-only plan view carried in a StatusSnapshot.
type PlanStatusInfo struct {
	ID              string
	Description     string
	Status          plan.Status
	FailureCategory plan.FailureCategory
	TotalTasks      int
	CompletedTasks  int
	FailedTasks     int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TaskStatusInfo is the read-only current-task view carried in a
// StatusSnapshot.
type TaskStatusInfo struct {
	ID      string
	Kind    plan.TaskKind
	State   plan.TaskState
	Retries int
}

// PerformanceMetrics is the status-snapshot-visible counters mirror of
// original_source/src/planning/manager.rs's PerformanceMetrics, backed by
// internal/observability.Metrics for the Prometheus-facing copy.
type PerformanceMetrics struct {
	TasksProcessed          uint64
	PlansGenerated          uint64
	UserInterruptions       uint64
	DecompositionsPerformed uint64
	LLMCallsMade            uint64
	ContextUpdates          uint64
	UptimeSeconds           uint64
}

// StatusSnapshot is the immutable view spec.md §4.1's status-snapshot
// operation returns. SeqNum is strictly increasing across the
// coordinator's lifetime (spec.md §8 property 6).
type StatusSnapshot struct {
	SeqNum            uint64
	GeneratedAt       time.Time
	ExecutionState    ExecutionState
	CurrentPlan       *PlanStatusInfo
	CurrentTask       *TaskStatusInfo
	PromptQueueDepth  int
	ControlQueueDepth int
	Metrics           PerformanceMetrics
}
