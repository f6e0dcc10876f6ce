// Package plan implements the Plan/Task data model, the dependency DAG over
// task identifiers, the task lifecycle state machine, and adaptive
// decomposition of failed tasks. The Coordinator is the sole mutator of
// every value in this package; everything exported here that looks mutable
// is meant to be driven from exactly one goroutine (see
// internal/coordinator), matching the single-writer discipline of
// SPEC_FULL.md §4.1.
package plan

import "time"

// Status is a Plan's lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// TaskKind is the primitive operation a Task asks the executor to perform.
type TaskKind string

const (
	KindReadFile        TaskKind = "read-file"
	KindWriteFile       TaskKind = "write-file"
	KindCreateDirectory TaskKind = "create-directory"
	KindDeletePath      TaskKind = "delete-path"
	KindListDirectory   TaskKind = "list-directory"
	KindExecuteCommand  TaskKind = "execute-command"
	KindAnalyzeCode     TaskKind = "analyze-code"
	KindGenerateContent TaskKind = "generate-content"
)

// validTaskKinds is consulted at plan-admission time; any kind outside this
// set causes the whole plan to be rejected per SPEC_FULL/spec.md §4.2.
var validTaskKinds = map[TaskKind]bool{
	KindReadFile:        true,
	KindWriteFile:       true,
	KindCreateDirectory: true,
	KindDeletePath:      true,
	KindListDirectory:   true,
	KindExecuteCommand:  true,
	KindAnalyzeCode:     true,
	KindGenerateContent: true,
}

// ValidTaskKind reports whether kind is one of the eight known task kinds.
func ValidTaskKind(kind TaskKind) bool { return validTaskKinds[kind] }

// TaskState is a Task's lifecycle state.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskReady     TaskState = "ready"
	TaskRefining  TaskState = "refining"
	TaskExecuting TaskState = "executing"
	TaskAnalyzing TaskState = "analyzing"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskSkipped   TaskState = "skipped"
)

// FailureCategory tags why a Task ended in TaskFailed. Matches the
// coordinator-level failure taxonomy in spec.md §4.1/§7.
type FailureCategory string

const (
	FailureNone              FailureCategory = ""
	FailureRefinementFailed  FailureCategory = "refinement-failed"
	FailureExecutorError     FailureCategory = "executor-error"
	FailureTimeout           FailureCategory = "timeout"
	FailureAnalysisFailed    FailureCategory = "analysis-failed"
	FailureDependencyFailed  FailureCategory = "dependency-failed"
	FailureCancelled         FailureCategory = "cancelled"
	FailureReplaced          FailureCategory = "replaced"
	FailureRetryExhausted    FailureCategory = "retry-exhausted"
	FailureSandboxViolation  FailureCategory = "not-in-sandbox"
	FailureScratchpadFull    FailureCategory = "scratchpad-full"

	// FailurePlanningFailed tags a Plan (not a Task) rejected after
	// exhausting its validation/generation retry budget (spec.md §4.2:
	// "a rejected plan after N attempts transitions the user request to
	// failed with category planning-failed").
	FailurePlanningFailed FailureCategory = "planning-failed"
)

// PromptPriority orders UserPrompt handling; lower numeric value wins ties
// in the ready-task tie-break rule (spec.md §4.1).
type PromptPriority int

const (
	PriorityEmergency PromptPriority = 0
	PriorityInterrupt PromptPriority = 1
	PriorityNormal    PromptPriority = 2
)

func (p PromptPriority) String() string {
	switch p {
	case PriorityEmergency:
		return "emergency"
	case PriorityInterrupt:
		return "interrupt"
	case PriorityNormal:
		return "normal"
	default:
		return "normal"
	}
}

// ParsePromptPriority parses the wire-level priority name from the
// presenter into a PromptPriority, defaulting to normal.
func ParsePromptPriority(s string) PromptPriority {
	switch s {
	case "emergency":
		return PriorityEmergency
	case "interrupt":
		return PriorityInterrupt
	default:
		return PriorityNormal
	}
}

// UserPrompt is one admission to the coordinator's prompt queue.
type UserPrompt struct {
	ID              string
	Content         string
	SubmittedAt     time.Time
	Priority        PromptPriority
	RequiresNewPlan bool
	ContextHint     string
}

// Verdict is the machine-readable outcome of an Analysis.
type Verdict string

const (
	VerdictOK              Verdict = "ok"
	VerdictPartial         Verdict = "partial"
	VerdictNeedsRetry      Verdict = "needs-retry"
	VerdictNeedsAlternative Verdict = "needs-alternative"
	VerdictAbortPlan       Verdict = "abort-plan"
)

// Analysis is the model provider's interpretation of a TaskResult.
type Analysis struct {
	Summary       string
	Verdict       Verdict
	NewFacts      map[string]any
	FollowUpTask  string
	AllowSkip     bool // analysis may explicitly permit skip on decomposition failure
}

// TaskResult is the structured outcome of one Task's execution phase.
type TaskResult struct {
	Success   bool
	Output    string // captured stdout / primary textual result, bounded by the executor
	Artifacts map[string]any
	Duration  time.Duration
	ErrorCategory string
	ErrorMessage  string
}

// Task is a single primitive operation inside a Plan.
type Task struct {
	ID           string
	PlanID       string
	Kind         TaskKind
	Parameters   map[string]any
	Dependencies []string // task IDs, same plan

	State   TaskState
	Retries int

	RefinedInstruction string
	Result             *TaskResult
	Analysis           *Analysis
	FailureCategory    FailureCategory

	// OriginPriority and EnqueuedAt feed the ready-task tie-break rule:
	// lower OriginPriority wins, then fewer blocked dependents, then
	// earlier EnqueuedAt.
	OriginPriority PromptPriority
	EnqueuedAt     time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep-enough copy for read-only snapshot exposure: slices
// and maps are copied so a caller cannot mutate coordinator-owned state
// through the snapshot.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Dependencies = append([]string(nil), t.Dependencies...)
	if t.Parameters != nil {
		clone.Parameters = make(map[string]any, len(t.Parameters))
		for k, v := range t.Parameters {
			clone.Parameters[k] = v
		}
	}
	if t.Result != nil {
		result := *t.Result
		if t.Result.Artifacts != nil {
			result.Artifacts = make(map[string]any, len(t.Result.Artifacts))
			for k, v := range t.Result.Artifacts {
				result.Artifacts[k] = v
			}
		}
		clone.Result = &result
	}
	if t.Analysis != nil {
		analysis := *t.Analysis
		if t.Analysis.NewFacts != nil {
			analysis.NewFacts = make(map[string]any, len(t.Analysis.NewFacts))
			for k, v := range t.Analysis.NewFacts {
				analysis.NewFacts[k] = v
			}
		}
		clone.Analysis = &analysis
	}
	return &clone
}

// Plan is a DAG of Tasks produced by the model provider to satisfy a
// UserPrompt.
type Plan struct {
	ID          string
	Description string
	Status      Status
	// FailureCategory tags why Status is StatusFailed, when it is; it is
	// FailureNone otherwise. Distinct from any Task's own FailureCategory:
	// a plan can fail before a single task is ever admitted (see
	// FailurePlanningFailed).
	FailureCategory FailureCategory
	CreatedAt       time.Time
	UpdatedAt       time.Time

	tasks map[string]*Task
	dag   *DAG
	order []string // admission order, for deterministic iteration
}

// NewPlan constructs an empty draft plan. Tasks are added with AddTask.
func NewPlan(id, description string) *Plan {
	return &Plan{
		ID:          id,
		Description: description,
		Status:      StatusDraft,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		tasks:       make(map[string]*Task),
		dag:         NewDAG(),
	}
}

// Task looks up a task by ID within this plan.
func (p *Plan) Task(id string) (*Task, bool) {
	t, ok := p.tasks[id]
	return t, ok
}

// Tasks returns every task in admission order.
func (p *Plan) Tasks() []*Task {
	out := make([]*Task, 0, len(p.order))
	for _, id := range p.order {
		if t, ok := p.tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// DAG exposes the plan's dependency graph for readiness queries.
func (p *Plan) DAG() *DAG { return p.dag }

// Clone returns a read-only snapshot of the plan: independent Task copies,
// same DAG shape. Intended for status-snapshot exposure to observers.
func (p *Plan) Clone() *Plan {
	clone := &Plan{
		ID:              p.ID,
		Description:     p.Description,
		Status:          p.Status,
		FailureCategory: p.FailureCategory,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
		tasks:           make(map[string]*Task, len(p.tasks)),
		dag:             p.dag.Clone(),
		order:           append([]string(nil), p.order...),
	}
	for id, t := range p.tasks {
		clone.tasks[id] = t.Clone()
	}
	return clone
}
