package plan

import (
	"fmt"
	"time"
)

func defaultNow() time.Time { return time.Now() }

// legalNext enumerates the directed edges of the task lifecycle state
// machine from spec.md §8 property 1:
//
//	pending -> ready -> refining -> executing -> analyzing -> completed
//	pending -> ready -> refining -> executing -> analyzing -> failed
//	pending -> ready -> refining -> failed
//	pending -> skipped
//	analyzing -> ready            (needs-retry, counter below ceiling)
//	any       -> cancelled        (plan cancel)
var legalNext = map[TaskState]map[TaskState]bool{
	TaskPending:   {TaskReady: true, TaskSkipped: true},
	TaskReady:     {TaskRefining: true},
	TaskRefining:  {TaskExecuting: true, TaskFailed: true},
	TaskExecuting: {TaskAnalyzing: true, TaskFailed: true},
	TaskAnalyzing: {TaskCompleted: true, TaskFailed: true, TaskReady: true},
}

// ErrIllegalTransition is returned by Task.Transition when the requested
// move isn't one of the state machine's legal edges.
type ErrIllegalTransition struct {
	TaskID string
	From   TaskState
	To     TaskState
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("plan: task %q cannot transition %s -> %s", e.TaskID, e.From, e.To)
}

// Transition moves the task to a new state, enforcing the legal-edge table
// above. Cancellation is handled separately by Cancel since it is legal
// from any non-terminal state.
func (t *Task) Transition(to TaskState) error {
	if t.State == to {
		return nil
	}
	edges, ok := legalNext[t.State]
	if !ok || !edges[to] {
		return &ErrIllegalTransition{TaskID: t.ID, From: t.State, To: to}
	}
	t.State = to
	t.UpdatedAt = nowFn()
	return nil
}

// terminalStates are states from which Cancel is a no-op rather than a
// state change, matching spec.md §8's "cancelling an already-cancelled
// plan is a no-op" idempotence law extended to the task level.
var terminalStates = map[TaskState]bool{
	TaskCompleted: true,
	TaskFailed:    true,
	TaskSkipped:   true,
}

// Cancel moves the task to a cancelled-equivalent terminal state. Per
// spec.md, "any state -> cancelled" is legal; KAIX represents a cancelled
// task as TaskFailed with FailureCancelled so the lifecycle enum itself
// doesn't need a ninth state disjoint from "failed" — the distinguishing
// information callers need (why did this not complete) lives in
// FailureCategory, which every status snapshot already exposes.
func (t *Task) Cancel() {
	if terminalStates[t.State] {
		return
	}
	t.State = TaskFailed
	t.FailureCategory = FailureCancelled
	t.UpdatedAt = nowFn()
}

// MarkFailed transitions the task to TaskFailed with the given category,
// validating the edge unless the task is already terminal (idempotent).
func (t *Task) MarkFailed(category FailureCategory) error {
	if terminalStates[t.State] {
		return nil
	}
	if err := t.Transition(TaskFailed); err != nil {
		return err
	}
	t.FailureCategory = category
	return nil
}

// MarkSkipped transitions a still-pending task to TaskSkipped, used when a
// dependency fails and propagates (FailureDependencyFailed) or when
// adaptive decomposition's provider explicitly permits skip.
func (t *Task) MarkSkipped() error {
	if terminalStates[t.State] {
		return nil
	}
	return t.Transition(TaskSkipped)
}

// Retry increments the task's retry counter and, if it is still within
// ceiling, returns the task to TaskReady for another refine-execute-analyze
// cycle. It reports whether the task was retried; when false, the caller
// must escalate — either to adaptive decomposition (needs-alternative) or,
// if no alternative is accepted either, to FailureRetryExhausted (spec.md
// §8 property 8: at most retry_ceiling+1 analyze cycles to reach failed).
func (t *Task) Retry(ceiling int) (retried bool) {
	if terminalStates[t.State] {
		return false
	}
	t.Retries++
	if t.Retries <= ceiling {
		_ = t.Transition(TaskReady)
		return true
	}
	return false
}

// nowFn is indirected so tests can freeze time; production code always
// uses the real clock.
var nowFn = defaultNow
