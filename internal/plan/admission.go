package plan

import "fmt"

// AddTask admits a new task into the plan in TaskPending, validating its
// kind and wiring it into the dependency DAG. Per spec.md §4.2, an unknown
// kind or a dangling/cyclic dependency causes rejection of the whole add —
// the caller (plan construction or adaptive decomposition) is expected to
// reject the enclosing plan/subplan on error, not admit a partial result.
func (p *Plan) AddTask(t *Task) error {
	if !ValidTaskKind(t.Kind) {
		return fmt.Errorf("plan: task %q has unknown kind %q", t.ID, t.Kind)
	}
	if _, exists := p.tasks[t.ID]; exists {
		return fmt.Errorf("plan: task %q already admitted", t.ID)
	}
	if err := p.dag.AddNode(t.ID, t.Dependencies); err != nil {
		return err
	}

	t.PlanID = p.ID
	t.State = TaskPending
	now := nowFn()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = now
	}

	p.tasks[t.ID] = t
	p.order = append(p.order, t.ID)
	p.UpdatedAt = now
	return nil
}

// Start transitions a draft plan to running. Per spec.md §3, at most one
// plan may be running per coordinator instance; enforcing that is the
// coordinator's job (it owns the set of plans), not the plan's.
func (p *Plan) Start() error {
	if p.Status != StatusDraft {
		return fmt.Errorf("plan: cannot start plan %q from status %q", p.ID, p.Status)
	}
	p.Status = StatusRunning
	p.UpdatedAt = nowFn()
	return nil
}

// completedSet returns the IDs of tasks in TaskCompleted, the only state
// that satisfies a dependency per spec.md §3's invariant.
func (p *Plan) completedSet() map[string]bool {
	out := make(map[string]bool, len(p.tasks))
	for id, t := range p.tasks {
		if t.State == TaskCompleted {
			out[id] = true
		}
	}
	return out
}

// RecomputeReady scans pending tasks and promotes every one whose
// dependencies are all completed to TaskReady, returning the promoted IDs.
// Call this after any task reaches TaskCompleted, TaskSkipped, or TaskFailed
// so dependents are re-evaluated (property 2 in spec.md §8).
func (p *Plan) RecomputeReady() []string {
	completed := p.completedSet()
	var promoted []string
	for _, id := range p.order {
		t := p.tasks[id]
		if t.State != TaskPending {
			continue
		}
		if p.dag.Ready(id, completed) {
			if err := t.Transition(TaskReady); err == nil {
				promoted = append(promoted, id)
			}
		}
	}
	return promoted
}

// PropagateDependencyFailures walks dependents of a newly-failed,
// non-recoverable task and marks every still-pending or still-ready
// dependent TaskSkipped with FailureDependencyFailed, transitively. This
// realizes the "dependency-failed" entry in the coordinator-level failure
// taxonomy (spec.md §4.1) and the sandbox-violation scenario's "dependent
// tasks transition to skipped via dependency-failed propagation" (spec.md
// §8 scenario 5).
func (p *Plan) PropagateDependencyFailures(failedTaskID string) []string {
	var skipped []string
	queue := p.dag.Dependents(failedTaskID)
	seen := make(map[string]bool)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true

		t, ok := p.tasks[id]
		if !ok || terminalStates[t.State] {
			continue
		}
		t.State = TaskSkipped
		t.FailureCategory = FailureDependencyFailed
		t.UpdatedAt = nowFn()
		skipped = append(skipped, id)
		queue = append(queue, p.dag.Dependents(id)...)
	}
	return skipped
}

// ReadyTaskIDs returns the IDs of every TaskReady task, ordered by the
// ready-task tie-break rule from spec.md §4.1: (1) lower OriginPriority,
// (2) fewer still-blocked dependents, (3) earlier EnqueuedAt. This is the
// Go translation of original_source/src/execution/queue.rs's
// pop_ready_task, generalized from a flat priority scan to a full DAG by
// consulting p.dag for each candidate's blocked-dependent count.
func (p *Plan) ReadyTaskIDs() []string {
	var ready []string
	for _, id := range p.order {
		if p.tasks[id].State == TaskReady {
			ready = append(ready, id)
		}
	}
	completed := p.completedSet()
	blockedDependents := func(id string) int {
		n := 0
		for _, dep := range p.dag.Dependents(id) {
			if dt, ok := p.tasks[dep]; ok && !terminalStates[dt.State] && !completed[dep] {
				n++
			}
		}
		return n
	}
	for i := 1; i < len(ready); i++ {
		key := ready[i]
		kt := p.tasks[key]
		j := i - 1
		for j >= 0 {
			ot := p.tasks[ready[j]]
			if !lessTieBreak(kt, ot, blockedDependents) {
				break
			}
			ready[j+1] = ready[j]
			j--
		}
		ready[j+1] = key
	}
	return ready
}

// lessTieBreak reports whether a should sort before b under the ready-task
// tie-break rule.
func lessTieBreak(a, b *Task, blockedDependents func(string) int) bool {
	if a.OriginPriority != b.OriginPriority {
		return a.OriginPriority < b.OriginPriority
	}
	ad, bd := blockedDependents(a.ID), blockedDependents(b.ID)
	if ad != bd {
		return ad < bd
	}
	return a.EnqueuedAt.Before(b.EnqueuedAt)
}

// IsComplete reports whether every task is completed or skipped, per
// spec.md §4.1's plan-completion check.
func (p *Plan) IsComplete() bool {
	for _, t := range p.tasks {
		if t.State != TaskCompleted && t.State != TaskSkipped {
			return false
		}
	}
	return true
}

// HasNonRecoverableFailure reports whether any task is TaskFailed with a
// category other than FailureReplaced (a task failed-and-replaced by
// adaptive decomposition is not itself plan-failing).
func (p *Plan) HasNonRecoverableFailure() bool {
	for _, t := range p.tasks {
		if t.State == TaskFailed && t.FailureCategory != FailureReplaced {
			return true
		}
	}
	return false
}

// Cancel moves the plan to cancelled and every non-terminal task to
// skipped with FailureCancelled, per spec.md §4.2 ("plan-level cancel causes every non-terminal task to
// transition to skipped"). Idempotent: cancelling an already-cancelled
// plan is a no-op (spec.md §8 round-trip law).
func (p *Plan) Cancel() {
	if p.Status == StatusCancelled {
		return
	}
	for _, t := range p.tasks {
		if !terminalStates[t.State] {
			t.State = TaskSkipped
			t.FailureCategory = FailureCancelled
			t.UpdatedAt = nowFn()
		}
	}
	p.Status = StatusCancelled
	p.UpdatedAt = nowFn()
}
