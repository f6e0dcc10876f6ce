package plan

import "fmt"

// ReplaceWithSubplan implements adaptive decomposition (spec.md §4.2): the
// failing task is marked failed with category "replaced", the ordered
// replacement tasks are admitted into the same plan (so they go through the
// same kind/cycle validation as top-level plan admission), and every
// dependent of the original task is reparented onto the last replacement
// task — preserving the invariant that "the set of not-yet-terminal
// dependents of any completed-or-skipped task is unchanged in union
// membership".
//
// replacements must already carry their intended Dependencies: the first
// replacement task conventionally depends on the same tasks the original
// depended on (so it can't start before the context the original needed),
// and any internal chain among the replacements is the caller's
// responsibility to set before calling this. ReplaceWithSubplan only wires
// the *dependents* side of the graph.
func (p *Plan) ReplaceWithSubplan(failedTaskID string, replacements []*Task) error {
	failedTask, ok := p.tasks[failedTaskID]
	if !ok {
		return fmt.Errorf("plan: unknown task %q for decomposition", failedTaskID)
	}
	if len(replacements) == 0 {
		return fmt.Errorf("plan: replacement subplan for task %q is empty", failedTaskID)
	}

	dependents := p.dag.Dependents(failedTaskID)
	for _, depID := range dependents {
		if dt, ok := p.tasks[depID]; ok && dt.PlanID != p.ID {
			return fmt.Errorf("plan: dependent %q belongs to a different plan", depID)
		}
	}

	admitted := make([]string, 0, len(replacements))
	for _, rt := range replacements {
		if err := p.AddTask(rt); err != nil {
			for _, id := range admitted {
				p.dag.removeNode(id)
				delete(p.tasks, id)
				p.order = removeString(p.order, id)
			}
			return fmt.Errorf("plan: replacement subplan rejected: %w", err)
		}
		admitted = append(admitted, rt.ID)
	}

	if err := failedTask.MarkFailed(FailureReplaced); err != nil {
		return err
	}

	last := admitted[len(admitted)-1]
	p.dag.Reparent(failedTaskID, []string{last})
	p.UpdatedAt = nowFn()
	p.RecomputeReady()
	return nil
}

// SkipWithReparenting implements the decomposition-validation-failure path
// that the provider's analysis explicitly permits: the task is marked
// skipped, and every dependent is reparented directly onto the task's own
// dependencies, so the dependency chain closes over the gap the skipped
// task leaves (spec.md §4.2).
func (p *Plan) SkipWithReparenting(taskID string) error {
	t, ok := p.tasks[taskID]
	if !ok {
		return fmt.Errorf("plan: unknown task %q", taskID)
	}
	deps := p.dag.Dependencies(taskID)
	p.dag.Reparent(taskID, deps)

	t.State = TaskSkipped
	t.UpdatedAt = nowFn()
	p.UpdatedAt = nowFn()
	p.RecomputeReady()
	return nil
}

// AbortToFailed implements the abort-plan verdict: the plan transitions to
// failed and every remaining non-terminal task is skipped.
func (p *Plan) AbortToFailed() {
	for _, t := range p.tasks {
		if !terminalStates[t.State] {
			t.State = TaskSkipped
			t.UpdatedAt = nowFn()
		}
	}
	p.Status = StatusFailed
	p.UpdatedAt = nowFn()
}
