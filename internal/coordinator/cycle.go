package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/ReOpsIL/KAIX/internal/async"
	"github.com/ReOpsIL/KAIX/internal/contextstore"
	"github.com/ReOpsIL/KAIX/internal/ids"
	"github.com/ReOpsIL/KAIX/internal/plan"
	"github.com/ReOpsIL/KAIX/internal/provider"
)

// handlePrompt admits a UserPrompt: emergency priority cancels the active
// plan and interrupt priority pauses it onto the paused-plan stack (resumed
// once the replacement finishes) before generating a replacement; normal
// priority generates a new plan that starts at once if no plan is active
// and otherwise waits as a draft until no plan is active or paused.
// Grounded on
// original_source/src/planning/manager.rs's handle_user_prompt.
func (c *Coordinator) handlePrompt(ctx context.Context, p plan.UserPrompt) {
	c.metrics.UserInterruption()
	c.bumpPerf(func(m *PerformanceMetrics) { m.UserInterruptions++ })

	switch p.Priority {
	case plan.PriorityEmergency:
		if c.activePlanID != "" {
			if active, ok := c.plans[c.activePlanID]; ok {
				active.Cancel()
				c.store.DiscardScratchpad(active.ID)
				c.logger.Warn("emergency prompt %s cancelled active plan %s", p.ID, active.ID)
			}
			c.activePlanID = ""
		}
	case plan.PriorityInterrupt:
		if c.activePlanID != "" {
			if active, ok := c.plans[c.activePlanID]; ok {
				active.Status = plan.StatusPaused
				c.pausedPlanStack = append(c.pausedPlanStack, active.ID)
				c.logger.Info("interrupt prompt %s paused active plan %s", p.ID, active.ID)
			}
			c.activePlanID = ""
		}
	case plan.PriorityNormal:
		// Falls in behind whatever is active; the plan below only starts
		// immediately if nothing else is running, otherwise
		// resumePausedIfAny starts it once the active plan ends.
	}

	if !p.RequiresNewPlan {
		return
	}

	newPlan, err := c.generatePlan(ctx, p, nil, nil)
	if err != nil {
		if pf, ok := err.(*PlanningFailedError); ok {
			c.recordPlanningFailure(p, pf)
		} else {
			c.logger.Error("plan generation failed for prompt %s: %v", p.ID, err)
		}
		c.resumePausedIfAny()
		c.emitSnapshot()
		return
	}

	c.plans[newPlan.ID] = newPlan
	if c.activePlanID == "" {
		if err := c.startPlan(newPlan); err != nil {
			c.logger.Error("starting plan %s: %v", newPlan.ID, err)
		}
	}
	c.emitSnapshot()
}

func (c *Coordinator) generatePlan(ctx context.Context, p plan.UserPrompt, priorPlan *plan.Plan, annotations []provider.PlanAnnotation) (*plan.Plan, error) {
	c.setState(StatePlanning)
	defer c.setState(StateIdle)

	genCtx := ids.WithCorrelationID(ctx, p.ID)
	genCtx, span := c.tracer.StartSpan(genCtx, "coordinator.generate_plan")
	defer span.End()
	genCtx, cancel := provider.DeadlineFor(genCtx, c.cfg.ProviderTimeout)
	defer cancel()

	req := provider.GeneratePlanRequest{
		UserPrompt:       p.Content,
		ProjectOverview:  c.store.Overview(),
		PriorPlan:        priorPlan,
		PriorAnnotations: annotations,
	}

	// Both the transport call and the resulting plan's validation are
	// retried within the same bounded budget: spec.md §4.2 requires unknown
	// task kinds, dangling dependencies, and cycles to be "rejected and
	// re-requested (bounded retries)", not just transport failures. Only a
	// non-retryable transport error (per the provider's own taxonomy) exits
	// early with its original category intact; everything else that
	// survives the loop comes back as PlanningFailedError.
	var lastErr error
	for attempt := 0; attempt <= c.cfg.PlanningRetryCeiling; attempt++ {
		raw, err := c.provider.GeneratePlan(genCtx, req)
		c.metrics.LLMCall("generate-plan", statusOf(err))
		c.bumpPerf(func(m *PerformanceMetrics) { m.LLMCallsMade++ })
		if err != nil {
			if !provider.Retryable(provider.CategoryOf(err)) {
				return nil, err
			}
			lastErr = err
			continue
		}

		newPlan := plan.NewPlan(ids.New(), raw.Description)
		if verr := c.buildAndValidatePlan(newPlan, raw.Tasks); verr != nil {
			c.logger.Warn("coordinator: rejecting generated plan (attempt %d/%d): %v", attempt+1, c.cfg.PlanningRetryCeiling+1, verr)
			lastErr = verr
			continue
		}

		c.metrics.PlanGenerated()
		c.bumpPerf(func(m *PerformanceMetrics) { m.PlansGenerated++ })
		return newPlan, nil
	}

	return nil, &PlanningFailedError{Attempts: c.cfg.PlanningRetryCeiling + 1, Cause: lastErr}
}

// buildAndValidatePlan admits raw into p and checks it against the bounds
// generatePlan enforces on every attempt: known task kinds, no dangling
// dependencies (both via materializeTasks), the configured size ceiling,
// and acyclicity.
func (c *Coordinator) buildAndValidatePlan(p *plan.Plan, raw []provider.RawTask) error {
	if err := c.materializeTasks(p, raw, nil); err != nil {
		return err
	}
	if len(p.Tasks()) > c.cfg.MaxPlanSize {
		return fmt.Errorf("coordinator: generated plan exceeds max size %d", c.cfg.MaxPlanSize)
	}
	if !p.DAG().Acyclic() {
		return fmt.Errorf("coordinator: generated plan contains a cycle")
	}
	return nil
}

// materializeTasks admits the provider's untrusted RawTask list into p,
// remapping raw IDs to freshly minted plan-wide-unique IDs (the provider's
// own IDs are only unique within its response, not across a plan that may
// already hold tasks from a prior generation). inheritDeps, when non-nil,
// is used as the Dependencies for any raw task that specifies none — this
// lets adaptive decomposition's replacement chain inherit the failing
// task's dependencies per ReplaceWithSubplan's contract.
func (c *Coordinator) materializeTasks(p *plan.Plan, raw []provider.RawTask, inheritDeps []string) error {
	idMap := make(map[string]string, len(raw))
	for _, rt := range raw {
		idMap[rt.ID] = ids.New()
	}
	for i, rt := range raw {
		kind := plan.TaskKind(rt.Kind)
		if !plan.ValidTaskKind(kind) {
			return fmt.Errorf("coordinator: provider returned unknown task kind %q", rt.Kind)
		}
		deps := make([]string, 0, len(rt.Dependencies))
		for _, d := range rt.Dependencies {
			mapped, ok := idMap[d]
			if !ok {
				return fmt.Errorf("coordinator: provider task %q depends on unknown id %q", rt.ID, d)
			}
			deps = append(deps, mapped)
		}
		if len(deps) == 0 && i == 0 && inheritDeps != nil {
			deps = append(deps, inheritDeps...)
		}
		t := &plan.Task{
			ID:             idMap[rt.ID],
			Kind:           kind,
			Parameters:     rt.Parameters,
			Dependencies:   deps,
			OriginPriority: plan.PriorityNormal,
			EnqueuedAt:     time.Now(),
		}
		if err := p.AddTask(t); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) startPlan(p *plan.Plan) error {
	if err := p.Start(); err != nil {
		return err
	}
	c.plans[p.ID] = p
	c.activePlanID = p.ID
	c.store.CreateScratchpad(p.ID)
	p.RecomputeReady()
	c.logger.Info("started plan %s (%d tasks)", p.ID, len(p.Tasks()))
	return nil
}

func (c *Coordinator) forceDecompose(ctx context.Context, taskID string) error {
	if c.activePlanID == "" {
		return ErrUnknownPlan
	}
	active := c.plans[c.activePlanID]
	t, ok := active.Task(taskID)
	if !ok {
		return ErrUnknownPlan
	}
	return c.decompose(ctx, active, t, "operator-requested decomposition")
}

// executeAgenticCycle picks the highest-priority ready task in the active
// plan, if any, and drives it through one refine->execute->analyze cycle.
// Grounded on original_source/src/planning/manager.rs's run loop body.
func (c *Coordinator) executeAgenticCycle(ctx context.Context) {
	if c.activePlanID == "" {
		return
	}
	active, ok := c.plans[c.activePlanID]
	if !ok {
		c.activePlanID = ""
		return
	}

	ready := active.ReadyTaskIDs()
	if len(ready) == 0 {
		if active.IsComplete() {
			c.completeActivePlan(active)
		} else if active.HasNonRecoverableFailure() {
			c.failActivePlan(active)
		}
		return
	}

	taskID := ready[0]
	t, _ := active.Task(taskID)
	c.currentTaskID = taskID
	defer func() { c.currentTaskID = "" }()

	c.runTaskCycle(ctx, active, t)

	if active.IsComplete() {
		c.completeActivePlan(active)
	} else if active.HasNonRecoverableFailure() {
		c.failActivePlan(active)
	}
	c.emitSnapshot()
}

func (c *Coordinator) completeActivePlan(p *plan.Plan) {
	p.Status = plan.StatusCompleted
	c.emitSnapshot() // capture the completed status while it's still active
	c.store.DiscardScratchpad(p.ID)
	c.logger.Info("plan %s completed", p.ID)
	c.activePlanID = ""
	c.resumePausedIfAny()
}

func (c *Coordinator) failActivePlan(p *plan.Plan) {
	p.AbortToFailed()
	c.emitSnapshot() // capture the failed status while it's still active
	c.store.DiscardScratchpad(p.ID)
	c.logger.Warn("plan %s failed", p.ID)
	c.activePlanID = ""
	c.resumePausedIfAny()
}

// recordPlanningFailure realizes spec.md §4.2's "a rejected plan after N
// attempts transitions the user request to failed with category
// planning-failed". No Plan object survives validation, so a stub plan
// carrying the prompt's own content is recorded straight into the failed
// state, the same way completeActivePlan/failActivePlan make a plan
// outcome visible through the status snapshot.
func (c *Coordinator) recordPlanningFailure(p plan.UserPrompt, pf *PlanningFailedError) {
	c.logger.Error("plan generation for prompt %s exhausted its retry budget: %v", p.ID, pf)
	failed := plan.NewPlan(ids.New(), p.Content)
	failed.Status = plan.StatusFailed
	failed.FailureCategory = plan.FailurePlanningFailed
	c.plans[failed.ID] = failed
	c.activePlanID = failed.ID
	c.emitSnapshot() // capture the failed status while it's still active
	c.activePlanID = ""
	c.metrics.PlanGenerationFailed()
}

func (c *Coordinator) resumePausedIfAny() {
	for len(c.pausedPlanStack) > 0 {
		n := len(c.pausedPlanStack) - 1
		id := c.pausedPlanStack[n]
		c.pausedPlanStack = c.pausedPlanStack[:n]
		p, ok := c.plans[id]
		if !ok || p.Status != plan.StatusPaused {
			continue
		}
		p.Status = plan.StatusRunning
		c.activePlanID = id
		c.logger.Info("resumed paused plan %s", id)
		return
	}
	// No paused plan to resume: start the oldest plan a normal-priority
	// prompt left waiting as a draft.
	if c.activePlanID != "" {
		return
	}
	var next *plan.Plan
	for _, p := range c.plans {
		if p.Status == plan.StatusDraft && (next == nil || p.CreatedAt.Before(next.CreatedAt)) {
			next = p
		}
	}
	if next != nil {
		if err := c.startPlan(next); err != nil {
			c.logger.Error("starting deferred plan %s: %v", next.ID, err)
		}
	}
}

// runTaskCycle drives t through refine, (preemptibly) execute, and
// analyze, leaving it in a terminal or ready-for-retry state. Only the
// execute sub-phase runs off the coordinator goroutine, and only to make
// it preemptible by an emergency prompt (spec.md §8 property 5); every
// other phase mutates plan/task/scratchpad state directly on this
// goroutine, preserving the single-writer discipline.
func (c *Coordinator) runTaskCycle(ctx context.Context, p *plan.Plan, t *plan.Task) {
	ctx = ids.WithPlanID(ctx, p.ID)
	ctx = ids.WithTaskID(ctx, t.ID)
	scratchpad, _ := c.store.Scratchpad(p.ID)

	if err := t.Transition(plan.TaskRefining); err != nil {
		c.logger.Error("task %s: %v", t.ID, err)
		return
	}
	c.setState(StateTaskRefinement)

	overview, summaries, err := c.store.ResolveForTask(ctx, c.taskFileRefs(t))
	if err != nil {
		c.logger.Warn("task %s: context resolution failed: %v", t.ID, err)
	}

	refined, err := c.refineWithRetry(ctx, t, overview, summaries, scratchpad)
	if err != nil {
		_ = t.MarkFailed(plan.FailureRefinementFailed)
		p.PropagateDependencyFailures(t.ID)
		p.RecomputeReady()
		return
	}
	t.RefinedInstruction = refined.Instruction
	if refined.Parameters != nil {
		t.Parameters = refined.Parameters
	}

	if err := t.Transition(plan.TaskExecuting); err != nil {
		c.logger.Error("task %s: %v", t.ID, err)
		return
	}
	c.setState(StateTaskExecution)

	result, preempted := c.runExecutorPhase(ctx, t)
	if preempted {
		// Emergency prompt preempted this task mid-flight; leave it
		// executing so the imminent plan cancel sweeps it to
		// skipped/cancelled rather than racing a partial result into
		// analysis.
		return
	}
	t.Result = result

	if err := t.Transition(plan.TaskAnalyzing); err != nil {
		c.logger.Error("task %s: %v", t.ID, err)
		return
	}
	c.setState(StateResultAnalysis)

	if result.Success {
		_ = scratchpad.RecordTaskResult(t.ID, true, result.Output)
		c.recordOutputs(scratchpad, t.ID, result)
	} else {
		_ = scratchpad.RecordTaskResult(t.ID, false, result.ErrorMessage)
	}

	analysis, err := c.analyzeWithRetry(ctx, t, overview, summaries)
	if err != nil {
		_ = t.MarkFailed(plan.FailureAnalysisFailed)
		p.PropagateDependencyFailures(t.ID)
		p.RecomputeReady()
		return
	}
	t.Analysis = &analysis
	c.setState(StateStateUpdate)
	c.applyVerdict(ctx, p, t, analysis, scratchpad)

	c.bumpPerf(func(m *PerformanceMetrics) { m.TasksProcessed++ })
	if t.Result != nil {
		c.metrics.TaskCompleted(t.Result.Duration)
	}
}

type executorOutcome struct {
	result *plan.TaskResult
	err    error
}

// runExecutorPhase runs the executor call in a background goroutine and
// races it against the emergency queue, so an emergency prompt can abort
// an in-flight task rather than waiting out the whole per-task cycle.
func (c *Coordinator) runExecutorPhase(ctx context.Context, t *plan.Task) (*plan.TaskResult, bool) {
	spanCtx, span := c.tracer.StartSpan(ctx, "coordinator.execute_task")
	defer span.End()
	execCtx, cancel := context.WithTimeout(spanCtx, c.cfg.TaskTimeout)
	defer cancel()

	done := make(chan executorOutcome, 1)
	async.Go(c.logger, "executor-phase", func() {
		result, err := c.executor.Execute(execCtx, t, t.RefinedInstruction, t.Parameters)
		done <- executorOutcome{result: result, err: err}
	})

	select {
	case out := <-done:
		if out.err != nil {
			return failureResult(out.err), false
		}
		return out.result, false
	case ep := <-c.emergencyQueue:
		cancel()
		<-done // wait for the goroutine to observe cancellation and exit
		c.mu.Lock()
		c.pendingEmergency = &ep
		c.mu.Unlock()
		return nil, true
	}
}

func failureResult(err error) *plan.TaskResult {
	return &plan.TaskResult{
		Success:       false,
		ErrorCategory: "executor-error",
		ErrorMessage:  err.Error(),
	}
}

func (c *Coordinator) refineWithRetry(ctx context.Context, t *plan.Task, overview string, summaries map[string]string, scratchpad *contextstore.PlanScratchpad) (provider.RefineResponse, error) {
	depFacts := c.dependencyFacts(scratchpad, t.Dependencies)

	req := provider.RefineRequest{
		TaskKind:        t.Kind,
		Parameters:      t.Parameters,
		ProjectOverview: overview,
		FileSummaries:   summaries,
		DependencyFacts: depFacts,
	}

	refCtx, cancel := provider.DeadlineFor(ctx, c.cfg.ProviderTimeout)
	defer cancel()

	var resp provider.RefineResponse
	var err error
	for attempt := 0; attempt <= c.cfg.RefinementRetryCeiling; attempt++ {
		resp, err = c.provider.RefineInstruction(refCtx, req)
		c.metrics.LLMCall("refine-instruction", statusOf(err))
		c.bumpPerf(func(m *PerformanceMetrics) { m.LLMCallsMade++ })
		if err == nil {
			return resp, nil
		}
		if !provider.Retryable(provider.CategoryOf(err)) {
			return resp, err
		}
	}
	return resp, fmt.Errorf("coordinator: refinement exhausted retries: %w", err)
}

func (c *Coordinator) analyzeWithRetry(ctx context.Context, t *plan.Task, overview string, summaries map[string]string) (plan.Analysis, error) {
	req := provider.AnalyzeRequest{
		Task:               t,
		RefinedInstruction: t.RefinedInstruction,
		Result:             t.Result,
		ProjectOverview:    overview,
		FileSummaries:      summaries,
	}

	anCtx, cancel := provider.DeadlineFor(ctx, c.cfg.ProviderTimeout)
	defer cancel()

	analysis, err := c.provider.AnalyzeResult(anCtx, req)
	c.metrics.LLMCall("analyze-result", statusOf(err))
	c.bumpPerf(func(m *PerformanceMetrics) { m.LLMCallsMade++ })
	return analysis, err
}

// recordOutputs publishes a successful task's primary output and any
// string-valued artifact into the plan scratchpad, under the task's own
// ID, so a dependent task's dependencyFacts can retrieve them (spec.md
// §4.1 "Context assembly (c) the plan scratchpad fragment containing
// results of the task's declared dependencies").
func (c *Coordinator) recordOutputs(scratchpad *contextstore.PlanScratchpad, taskID string, result *plan.TaskResult) {
	if scratchpad == nil || result == nil {
		return
	}
	if err := scratchpad.AppendOutput(taskID, "output", result.Output); err != nil {
		c.logger.Warn("task %s: recording output: %v", taskID, err)
	}
	for key, value := range result.Artifacts {
		s, ok := value.(string)
		if !ok {
			continue
		}
		if err := scratchpad.AppendOutput(taskID, key, s); err != nil {
			c.logger.Warn("task %s: recording artifact %s: %v", taskID, key, err)
		}
	}
}

// applyVerdict realizes spec.md §4.2's analysis-verdict table: ok/partial
// complete the task, needs-retry retries up to the ceiling then escalates
// to decomposition, needs-alternative decomposes immediately, abort-plan
// fails the whole plan.
func (c *Coordinator) applyVerdict(ctx context.Context, p *plan.Plan, t *plan.Task, analysis plan.Analysis, scratchpad *contextstore.PlanScratchpad) {
	switch analysis.Verdict {
	case plan.VerdictOK:
		c.mergeFacts(scratchpad, analysis.NewFacts)
		_ = t.Transition(plan.TaskCompleted)
		p.RecomputeReady()
	case plan.VerdictPartial:
		if scratchpad != nil {
			if err := scratchpad.RecordCaveat(t.ID, analysis.Summary); err != nil {
				c.logger.Warn("task %s: recording caveat: %v", t.ID, err)
			}
		}
		_ = t.Transition(plan.TaskCompleted)
		p.RecomputeReady()
	case plan.VerdictNeedsRetry:
		if t.Retry(c.cfg.RetryCeiling) {
			p.RecomputeReady()
			return
		}
		if err := c.decompose(ctx, p, t, analysis.Summary); err != nil {
			if analysis.AllowSkip {
				_ = p.SkipWithReparenting(t.ID)
			} else {
				_ = t.MarkFailed(plan.FailureRetryExhausted)
				p.PropagateDependencyFailures(t.ID)
			}
			p.RecomputeReady()
		}
	case plan.VerdictNeedsAlternative:
		if err := c.decompose(ctx, p, t, analysis.Summary); err != nil {
			if analysis.AllowSkip {
				_ = p.SkipWithReparenting(t.ID)
			} else {
				_ = t.MarkFailed(plan.FailureRetryExhausted)
				p.PropagateDependencyFailures(t.ID)
			}
			p.RecomputeReady()
		}
	case plan.VerdictAbortPlan:
		p.AbortToFailed()
	}
}

// decompose requests a replacement subplan for t from the provider and
// wires it into p via ReplaceWithSubplan. Grounded on
// original_source/src/planning/manager.rs's adaptive decomposition path,
// reusing generate-plan since the contract has no dedicated
// generate-subplan operation: the failing task's outcome is carried as a
// single PlanAnnotation.
func (c *Coordinator) decompose(ctx context.Context, p *plan.Plan, t *plan.Task, reason string) error {
	c.setState(StatePlanning)
	defer c.setState(StateIdle)

	annotation := provider.PlanAnnotation{
		TaskID:  t.ID,
		Outcome: "failed",
		Detail:  reason,
	}
	req := provider.GeneratePlanRequest{
		UserPrompt:       fmt.Sprintf("decompose failing task %s (%s): %s", t.ID, t.Kind, reason),
		ProjectOverview:  c.store.Overview(),
		PriorPlan:        p,
		PriorAnnotations: []provider.PlanAnnotation{annotation},
	}

	genCtx, cancel := provider.DeadlineFor(ctx, c.cfg.ProviderTimeout)
	defer cancel()

	raw, err := c.provider.GeneratePlan(genCtx, req)
	c.metrics.LLMCall("generate-plan-decompose", statusOf(err))
	c.bumpPerf(func(m *PerformanceMetrics) { m.LLMCallsMade++ })
	if err != nil {
		return err
	}
	if len(raw.Tasks) == 0 {
		return fmt.Errorf("coordinator: decomposition returned no replacement tasks")
	}

	staging := plan.NewPlan(ids.New(), "decomposition-staging")
	if err := c.materializeTasks(staging, raw.Tasks, t.Dependencies); err != nil {
		return err
	}
	replacements := staging.Tasks()

	if err := p.ReplaceWithSubplan(t.ID, replacements); err != nil {
		return err
	}

	c.metrics.Decomposition()
	c.bumpPerf(func(m *PerformanceMetrics) { m.DecompositionsPerformed++ })
	c.logger.Info("task %s replaced by %d-task subplan", t.ID, len(replacements))
	return nil
}

// taskFileRefs extracts the context-store-resolvable path references from
// a task's parameters, the way original_source's refine phase gathers
// "path"/"paths" before invoking the provider.
func (c *Coordinator) taskFileRefs(t *plan.Task) []string {
	var refs []string
	if path, ok := t.Parameters["path"].(string); ok && path != "" {
		refs = append(refs, path)
	}
	if paths, ok := t.Parameters["paths"].([]string); ok {
		refs = append(refs, paths...)
	}
	return refs
}

// mergeFacts writes an "ok" analysis's NewFacts into the plan scratchpad
// (spec.md §4.1: "ok -> ... merge any new facts into scratchpad").
func (c *Coordinator) mergeFacts(scratchpad *contextstore.PlanScratchpad, facts map[string]any) {
	if scratchpad == nil || len(facts) == 0 {
		return
	}
	for key, value := range facts {
		if err := scratchpad.SetVariable(key, value); err != nil {
			c.logger.Warn("merging fact %s: %v", key, err)
			return
		}
	}
}

// dependencyFacts gathers the scratchpad outputs of a task's completed
// dependencies into the map shape RefineRequest.DependencyFacts expects.
func (c *Coordinator) dependencyFacts(scratchpad *contextstore.PlanScratchpad, deps []string) map[string]any {
	if scratchpad == nil || len(deps) == 0 {
		return nil
	}
	facts := make(map[string]any)
	for _, o := range scratchpad.GetOutputsForDependencies(deps) {
		facts[o.TaskID+"."+o.Key] = o.Value
	}
	return facts
}

func statusOf(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

func (c *Coordinator) bumpPerf(fn func(*PerformanceMetrics)) {
	c.perfMu.Lock()
	fn(&c.perf)
	c.perfMu.Unlock()
}

func (c *Coordinator) emitSnapshot() {
	c.mu.Lock()
	c.seqNum++
	snap := c.buildSnapshotLocked()
	c.lastSnapshot = snap
	c.mu.Unlock()

	select {
	case c.snapshotCh <- snap:
	default:
	}
}

func (c *Coordinator) buildSnapshotLocked() StatusSnapshot {
	c.perfMu.Lock()
	perf := c.perf
	perf.UptimeSeconds = uint64(time.Since(c.startedAt).Seconds())
	c.perfMu.Unlock()

	snap := StatusSnapshot{
		SeqNum:            c.seqNum,
		GeneratedAt:       time.Now(),
		ExecutionState:    c.state,
		PromptQueueDepth:  len(c.promptQueue) + len(c.emergencyQueue),
		ControlQueueDepth: len(c.controlQueue),
		Metrics:           perf,
	}

	if c.activePlanID != "" {
		if p, ok := c.plans[c.activePlanID]; ok {
			info := &PlanStatusInfo{
				ID:              p.ID,
				Description:     p.Description,
				Status:          p.Status,
				FailureCategory: p.FailureCategory,
				CreatedAt:       p.CreatedAt,
				UpdatedAt:       p.UpdatedAt,
			}
			for _, t := range p.Tasks() {
				info.TotalTasks++
				switch t.State {
				case plan.TaskCompleted:
					info.CompletedTasks++
				case plan.TaskFailed:
					info.FailedTasks++
				}
			}
			snap.CurrentPlan = info

			if c.currentTaskID != "" {
				if t, ok := p.Task(c.currentTaskID); ok {
					snap.CurrentTask = &TaskStatusInfo{
						ID:      t.ID,
						Kind:    t.Kind,
						State:   t.State,
						Retries: t.Retries,
					}
				}
			}
		}
	}

	return snap
}
