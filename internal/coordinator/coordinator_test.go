package coordinator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ReOpsIL/KAIX/internal/contextstore"
	"github.com/ReOpsIL/KAIX/internal/executor"
	"github.com/ReOpsIL/KAIX/internal/observability"
	"github.com/ReOpsIL/KAIX/internal/plan"
	"github.com/ReOpsIL/KAIX/internal/provider"
)

func newTestCoordinator(t *testing.T, mock *provider.Mock) *Coordinator {
	t.Helper()
	dir := t.TempDir()
	store, err := contextstore.NewStore(dir, contextstore.DefaultDiscoveryConfig(), contextstore.DefaultMemoryConfig(), mock)
	require.NoError(t, err)

	sandbox := executor.NewSandbox(dir)
	exec := executor.New(sandbox, mock)

	metrics := observability.Default()
	tracer, err := observability.NewTracer(observability.TracingConfig{Enabled: false})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.CycleInterval = 5 * time.Millisecond
	cfg.HealthCheckInterval = time.Hour
	cfg.ProviderTimeout = 2 * time.Second
	cfg.TaskTimeout = 2 * time.Second

	return New(dir, exec, mock, store, metrics, tracer, cfg)
}

func runUntil(t *testing.T, c *Coordinator, cond func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// TestCoordinator_HappyPath drives a single-task plan from prompt
// submission to plan completion (end-to-end scenario 1).
func TestCoordinator_HappyPath(t *testing.T) {
	mock := provider.NewMock().WithPlanScript(provider.RawPlan{
		Description: "write a file",
		Tasks: []provider.RawTask{
			{ID: "t1", Kind: string(plan.KindGenerateContent), Parameters: map[string]any{"prompt": "hello"}},
		},
	})
	c := newTestCoordinator(t, mock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	_, err := c.SubmitPrompt("write a file", plan.PriorityNormal, "")
	require.NoError(t, err)

	runUntil(t, c, func() bool {
		snap := c.StatusSnapshot()
		return snap.CurrentPlan != nil && snap.CurrentPlan.Status == plan.StatusCompleted
	}, 2*time.Second)

	require.NoError(t, c.Shutdown(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("coordinator did not stop after shutdown")
	}
}

// TestCoordinator_StatusSnapshot_MonotonicSeqNum covers spec.md §8
// property 6: SeqNum strictly increases across the coordinator's
// lifetime.
func TestCoordinator_StatusSnapshot_MonotonicSeqNum(t *testing.T) {
	mock := provider.NewMock()
	c := newTestCoordinator(t, mock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	var last uint64
	for i := 0; i < 5; i++ {
		_, err := c.SubmitPrompt("do something", plan.PriorityNormal, "")
		require.NoError(t, err)
		runUntil(t, c, func() bool { return c.StatusSnapshot().SeqNum > last }, time.Second)
		snap := c.StatusSnapshot()
		assert.Greater(t, snap.SeqNum, last)
		last = snap.SeqNum
	}
}

// TestCoordinator_EmergencyPrompt_CancelsActivePlan covers spec.md §8
// property 5 / end-to-end scenario 4: an emergency prompt cancels the
// active plan before any replanning occurs.
func TestCoordinator_EmergencyPrompt_CancelsActivePlan(t *testing.T) {
	mock := provider.NewMock().WithPlanScript(provider.RawPlan{
		Description: "slow task",
		Tasks: []provider.RawTask{
			{ID: "t1", Kind: string(plan.KindExecuteCommand), Parameters: map[string]any{"command": "sleep 5"}},
		},
	})
	c := newTestCoordinator(t, mock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	_, err := c.SubmitPrompt("run something slow", plan.PriorityNormal, "")
	require.NoError(t, err)

	runUntil(t, c, func() bool {
		snap := c.StatusSnapshot()
		return snap.CurrentPlan != nil && snap.CurrentPlan.Status == plan.StatusRunning
	}, time.Second)

	firstPlanID := c.StatusSnapshot().CurrentPlan.ID

	_, err = c.SubmitPrompt("stop everything", plan.PriorityEmergency, "")
	require.NoError(t, err)

	// The emergency prompt must move the coordinator off the slow plan
	// well before its sleep would otherwise finish, either onto a fresh
	// replacement plan or back to idle — either way firstPlanID stops
	// being the active plan. Read only through the public snapshot
	// accessor so this assertion doesn't race the loop goroutine's
	// unsynchronized plan-map writes.
	runUntil(t, c, func() bool {
		snap := c.StatusSnapshot()
		return snap.CurrentPlan == nil || snap.CurrentPlan.ID != firstPlanID
	}, 3*time.Second)
}

// TestCoordinator_RetryCeiling_EscalatesToDecomposition covers spec.md §8
// property 8: a task that recurrently needs-retry past the ceiling
// escalates rather than looping forever.
func TestCoordinator_RetryCeiling_EscalatesToDecomposition(t *testing.T) {
	var callCount int64
	mock := provider.NewMock().
		WithPlanScript(provider.RawPlan{
			Description: "flaky task",
			Tasks: []provider.RawTask{
				{ID: "t1", Kind: string(plan.KindGenerateContent), Parameters: map[string]any{"prompt": "flaky"}},
			},
		}, provider.RawPlan{
			Description: "replacement",
			Tasks: []provider.RawTask{
				{ID: "r1", Kind: string(plan.KindGenerateContent), Parameters: map[string]any{"prompt": "replacement"}},
			},
		}).
		WithAnalyzeFunc(func(req provider.AnalyzeRequest) (plan.Analysis, error) {
			atomic.AddInt64(&callCount, 1)
			return plan.Analysis{Verdict: plan.VerdictNeedsRetry, Summary: "still failing"}, nil
		})
	c := newTestCoordinator(t, mock)
	c.cfg.RetryCeiling = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	_, err := c.SubmitPrompt("do the flaky thing", plan.PriorityNormal, "")
	require.NoError(t, err)

	runUntil(t, c, func() bool { return atomic.LoadInt64(&callCount) >= int64(c.cfg.RetryCeiling+1) }, 2*time.Second)
	// Decomposition asks the provider for a second plan.
	runUntil(t, c, func() bool { plans, _, _, _ := mock.Calls(); return plans >= 2 }, 2*time.Second)
}

// TestCoordinator_Pause_Resume exercises the pause/resume control
// operations.
func TestCoordinator_Pause_Resume(t *testing.T) {
	mock := provider.NewMock()
	c := newTestCoordinator(t, mock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	runUntil(t, c, func() bool { return c.StatusSnapshot().SeqNum > 0 }, time.Second)

	require.NoError(t, c.Pause(context.Background()))
	assert.True(t, c.isPaused())

	require.NoError(t, c.Resume(context.Background()))
	assert.False(t, c.isPaused())

	err := c.Resume(context.Background())
	assert.ErrorIs(t, err, ErrNotPaused)
}

// TestCoordinator_SubmitPrompt_QueueFull covers the queue-full boundary
// behavior: SubmitPrompt reports ErrQueueFull rather than blocking.
func TestCoordinator_SubmitPrompt_QueueFull(t *testing.T) {
	mock := provider.NewMock()
	c := newTestCoordinator(t, mock)
	c.cfg.MaxUserPromptQueue = 2
	c.promptQueue = make(chan plan.UserPrompt, 2)

	_, err := c.SubmitPrompt("one", plan.PriorityNormal, "")
	require.NoError(t, err)
	_, err = c.SubmitPrompt("two", plan.PriorityNormal, "")
	require.NoError(t, err)
	_, err = c.SubmitPrompt("three", plan.PriorityNormal, "")
	assert.ErrorIs(t, err, ErrQueueFull)
}

// TestCoordinator_CancelPlan_Idempotent covers the round-trip law:
// cancelling an already-cancelled plan is a no-op.
func TestCoordinator_CancelPlan_Idempotent(t *testing.T) {
	mock := provider.NewMock()
	c := newTestCoordinator(t, mock)

	p := plan.NewPlan("p1", "test plan")
	require.NoError(t, p.AddTask(&plan.Task{ID: "t1", Kind: plan.KindGenerateContent, Parameters: map[string]any{}}))
	c.plans["p1"] = p

	require.NoError(t, c.cancelPlanByID("p1"))
	assert.Equal(t, plan.StatusCancelled, p.Status)

	require.NoError(t, c.cancelPlanByID("p1"))
	assert.Equal(t, plan.StatusCancelled, p.Status)

	err := c.cancelPlanByID("does-not-exist")
	assert.ErrorIs(t, err, ErrUnknownPlan)
}

// TestCoordinator_DependencyFacts_SeeDependencyOutput covers spec.md §4.1's
// context-assembly fragment: a task's refinement request carries the
// scratchpad output its declared dependency produced.
func TestCoordinator_DependencyFacts_SeeDependencyOutput(t *testing.T) {
	var sawFact atomic.Bool
	mock := provider.NewMock().
		WithPlanScript(provider.RawPlan{
			Description: "producer then consumer",
			Tasks: []provider.RawTask{
				{ID: "t1", Kind: string(plan.KindGenerateContent), Parameters: map[string]any{"prompt": "produce"}},
				{ID: "t2", Kind: string(plan.KindGenerateContent), Parameters: map[string]any{"prompt": "consume"}, Dependencies: []string{"t1"}},
			},
		}).
		WithRefineFunc(func(req provider.RefineRequest) (provider.RefineResponse, error) {
			if len(req.DependencyFacts) > 0 {
				sawFact.Store(true)
			}
			return provider.RefineResponse{Instruction: "execute " + string(req.TaskKind), Parameters: req.Parameters}, nil
		})
	c := newTestCoordinator(t, mock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	_, err := c.SubmitPrompt("produce then consume", plan.PriorityNormal, "")
	require.NoError(t, err)

	runUntil(t, c, func() bool {
		snap := c.StatusSnapshot()
		return snap.CurrentPlan != nil && snap.CurrentPlan.Status == plan.StatusCompleted
	}, 2*time.Second)

	assert.True(t, sawFact.Load(), "consumer task never saw a dependency fact from the producer's output")
}

// TestCoordinator_ApplyVerdict_OKMergesNewFacts covers spec.md §4.1's "ok ->
// merge any new facts into scratchpad" clause.
func TestCoordinator_ApplyVerdict_OKMergesNewFacts(t *testing.T) {
	c := newTestCoordinator(t, provider.NewMock())

	p := plan.NewPlan("p1", "test plan")
	task := &plan.Task{ID: "t1", Kind: plan.KindGenerateContent, Parameters: map[string]any{}}
	require.NoError(t, p.AddTask(task))
	task.State = plan.TaskAnalyzing
	sp := contextstore.NewScratchpad("p1", 0)

	analysis := plan.Analysis{Verdict: plan.VerdictOK, Summary: "ok", NewFacts: map[string]any{"discovered": "value"}}
	c.applyVerdict(context.Background(), p, task, analysis, sp)

	v, ok := sp.GetVariable("discovered")
	require.True(t, ok)
	assert.Equal(t, "value", v)
	assert.Equal(t, plan.TaskCompleted, task.State)
}

// TestCoordinator_ApplyVerdict_PartialRecordsCaveat covers spec.md §4.1's
// "partial -> task completed but scratchpad records a caveat" clause.
func TestCoordinator_ApplyVerdict_PartialRecordsCaveat(t *testing.T) {
	c := newTestCoordinator(t, provider.NewMock())

	p := plan.NewPlan("p1", "test plan")
	task := &plan.Task{ID: "t1", Kind: plan.KindGenerateContent, Parameters: map[string]any{}}
	require.NoError(t, p.AddTask(task))
	task.State = plan.TaskAnalyzing
	sp := contextstore.NewScratchpad("p1", 0)

	analysis := plan.Analysis{Verdict: plan.VerdictPartial, Summary: "only half done"}
	c.applyVerdict(context.Background(), p, task, analysis, sp)

	caveats := sp.GetCaveats("t1")
	require.Len(t, caveats, 1)
	assert.Equal(t, "only half done", caveats[0].Note)
	assert.Equal(t, plan.TaskCompleted, task.State)
}

// TestCoordinator_InvalidPlan_ExhaustsRetriesToPlanningFailed covers
// spec.md §4.2's "a rejected plan after N attempts transitions the user
// request to failed with category planning-failed": a plan with a
// dependency cycle is rejected by validation on every attempt, and the
// retry budget is exhausted rather than admitted as-is.
func TestCoordinator_InvalidPlan_ExhaustsRetriesToPlanningFailed(t *testing.T) {
	cyclic := provider.RawPlan{
		Description: "cyclic plan",
		Tasks: []provider.RawTask{
			{ID: "t1", Kind: string(plan.KindGenerateContent), Parameters: map[string]any{}, Dependencies: []string{"t2"}},
			{ID: "t2", Kind: string(plan.KindGenerateContent), Parameters: map[string]any{}, Dependencies: []string{"t1"}},
		},
	}
	mock := provider.NewMock().WithPlanScript(cyclic)
	c := newTestCoordinator(t, mock)
	c.cfg.PlanningRetryCeiling = 1

	// Drive handlePrompt directly and synchronously (the Run loop is never
	// started), so the failed plan this records can be read straight back
	// out of c.plans without racing a concurrent writer.
	prompt := plan.UserPrompt{ID: "prompt-1", Content: "do something cyclic", Priority: plan.PriorityNormal, RequiresNewPlan: true}
	c.handlePrompt(context.Background(), prompt)

	var failed *plan.Plan
	for _, p := range c.plans {
		if p.Status == plan.StatusFailed {
			failed = p
		}
	}
	require.NotNil(t, failed, "expected a failed plan recording the exhausted planning retry budget")
	assert.Equal(t, plan.FailurePlanningFailed, failed.FailureCategory)

	plans, _, _, _ := mock.Calls()
	assert.Equal(t, int32(c.cfg.PlanningRetryCeiling+1), plans, "generatePlan did not retry plan validation failures up to the ceiling")
}

// TestPlanGraphValidator_Acyclic exercises the health-check adapter type.
func TestPlanGraphValidator_Acyclic(t *testing.T) {
	p := plan.NewPlan("p1", "test")
	require.NoError(t, p.AddTask(&plan.Task{ID: "t1", Kind: plan.KindGenerateContent}))
	require.NoError(t, p.AddTask(&plan.Task{ID: "t2", Kind: plan.KindGenerateContent, Dependencies: []string{"t1"}}))

	v := &planGraphValidator{plans: map[string]*plan.Plan{"p1": p}}
	assert.ElementsMatch(t, []string{"p1"}, v.PlanIDs())
	assert.True(t, v.Acyclic("p1"))
	assert.True(t, v.Acyclic("unknown-plan"))
}
