package coordinator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ReOpsIL/KAIX/internal/contextstore"
	"github.com/ReOpsIL/KAIX/internal/executor"
	"github.com/ReOpsIL/KAIX/internal/ids"
	"github.com/ReOpsIL/KAIX/internal/logging"
	"github.com/ReOpsIL/KAIX/internal/observability"
	"github.com/ReOpsIL/KAIX/internal/plan"
	"github.com/ReOpsIL/KAIX/internal/provider"
)

// Coordinator is the Agentic Planning Coordinator: the sole mutator of
// every Plan and Task it holds. Grounded on
// original_source/src/planning/manager.rs's AgenticPlanningCoordinator,
// translated from tokio mpsc/broadcast/RwLock to Go channels plus a
// single owning goroutine, per SPEC_FULL.md §4.1/§5.
type Coordinator struct {
	workdir  string
	cfg      Config
	executor executor.Executor
	provider provider.Provider
	store    *contextstore.Store
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	logger   logging.Logger

	promptQueue    chan plan.UserPrompt
	emergencyQueue chan plan.UserPrompt
	controlQueue   chan ControlMessage

	// plans, activePlanID, pausedPlanStack, currentTaskID, and every Plan
	// reachable from plans are touched ONLY by the Run goroutine. mu
	// guards only the snapshot-visible fields read by other goroutines
	// (public accessor methods), never these.
	plans           map[string]*plan.Plan
	activePlanID    string
	pausedPlanStack []string

	mu                sync.Mutex
	state             ExecutionState
	currentTaskID     string
	running           bool
	paused            bool
	shutdownRequested bool
	pendingEmergency  *plan.UserPrompt
	seqNum            uint64
	startedAt         time.Time
	lastSnapshot      StatusSnapshot

	perfMu sync.Mutex
	perf   PerformanceMetrics

	snapshotCh chan StatusSnapshot
}

// New constructs a Coordinator. metrics and tracer may be nil; every
// method on *observability.Metrics is nil-receiver safe, and a nil
// *observability.Tracer is never passed in practice since
// observability.NewTracer always returns a usable (possibly noop) value.
func New(workdir string, exec executor.Executor, prov provider.Provider, store *contextstore.Store, metrics *observability.Metrics, tracer *observability.Tracer, cfg Config) *Coordinator {
	return &Coordinator{
		workdir:        workdir,
		cfg:            cfg,
		executor:       exec,
		provider:       prov,
		store:          store,
		metrics:        metrics,
		tracer:         tracer,
		logger:         logging.NewComponentLogger("coordinator"),
		promptQueue:    make(chan plan.UserPrompt, cfg.MaxUserPromptQueue),
		emergencyQueue: make(chan plan.UserPrompt, 8),
		controlQueue:   make(chan ControlMessage, cfg.MaxControlQueue),
		plans:          make(map[string]*plan.Plan),
		state:          StateIdle,
		snapshotCh:     make(chan StatusSnapshot, 16),
	}
}

// Snapshots returns the channel status snapshots are published on,
// non-blocking on the publishing side (a slow or absent observer never
// stalls the loop).
func (c *Coordinator) Snapshots() <-chan StatusSnapshot { return c.snapshotCh }

// SubmitPrompt admits a UserPrompt to the appropriate queue, returning its
// correlation ID. Matches spec.md §4.1's submit-prompt operation.
func (c *Coordinator) SubmitPrompt(content string, priority plan.PromptPriority, contextHint string) (string, error) {
	c.mu.Lock()
	shuttingDown := c.shutdownRequested
	c.mu.Unlock()
	if shuttingDown {
		return "", ErrShutdown
	}

	prompt := plan.UserPrompt{
		ID:              ids.New(),
		Content:         content,
		SubmittedAt:     time.Now(),
		Priority:        priority,
		RequiresNewPlan: true,
		ContextHint:     contextHint,
	}

	if priority == plan.PriorityEmergency {
		select {
		case c.emergencyQueue <- prompt:
			return prompt.ID, nil
		default:
			return "", ErrQueueFull
		}
	}
	select {
	case c.promptQueue <- prompt:
		return prompt.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// sendControl posts msg and waits for its immediate reply or ctx
// cancellation, matching the synchronous-looking result column of
// spec.md §4.1's operation table (the eventual effect, e.g. "loop
// quiesces after current task's execute phase", happens after this call
// returns).
func (c *Coordinator) sendControl(ctx context.Context, msg ControlMessage) error {
	reply := make(chan error, 1)
	msg.Reply = reply
	select {
	case c.controlQueue <- msg:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause requests the loop quiesce after the current task's execute phase.
func (c *Coordinator) Pause(ctx context.Context) error {
	return c.sendControl(ctx, ControlMessage{Kind: ControlPause})
}

// Resume resumes a paused loop.
func (c *Coordinator) Resume(ctx context.Context) error {
	return c.sendControl(ctx, ControlMessage{Kind: ControlResume})
}

// CancelPlan requests planID transition to cancelled.
func (c *Coordinator) CancelPlan(ctx context.Context, planID string) error {
	return c.sendControl(ctx, ControlMessage{Kind: ControlCancelPlan, PlanID: planID})
}

// StartPlan admits an already-generated plan directly, bypassing prompt
// handling (used by callers that constructed a Plan themselves, e.g. from
// a saved session).
func (c *Coordinator) StartPlan(ctx context.Context, p *plan.Plan) error {
	return c.sendControl(ctx, ControlMessage{Kind: ControlStartPlan, Plan: p})
}

// DecomposeTask forces adaptive decomposition of a specific task.
func (c *Coordinator) DecomposeTask(ctx context.Context, taskID string) error {
	return c.sendControl(ctx, ControlMessage{Kind: ControlDecomposeTask, TaskID: taskID})
}

// Shutdown requests an orderly drain-and-exit.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	return c.sendControl(ctx, ControlMessage{Kind: ControlShutdown})
}

// StatusSnapshot returns the most recently emitted snapshot.
func (c *Coordinator) StatusSnapshot() StatusSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSnapshot
}

// Run executes the coordinator loop until ctx is cancelled or a shutdown
// is processed. It is safe to call exactly once per Coordinator.
func (c *Coordinator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	c.mu.Lock()
	c.running = true
	c.startedAt = time.Now()
	c.mu.Unlock()
	c.setState(StateIdle)
	c.emitSnapshot()

	g.Go(func() error { return c.loop(gctx) })

	err := g.Wait()
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.setState(StateShutdown)
	c.emitSnapshot()
	return err
}

func (c *Coordinator) loop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.CycleInterval)
	defer ticker.Stop()
	healthTicker := time.NewTicker(c.cfg.HealthCheckInterval)
	defer healthTicker.Stop()

	for {
		if c.isShutdownRequested() {
			return nil
		}

		if pe := c.takePendingEmergency(); pe != nil {
			c.handlePrompt(ctx, *pe)
			continue
		}

		// Priority drain: emergency queue first, then control queue, then
		// the normal/interrupt prompt queue — biased select realized as a
		// sequence of non-blocking attempts, matching original_source's
		// `tokio::select! { biased; ... }`.
		select {
		case ep := <-c.emergencyQueue:
			c.handlePrompt(ctx, ep)
			continue
		default:
		}
		select {
		case msg := <-c.controlQueue:
			c.handleControl(ctx, msg)
			continue
		default:
		}
		select {
		case p := <-c.promptQueue:
			c.handlePrompt(ctx, p)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case ep := <-c.emergencyQueue:
			c.handlePrompt(ctx, ep)
		case msg := <-c.controlQueue:
			c.handleControl(ctx, msg)
		case p := <-c.promptQueue:
			c.handlePrompt(ctx, p)
		case <-healthTicker.C:
			c.runHealthCheck()
		case <-ticker.C:
			if !c.isPaused() {
				c.executeAgenticCycle(ctx)
			}
		}
	}
}

func (c *Coordinator) isShutdownRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdownRequested
}

func (c *Coordinator) isPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Coordinator) takePendingEmergency() *plan.UserPrompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	pe := c.pendingEmergency
	c.pendingEmergency = nil
	return pe
}

func (c *Coordinator) setState(s ExecutionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.metrics.SetExecutionState(string(s), allStates)
}

func (c *Coordinator) runHealthCheck() {
	validator := &planGraphValidator{plans: c.plans}
	report := c.store.HealthCheck(validator)
	if len(report.StalePlanIDs) > 0 {
		c.store.EvictStaleScratchpads(report.StalePlanIDs)
	}
	for _, f := range report.Findings {
		c.logger.Warn("contextstore health: [%s] %s", f.Severity, f.Message)
	}
}

// planGraphValidator adapts the coordinator's live plan map to
// contextstore.PlanGraphValidator without contextstore importing plan.
type planGraphValidator struct {
	plans map[string]*plan.Plan
}

func (v *planGraphValidator) PlanIDs() []string {
	ids := make([]string, 0, len(v.plans))
	for id := range v.plans {
		ids = append(ids, id)
	}
	return ids
}

func (v *planGraphValidator) Acyclic(planID string) bool {
	p, ok := v.plans[planID]
	if !ok {
		return true
	}
	return p.DAG().Acyclic()
}

func (c *Coordinator) handleControl(ctx context.Context, msg ControlMessage) {
	var err error
	switch msg.Kind {
	case ControlStartPlan:
		err = c.startPlan(msg.Plan)
	case ControlModifyPlan:
		err = c.modifyPlan(msg.Plan)
	case ControlCancelPlan:
		err = c.cancelPlanByID(msg.PlanID)
	case ControlPause:
		err = c.pauseLoop()
	case ControlResume:
		err = c.resumeLoop()
	case ControlDecomposeTask:
		err = c.forceDecompose(ctx, msg.TaskID)
	case ControlGetStatus:
		c.emitSnapshot()
	case ControlShutdown:
		c.mu.Lock()
		c.shutdownRequested = true
		c.mu.Unlock()
	}
	if msg.Reply != nil {
		msg.Reply <- err
	}
}

func (c *Coordinator) pauseLoop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return ErrNotRunning
	}
	c.paused = true
	c.state = StatePaused
	return nil
}

func (c *Coordinator) resumeLoop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return ErrNotPaused
	}
	c.paused = false
	return nil
}

func (c *Coordinator) cancelPlanByID(planID string) error {
	p, ok := c.plans[planID]
	if !ok {
		return ErrUnknownPlan
	}
	p.Cancel()
	c.store.DiscardScratchpad(planID)
	if c.activePlanID == planID {
		c.activePlanID = ""
		c.resumePausedIfAny()
	} else {
		c.pausedPlanStack = removeID(c.pausedPlanStack, planID)
	}
	c.emitSnapshot()
	return nil
}

func (c *Coordinator) modifyPlan(p *plan.Plan) error {
	if p == nil {
		return ErrUnknownPlan
	}
	if _, ok := c.plans[p.ID]; !ok {
		return ErrUnknownPlan
	}
	c.plans[p.ID] = p
	p.RecomputeReady()
	c.emitSnapshot()
	return nil
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
