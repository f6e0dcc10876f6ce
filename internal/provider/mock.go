package provider

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ReOpsIL/KAIX/internal/plan"
)

// Mock is a deterministic Provider used by coordinator tests and by the
// end-to-end scenarios in spec.md §8 — no network, no randomness, its
// outputs are a pure function of its call count and configured scripts.
// Grounded on the general shape of deterministic fakes throughout the
// pack's *_test.go files (e.g. cklxx-elephant.ai's fakeLLMClient), adapted
// here into a scriptable sequence rather than a single canned response.
type Mock struct {
	mu sync.Mutex

	models []ModelInfo

	// planScript, when non-empty, is consumed in order by successive
	// GeneratePlan calls; the last entry repeats once exhausted.
	planScript []RawPlan

	// refineFn, when set, overrides the default pass-through refine
	// behavior (echoing Parameters as-is with a synthetic instruction).
	refineFn func(RefineRequest) (RefineResponse, error)

	// analyzeFn, when set, overrides the default verdict derivation
	// (ok when Result.Success, needs-retry otherwise).
	analyzeFn func(AnalyzeRequest) (plan.Analysis, error)

	summarizeCalls int32
	planCalls      int32
	refineCalls    int32
	analyzeCalls   int32
}

// NewMock builds a Mock reporting a single default model.
func NewMock() *Mock {
	return &Mock{
		models: []ModelInfo{
			{Name: "mock-default", Description: "deterministic test model", ContextWindow: 32000, Default: true},
		},
	}
}

// WithModels overrides the list-models response.
func (m *Mock) WithModels(models []ModelInfo) *Mock {
	m.models = models
	return m
}

// WithPlanScript queues RawPlan responses consumed in call order.
func (m *Mock) WithPlanScript(plans ...RawPlan) *Mock {
	m.planScript = plans
	return m
}

// WithRefineFunc overrides refine-instruction behavior.
func (m *Mock) WithRefineFunc(fn func(RefineRequest) (RefineResponse, error)) *Mock {
	m.refineFn = fn
	return m
}

// WithAnalyzeFunc overrides analyze-result behavior.
func (m *Mock) WithAnalyzeFunc(fn func(AnalyzeRequest) (plan.Analysis, error)) *Mock {
	m.analyzeFn = fn
	return m
}

func (m *Mock) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return append([]ModelInfo(nil), m.models...), nil
}

func (m *Mock) GeneratePlan(ctx context.Context, req GeneratePlanRequest) (RawPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := atomic.AddInt32(&m.planCalls, 1)

	if len(m.planScript) == 0 {
		return RawPlan{
			Description: fmt.Sprintf("mock plan for %q", req.UserPrompt),
			Tasks: []RawTask{
				{ID: "t1", Kind: string(plan.KindGenerateContent), Parameters: map[string]any{"prompt": req.UserPrompt}},
			},
		}, nil
	}
	idx := int(n) - 1
	if idx >= len(m.planScript) {
		idx = len(m.planScript) - 1
	}
	return m.planScript[idx], nil
}

func (m *Mock) RefineInstruction(ctx context.Context, req RefineRequest) (RefineResponse, error) {
	atomic.AddInt32(&m.refineCalls, 1)
	if m.refineFn != nil {
		return m.refineFn(req)
	}
	return RefineResponse{
		Instruction: fmt.Sprintf("execute %s", req.TaskKind),
		Parameters:  req.Parameters,
	}, nil
}

func (m *Mock) AnalyzeResult(ctx context.Context, req AnalyzeRequest) (plan.Analysis, error) {
	atomic.AddInt32(&m.analyzeCalls, 1)
	if m.analyzeFn != nil {
		return m.analyzeFn(req)
	}
	if req.Result != nil && req.Result.Success {
		return plan.Analysis{Verdict: plan.VerdictOK, Summary: "task succeeded"}, nil
	}
	return plan.Analysis{Verdict: plan.VerdictNeedsRetry, Summary: "task failed, retrying"}, nil
}

func (m *Mock) Summarize(ctx context.Context, text string, priorSummary string) (string, error) {
	atomic.AddInt32(&m.summarizeCalls, 1)
	if len(text) > 64 {
		text = text[:64]
	}
	return "summary: " + text, nil
}

// Calls reports per-operation invocation counts, for assertions that the
// coordinator called the provider the expected number of times.
func (m *Mock) Calls() (plans, refines, analyses, summaries int32) {
	return atomic.LoadInt32(&m.planCalls), atomic.LoadInt32(&m.refineCalls),
		atomic.LoadInt32(&m.analyzeCalls), atomic.LoadInt32(&m.summarizeCalls)
}

var _ Provider = (*Mock)(nil)
