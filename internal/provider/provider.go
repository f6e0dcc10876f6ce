// Package provider defines the Model Provider contract from SPEC_FULL.md
// §4.4: list-models, generate-plan, refine-instruction, analyze-result,
// and summarize. Concrete HTTP-backed providers are out of scope (spec.md
// §1's external collaborators); this package holds the contract, the
// retrying decorator every concrete provider gets wrapped in, the error
// taxonomy, and a deterministic mock used by tests and the end-to-end
// scenarios in spec.md §8.
package provider

import (
	"context"
	"time"

	"github.com/ReOpsIL/KAIX/internal/plan"
)

// ModelInfo is one entry in the list-models response.
type ModelInfo struct {
	Name         string
	Description  string
	ContextWindow int
	Default      bool
}

// PlanAnnotation describes how a prior task fared when the coordinator
// requests replanning against an existing plan (spec.md §4.2 "the existing
// plan with annotations describing which tasks succeeded, failed, or were
// adapted").
type PlanAnnotation struct {
	TaskID  string
	Outcome string // "succeeded", "failed", "adapted"
	Detail  string
}

// GeneratePlanRequest is the input to generate-plan.
type GeneratePlanRequest struct {
	UserPrompt       string
	ProjectOverview  string
	PriorPlan        *plan.Plan
	PriorAnnotations []PlanAnnotation
}

// RawTask is the provider's untrusted plan/subplan output before KAIX
// validates it into plan.Task values (spec.md §4.2: "The provider's
// response is validated against the Plan data model — unknown task kinds,
// dangling dependency identifiers, or cycles cause the plan to be
// rejected"). Keeping this separate from plan.Task means a malformed
// response can never masquerade as an admitted task.
type RawTask struct {
	ID           string
	Kind         string
	Parameters   map[string]any
	Dependencies []string
}

// RawPlan is the provider's untrusted plan output.
type RawPlan struct {
	Description string
	Tasks       []RawTask
}

// RefineRequest is the input to refine-instruction.
type RefineRequest struct {
	TaskKind        plan.TaskKind
	Parameters      map[string]any
	ProjectOverview string
	FileSummaries   map[string]string
	DependencyFacts map[string]any
}

// RefineResponse is the concrete, parameter-complete instruction the
// executor consumes.
type RefineResponse struct {
	Instruction string
	Parameters  map[string]any
}

// AnalyzeRequest is the input to analyze-result.
type AnalyzeRequest struct {
	Task              *plan.Task
	RefinedInstruction string
	Result            *plan.TaskResult
	ProjectOverview   string
	FileSummaries     map[string]string
}

// Provider is the capability structure the coordinator depends on. Named
// per spec.md §9's "trait-polymorphic providers -> capability structures"
// note: a plain Go interface plays the same dispatch role the source's
// trait object does, without KAIX needing a tagged-union of provider
// variants.
type Provider interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
	GeneratePlan(ctx context.Context, req GeneratePlanRequest) (RawPlan, error)
	RefineInstruction(ctx context.Context, req RefineRequest) (RefineResponse, error)
	AnalyzeResult(ctx context.Context, req AnalyzeRequest) (plan.Analysis, error)
	Summarize(ctx context.Context, text string, priorSummary string) (string, error)
}

// ErrorCategory is the provider-level error taxonomy from spec.md §4.4.
type ErrorCategory string

const (
	CategoryNetwork          ErrorCategory = "network"
	CategoryAuthentication   ErrorCategory = "authentication"
	CategoryRateLimit        ErrorCategory = "rate-limit"
	CategoryInvalidModel     ErrorCategory = "invalid-model"
	CategoryInvalidRequest   ErrorCategory = "invalid-request"
	CategoryMalformedResponse ErrorCategory = "malformed-response"
	CategoryTimeout          ErrorCategory = "timeout"
	CategoryUnknown          ErrorCategory = "unknown"
)

// retryable is the set of idempotent, transient error categories spec.md
// §4.4 says get exponential-backoff retry; everything else surfaces
// immediately.
var retryable = map[ErrorCategory]bool{
	CategoryNetwork:   true,
	CategoryRateLimit: true,
}

// Retryable reports whether cat should be retried by the backoff wrapper.
func Retryable(cat ErrorCategory) bool { return retryable[cat] }

// Error wraps a provider failure with its category, the way the taxonomy
// in spec.md §4.4/§7 expects the coordinator to switch on category rather
// than error identity.
type Error struct {
	Category ErrorCategory
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Category) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Category) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// CategoryOf extracts the ErrorCategory from err, defaulting to
// CategoryUnknown for errors this package didn't produce.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	var pe *Error
	if ok := asError(err, &pe); ok {
		return pe.Category
	}
	return CategoryUnknown
}

func asError(err error, target **Error) bool {
	for err != nil {
		if pe, ok := err.(*Error); ok {
			*target = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// DeadlineFor returns a context bounded by timeout, matching spec.md
// §4.4's "the caller supplies a deadline; the provider must either return
// within it or raise timeout".
func DeadlineFor(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
