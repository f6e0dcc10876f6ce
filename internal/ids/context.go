// Package ids threads correlation identifiers (plan, task, log, causal
// chain) through a context.Context so every suspension point — provider
// call, executor call, status snapshot — can be traced back to the plan and
// task that triggered it without a parameter explosion.
package ids

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	planKey          contextKey = "kaix_plan_id"
	taskKey          contextKey = "kaix_task_id"
	logKey           contextKey = "kaix_log_id"
	correlationKey   contextKey = "kaix_correlation_id"
	decompositionKey contextKey = "kaix_decomposition_of"
)

// New mints a fresh random identifier. Substituted in tests with fixed values.
func New() string { return uuid.NewString() }

func WithPlanID(ctx context.Context, planID string) context.Context {
	if planID == "" {
		return ctx
	}
	return context.WithValue(ctx, planKey, planID)
}

func WithTaskID(ctx context.Context, taskID string) context.Context {
	if taskID == "" {
		return ctx
	}
	return context.WithValue(ctx, taskKey, taskID)
}

func WithLogID(ctx context.Context, logID string) context.Context {
	if logID == "" {
		return ctx
	}
	return context.WithValue(ctx, logKey, logID)
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	if correlationID == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey, correlationID)
}

// WithDecompositionParent marks that the current context originates from
// adaptive decomposition of the named task, so nested replanning calls can
// be told apart from top-level plan generation in logs and traces.
func WithDecompositionParent(ctx context.Context, taskID string) context.Context {
	if taskID == "" {
		return ctx
	}
	return context.WithValue(ctx, decompositionKey, taskID)
}

func PlanIDFromContext(ctx context.Context) string    { return stringValue(ctx, planKey) }
func TaskIDFromContext(ctx context.Context) string    { return stringValue(ctx, taskKey) }
func LogIDFromContext(ctx context.Context) string     { return stringValue(ctx, logKey) }
func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationKey)
}
func DecompositionParentFromContext(ctx context.Context) string {
	return stringValue(ctx, decompositionKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// EnsureLogID guarantees a log identifier is present on the context,
// minting one via New if absent.
func EnsureLogID(ctx context.Context) (context.Context, string) {
	if existing := LogIDFromContext(ctx); existing != "" {
		return ctx, existing
	}
	next := New()
	return WithLogID(ctx, next), next
}
