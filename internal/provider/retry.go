package provider

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/ReOpsIL/KAIX/internal/logging"
	"github.com/ReOpsIL/KAIX/internal/observability"
	"github.com/ReOpsIL/KAIX/internal/plan"
)

// RetryPolicy configures the exponential backoff every provider call goes
// through. Grounded on
// cklxx-elephant.ai/internal/materials/storage/retry_mapper.go's
// RetryingMapper: same "delegate + factory func() backoff.BackOff" shape,
// generalized from CDN-mapper operations to the five Provider operations.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxAttempts     int
}

// DefaultRetryPolicy matches spec.md §4.4's "exponential backoff with
// bounded attempts" without naming specific numbers; these are the values
// KAIX ships as defaults, overridable via configuration.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  30 * time.Second,
		MaxAttempts:     5,
	}
}

func (p RetryPolicy) build() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = p.MaxElapsedTime
	if p.MaxAttempts > 0 {
		return backoff.WithMaxRetries(b, uint64(p.MaxAttempts))
	}
	return b
}

// retryingProvider wraps a Provider so every call retries idempotent,
// transient error categories (network, rate-limit) with exponential
// backoff and lets everything else — including a timeout — surface
// immediately, per spec.md §4.4's "non-idempotent errors ... are
// non-retryable and surface immediately".
type retryingProvider struct {
	delegate Provider
	policy   RetryPolicy
	metrics  *observability.Metrics
	logger   logging.Logger
}

// NewRetrying wraps delegate with the given retry policy. Pass
// observability.Default() for metrics, or nil to disable counting (tests
// typically pass nil).
func NewRetrying(delegate Provider, policy RetryPolicy, metrics *observability.Metrics) Provider {
	return &retryingProvider{
		delegate: delegate,
		policy:   policy,
		metrics:  metrics,
		logger:   logging.NewComponentLogger("provider.retry"),
	}
}

func (r *retryingProvider) call(ctx context.Context, operation string, fn func() error) error {
	b := backoff.WithContext(r.policy.build(), ctx)
	err := backoff.Retry(func() error {
		callErr := fn()
		if callErr == nil {
			return nil
		}
		if !Retryable(CategoryOf(callErr)) {
			return backoff.Permanent(callErr)
		}
		r.logger.Warn("provider.%s: transient error, retrying: %v", operation, callErr)
		return callErr
	}, b)

	if r.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		r.metrics.LLMCall(operation, status)
	}
	return err
}

func (r *retryingProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var out []ModelInfo
	err := r.call(ctx, "list-models", func() error {
		var innerErr error
		out, innerErr = r.delegate.ListModels(ctx)
		return innerErr
	})
	return out, err
}

func (r *retryingProvider) GeneratePlan(ctx context.Context, req GeneratePlanRequest) (RawPlan, error) {
	var out RawPlan
	err := r.call(ctx, "generate-plan", func() error {
		var innerErr error
		out, innerErr = r.delegate.GeneratePlan(ctx, req)
		return innerErr
	})
	return out, err
}

func (r *retryingProvider) RefineInstruction(ctx context.Context, req RefineRequest) (RefineResponse, error) {
	var out RefineResponse
	err := r.call(ctx, "refine-instruction", func() error {
		var innerErr error
		out, innerErr = r.delegate.RefineInstruction(ctx, req)
		return innerErr
	})
	return out, err
}

func (r *retryingProvider) AnalyzeResult(ctx context.Context, req AnalyzeRequest) (plan.Analysis, error) {
	var out plan.Analysis
	err := r.call(ctx, "analyze-result", func() error {
		var innerErr error
		out, innerErr = r.delegate.AnalyzeResult(ctx, req)
		return innerErr
	})
	return out, err
}

func (r *retryingProvider) Summarize(ctx context.Context, text, priorSummary string) (string, error) {
	var out string
	err := r.call(ctx, "summarize", func() error {
		var innerErr error
		out, innerErr = r.delegate.Summarize(ctx, text, priorSummary)
		return innerErr
	})
	return out, err
}

var _ Provider = (*retryingProvider)(nil)
