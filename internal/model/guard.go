package model

import (
	"context"
	"net/http"
	"time"

	"github.com/flynn-ai/tripwise/internal/errors"
)

// guard wraps provider calls with the retry policy and circuit breaker shared
// by all cloud clients.
type guard struct {
	breaker *errors.CircuitBreaker
	policy  *errors.Policy
}

func newGuard(name string, maxRetries int) *guard {
	policy := &errors.Policy{
		MaxAttempts:  max(maxRetries, 0) + 1,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryIf: func(err error) bool {
			category := errors.GetCategory(err)
			return errors.IsRetryable(err) && (category == errors.CategoryTemporary || category == errors.CategoryRateLimit)
		},
	}

	return &guard{
		breaker: errors.NewCircuitBreaker(name, &errors.CircuitBreakerConfig{
			MaxFailures:      5,
			ResetTimeout:     60 * time.Second,
			HalfOpenAttempts: 2,
		}),
		policy: policy,
	}
}

func (g *guard) do(ctx context.Context, fn func() (*Response, error)) (*Response, error) {
	start := time.Now()
	resp, err := errors.ExecuteCircuitBreakerWithResult(g.breaker, func() (*Response, error) {
		return errors.DoWithResult(ctx, g.policy, fn)
	})
	if err != nil {
		return nil, err
	}
	resp.DurationMs = time.Since(start).Milliseconds()
	return resp, nil
}

// classify maps a provider failure onto an AppError.
func classify(err error, provider string, status int) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.IsTimeout(err) {
		return errors.Wrap(err, errors.CodeModelTimeout, provider+" request timed out", errors.CategoryTemporary)
	}

	switch {
	case status == http.StatusTooManyRequests:
		appErr := errors.FromStatus(errors.CodeModelRateLimit, provider, status, nil)
		appErr.Inner = err
		return appErr
	case status >= 400:
		appErr := errors.FromStatus(errors.CodeModelUnavailable, provider, status, nil)
		appErr.Inner = err
		if status == http.StatusBadRequest {
			appErr.Suggestions = append(appErr.Suggestions, "Check the model name and that it supports tool calling")
		}
		return appErr
	default:
		return errors.Wrap(err, errors.CodeModelUnavailable, provider+" request failed", errors.CategoryTemporary)
	}
}

func notConfigured(provider, keyEnv string) error {
	b := errors.NewBuilder(errors.CodeModelUnavailable, provider+" API key not configured").System()
	if keyEnv != "" {
		b = b.WithSuggestion("Set " + keyEnv + " or [llm.api_keys] " + provider + " in config.toml")
	}
	return b.Build()
}

func emptyResponse(provider string) error {
	return errors.NewBuilder(errors.CodeModelInvalidResponse, provider+" response contained no choices").
		Permanent().
		Build()
}
