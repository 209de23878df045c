package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	t.Run("message includes code and inner error", func(t *testing.T) {
		err := Wrap(fmt.Errorf("dial tcp: refused"), CodeNetworkUnavailable, "weather service unreachable", CategoryTemporary)
		assert.Equal(t, "[NETWORK_UNAVAILABLE] weather service unreachable: dial tcp: refused", err.Error())
		assert.True(t, err.Retryable)
	})

	t.Run("wrap keeps retry hints of inner app error", func(t *testing.T) {
		inner := RateLimit(CodeModelRateLimit, "slow down", 3*time.Second)
		err := Wrap(inner, CodeModelUnavailable, "model call failed", CategoryRateLimit)
		assert.True(t, IsRetryable(err))
		assert.Equal(t, 3*time.Second, GetRetryAfter(err))
		assert.Equal(t, CodeModelUnavailable, GetCode(err))
	})

	t.Run("wrap nil is nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, CodeInvalidInput, "x", CategoryUser))
	})

	t.Run("builder", func(t *testing.T) {
		err := NewBuilder(CodeInvalidInput, "question is required").
			User().
			WithSuggestion("Send a non-empty question").
			WithContext("field", "question").
			Build()
		assert.Equal(t, CategoryUser, GetCategory(err))
		assert.False(t, IsRetryable(err))
		assert.Equal(t, "question", err.Context["field"])
		assert.Contains(t, FormatUserMessage(err), "Send a non-empty question")
	})

	t.Run("plain errors default to temporary", func(t *testing.T) {
		err := fmt.Errorf("boom")
		assert.Equal(t, CategoryTemporary, GetCategory(err))
		assert.True(t, IsRetryable(err))
		assert.False(t, IsRetryable(context.Canceled))
		assert.Equal(t, "", GetCode(err))
	})
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status   int
		category Category
		retry    bool
	}{
		{http.StatusTooManyRequests, CategoryRateLimit, true},
		{http.StatusUnauthorized, CategorySystem, false},
		{http.StatusBadGateway, CategoryTemporary, true},
		{http.StatusNotFound, CategoryPermanent, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := FromStatus(CodePlacesLookupFailed, "Tavily", tt.status, []byte("body"))
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.retry, err.Retryable)
			assert.Equal(t, CodePlacesLookupFailed, err.Code)
		})
	}
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.False(t, IsTimeout(fmt.Errorf("nope")))
	assert.False(t, IsTimeout(nil))
}

func TestDoWithResult(t *testing.T) {
	fast := &Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2, RetryIf: IsRetryable}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		got, err := DoWithResult(context.Background(), fast, func() (int, error) {
			calls++
			if calls < 3 {
				return 0, Temporary(CodeNetworkTimeout, "flaky")
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, got)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		_, err := DoWithResult(context.Background(), fast, func() (int, error) {
			calls++
			return 0, Permanent(CodeModelInvalidResponse, "bad")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fast, func() error {
			calls++
			return Temporary(CodeNetworkTimeout, "flaky")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max retries exceeded")
		assert.Equal(t, 3, calls)
		assert.Equal(t, CodeNetworkTimeout, GetCode(err))
	})

	t.Run("nil policy uses defaults", func(t *testing.T) {
		got, err := DoWithResult(context.Background(), nil, func() (string, error) { return "ok", nil })
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
	})

	t.Run("context cancellation stops waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := &Policy{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1, RetryIf: IsRetryable}
		_, err := DoWithResult(ctx, slow, func() (int, error) {
			return 0, Temporary(CodeNetworkTimeout, "flaky")
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker("places", &CircuitBreakerConfig{
		MaxFailures:      2,
		ResetTimeout:     20 * time.Millisecond,
		HalfOpenAttempts: 1,
	})

	failing := func() error { return Temporary(CodeNetworkUnavailable, "down") }

	assert.Error(t, cb.Execute(failing))
	assert.Equal(t, StateClosed, cb.State())
	assert.Error(t, cb.Execute(failing))
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(func() error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker 'places' is open")

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())

	t.Run("user errors do not trip the breaker", func(t *testing.T) {
		cb.Reset()
		for range 5 {
			_ = cb.Execute(func() error { return User(CodeInvalidInput, "bad city") })
		}
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("not found answers do not trip the breaker", func(t *testing.T) {
		cb.Reset()
		for range 5 {
			_ = cb.Execute(func() error {
				return FromStatus(CodeWeatherLookupFailed, "openweathermap", http.StatusNotFound, nil)
			})
		}
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("rate limits trip the breaker", func(t *testing.T) {
		cb.Reset()
		for range 2 {
			_ = cb.Execute(func() error {
				return FromStatus(CodeWeatherLookupFailed, "openweathermap", http.StatusTooManyRequests, nil)
			})
		}
		assert.Equal(t, StateOpen, cb.State())
	})
}

func TestWithTimeoutResult(t *testing.T) {
	_, err := WithTimeoutResult(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.Error(t, err)
	assert.Equal(t, CodeToolTimeout, GetCode(err))
	assert.True(t, IsTimeout(err))

	got, err := WithTimeoutResult(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}
