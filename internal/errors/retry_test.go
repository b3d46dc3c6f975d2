package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

// Verify a function that succeeds immediately is called exactly once.
func TestRetry_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

// Verify transient failures are retried until the function succeeds.
func TestRetry_EventualSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

// Verify the attempt budget is the initial call plus MaxRetries retries.
func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(2), func() error {
		calls++
		return errors.New("persistent")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.Contains(t, err.Error(), "persistent")
}

// Verify ShouldRetry short-circuits on errors it rejects.
func TestRetry_ShouldRetryRejects(t *testing.T) {
	permanent := errors.New("bad request")
	cfg := fastRetryConfig(5)
	cfg.ShouldRetry = func(err error) bool {
		return !errors.Is(err, permanent)
	}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
	assert.NotContains(t, err.Error(), "failed after")
}

// Verify a cancelled context aborts the loop between attempts.
func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Retry(ctx, fastRetryConfig(5), func() error {
		calls++
		cancel()
		return errors.New("transient")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

// Verify RetryWithResult returns the value from the successful attempt.
func TestRetryWithResult_ReturnsValue(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastRetryConfig(3), func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("transient")
		}
		return "payload", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "payload", got)
	assert.Equal(t, 2, calls)
}

// Verify the wrapped cause survives error unwrapping after exhaustion.
func TestRetryWithResult_WrapsCause(t *testing.T) {
	cause := errors.New("upstream down")
	_, err := RetryWithResult(context.Background(), fastRetryConfig(1), func() (int, error) {
		return 0, cause
	})

	require.ErrorIs(t, err, cause)
}
