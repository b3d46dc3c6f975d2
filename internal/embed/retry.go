package embed

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"

	sdcherrors "github.com/smartctx/sdch/internal/errors"
)

const (
	// DefaultMaxAttempts is the total number of tries per batch,
	// including the first.
	DefaultMaxAttempts = 3

	// DefaultInitialDelay is the backoff before the first retry.
	DefaultInitialDelay = 200 * time.Millisecond

	// DefaultAttemptTimeout bounds a single API call.
	DefaultAttemptTimeout = 30 * time.Second
)

// retryConfig returns the backoff policy for embedding API calls.
func retryConfig() sdcherrors.RetryConfig {
	return sdcherrors.RetryConfig{
		MaxRetries:   DefaultMaxAttempts - 1,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		ShouldRetry:  IsRetryableError,
	}
}

// IsRetryableError reports whether an embedding attempt failed in a way
// worth retrying: rate limiting, server errors, and transient network
// failures. Cancellation and client-side mistakes are not retried.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// A deadline here means the per-attempt timeout fired. The parent
	// context is checked separately by the retry loop.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
