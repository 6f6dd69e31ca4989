package s3client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/aws/smithy-go"
)

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 100 * time.Millisecond
	defaultMaxDelay   = 30 * time.Second
)

type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var defaultRetryPolicy = retryPolicy{
	maxRetries: defaultMaxRetries,
	baseDelay:  defaultBaseDelay,
	maxDelay:   defaultMaxDelay,
}

func withRetry[T any](ctx context.Context, policy retryPolicy, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= policy.maxRetries; attempt++ {
		output, err := fn()
		if err == nil {
			return output, nil
		}

		if !isRetryableError(err) {
			return zero, err
		}

		lastErr = err
		if attempt < policy.maxRetries {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(policy.delay(attempt)):
			}
		}
	}
	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryableError checks if an error is retryable
func isRetryableError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "ServiceUnavailable", "RequestTimeout", "RequestTimeoutException":
			return true
		}
	}
	// Retry on 5xx errors
	if code := httpStatusCode(err); code >= 500 && code < 600 {
		return true
	}
	// Also retry on network errors
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}

// httpStatusCode returns the HTTP status carried by an SDK response error, or 0.
func httpStatusCode(err error) int {
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}

// delay calculates the retry delay with exponential backoff and jitter
func (p retryPolicy) delay(attempt int) time.Duration {
	base := float64(p.baseDelay)
	delay := base * math.Pow(2.0, float64(attempt))

	// ±25%
	jitter := delay * 0.25 * (2*rand.Float64() - 1)
	delay += jitter

	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}

	return time.Duration(delay)
}
