package s3client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/aws/smithy-go"
)

var fastRetry = retryPolicy{
	maxRetries: 3,
	baseDelay:  time.Millisecond,
	maxDelay:   5 * time.Millisecond,
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown"}, true},
		{"service unavailable", &smithy.GenericAPIError{Code: "ServiceUnavailable"}, true},
		{"wrapped request timeout", fmt.Errorf("put: %w", &smithy.GenericAPIError{Code: "RequestTimeout"}), true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		attempts := 0
		got, err := withRetry(context.Background(), fastRetry, func() (string, error) {
			attempts++
			if attempts < 3 {
				return "", &smithy.GenericAPIError{Code: "SlowDown"}
			}
			return "ok", nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "ok" || attempts != 3 {
			t.Errorf("got %q after %d attempts, want \"ok\" after 3", got, attempts)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		attempts := 0
		_, err := withRetry(context.Background(), fastRetry, func() (int, error) {
			attempts++
			return 0, io.ErrUnexpectedEOF
		})
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Fatalf("expected wrapped io.ErrUnexpectedEOF, got %v", err)
		}
		if attempts != fastRetry.maxRetries+1 {
			t.Errorf("attempts = %d, want %d", attempts, fastRetry.maxRetries+1)
		}
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		attempts := 0
		_, err := withRetry(context.Background(), fastRetry, func() (int, error) {
			attempts++
			return 0, &smithy.GenericAPIError{Code: "AccessDenied"}
		})
		if err == nil || attempts != 1 {
			t.Errorf("err = %v, attempts = %d; want error after 1 attempt", err, attempts)
		}
	})

	t.Run("stops waiting when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := retryPolicy{maxRetries: 3, baseDelay: time.Hour, maxDelay: time.Hour}
		_, err := withRetry(ctx, slow, func() (int, error) {
			return 0, &smithy.GenericAPIError{Code: "SlowDown"}
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestRetryDelayIsCapped(t *testing.T) {
	p := retryPolicy{maxRetries: 10, baseDelay: 100 * time.Millisecond, maxDelay: time.Second}
	for attempt := 0; attempt < 10; attempt++ {
		if d := p.delay(attempt); d > time.Second || d <= 0 {
			t.Errorf("delay(%d) = %v, want within (0, 1s]", attempt, d)
		}
	}
}
