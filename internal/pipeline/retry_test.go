package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/desertthunder/vmx/internal/shared"
)

func TestRetryDo(t *testing.T) {
	config := RetryConfig{MaxRetries: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1}

	t.Run("returns first success without retrying", func(t *testing.T) {
		calls := 0
		result, err := retryDo(context.Background(), config, func() (string, error) {
			calls++
			return "ok", nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "ok" || calls != 1 {
			t.Errorf("expected single successful call, got result %q after %d calls", result, calls)
		}
	})

	t.Run("retries transient errors until success", func(t *testing.T) {
		calls := 0
		result, err := retryDo(context.Background(), config, func() (string, error) {
			calls++
			if calls < 3 {
				return "", fmt.Errorf("%w: throttled", shared.ErrTransient)
			}
			return "ok", nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "ok" || calls != 3 {
			t.Errorf("expected success on third call, got %q after %d calls", result, calls)
		}
	})

	t.Run("stops immediately on permanent error", func(t *testing.T) {
		permanent := errors.New("bad credentials")
		calls := 0
		_, err := retryDo(context.Background(), config, func() (string, error) {
			calls++
			return "", permanent
		})
		if !errors.Is(err, permanent) {
			t.Errorf("expected permanent error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected one call, got %d", calls)
		}
	})

	t.Run("returns last error after exhausting retries", func(t *testing.T) {
		calls := 0
		_, err := retryDo(context.Background(), config, func() (string, error) {
			calls++
			return "", fmt.Errorf("%w: attempt %d", shared.ErrTransient, calls)
		})
		if !errors.Is(err, shared.ErrTransient) {
			t.Errorf("expected transient error, got %v", err)
		}
		if calls != config.MaxRetries+1 {
			t.Errorf("expected %d calls, got %d", config.MaxRetries+1, calls)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		_, err := retryDo(ctx, config, func() (string, error) {
			calls++
			return "", shared.ErrTransient
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if calls != 0 {
			t.Errorf("expected no calls after cancellation, got %d", calls)
		}
	})
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transient sentinel", fmt.Errorf("%w: 503", shared.ErrTransient), true},
		{"connection error", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"plain error", errors.New("schema violation"), false},
		{"not found", shared.ErrNotFound, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isRetryable(tc.err); got != tc.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
