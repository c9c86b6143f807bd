package retrypolicy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/example/alertflow/internal/alert"
)

func TestConfigFor(t *testing.T) {
	p := Default()

	tests := []struct {
		priority alert.Priority
		attempts int
		delay    time.Duration
	}{
		{alert.PriorityUrgent, 5, 10 * time.Second},
		{alert.PriorityHigh, 3, 30 * time.Second},
		{alert.PriorityNormal, 2, 60 * time.Second},
		{alert.PriorityLow, 1, 300 * time.Second},
		{alert.Priority(99), 2, 60 * time.Second},
	}

	for _, tc := range tests {
		t.Run(tc.priority.String(), func(t *testing.T) {
			cfg := p.ConfigFor(tc.priority)
			if cfg.MaxAttempts != tc.attempts {
				t.Fatalf("attempts = %d, want %d", cfg.MaxAttempts, tc.attempts)
			}
			if cfg.Delay != tc.delay {
				t.Fatalf("delay = %v, want %v", cfg.Delay, tc.delay)
			}
		})
	}
}

func TestBackoffAttemptBound(t *testing.T) {
	p := NewPolicy(map[alert.Priority]Config{
		alert.PriorityHigh: {MaxAttempts: 3, Delay: time.Millisecond},
	})

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return errors.New("transport down")
	}, p.Backoff(context.Background(), alert.PriorityHigh))

	if err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestBackoffStopsOnSuccess(t *testing.T) {
	p := NewPolicy(map[alert.Priority]Config{
		alert.PriorityHigh: {MaxAttempts: 3, Delay: time.Millisecond},
	})

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transport down")
		}
		return nil
	}, p.Backoff(context.Background(), alert.PriorityHigh))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestBackoffHonorsCancellation(t *testing.T) {
	p := NewPolicy(map[alert.Priority]Config{
		alert.PriorityLow: {MaxAttempts: 2, Delay: time.Hour},
	})

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- backoff.Retry(func() error {
			attempts++
			return errors.New("transport down")
		}, p.Backoff(ctx, alert.PriorityLow))
	}()

	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error after cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("retry loop did not abort on context cancellation")
	}
	if attempts > 1 {
		t.Fatalf("attempts = %d, want at most 1 before cancellation", attempts)
	}
}
