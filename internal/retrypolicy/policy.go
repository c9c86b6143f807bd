// Package retrypolicy maps delivery priorities to retry schedules.
package retrypolicy

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/example/alertflow/internal/alert"
)

// Config is the retry schedule for one priority level. MaxAttempts is
// the total number of delivery attempts; Delay separates consecutive
// attempts, so a schedule of n attempts sleeps n-1 times.
type Config struct {
	MaxAttempts int
	Delay       time.Duration
}

// Policy resolves a Config per priority. Higher priorities retry more
// often with shorter delays.
type Policy struct {
	configs map[alert.Priority]Config
}

// Default returns the standard schedule:
// urgent 5x/10s, high 3x/30s, normal 2x/60s, low 1x/300s.
func Default() *Policy {
	return &Policy{configs: map[alert.Priority]Config{
		alert.PriorityUrgent: {MaxAttempts: 5, Delay: 10 * time.Second},
		alert.PriorityHigh:   {MaxAttempts: 3, Delay: 30 * time.Second},
		alert.PriorityNormal: {MaxAttempts: 2, Delay: 60 * time.Second},
		alert.PriorityLow:    {MaxAttempts: 1, Delay: 300 * time.Second},
	}}
}

// NewPolicy builds a policy from explicit per-priority schedules.
// Priorities missing from configs fall back to the normal schedule.
func NewPolicy(configs map[alert.Priority]Config) *Policy {
	return &Policy{configs: configs}
}

// ConfigFor returns the schedule for priority, defaulting to normal for
// unknown levels.
func (p *Policy) ConfigFor(priority alert.Priority) Config {
	if cfg, ok := p.configs[priority]; ok {
		return cfg
	}
	return p.configs[alert.PriorityNormal]
}

// Backoff builds a cancellable fixed-delay backoff honoring the
// schedule for priority. Callers mark terminal errors with
// backoff.Permanent to stop early.
func (p *Policy) Backoff(ctx context.Context, priority alert.Priority) backoff.BackOff {
	cfg := p.ConfigFor(priority)
	retries := cfg.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.Delay), uint64(retries))
	return backoff.WithContext(b, ctx)
}
