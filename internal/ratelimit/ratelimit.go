// Package ratelimit implements per-key sliding-window admission control
// for outbound notification channels.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits at most maxRequests sends per key within a sliding
// window. Timestamps older than the window are pruned lazily on each
// check, so idle keys cost nothing until touched again.
type Limiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time
	now         func() time.Time
}

// New constructs a limiter allowing maxRequests per window for each key.
func New(maxRequests int, window time.Duration) *Limiter {
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
		now:         time.Now,
	}
}

// Allow reports whether a send for key is admitted now. An admitted call
// consumes one slot; a rejected call leaves the window untouched.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.prune(key, now)
	if len(kept) >= l.maxRequests {
		l.requests[key] = kept
		return false
	}
	l.requests[key] = append(kept, now)
	return true
}

// AllowAll admits a send addressed to several keys only when every key
// has room, consuming one slot from each. A rejection leaves every
// window untouched, so one full key cannot be drained around by varying
// the rest of the set. Duplicate keys count once.
func (l *Limiter) AllowAll(keys ...string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	seen := make(map[string]struct{}, len(keys))
	unique := keys[:0:0]
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}

	admitted := true
	for _, key := range unique {
		kept := l.prune(key, now)
		l.requests[key] = kept
		if len(kept) >= l.maxRequests {
			admitted = false
		}
	}
	if !admitted {
		return false
	}
	for _, key := range unique {
		l.requests[key] = append(l.requests[key], now)
	}
	return true
}

// Remaining returns how many sends for key would currently be admitted.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.prune(key, l.now())
	l.requests[key] = kept
	if remaining := l.maxRequests - len(kept); remaining > 0 {
		return remaining
	}
	return 0
}

// Reset drops all recorded windows.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = make(map[string][]time.Time)
}

func (l *Limiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	entries := l.requests[key]
	i := 0
	for i < len(entries) && !entries[i].After(cutoff) {
		i++
	}
	return entries[i:]
}
