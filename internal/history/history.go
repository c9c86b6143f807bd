// Package history keeps a bounded, insertion-ordered record of
// delivered alerts. It backs duplicate suppression and digest
// summaries.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/alertflow/internal/alert"
)

// Entry is one recorded alert.
type Entry struct {
	ID        string         `json:"id"`
	AlertType string         `json:"alert_type"`
	Severity  alert.Severity `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Digest summarizes the entries in a time range grouped by alert type.
type Digest struct {
	StartTime     time.Time      `json:"start_time"`
	EndTime       time.Time      `json:"end_time"`
	Notifications []Entry        `json:"notifications"`
	Counts        map[string]int `json:"notification_counts"`
}

// Filter narrows Recent results. Zero values match everything.
type Filter struct {
	Severity  alert.Severity
	AlertType string
}

// Store is a bounded FIFO of entries. All operations share one mutex;
// adds race with duplicate checks from concurrent dispatch paths.
type Store struct {
	mu      sync.Mutex
	maxSize int
	entries []Entry
	now     func() time.Time
}

// New constructs a store retaining at most maxSize entries.
func New(maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Store{maxSize: maxSize, now: time.Now}
}

// Add records msg, stamping it if needed and evicting the oldest
// entries once the store is over capacity.
func (s *Store) Add(msg alert.Message) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	entry := Entry{
		ID:        uuid.NewString(),
		AlertType: msg.AlertType,
		Severity:  msg.Severity,
		Message:   msg.Message,
		Details:   msg.Details,
		Timestamp: ts,
	}
	s.entries = append(s.entries, entry)
	if len(s.entries) > s.maxSize {
		s.entries = s.entries[len(s.entries)-s.maxSize:]
	}
	return entry
}

// Recent returns entries newer than the window matching the filter,
// in insertion order.
func (s *Store) Recent(window time.Duration, f Filter) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-window)
	var out []Entry
	for _, e := range s.entries {
		if !e.Timestamp.After(cutoff) {
			continue
		}
		if f.Severity != "" && e.Severity != f.Severity {
			continue
		}
		if f.AlertType != "" && e.AlertType != f.AlertType {
			continue
		}
		out = append(out, e)
	}
	return out
}

// IsDuplicate reports whether an entry with the same alert type and
// exact message text exists within the window. Matching is
// case-sensitive with no normalization.
func (s *Store) IsDuplicate(message, alertType string, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-window)
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if !e.Timestamp.After(cutoff) {
			continue
		}
		if e.AlertType == alertType && e.Message == message {
			return true
		}
	}
	return false
}

// GetDigest groups entries between start and end by alert type. Zero
// bounds default to the last 24 hours ending now.
func (s *Store) GetDigest(start, end time.Time) Digest {
	s.mu.Lock()
	defer s.mu.Unlock()

	if end.IsZero() {
		end = s.now()
	}
	if start.IsZero() {
		start = end.Add(-24 * time.Hour)
	}

	digest := Digest{
		StartTime: start,
		EndTime:   end,
		Counts:    make(map[string]int),
	}
	for _, e := range s.entries {
		if e.Timestamp.Before(start) || e.Timestamp.After(end) {
			continue
		}
		digest.Notifications = append(digest.Notifications, e)
		digest.Counts[e.AlertType]++
	}
	return digest
}

// ClearOld drops entries older than the given number of days.
func (s *Store) ClearOld(days int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().AddDate(0, 0, -days)
	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed
}

// Len reports the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
