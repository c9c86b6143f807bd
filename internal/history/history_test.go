package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/example/alertflow/internal/alert"
)

func TestDuplicateDetection(t *testing.T) {
	s := New(100)
	s.Add(alert.Message{AlertType: "load", Severity: alert.SeverityHigh, Message: "High load"})

	if !s.IsDuplicate("High load", "load", time.Hour) {
		t.Fatal("same type and message within window should be a duplicate")
	}
	if s.IsDuplicate("High load", "disk", time.Hour) {
		t.Fatal("different alert type should not be a duplicate")
	}
	if s.IsDuplicate("high load", "load", time.Hour) {
		t.Fatal("matching is case-sensitive")
	}
}

func TestDuplicateWindowExpires(t *testing.T) {
	current := time.Unix(1700000000, 0)
	s := New(100)
	s.now = func() time.Time { return current }

	s.Add(alert.Message{AlertType: "load", Message: "High load"})
	current = current.Add(61 * time.Minute)
	if s.IsDuplicate("High load", "load", time.Hour) {
		t.Fatal("entry outside the window should not suppress")
	}
}

func TestFIFOEviction(t *testing.T) {
	s := New(5)
	for i := 0; i < 6; i++ {
		s.Add(alert.Message{AlertType: "load", Message: fmt.Sprintf("alert %d", i)})
	}

	if got := s.Len(); got != 5 {
		t.Fatalf("len = %d, want 5", got)
	}
	entries := s.Recent(time.Hour, Filter{})
	for _, e := range entries {
		if e.Message == "alert 0" {
			t.Fatal("oldest entry should have been evicted")
		}
	}
	if entries[0].Message != "alert 1" {
		t.Fatalf("first retained entry = %q, want alert 1", entries[0].Message)
	}
}

func TestRecentFilters(t *testing.T) {
	s := New(100)
	s.Add(alert.Message{AlertType: "disk", Severity: alert.SeverityHigh, Message: "disk 90"})
	s.Add(alert.Message{AlertType: "disk", Severity: alert.SeverityLow, Message: "disk 50"})
	s.Add(alert.Message{AlertType: "load", Severity: alert.SeverityHigh, Message: "load 9"})

	got := s.Recent(time.Hour, Filter{Severity: alert.SeverityHigh})
	if len(got) != 2 {
		t.Fatalf("high severity entries = %d, want 2", len(got))
	}
	got = s.Recent(time.Hour, Filter{AlertType: "disk", Severity: alert.SeverityHigh})
	if len(got) != 1 || got[0].Message != "disk 90" {
		t.Fatalf("filtered entries = %+v", got)
	}
}

func TestRecentWindow(t *testing.T) {
	current := time.Unix(1700000000, 0)
	s := New(100)
	s.now = func() time.Time { return current }

	s.Add(alert.Message{AlertType: "load", Message: "old"})
	current = current.Add(30 * time.Minute)
	s.Add(alert.Message{AlertType: "load", Message: "new"})

	got := s.Recent(10*time.Minute, Filter{})
	if len(got) != 1 || got[0].Message != "new" {
		t.Fatalf("window should exclude old entry, got %+v", got)
	}
}

func TestDigestGroupsByType(t *testing.T) {
	s := New(100)
	s.Add(alert.Message{AlertType: "disk", Message: "a"})
	s.Add(alert.Message{AlertType: "disk", Message: "b"})
	s.Add(alert.Message{AlertType: "load", Message: "c"})

	d := s.GetDigest(time.Time{}, time.Time{})
	if len(d.Notifications) != 3 {
		t.Fatalf("notifications = %d, want 3", len(d.Notifications))
	}
	if d.Counts["disk"] != 2 || d.Counts["load"] != 1 {
		t.Fatalf("counts = %v", d.Counts)
	}
	if !d.StartTime.Before(d.EndTime) {
		t.Fatal("default digest range should span the last 24h")
	}
}

func TestClearOld(t *testing.T) {
	current := time.Unix(1700000000, 0)
	s := New(100)
	s.now = func() time.Time { return current }

	s.Add(alert.Message{AlertType: "disk", Message: "stale"})
	current = current.AddDate(0, 0, 8)
	s.Add(alert.Message{AlertType: "disk", Message: "fresh"})

	if removed := s.ClearOld(7); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if got := s.Len(); got != 1 {
		t.Fatalf("len = %d, want 1", got)
	}
}
