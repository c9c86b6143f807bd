package alert

import "time"

// Severity classifies an alert for display and filtering. It is distinct
// from Priority, which only drives retry behavior and urgency markers.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityNormal   Severity = "normal"
	SeverityHigh     Severity = "high"
	SeverityUrgent   Severity = "urgent"
	SeverityCritical Severity = "critical"
)

// Priority controls retry counts, retry delays, and channel-specific
// urgency markers (email priority header, chat glyph prefix).
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "normal"
	}
}

// PriorityFor derives the delivery priority from an alert severity.
// Critical and urgent alerts share the most aggressive retry schedule.
func PriorityFor(severity Severity) Priority {
	switch severity {
	case SeverityLow:
		return PriorityLow
	case SeverityHigh:
		return PriorityHigh
	case SeverityUrgent, SeverityCritical:
		return PriorityUrgent
	default:
		return PriorityNormal
	}
}

// Message is the channel-agnostic alert payload. It is built once per
// dispatch and not mutated after creation.
type Message struct {
	AlertType string         `json:"alert_type"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Per-channel delivery outcomes reported by the orchestrator.
const (
	StatusSent             = "sent"
	StatusFailed           = "failed"
	StatusSkippedDuplicate = "skipped_duplicate"
)
