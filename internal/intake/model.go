package intake

import (
	"context"
	"time"

	"github.com/example/alertflow/internal/alert"
	"github.com/example/alertflow/internal/engine"
)

// AlertRequest is the body of POST /v1/alerts.
type AlertRequest struct {
	AlertType       string                 `json:"alert_type"`
	Severity        alert.Severity         `json:"severity"`
	Message         string                 `json:"message"`
	Details         map[string]any         `json:"details,omitempty"`
	Channels        []engine.ChannelConfig `json:"channels"`
	CheckDuplicates *bool                  `json:"check_duplicates,omitempty"`
	Batch           bool                   `json:"batch,omitempty"`
}

// Envelope is the accepted alert as persisted and published to the
// delivery topic.
type Envelope struct {
	ID              string                 `json:"id"`
	IdempotencyKey  string                 `json:"idempotency_key"`
	AlertType       string                 `json:"alert_type"`
	Severity        alert.Severity         `json:"severity"`
	Message         string                 `json:"message"`
	Details         map[string]any         `json:"details,omitempty"`
	Channels        []engine.ChannelConfig `json:"channels"`
	CheckDuplicates bool                   `json:"check_duplicates"`
	Batch           bool                   `json:"batch"`
	CreatedAt       time.Time              `json:"created_at"`
}

// AlertRepository persists accepted alerts idempotently. The bool
// result reports whether the idempotency key was already used.
type AlertRepository interface {
	CreateAlert(ctx context.Context, env Envelope) (Envelope, bool, error)
}
