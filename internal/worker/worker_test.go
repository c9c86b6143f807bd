package worker

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/alertflow/internal/alert"
	"github.com/example/alertflow/internal/batch"
	"github.com/example/alertflow/internal/channel"
	"github.com/example/alertflow/internal/engine"
	"github.com/example/alertflow/internal/history"
	"github.com/example/alertflow/internal/intake"
)

type recordingEmail struct {
	sends int
	err   error
}

func (r *recordingEmail) Send(context.Context, []string, channel.Content, alert.Priority) error {
	r.sends++
	return r.err
}

type failingChat struct{}

func (failingChat) Send(context.Context, channel.ChatMessage, channel.Content, alert.Priority) error {
	return context.DeadlineExceeded
}

type noopWebhook struct{}

func (noopWebhook) Send(context.Context, channel.WebhookRequest, alert.Priority) error {
	return nil
}

func TestAllFailed(t *testing.T) {
	tests := []struct {
		name    string
		results map[string]string
		want    bool
	}{
		{"empty", map[string]string{}, false},
		{"all failed", map[string]string{"email": "failed", "chat": "failed"}, true},
		{"partial", map[string]string{"email": "sent", "chat": "failed"}, false},
		{"skipped duplicate", map[string]string{"status": "skipped_duplicate"}, false},
		{"queued", map[string]string{"email": "queued"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := allFailed(tc.results); got != tc.want {
				t.Fatalf("allFailed(%v) = %v, want %v", tc.results, got, tc.want)
			}
		})
	}
}

func TestProcessBatchedEmailIsQueued(t *testing.T) {
	email := &recordingEmail{}
	logger := zerolog.New(io.Discard)
	e := engine.New(history.New(10), email, failingChat{}, noopWebhook{}, logger)
	b := batch.New(100, 0, nil, logger)

	w := &Worker{Engine: e, Batcher: b, Logger: logger}
	env := intake.Envelope{
		ID:        "a1",
		AlertType: "disk_full",
		Severity:  alert.SeverityNormal,
		Message:   "Disk at 80%",
		Batch:     true,
		Channels: []engine.ChannelConfig{
			{Type: engine.ChannelEmail, Email: &engine.EmailChannel{To: []string{"a@x.com"}}},
		},
	}

	results := w.process(context.Background(), env)
	if results["email"] != "queued" {
		t.Fatalf("results = %v, want queued email", results)
	}
	if email.sends != 0 {
		t.Fatal("batched email must not be sent immediately")
	}
	if b.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", b.Pending())
	}
}

func TestProcessDispatchesNonBatchedChannels(t *testing.T) {
	email := &recordingEmail{}
	logger := zerolog.New(io.Discard)
	e := engine.New(history.New(10), email, failingChat{}, noopWebhook{}, logger)

	w := &Worker{Engine: e, Logger: logger}
	env := intake.Envelope{
		ID:        "a2",
		AlertType: "disk_full",
		Severity:  alert.SeverityCritical,
		Message:   "Disk at 95%",
		Channels: []engine.ChannelConfig{
			{Type: engine.ChannelEmail, Email: &engine.EmailChannel{To: []string{"a@x.com"}}},
			{Type: engine.ChannelChat, Chat: &engine.ChatChannel{Channel: "#ops"}},
		},
	}

	results := w.process(context.Background(), env)
	if results["email"] != alert.StatusSent {
		t.Fatalf("email = %v, want sent", results["email"])
	}
	if results["chat"] != alert.StatusFailed {
		t.Fatalf("chat = %v, want failed", results["chat"])
	}
	if email.sends != 1 {
		t.Fatalf("email sends = %d, want 1", email.sends)
	}
}
