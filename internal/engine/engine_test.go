package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/alertflow/internal/alert"
	"github.com/example/alertflow/internal/channel"
	"github.com/example/alertflow/internal/history"
)

type stubEmail struct {
	err   error
	sends []channel.Content
	to    [][]string
}

func (s *stubEmail) Send(_ context.Context, to []string, content channel.Content, _ alert.Priority) error {
	s.to = append(s.to, to)
	s.sends = append(s.sends, content)
	return s.err
}

type stubChat struct {
	err   error
	sends []channel.Content
}

func (s *stubChat) Send(_ context.Context, _ channel.ChatMessage, content channel.Content, _ alert.Priority) error {
	s.sends = append(s.sends, content)
	return s.err
}

type stubWebhook struct {
	err  error
	reqs []channel.WebhookRequest
}

func (s *stubWebhook) Send(_ context.Context, req channel.WebhookRequest, _ alert.Priority) error {
	s.reqs = append(s.reqs, req)
	return s.err
}

func newTestEngine(email *stubEmail, chat *stubChat, webhook *stubWebhook) *Engine {
	return New(history.New(100), email, chat, webhook, zerolog.New(io.Discard))
}

func bothChannels() []ChannelConfig {
	return []ChannelConfig{
		{Type: ChannelEmail, Email: &EmailChannel{To: []string{"a@x.com"}}},
		{Type: ChannelChat, Chat: &ChatChannel{Channel: "#ops"}},
	}
}

func TestSendAlertAllChannelsSucceed(t *testing.T) {
	email, chat := &stubEmail{}, &stubChat{}
	e := newTestEngine(email, chat, &stubWebhook{})

	got := e.SendAlert(context.Background(), "disk_full", alert.SeverityCritical,
		"Disk at 95%", nil, bothChannels(), true)

	if got["email"] != alert.StatusSent || got["chat"] != alert.StatusSent {
		t.Fatalf("results = %v", got)
	}
	if len(email.sends) != 1 || len(chat.sends) != 1 {
		t.Fatalf("each channel should be attempted once")
	}
	if subj := email.sends[0].Subject; subj != "[CRITICAL] disk_full Alert" {
		t.Fatalf("subject = %q", subj)
	}
}

func TestSendAlertSuppressesDuplicate(t *testing.T) {
	e := newTestEngine(&stubEmail{}, &stubChat{}, &stubWebhook{})

	first := e.SendAlert(context.Background(), "disk_full", alert.SeverityCritical,
		"Disk at 95%", nil, bothChannels(), true)
	if first["email"] != alert.StatusSent {
		t.Fatalf("first dispatch = %v", first)
	}

	second := e.SendAlert(context.Background(), "disk_full", alert.SeverityCritical,
		"Disk at 95%", nil, bothChannels(), true)
	if second["status"] != alert.StatusSkippedDuplicate {
		t.Fatalf("second dispatch = %v, want skipped_duplicate", second)
	}
	if len(second) != 1 {
		t.Fatalf("suppressed dispatch must not touch channels: %v", second)
	}
}

func TestSendAlertDuplicateCheckDisabled(t *testing.T) {
	chat := &stubChat{}
	e := newTestEngine(&stubEmail{}, chat, &stubWebhook{})

	e.SendAlert(context.Background(), "disk_full", alert.SeverityHigh, "Disk at 95%", nil, bothChannels(), true)
	got := e.SendAlert(context.Background(), "disk_full", alert.SeverityHigh, "Disk at 95%", nil, bothChannels(), false)
	if got["chat"] != alert.StatusSent {
		t.Fatalf("results = %v", got)
	}
	if len(chat.sends) != 2 {
		t.Fatalf("chat sends = %d, want 2", len(chat.sends))
	}
}

func TestSendAlertPartialFailure(t *testing.T) {
	email := &stubEmail{}
	chat := &stubChat{err: errors.New("webhook timeout")}
	e := newTestEngine(email, chat, &stubWebhook{})

	got := e.SendAlert(context.Background(), "disk_full", alert.SeverityCritical,
		"Disk at 95%", nil, bothChannels(), true)

	if got["email"] != alert.StatusSent {
		t.Fatalf("email should be unaffected by chat failure: %v", got)
	}
	if got["chat"] != alert.StatusFailed {
		t.Fatalf("chat should report failed: %v", got)
	}
}

func TestSendAlertFailedDispatchStillRecorded(t *testing.T) {
	e := newTestEngine(&stubEmail{err: errors.New("smtp down")}, &stubChat{}, &stubWebhook{})

	e.SendAlert(context.Background(), "disk_full", alert.SeverityHigh, "Disk at 95%", nil,
		[]ChannelConfig{{Type: ChannelEmail, Email: &EmailChannel{To: []string{"a@x.com"}}}}, true)

	if !e.History().IsDuplicate("Disk at 95%", "disk_full", time.Hour) {
		t.Fatal("alert must be recorded even when every channel fails")
	}
}

func TestSendAlertInvalidConfig(t *testing.T) {
	e := newTestEngine(&stubEmail{}, &stubChat{}, &stubWebhook{})

	got := e.SendAlert(context.Background(), "disk_full", alert.SeverityHigh, "Disk at 95%", nil,
		[]ChannelConfig{{Type: ChannelWebhook, Webhook: &WebhookChannel{}}}, true)
	if got["webhook"] != alert.StatusFailed {
		t.Fatalf("missing url should fail validation: %v", got)
	}
}

func TestSendAlertWebhookPayload(t *testing.T) {
	webhook := &stubWebhook{}
	e := newTestEngine(&stubEmail{}, &stubChat{}, webhook)

	e.SendAlert(context.Background(), "disk_full", alert.SeverityUrgent, "Disk at 95%",
		map[string]any{"host": "db-1"},
		[]ChannelConfig{{Type: ChannelWebhook, Webhook: &WebhookChannel{URL: "https://hooks.local/x"}}}, true)

	if len(webhook.reqs) != 1 {
		t.Fatalf("webhook reqs = %d", len(webhook.reqs))
	}
	req := webhook.reqs[0]
	if req.Payload["priority"] != "urgent" {
		t.Fatalf("payload priority = %v", req.Payload["priority"])
	}
}

func TestPlainBodyIncludesSortedDetails(t *testing.T) {
	body := plainBody("Disk at 95%", map[string]any{"mount": "/var", "host": "db-1"})
	hostIdx := strings.Index(body, "host:")
	mountIdx := strings.Index(body, "mount:")
	if hostIdx < 0 || mountIdx < 0 || hostIdx > mountIdx {
		t.Fatalf("details should be sorted by key:\n%s", body)
	}
}

func TestSendDigestEmailOnly(t *testing.T) {
	email := &stubEmail{}
	e := newTestEngine(email, &stubChat{}, &stubWebhook{})

	e.SendAlert(context.Background(), "disk_full", alert.SeverityHigh, "Disk at 95%", nil, nil, false)
	e.SendAlert(context.Background(), "disk_full", alert.SeverityHigh, "Disk at 97%", nil, nil, false)
	e.SendAlert(context.Background(), "load", alert.SeverityLow, "load high", nil, nil, false)

	got := e.SendDigest(context.Background(), bothChannels(), time.Time{}, time.Time{})
	if got["email"] != alert.StatusSent {
		t.Fatalf("digest results = %v", got)
	}
	if _, ok := got["chat"]; ok {
		t.Fatal("digest must only go to email channels")
	}
	body := email.sends[0].Body
	if !strings.Contains(body, "disk_full: 2") || !strings.Contains(body, "load: 1") {
		t.Fatalf("digest body missing counts:\n%s", body)
	}
}

func TestChannelConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ChannelConfig
		wantErr bool
	}{
		{"valid email", ChannelConfig{Type: ChannelEmail, Email: &EmailChannel{To: []string{"a@x.com"}}}, false},
		{"email without recipients", ChannelConfig{Type: ChannelEmail, Email: &EmailChannel{}}, true},
		{"email without variant", ChannelConfig{Type: ChannelEmail}, true},
		{"valid chat", ChannelConfig{Type: ChannelChat}, false},
		{"valid webhook", ChannelConfig{Type: ChannelWebhook, Webhook: &WebhookChannel{URL: "https://x"}}, false},
		{"webhook without url", ChannelConfig{Type: ChannelWebhook, Webhook: &WebhookChannel{}}, true},
		{"missing type", ChannelConfig{}, true},
		{"unknown type", ChannelConfig{Type: "sms"}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
