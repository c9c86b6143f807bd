package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/example/alertflow/internal/alert"
	"github.com/example/alertflow/internal/ratelimit"
	"github.com/example/alertflow/internal/render"
	"github.com/example/alertflow/internal/retrypolicy"
)

const chatTimeout = 5 * time.Second

// ChatMessage is one chat webhook post. WebhookURL overrides the
// sender's default destination when set.
type ChatMessage struct {
	WebhookURL  string
	Channel     string
	Username    string
	IconEmoji   string
	Attachments []map[string]any
}

type chatPayload struct {
	Text        string           `json:"text"`
	Channel     string           `json:"channel,omitempty"`
	Username    string           `json:"username,omitempty"`
	IconEmoji   string           `json:"icon_emoji,omitempty"`
	Attachments []map[string]any `json:"attachments,omitempty"`
}

// ChatSender posts alerts to a Slack-compatible webhook. Message text
// is prefixed with a priority glyph.
type ChatSender struct {
	defaultWebhook string
	limiter        *ratelimit.Limiter
	policy         *retrypolicy.Policy
	renderer       render.Renderer
	logger         zerolog.Logger
	client         *http.Client
}

// NewChatSender wires a chat sender with its admission limiter and
// retry policy.
func NewChatSender(defaultWebhook string, limiter *ratelimit.Limiter, policy *retrypolicy.Policy, renderer render.Renderer, logger zerolog.Logger) *ChatSender {
	return &ChatSender{
		defaultWebhook: defaultWebhook,
		limiter:        limiter,
		policy:         policy,
		renderer:       renderer,
		logger:         logger,
		client:         &http.Client{Timeout: chatTimeout},
	}
}

// Send posts one message. Admission is keyed by webhook URL so separate
// workspaces do not throttle each other.
func (s *ChatSender) Send(ctx context.Context, msg ChatMessage, content Content, priority alert.Priority) error {
	url := msg.WebhookURL
	if url == "" {
		url = s.defaultWebhook
	}
	if url == "" {
		return &ConfigError{Channel: "chat", Field: "webhook url"}
	}

	if !s.limiter.Allow(url) {
		return rejectRateLimited(s.logger, "chat", url)
	}

	text := renderOrFallback(s.logger, s.renderer, content, render.FormatChat)
	payload := chatPayload{
		Text:        glyphs[priority] + " " + text,
		Channel:     msg.Channel,
		Username:    msg.Username,
		IconEmoji:   msg.IconEmoji,
		Attachments: msg.Attachments,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal chat payload: %w", err)
	}

	return deliver(ctx, s.logger, s.policy, "chat", priority, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		// Slack-style webhooks answer 200 on success, nothing else counts.
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("chat webhook returned %s", resp.Status)
		}
		return nil
	})
}
