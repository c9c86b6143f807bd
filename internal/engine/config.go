package engine

import (
	"errors"
	"fmt"
)

// ChannelType tags a channel config variant.
type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelChat    ChannelType = "chat"
	ChannelWebhook ChannelType = "webhook"
)

// ChannelConfig is a tagged union of the per-channel destinations for
// one dispatch. Exactly the variant matching Type must be set; configs
// are validated once at the orchestration boundary.
type ChannelConfig struct {
	Type    ChannelType     `json:"type"`
	Email   *EmailChannel   `json:"email,omitempty"`
	Chat    *ChatChannel    `json:"chat,omitempty"`
	Webhook *WebhookChannel `json:"webhook,omitempty"`
}

// EmailChannel addresses an email dispatch.
type EmailChannel struct {
	To []string `json:"to"`
}

// ChatChannel addresses a chat webhook dispatch. An empty WebhookURL
// falls back to the sender's default workspace webhook.
type ChatChannel struct {
	WebhookURL  string           `json:"webhook_url,omitempty"`
	Channel     string           `json:"channel,omitempty"`
	Username    string           `json:"username,omitempty"`
	IconEmoji   string           `json:"icon_emoji,omitempty"`
	Attachments []map[string]any `json:"attachments,omitempty"`
}

// WebhookChannel addresses a generic webhook dispatch.
type WebhookChannel struct {
	URL                string            `json:"url"`
	Method             string            `json:"method,omitempty"`
	Headers            map[string]string `json:"headers,omitempty"`
	InsecureSkipVerify bool              `json:"insecure_skip_verify,omitempty"`
}

// Validate checks that the config names a known type and carries the
// matching variant with its required fields.
func (c ChannelConfig) Validate() error {
	switch c.Type {
	case ChannelEmail:
		if c.Email == nil || len(c.Email.To) == 0 {
			return errors.New("email channel requires at least one recipient")
		}
	case ChannelChat:
		// WebhookURL may be empty when a default webhook is configured.
	case ChannelWebhook:
		if c.Webhook == nil || c.Webhook.URL == "" {
			return errors.New("webhook channel requires a url")
		}
	case "":
		return errors.New("channel type is required")
	default:
		return fmt.Errorf("unsupported channel type %q", c.Type)
	}
	return nil
}
