// Package engine is the orchestration layer: it applies duplicate
// suppression, records history, and fans one alert out to every
// configured channel, isolating failures between channels.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/alertflow/internal/alert"
	"github.com/example/alertflow/internal/channel"
	"github.com/example/alertflow/internal/history"
)

const defaultDedupWindow = time.Hour

// EmailSender, ChatSender, and WebhookSender are the slices of the
// channel package the engine dispatches through.
type EmailSender interface {
	Send(ctx context.Context, to []string, content channel.Content, priority alert.Priority) error
}

type ChatSender interface {
	Send(ctx context.Context, msg channel.ChatMessage, content channel.Content, priority alert.Priority) error
}

type WebhookSender interface {
	Send(ctx context.Context, req channel.WebhookRequest, priority alert.Priority) error
}

// Engine is the top-level dispatch facade, constructed once at process
// startup and shared by reference.
type Engine struct {
	store       *history.Store
	email       EmailSender
	chat        ChatSender
	webhook     WebhookSender
	logger      zerolog.Logger
	tracer      trace.Tracer
	dedupWindow time.Duration
}

// New wires an engine over the three channel senders and a history
// store.
func New(store *history.Store, email EmailSender, chat ChatSender, webhook WebhookSender, logger zerolog.Logger) *Engine {
	return &Engine{
		store:       store,
		email:       email,
		chat:        chat,
		webhook:     webhook,
		logger:      logger,
		tracer:      otel.Tracer("engine"),
		dedupWindow: defaultDedupWindow,
	}
}

// History exposes the engine's record of delivered alerts.
func (e *Engine) History() *history.Store {
	return e.store
}

// SendAlert dispatches one alert to every channel in channels and
// returns the per-channel outcome map. It never returns an error:
// channel failures surface as "failed" statuses, and a suppressed
// duplicate short-circuits to {"status": "skipped_duplicate"}.
func (e *Engine) SendAlert(ctx context.Context, alertType string, severity alert.Severity, message string, details map[string]any, channels []ChannelConfig, checkDuplicates bool) map[string]string {
	ctx, span := e.tracer.Start(ctx, "send_alert")
	defer span.End()
	span.SetAttributes(
		attribute.String("alert.type", alertType),
		attribute.String("alert.severity", string(severity)),
	)

	if checkDuplicates && e.store.IsDuplicate(message, alertType, e.dedupWindow) {
		e.logger.Info().Str("alert_type", alertType).Msg("duplicate alert suppressed")
		return map[string]string{"status": alert.StatusSkippedDuplicate}
	}

	msg := alert.Message{
		AlertType: alertType,
		Severity:  severity,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
	// Recorded before dispatch so bursts of the same alert are
	// suppressed even while channels are still being attempted.
	e.store.Add(msg)

	priority := alert.PriorityFor(severity)
	subject := subjectFor(alertType, severity)
	plain := plainBody(message, details)

	results := make(map[string]string, len(channels))
	for _, cfg := range channels {
		name := string(cfg.Type)
		if err := e.dispatch(ctx, cfg, subject, plain, message, priority); err != nil {
			e.logger.Error().Err(err).Str("channel", name).Str("alert_type", alertType).Msg("channel dispatch failed")
			results[name] = alert.StatusFailed
			continue
		}
		results[name] = alert.StatusSent
	}
	return results
}

func (e *Engine) dispatch(ctx context.Context, cfg ChannelConfig, subject, plain, message string, priority alert.Priority) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	switch cfg.Type {
	case ChannelEmail:
		return e.email.Send(ctx, cfg.Email.To, channel.Content{Subject: subject, Body: plain}, priority)
	case ChannelChat:
		chat := channel.ChatMessage{}
		if cfg.Chat != nil {
			chat = channel.ChatMessage{
				WebhookURL:  cfg.Chat.WebhookURL,
				Channel:     cfg.Chat.Channel,
				Username:    cfg.Chat.Username,
				IconEmoji:   cfg.Chat.IconEmoji,
				Attachments: cfg.Chat.Attachments,
			}
		}
		return e.chat.Send(ctx, chat, channel.Content{Subject: subject, Body: subject + "\n" + message}, priority)
	case ChannelWebhook:
		return e.webhook.Send(ctx, channel.WebhookRequest{
			URL:                cfg.Webhook.URL,
			Method:             cfg.Webhook.Method,
			Headers:            cfg.Webhook.Headers,
			InsecureSkipVerify: cfg.Webhook.InsecureSkipVerify,
			Payload: map[string]any{
				"subject":  subject,
				"message":  message,
				"priority": priority.String(),
			},
		}, priority)
	default:
		return fmt.Errorf("unsupported channel type %q", cfg.Type)
	}
}

// SendDigest summarizes history between start and end (zero values
// default to the last 24h) and dispatches it to the email channels in
// channels. Non-email channels are ignored.
func (e *Engine) SendDigest(ctx context.Context, channels []ChannelConfig, start, end time.Time) map[string]string {
	ctx, span := e.tracer.Start(ctx, "send_digest")
	defer span.End()

	digest := e.store.GetDigest(start, end)
	subject := fmt.Sprintf("Notification digest: %d alerts", len(digest.Notifications))
	body := digestBody(digest)

	results := make(map[string]string)
	for _, cfg := range channels {
		if cfg.Type != ChannelEmail {
			continue
		}
		if err := cfg.Validate(); err != nil {
			results[string(cfg.Type)] = alert.StatusFailed
			continue
		}
		if err := e.email.Send(ctx, cfg.Email.To, channel.Content{Subject: subject, Body: body}, alert.PriorityNormal); err != nil {
			e.logger.Error().Err(err).Msg("digest dispatch failed")
			results[string(cfg.Type)] = alert.StatusFailed
			continue
		}
		results[string(cfg.Type)] = alert.StatusSent
	}
	return results
}

func subjectFor(alertType string, severity alert.Severity) string {
	return fmt.Sprintf("[%s] %s Alert", strings.ToUpper(string(severity)), alertType)
}

func plainBody(message string, details map[string]any) string {
	var b strings.Builder
	b.WriteString(message)
	if len(details) == 0 {
		return b.String()
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString("\n\nDetails:")
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("\n  %s: %v", k, details[k]))
	}
	return b.String()
}

func digestBody(d history.Digest) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Alerts from %s to %s\n\nBy type:\n",
		d.StartTime.Format(time.RFC3339), d.EndTime.Format(time.RFC3339)))

	types := make([]string, 0, len(d.Counts))
	for t := range d.Counts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		b.WriteString(fmt.Sprintf("  %s: %d\n", t, d.Counts[t]))
	}

	b.WriteString("\nRecent alerts:\n")
	for _, e := range d.Notifications {
		b.WriteString(fmt.Sprintf("  [%s] %s: %s (%s)\n",
			strings.ToUpper(string(e.Severity)), e.AlertType, e.Message,
			e.Timestamp.Format(time.RFC3339)))
	}
	return b.String()
}
