// Package channel implements the delivery transports: SMTP email, chat
// webhooks, and generic webhooks. Every sender applies admission
// control before the first attempt and a priority-driven retry schedule
// after it.
package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/example/alertflow/internal/alert"
	"github.com/example/alertflow/internal/render"
	"github.com/example/alertflow/internal/retrypolicy"
)

// ErrRateLimited is returned when admission control rejects a send.
// Rate-limit rejections are terminal and never retried.
var ErrRateLimited = errors.New("rate limit exceeded")

// ConfigError marks a send that cannot proceed because a required
// channel field is missing. Terminal, never retried.
type ConfigError struct {
	Channel string
	Field   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s channel: missing %s", e.Channel, e.Field)
}

// Content is the channel-agnostic message body handed to a sender.
// When Template is set the sender renders it with Data; otherwise the
// literal Body (and HTMLBody for email) is used as supplied.
type Content struct {
	Subject  string
	Body     string
	HTMLBody string
	Template string
	Data     map[string]any
}

var (
	sentCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_sent_total",
		Help: "Delivery outcomes per channel",
	}, []string{"channel", "status"})
	rateLimitedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_rate_limited_total",
		Help: "Sends rejected by admission control per channel",
	}, []string{"channel"})
	latencyHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notification_latency_seconds",
		Help:    "Delivery attempt latency per channel",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})
)

// glyphs prefix chat messages so urgency survives clients that strip
// formatting.
var glyphs = map[alert.Priority]string{
	alert.PriorityLow:    "ℹ️",
	alert.PriorityNormal: "\U0001F4DD",
	alert.PriorityHigh:   "⚠️",
	alert.PriorityUrgent: "\U0001F6A8",
}

// deliver runs attempt under the retry schedule for priority, emitting
// one latency observation per attempt and a final outcome counter.
// Terminal errors wrapped with backoff.Permanent stop the loop early.
func deliver(ctx context.Context, logger zerolog.Logger, policy *retrypolicy.Policy, channelName string, priority alert.Priority, attempt func(context.Context) error) error {
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		start := time.Now()
		attemptErr := attempt(ctx)
		latencyHistogram.WithLabelValues(channelName).Observe(time.Since(start).Seconds())
		if attemptErr != nil {
			logger.Warn().Err(attemptErr).
				Str("channel", channelName).
				Str("priority", priority.String()).
				Int("attempt", attempts).
				Msg("delivery attempt failed")
		}
		return attemptErr
	}, policy.Backoff(ctx, priority))

	if err != nil {
		sentCounter.WithLabelValues(channelName, "error").Inc()
		return fmt.Errorf("%s delivery failed after %d attempts: %w", channelName, attempts, err)
	}
	sentCounter.WithLabelValues(channelName, "sent").Inc()
	return nil
}

// rejectRateLimited records and reports an admission rejection.
func rejectRateLimited(logger zerolog.Logger, channelName, key string) error {
	rateLimitedCounter.WithLabelValues(channelName).Inc()
	logger.Warn().Str("channel", channelName).Str("key", key).Msg("send rejected by rate limiter")
	return ErrRateLimited
}

// renderOrFallback resolves the content body through the renderer,
// falling back to a literal rendering when the template fails.
func renderOrFallback(logger zerolog.Logger, renderer render.Renderer, content Content, format render.Format) string {
	if content.Template == "" || renderer == nil {
		return content.Body
	}
	body, err := renderer.Render(content.Template, content.Data, format)
	if err != nil {
		logger.Warn().Err(err).Str("template", content.Template).Msg("template render failed, using fallback body")
		return render.Fallback(content.Subject, content.Body, content.Data)
	}
	return body
}
