package channel

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/example/alertflow/internal/alert"
	"github.com/example/alertflow/internal/ratelimit"
	"github.com/example/alertflow/internal/retrypolicy"
)

const webhookTimeout = 5 * time.Second

// WebhookRequest describes one generic webhook delivery: an arbitrary
// JSON payload to an arbitrary URL with caller-chosen method, headers,
// and TLS verification.
type WebhookRequest struct {
	URL                string
	Method             string
	Headers            map[string]string
	Payload            map[string]any
	InsecureSkipVerify bool
}

// WebhookSender posts caller-shaped JSON payloads. Any 2xx response is
// a success.
type WebhookSender struct {
	limiter        *ratelimit.Limiter
	policy         *retrypolicy.Policy
	logger         zerolog.Logger
	client         *http.Client
	insecureClient *http.Client
}

// NewWebhookSender wires a generic webhook sender with its admission
// limiter and retry policy.
func NewWebhookSender(limiter *ratelimit.Limiter, policy *retrypolicy.Policy, logger zerolog.Logger) *WebhookSender {
	return &WebhookSender{
		limiter: limiter,
		policy:  policy,
		logger:  logger,
		client:  &http.Client{Timeout: webhookTimeout},
		insecureClient: &http.Client{
			Timeout: webhookTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

// Send delivers one webhook request. Admission is keyed by URL.
func (s *WebhookSender) Send(ctx context.Context, req WebhookRequest, priority alert.Priority) error {
	if req.URL == "" {
		return &ConfigError{Channel: "webhook", Field: "url"}
	}

	if !s.limiter.Allow(req.URL) {
		return rejectRateLimited(s.logger, "webhook", req.URL)
	}

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	client := s.client
	if req.InsecureSkipVerify {
		client = s.insecureClient
	}

	return deliver(ctx, s.logger, s.policy, "webhook", priority, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned %s", resp.Status)
		}
		return nil
	})
}
