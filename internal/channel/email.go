package channel

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/example/alertflow/internal/alert"
	"github.com/example/alertflow/internal/ratelimit"
	"github.com/example/alertflow/internal/render"
	"github.com/example/alertflow/internal/retrypolicy"
)

// SMTPConfig holds the connection settings for the email sender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	From     string
}

// priorityHeaders maps delivery priority to the numeric X-Priority
// header value (1 = most urgent).
var priorityHeaders = map[alert.Priority]string{
	alert.PriorityLow:    "5",
	alert.PriorityNormal: "3",
	alert.PriorityHigh:   "2",
	alert.PriorityUrgent: "1",
}

const (
	smtpDialTimeout = 10 * time.Second
	// smtpTimeout bounds the whole SMTP conversation, not just the
	// dial, so a server that accepts and then stalls cannot wedge a
	// send past its deadline.
	smtpTimeout = 30 * time.Second
)

// EmailSender delivers alerts as MIME multipart/alternative messages
// over SMTP.
type EmailSender struct {
	cfg      SMTPConfig
	limiter  *ratelimit.Limiter
	policy   *retrypolicy.Policy
	renderer render.Renderer
	logger   zerolog.Logger

	// transport is swapped in tests; the default speaks SMTP.
	transport func(ctx context.Context, to []string, msg []byte) error
}

// NewEmailSender wires an email sender with its admission limiter and
// retry policy.
func NewEmailSender(cfg SMTPConfig, limiter *ratelimit.Limiter, policy *retrypolicy.Policy, renderer render.Renderer, logger zerolog.Logger) *EmailSender {
	s := &EmailSender{
		cfg:      cfg,
		limiter:  limiter,
		policy:   policy,
		renderer: renderer,
		logger:   logger,
	}
	s.transport = s.smtpSend
	return s
}

// Send delivers one message to the given recipients. Admission is
// checked once per call; a rejection is terminal and not retried.
func (s *EmailSender) Send(ctx context.Context, to []string, content Content, priority alert.Priority) error {
	if len(to) == 0 {
		return &ConfigError{Channel: "email", Field: "to"}
	}
	if s.cfg.Host == "" {
		return &ConfigError{Channel: "email", Field: "smtp host"}
	}

	// Admission is per recipient address; a recipient keeps one window
	// no matter which recipient sets it appears in.
	if !s.limiter.AllowAll(to...) {
		return rejectRateLimited(s.logger, "email", strings.Join(to, ","))
	}

	plain := renderOrFallback(s.logger, s.renderer, content, render.FormatPlain)
	html := content.HTMLBody
	if content.Template != "" && s.renderer != nil {
		if rendered, err := s.renderer.Render(content.Template, content.Data, render.FormatHTML); err == nil {
			html = rendered
		}
	}
	msg := buildMIMEMessage(s.cfg.From, to, content.Subject, plain, html, priority)

	return deliver(ctx, s.logger, s.policy, "email", priority, func(ctx context.Context) error {
		return s.transport(ctx, to, msg)
	})
}

func (s *EmailSender) smtpSend(ctx context.Context, to []string, msg []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	dialer := net.Dialer{Timeout: smtpDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(smtpTimeout))

	// net/smtp never looks at ctx, so cancellation has to reach the
	// conversation by closing the socket out from under it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if s.cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			// Bad credentials will not fix themselves between attempts.
			return backoff.Permanent(fmt.Errorf("smtp auth: %w", err))
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return client.Quit()
}

// buildMIMEMessage assembles a multipart/alternative message with a
// plain part and, when present, an HTML alternative.
func buildMIMEMessage(from string, to []string, subject, plain, html string, priority alert.Priority) []byte {
	const boundary = "alertflow-boundary"

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("X-Priority: " + priorityHeaders[priority] + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")

	if html == "" {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(plain + "\r\n")
		return []byte(b.String())
	}

	b.WriteString("Content-Type: multipart/alternative; boundary=" + boundary + "\r\n\r\n")
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(plain + "\r\n")
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(html + "\r\n")
	b.WriteString("--" + boundary + "--\r\n")
	return []byte(b.String())
}
