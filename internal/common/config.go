package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the env-driven configuration shared by both services.
type Config struct {
	HTTPPort     int
	MetricsPort  int
	DatabaseURL  string
	KafkaBrokers []string
	AlertsTopic  string
	DLQTopic     string
	OTLPEndpoint string
	ServiceName  string
	LogLevel     string

	SMTP    SMTPSettings
	Slack   SlackSettings
	Webhook WebhookSettings
	Batch   BatchSettings

	DigestSchedule   string
	DigestRecipients []string
	HistorySize      int
}

// SMTPSettings configures the email channel.
type SMTPSettings struct {
	Host       string
	Port       int
	Username   string
	Password   string
	UseTLS     bool
	FromEmail  string
	RateLimit  int
	RateWindow time.Duration
}

// SlackSettings configures the chat webhook channel.
type SlackSettings struct {
	DefaultWebhook string
	RateLimit      int
	RateWindow     time.Duration
}

// WebhookSettings configures the generic webhook channel.
type WebhookSettings struct {
	RateLimit  int
	RateWindow time.Duration
}

// BatchSettings configures email batching.
type BatchSettings struct {
	Size int
	Wait time.Duration
}

// LoadConfig reads the environment for one named service.
func LoadConfig(service string) (*Config, error) {
	cfg := &Config{ServiceName: service}

	httpPort, err := getEnvInt("HTTP_PORT", 8080)
	if err != nil {
		return nil, err
	}
	cfg.HTTPPort = httpPort

	metricsPort, err := getEnvInt("METRICS_PORT", httpPort+1000)
	if err != nil {
		return nil, err
	}
	cfg.MetricsPort = metricsPort

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.OTLPEndpoint = os.Getenv("OTLP_ENDPOINT")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	} else {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	cfg.AlertsTopic = getEnv("ALERTS_TOPIC", "alerts")
	cfg.DLQTopic = getEnv("DLQ_TOPIC", "dlq.alerts")

	smtpPort, err := getEnvInt("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}
	smtpRate, err := getEnvInt("SMTP_RATE_LIMIT", 30)
	if err != nil {
		return nil, err
	}
	smtpWindow, err := getEnvDuration("SMTP_RATE_WINDOW", time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.SMTP = SMTPSettings{
		Host:       os.Getenv("SMTP_HOST"),
		Port:       smtpPort,
		Username:   os.Getenv("SMTP_USERNAME"),
		Password:   os.Getenv("SMTP_PASSWORD"),
		UseTLS:     getEnvBool("SMTP_USE_TLS", true),
		FromEmail:  getEnv("SMTP_FROM_EMAIL", "alerts@localhost"),
		RateLimit:  smtpRate,
		RateWindow: smtpWindow,
	}

	slackRate, err := getEnvInt("SLACK_RATE_LIMIT", 60)
	if err != nil {
		return nil, err
	}
	slackWindow, err := getEnvDuration("SLACK_RATE_WINDOW", time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.Slack = SlackSettings{
		DefaultWebhook: os.Getenv("SLACK_DEFAULT_WEBHOOK"),
		RateLimit:      slackRate,
		RateWindow:     slackWindow,
	}

	webhookRate, err := getEnvInt("WEBHOOK_RATE_LIMIT", 120)
	if err != nil {
		return nil, err
	}
	webhookWindow, err := getEnvDuration("WEBHOOK_RATE_WINDOW", time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.Webhook = WebhookSettings{RateLimit: webhookRate, RateWindow: webhookWindow}

	batchSize, err := getEnvInt("EMAIL_BATCH_SIZE", 10)
	if err != nil {
		return nil, err
	}
	batchWait, err := getEnvDuration("EMAIL_BATCH_WAIT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.Batch = BatchSettings{Size: batchSize, Wait: batchWait}

	cfg.DigestSchedule = getEnv("DIGEST_SCHEDULE", "0 8 * * *")
	if recipients := os.Getenv("DIGEST_RECIPIENTS"); recipients != "" {
		cfg.DigestRecipients = strings.Split(recipients, ",")
	}

	historySize, err := getEnvInt("HISTORY_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	cfg.HistorySize = historySize

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		return parsed, nil
	}
	return fallback, nil
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return parsed
	}
	return fallback
}

// getEnvDuration accepts either a Go duration string or a bare number
// of seconds.
func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return parsed, nil
}
