package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/segmentio/kafka-go"

	"github.com/example/alertflow/internal/batch"
	"github.com/example/alertflow/internal/channel"
	"github.com/example/alertflow/internal/common"
	"github.com/example/alertflow/internal/engine"
	"github.com/example/alertflow/internal/history"
	"github.com/example/alertflow/internal/ratelimit"
	"github.com/example/alertflow/internal/render"
	"github.com/example/alertflow/internal/retrypolicy"
	"github.com/example/alertflow/internal/worker"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := common.LoadConfig("delivery-worker")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := common.NewLogger(cfg.ServiceName, cfg.LogLevel)
	shutdown, err := common.SetupOTel(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise telemetry")
	}
	defer common.ShutdownTelemetry(context.Background(), shutdown)

	metricsSrv := common.StartMetricsServer(cfg.MetricsPort, logger)
	defer metricsSrv.Shutdown(context.Background())

	policy := retrypolicy.Default()
	templates := render.NewStore()

	email := channel.NewEmailSender(channel.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		UseTLS:   cfg.SMTP.UseTLS,
		From:     cfg.SMTP.FromEmail,
	}, ratelimit.New(cfg.SMTP.RateLimit, cfg.SMTP.RateWindow), policy, templates, logger)

	chat := channel.NewChatSender(cfg.Slack.DefaultWebhook,
		ratelimit.New(cfg.Slack.RateLimit, cfg.Slack.RateWindow), policy, templates, logger)

	webhook := channel.NewWebhookSender(
		ratelimit.New(cfg.Webhook.RateLimit, cfg.Webhook.RateWindow), policy, logger)

	store := history.New(cfg.HistorySize)
	eng := engine.New(store, email, chat, webhook, logger)

	batcher := batch.New(cfg.Batch.Size, cfg.Batch.Wait, email, logger)
	go batcher.Run(ctx)

	if len(cfg.DigestRecipients) > 0 {
		digestChannels := []engine.ChannelConfig{{
			Type:  engine.ChannelEmail,
			Email: &engine.EmailChannel{To: cfg.DigestRecipients},
		}}
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(cfg.DigestSchedule, func() {
			eng.SendDigest(ctx, digestChannels, time.Time{}, time.Time{})
		}); err != nil {
			logger.Fatal().Err(err).Str("schedule", cfg.DigestSchedule).Msg("invalid digest schedule")
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	readerFactory := func() *kafka.Reader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.ServiceName,
			Topic:   cfg.AlertsTopic,
		})
	}

	dlqWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers...),
		Topic:    cfg.DLQTopic,
		Balancer: &kafka.Hash{},
	}
	defer dlqWriter.Close()

	w := worker.Worker{
		ReaderFactory: readerFactory,
		DLQWriter:     dlqWriter,
		Engine:        eng,
		Batcher:       batcher,
		Logger:        logger,
	}

	logger.Info().Msg("delivery worker started")
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("delivery worker stopped")
	}
}
