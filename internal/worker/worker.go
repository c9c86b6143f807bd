// Package worker consumes accepted alerts from the delivery topic and
// runs them through the dispatch engine.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/alertflow/internal/alert"
	"github.com/example/alertflow/internal/batch"
	"github.com/example/alertflow/internal/engine"
	"github.com/example/alertflow/internal/intake"
)

// Worker reads alert envelopes and dispatches them. Envelopes that
// fail on every channel are written to the DLQ topic for inspection.
type Worker struct {
	ReaderFactory func() *kafka.Reader
	DLQWriter     *kafka.Writer
	Engine        *engine.Engine
	Batcher       *batch.Batcher
	Logger        zerolog.Logger
}

// Run consumes until ctx is cancelled or the reader fails.
func (w *Worker) Run(ctx context.Context) error {
	if w.ReaderFactory == nil || w.Engine == nil {
		return errors.New("worker requires a reader factory and an engine")
	}
	reader := w.ReaderFactory()
	defer reader.Close()

	tracer := otel.Tracer("delivery-worker")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			return fmt.Errorf("fetch message: %w", err)
		}

		var env intake.Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			w.Logger.Error().Err(err).Msg("failed to decode alert envelope")
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		spanCtx, span := tracer.Start(ctx, "deliver_alert")
		span.SetAttributes(
			attribute.String("alert.id", env.ID),
			attribute.String("alert.type", env.AlertType),
		)

		results := w.process(spanCtx, env)
		if allFailed(results) {
			span.SetAttributes(attribute.Bool("alert.dlq", true))
			w.Logger.Error().Str("alert_id", env.ID).Msg("all channels failed, sending to DLQ")
			if err := w.writeDLQ(ctx, env); err != nil {
				span.RecordError(err)
				span.End()
				return err
			}
		}

		span.End()
		if err := reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit message: %w", err)
		}
	}
}

// process dispatches one envelope. Batched email alerts are queued for
// the aggregating flush loop instead of sent immediately; any other
// channels on the same envelope still dispatch right away.
func (w *Worker) process(ctx context.Context, env intake.Envelope) map[string]string {
	channels := env.Channels
	results := make(map[string]string)

	if env.Batch && w.Batcher != nil {
		direct := channels[:0:0]
		for _, cfg := range channels {
			if cfg.Type == engine.ChannelEmail && cfg.Email != nil {
				w.Batcher.Add(batch.Item{
					To:      cfg.Email.To,
					Subject: fmt.Sprintf("[%s] %s Alert", env.Severity, env.AlertType),
					Body:    env.Message,
				})
				results["email"] = "queued"
				continue
			}
			direct = append(direct, cfg)
		}
		channels = direct
	}

	if len(channels) > 0 {
		for name, status := range w.Engine.SendAlert(ctx, env.AlertType, env.Severity, env.Message, env.Details, channels, env.CheckDuplicates) {
			results[name] = status
		}
	}

	w.Logger.Info().
		Str("alert_id", env.ID).
		Str("alert_type", env.AlertType).
		Interface("results", results).
		Msg("alert processed")
	return results
}

func allFailed(results map[string]string) bool {
	if len(results) == 0 {
		return false
	}
	for _, status := range results {
		if status != alert.StatusFailed {
			return false
		}
	}
	return true
}

func (w *Worker) writeDLQ(ctx context.Context, env intake.Envelope) error {
	if w.DLQWriter == nil {
		return nil
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal dlq envelope: %w", err)
	}
	return w.DLQWriter.WriteMessages(ctx, kafka.Message{Key: []byte(env.ID), Value: payload})
}
