package intake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/alertflow/internal/alert"
	"github.com/example/alertflow/internal/common"
)

var (
	reqCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_requests_total",
		Help: "Total /v1/alerts requests received",
	}, []string{"status", "severity"})
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intake_request_duration_seconds",
		Help:    "Latency for /v1/alerts requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"severity"})
)

// Handler accepts alerts over HTTP, persists them idempotently, and
// publishes them to the delivery topic.
type Handler struct {
	repo     AlertRepository
	producer *kafka.Writer
	cfg      *common.Config
	tracer   trace.Tracer
	logger   zerolog.Logger
}

func NewHandler(repo AlertRepository, producer *kafka.Writer, cfg *common.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		producer: producer,
		cfg:      cfg,
		tracer:   otel.Tracer("intake"),
		logger:   logger,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/alerts", h.accept)
	return r
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "accept_alert")
	defer span.End()

	idempotencyKey := r.Header.Get("x-idempotency-key")
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	var req AlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondErr(ctx, w, http.StatusBadRequest, err)
		return
	}
	if err := validateRequest(req); err != nil {
		h.respondErr(ctx, w, http.StatusBadRequest, err)
		return
	}

	start := time.Now()

	checkDuplicates := true
	if req.CheckDuplicates != nil {
		checkDuplicates = *req.CheckDuplicates
	}
	env := Envelope{
		ID:              uuid.NewString(),
		IdempotencyKey:  idempotencyKey,
		AlertType:       req.AlertType,
		Severity:        req.Severity,
		Message:         req.Message,
		Details:         req.Details,
		Channels:        req.Channels,
		CheckDuplicates: checkDuplicates,
		Batch:           req.Batch,
		CreatedAt:       time.Now().UTC(),
	}

	saved, duplicate, err := h.repo.CreateAlert(ctx, env)
	if err != nil {
		h.respondErr(ctx, w, http.StatusInternalServerError, err)
		return
	}
	env = saved

	reqCounter.WithLabelValues(statusLabel(duplicate), string(req.Severity)).Inc()
	requestLatency.WithLabelValues(string(req.Severity)).Observe(time.Since(start).Seconds())

	if duplicate {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"alert_id": env.ID,
			"status":   "duplicate",
		})
		return
	}

	span.SetAttributes(attribute.String("alert.id", env.ID))

	payload, err := json.Marshal(env)
	if err != nil {
		h.respondErr(ctx, w, http.StatusInternalServerError, err)
		return
	}
	if err := h.producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.IdempotencyKey),
		Value: payload,
	}); err != nil {
		h.respondErr(ctx, w, http.StatusInternalServerError, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"alert_id": env.ID})
}

func (h *Handler) respondErr(ctx context.Context, w http.ResponseWriter, status int, err error) {
	logger := common.WithContext(ctx, h.logger)
	logger.Error().Err(err).Int("status", status).Msg("alert intake failed")
	reqCounter.WithLabelValues(http.StatusText(status), "unknown").Inc()
	http.Error(w, err.Error(), status)
}

func statusLabel(duplicate bool) string {
	if duplicate {
		return "duplicate"
	}
	return "accepted"
}

func validateRequest(req AlertRequest) error {
	if req.AlertType == "" {
		return errors.New("alert_type is required")
	}
	if req.Message == "" {
		return errors.New("message is required")
	}
	switch req.Severity {
	case alert.SeverityLow, alert.SeverityNormal, alert.SeverityHigh, alert.SeverityUrgent, alert.SeverityCritical:
	default:
		return errors.New("severity must be one of low, normal, high, urgent, critical")
	}
	if len(req.Channels) == 0 {
		return errors.New("at least one channel is required")
	}
	for _, cfg := range req.Channels {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	return nil
}
