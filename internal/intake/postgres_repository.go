package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertAlert = `
INSERT INTO alerts (
id,
idempotency_key,
alert_type,
severity,
message,
envelope_json,
created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (idempotency_key) DO NOTHING
RETURNING id, envelope_json, created_at
`

const selectAlert = `
SELECT id, envelope_json, created_at
FROM alerts
WHERE idempotency_key = $1
`

// PostgresRepository stores accepted alerts keyed by idempotency key.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// CreateAlert inserts env unless its idempotency key exists, in which
// case the previously stored envelope is returned with duplicate=true.
func (r *PostgresRepository) CreateAlert(ctx context.Context, env Envelope) (Envelope, bool, error) {
	envelope, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, false, err
	}

	row := r.pool.QueryRow(ctx, insertAlert,
		env.ID,
		env.IdempotencyKey,
		env.AlertType,
		string(env.Severity),
		env.Message,
		envelope,
		env.CreatedAt,
	)

	var (
		id           string
		envelopeJSON []byte
		createdAt    time.Time
	)

	inserted := true
	if err := row.Scan(&id, &envelopeJSON, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			inserted = false
			row = r.pool.QueryRow(ctx, selectAlert, env.IdempotencyKey)
			if err := row.Scan(&id, &envelopeJSON, &createdAt); err != nil {
				return Envelope{}, false, fmt.Errorf("fetch existing alert: %w", err)
			}
		} else {
			return Envelope{}, false, fmt.Errorf("insert alert: %w", err)
		}
	}

	var stored Envelope
	if err := json.Unmarshal(envelopeJSON, &stored); err != nil {
		return Envelope{}, false, err
	}
	stored.ID = id
	stored.CreatedAt = createdAt
	return stored, !inserted, nil
}

var ErrNotConfigured = errors.New("postgres repository requires a non-nil pool")

func MustRepository(pool *pgxpool.Pool) (*PostgresRepository, error) {
	if pool == nil {
		return nil, ErrNotConfigured
	}
	return NewPostgresRepository(pool), nil
}
