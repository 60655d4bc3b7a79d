package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agora.dev/courier/internal/model"
)

// PostgresStore keeps registrations in the webhooks table.
//
// Schema:
//
//	CREATE TABLE webhooks (
//	    agent_id             TEXT PRIMARY KEY,
//	    url                  TEXT NOT NULL,
//	    secret               TEXT NOT NULL,
//	    events               TEXT[] NOT NULL,
//	    enabled              BOOLEAN NOT NULL DEFAULT true,
//	    consecutive_failures INT NOT NULL DEFAULT 0,
//	    last_success_at      TIMESTAMPTZ,
//	    last_failure_at      TIMESTAMPTZ,
//	    created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Upsert(ctx context.Context, reg *model.WebhookRegistration) error {
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now().UTC()
	}

	// A replacement always starts enabled with a fresh counter: that is
	// the documented way out of the disabled state.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhooks (agent_id, url, secret, events, enabled, consecutive_failures, created_at)
		VALUES ($1, $2, $3, $4, true, 0, $5)
		ON CONFLICT (agent_id) DO UPDATE SET
			url = EXCLUDED.url,
			secret = EXCLUDED.secret,
			events = EXCLUDED.events,
			enabled = true,
			consecutive_failures = 0,
			last_success_at = NULL,
			last_failure_at = NULL,
			created_at = EXCLUDED.created_at`,
		reg.AgentID, reg.URL, reg.Secret, reg.Events, reg.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting webhook registration: %w", err)
	}

	reg.Enabled = true
	reg.ConsecutiveFailures = 0
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, agentID string) (*model.WebhookRegistration, error) {
	reg := &model.WebhookRegistration{AgentID: agentID}

	err := s.pool.QueryRow(ctx, `
		SELECT url, secret, events, enabled, consecutive_failures, last_success_at, last_failure_at, created_at
		FROM webhooks WHERE agent_id = $1`,
		agentID).Scan(&reg.URL, &reg.Secret, &reg.Events, &reg.Enabled,
		&reg.ConsecutiveFailures, &reg.LastSuccessAt, &reg.LastFailureAt, &reg.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching webhook registration: %w", err)
	}
	return reg, nil
}

func (s *PostgresStore) Delete(ctx context.Context, agentID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhooks WHERE agent_id = $1`, agentID)
	if err != nil {
		return fmt.Errorf("deleting webhook registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RecordSuccess(ctx context.Context, agentID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhooks
		SET consecutive_failures = 0, last_success_at = $2
		WHERE agent_id = $1`,
		agentID, at)
	if err != nil {
		return fmt.Errorf("recording webhook success: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordFailure(ctx context.Context, agentID string, at time.Time, threshold int) (int, bool, error) {
	var failures int
	var enabled bool

	// Single statement so concurrent failures from multiple workers
	// count correctly.
	err := s.pool.QueryRow(ctx, `
		UPDATE webhooks
		SET consecutive_failures = consecutive_failures + 1,
		    last_failure_at = $2,
		    enabled = (consecutive_failures + 1 < $3)
		WHERE agent_id = $1
		RETURNING consecutive_failures, enabled`,
		agentID, at, threshold).Scan(&failures, &enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, ErrNotFound
		}
		return 0, false, fmt.Errorf("recording webhook failure: %w", err)
	}
	return failures, !enabled, nil
}
