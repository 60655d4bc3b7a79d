package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agora.dev/courier/internal/model"
)

// PostgresDirectory reads the channel and agent tables maintained by the
// registry/identity services.
//
// Schema:
//
//	CREATE TABLE channels (
//	    id         TEXT PRIMARY KEY,
//	    name       TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE TABLE channel_members (
//	    channel_id TEXT NOT NULL REFERENCES channels(id),
//	    agent_id   TEXT NOT NULL,
//	    PRIMARY KEY (channel_id, agent_id)
//	);
//	CREATE TABLE agents (
//	    id         TEXT PRIMARY KEY,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) GetChannel(ctx context.Context, channelID string) (*model.Channel, error) {
	ch := &model.Channel{ID: channelID}

	err := d.pool.QueryRow(ctx,
		`SELECT name, created_at FROM channels WHERE id = $1`,
		channelID).Scan(&ch.Name, &ch.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching channel: %w", err)
	}

	rows, err := d.pool.Query(ctx,
		`SELECT agent_id FROM channel_members WHERE channel_id = $1 ORDER BY agent_id`,
		channelID)
	if err != nil {
		return nil, fmt.Errorf("fetching channel members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var agentID string
		if err := rows.Scan(&agentID); err != nil {
			return nil, fmt.Errorf("scanning channel member: %w", err)
		}
		ch.Members = append(ch.Members, agentID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating channel members: %w", err)
	}

	return ch, nil
}

func (d *PostgresDirectory) CreateChannel(ctx context.Context, ch *model.Channel) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO channels (id, name, created_at) VALUES ($1, $2, $3)`,
		ch.ID, ch.Name, ch.CreatedAt); err != nil {
		return fmt.Errorf("creating channel: %w", err)
	}

	for _, agentID := range ch.Members {
		if _, err := tx.Exec(ctx,
			`INSERT INTO channel_members (channel_id, agent_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			ch.ID, agentID); err != nil {
			return fmt.Errorf("adding channel member: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (d *PostgresDirectory) AgentExists(ctx context.Context, agentID string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM agents WHERE id = $1)`,
		agentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking agent: %w", err)
	}
	return exists, nil
}
