package chanlog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"agora.dev/courier/internal/model"
)

// Archive is the slow durable mirror of the channel log. It only ever
// serves stale-but-consistent history when Redis is down; it is never an
// ordering authority.
//
// Schema:
//
//	CREATE TABLE messages (
//	    channel_id TEXT NOT NULL,
//	    entry_id   TEXT NOT NULL,
//	    entry_ms   BIGINT NOT NULL,
//	    entry_seq  BIGINT NOT NULL,
//	    agent_id   TEXT NOT NULL,
//	    content    TEXT NOT NULL,
//	    type       TEXT NOT NULL DEFAULT 'text',
//	    metadata   JSONB,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (channel_id, entry_id)
//	);
type Archive struct {
	pool *pgxpool.Pool
}

func NewArchive(pool *pgxpool.Pool) *Archive {
	return &Archive{pool: pool}
}

func (a *Archive) Store(ctx context.Context, msg *model.Message) error {
	ms, seq, err := ParseEntryID(msg.EntryID)
	if err != nil {
		return err
	}

	_, err = a.pool.Exec(ctx, `
		INSERT INTO messages (channel_id, entry_id, entry_ms, entry_seq, agent_id, content, type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (channel_id, entry_id) DO NOTHING`,
		msg.ChannelID, msg.EntryID, int64(ms), int64(seq),
		msg.AgentID, msg.Content, msg.Type, nullableJSON(msg.Metadata), msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("archiving message: %w", err)
	}
	return nil
}

func (a *Archive) ReadRange(ctx context.Context, channelID, fromExclusive string, count int64) ([]model.Message, error) {
	var fromMS, fromSeq int64 = -1, -1
	if fromExclusive != "" {
		ms, seq, err := ParseEntryID(fromExclusive)
		if err != nil {
			return nil, err
		}
		fromMS, fromSeq = int64(ms), int64(seq)
	}

	rows, err := a.pool.Query(ctx, `
		SELECT entry_id, agent_id, content, type, metadata, created_at
		FROM messages
		WHERE channel_id = $1 AND (entry_ms, entry_seq) > ($2, $3)
		ORDER BY entry_ms, entry_seq
		LIMIT $4`,
		channelID, fromMS, fromSeq, count)
	if err != nil {
		return nil, fmt.Errorf("reading archived history: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows, channelID)
}

func (a *Archive) ReadLatest(ctx context.Context, channelID string, count int64) ([]model.Message, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT entry_id, agent_id, content, type, metadata, created_at
		FROM (
			SELECT entry_id, entry_ms, entry_seq, agent_id, content, type, metadata, created_at
			FROM messages
			WHERE channel_id = $1
			ORDER BY entry_ms DESC, entry_seq DESC
			LIMIT $2
		) latest
		ORDER BY entry_ms, entry_seq`,
		channelID, count)
	if err != nil {
		return nil, fmt.Errorf("reading archived history: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows, channelID)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanMessages(rows rowScanner, channelID string) ([]model.Message, error) {
	var messages []model.Message
	for rows.Next() {
		msg := model.Message{ChannelID: channelID}
		var metadata []byte
		if err := rows.Scan(&msg.EntryID, &msg.AgentID, &msg.Content, &msg.Type, &metadata, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning archived message: %w", err)
		}
		if len(metadata) > 0 {
			msg.Metadata = metadata
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating archived messages: %w", err)
	}
	return messages, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
