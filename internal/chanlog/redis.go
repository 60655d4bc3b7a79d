package chanlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"agora.dev/courier/common/logger"
	"agora.dev/courier/internal/model"
)

// Stream field names for log entries.
const (
	fieldAgentID   = "agent_id"
	fieldContent   = "content"
	fieldType      = "type"
	fieldMetadata  = "metadata"
	fieldCreatedAt = "created_at"
)

// RedisLog stores each channel's log in its own Redis stream. Stream IDs
// are the entry IDs, so ordering and uniqueness come from XADD itself and
// hold across horizontally scaled instances.
type RedisLog struct {
	client  *redis.Client
	archive *Archive
}

// NewRedisLog creates a Redis-backed log. archive may be nil; when set,
// every append is mirrored into the durable archive (best-effort) and
// history reads fall back to it when Redis is unreachable.
func NewRedisLog(client *redis.Client, archive *Archive) *RedisLog {
	return &RedisLog{client: client, archive: archive}
}

func (l *RedisLog) Append(ctx context.Context, msg *model.Message) (string, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "courier.chanlog",
		ChannelID: &msg.ChannelID,
	})

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	values := map[string]any{
		fieldAgentID:   msg.AgentID,
		fieldContent:   msg.Content,
		fieldType:      msg.Type,
		fieldCreatedAt: msg.CreatedAt.Format(time.RFC3339Nano),
	}
	if len(msg.Metadata) > 0 {
		values[fieldMetadata] = string(msg.Metadata)
	}

	entryID, err := l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(msg.ChannelID),
		Values: values,
	}).Result()
	if err != nil {
		// No silent loss: the caller must see the append failure.
		return "", fmt.Errorf("appending to channel log: %w: %v", ErrUnavailable, err)
	}
	msg.EntryID = entryID

	if l.archive != nil {
		if err := l.archive.Store(ctx, msg); err != nil {
			slog.WarnContext(ctx, "message archive write failed", "error", err, "entry_id", entryID)
		}
	}

	return entryID, nil
}

func (l *RedisLog) ReadRange(ctx context.Context, channelID, fromExclusive string, count int64) ([]model.Message, error) {
	start := "-"
	if fromExclusive != "" {
		// "(" makes the range bound exclusive (Redis 6.2+).
		start = "(" + fromExclusive
	}

	entries, err := l.client.XRangeN(ctx, StreamKey(channelID), start, "+", count).Result()
	if err != nil {
		return l.fallbackRange(ctx, channelID, fromExclusive, count, err)
	}

	return decodeEntries(ctx, channelID, entries), nil
}

func (l *RedisLog) ReadLatest(ctx context.Context, channelID string, count int64) ([]model.Message, error) {
	entries, err := l.client.XRevRangeN(ctx, StreamKey(channelID), "+", "-", count).Result()
	if err != nil {
		return l.fallbackLatest(ctx, channelID, count, err)
	}

	// XRevRange returns newest first; callers always see oldest first.
	messages := decodeEntries(ctx, channelID, entries)
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (l *RedisLog) fallbackRange(ctx context.Context, channelID, fromExclusive string, count int64, cause error) ([]model.Message, error) {
	if l.archive == nil {
		return nil, fmt.Errorf("reading channel log: %w: %v", ErrUnavailable, cause)
	}
	slog.WarnContext(ctx, "channel log unreachable, serving history from archive",
		"channel_id", channelID, "error", cause)
	return l.archive.ReadRange(ctx, channelID, fromExclusive, count)
}

func (l *RedisLog) fallbackLatest(ctx context.Context, channelID string, count int64, cause error) ([]model.Message, error) {
	if l.archive == nil {
		return nil, fmt.Errorf("reading channel log: %w: %v", ErrUnavailable, cause)
	}
	slog.WarnContext(ctx, "channel log unreachable, serving history from archive",
		"channel_id", channelID, "error", cause)
	return l.archive.ReadLatest(ctx, channelID, count)
}

func decodeEntries(ctx context.Context, channelID string, entries []redis.XMessage) []model.Message {
	messages := make([]model.Message, 0, len(entries))
	for _, entry := range entries {
		msg, err := DecodeEntry(channelID, entry)
		if err != nil {
			slog.ErrorContext(ctx, "skipping malformed log entry",
				"channel_id", channelID, "entry_id", entry.ID, "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

// DecodeEntry converts a raw stream entry into a Message. Exported because
// the push router decodes the same wire shape from fan-out records.
func DecodeEntry(channelID string, entry redis.XMessage) (model.Message, error) {
	msg := model.Message{
		EntryID:   entry.ID,
		ChannelID: channelID,
	}

	agentID, ok := entry.Values[fieldAgentID].(string)
	if !ok {
		return model.Message{}, fmt.Errorf("entry %s missing %s", entry.ID, fieldAgentID)
	}
	msg.AgentID = agentID

	if content, ok := entry.Values[fieldContent].(string); ok {
		msg.Content = content
	}
	if typ, ok := entry.Values[fieldType].(string); ok {
		msg.Type = typ
	}
	if meta, ok := entry.Values[fieldMetadata].(string); ok && meta != "" {
		if json.Valid([]byte(meta)) {
			msg.Metadata = json.RawMessage(meta)
		}
	}
	if created, ok := entry.Values[fieldCreatedAt].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			msg.CreatedAt = t
		}
	}

	return msg, nil
}
