package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"agora.dev/courier/common/logger"
	"agora.dev/courier/internal/model"
)

const (
	timelineKeyFmt = "courier:inbox:%s:z"
	recordKeyFmt   = "courier:inbox:rec:%s"

	fieldID        = "id"
	fieldAgentID   = "agent_id"
	fieldEventType = "event_type"
	fieldPayload   = "payload"
	fieldRead      = "read"
	fieldCreatedAt = "created_at"
)

// trimScript atomically evicts the oldest records once the timeline
// exceeds the cap, deleting the record hashes with their zset members.
var trimScript = redis.NewScript(`
local zkey = KEYS[1]
local max  = tonumber(ARGV[1])
if max <= 0 then return 0 end
local total = redis.call("ZCARD", zkey)
if total <= max then return 0 end
local over = total - max
local olds = redis.call("ZRANGE", zkey, 0, over-1)
for i, id in ipairs(olds) do
  redis.call("DEL", "courier:inbox:rec:" .. id)
end
redis.call("ZREMRANGEBYRANK", zkey, 0, over-1)
return over
`)

// RedisInbox keeps one hash per record and a per-agent zset timeline
// scored by creation time, so eviction order is always oldest-first even
// under concurrent enqueues from multiple instances.
type RedisInbox struct {
	client *redis.Client
	cap    int
}

func NewRedisInbox(client *redis.Client, cap int) *RedisInbox {
	return &RedisInbox{client: client, cap: cap}
}

func timelineKey(agentID string) string {
	return fmt.Sprintf(timelineKeyFmt, agentID)
}

func recordKey(recordID string) string {
	return fmt.Sprintf(recordKeyFmt, recordID)
}

func (i *RedisInbox) Enqueue(ctx context.Context, n *model.Notification) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "courier.inbox",
		AgentID:   &n.AgentID,
	})

	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	pipe := i.client.TxPipeline()
	pipe.HSet(ctx, recordKey(n.ID), map[string]any{
		fieldID:        n.ID,
		fieldAgentID:   n.AgentID,
		fieldEventType: n.EventType,
		fieldPayload:   string(n.Payload),
		fieldRead:      boolField(n.Read),
		fieldCreatedAt: n.CreatedAt.Format(time.RFC3339Nano),
	})
	pipe.ZAdd(ctx, timelineKey(n.AgentID), redis.Z{
		Score:  float64(n.CreatedAt.UnixNano()),
		Member: n.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueueing notification: %w", err)
	}

	evicted, err := trimScript.Run(ctx, i.client, []string{timelineKey(n.AgentID)}, i.cap).Int()
	if err != nil {
		slog.WarnContext(ctx, "inbox trim failed", "error", err)
	} else if evicted > 0 {
		slog.DebugContext(ctx, "inbox overflow, oldest records evicted", "evicted", evicted)
	}

	return nil
}

func (i *RedisInbox) Drain(ctx context.Context, agentID string, ack bool) ([]model.Notification, error) {
	ids, err := i.client.ZRange(ctx, timelineKey(agentID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading inbox timeline: %w", err)
	}
	if len(ids) == 0 {
		return []model.Notification{}, nil
	}

	pipe := i.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for idx, id := range ids {
		cmds[idx] = pipe.HGetAll(ctx, recordKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("reading inbox records: %w", err)
	}

	records := make([]model.Notification, 0, len(ids))
	for _, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			// Evicted between ZRANGE and HGETALL.
			continue
		}
		records = append(records, decodeRecord(fields))
	}

	if ack {
		del := i.client.TxPipeline()
		for _, id := range ids {
			del.Del(ctx, recordKey(id))
		}
		del.Del(ctx, timelineKey(agentID))
		if _, err := del.Exec(ctx); err != nil {
			return nil, fmt.Errorf("clearing inbox: %w", err)
		}
	}

	return records, nil
}

func (i *RedisInbox) MarkRead(ctx context.Context, agentID, recordID string) error {
	owner, err := i.client.HGet(ctx, recordKey(recordID), fieldAgentID).Result()
	if err == redis.Nil || (err == nil && owner != agentID) {
		return ErrRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("loading notification record: %w", err)
	}

	if err := i.client.HSet(ctx, recordKey(recordID), fieldRead, "1").Err(); err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	return nil
}

func (i *RedisInbox) MarkAllRead(ctx context.Context, agentID string) error {
	ids, err := i.client.ZRange(ctx, timelineKey(agentID), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("reading inbox timeline: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	pipe := i.client.Pipeline()
	for _, id := range ids {
		pipe.HSet(ctx, recordKey(id), fieldRead, "1")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("marking inbox read: %w", err)
	}
	return nil
}

func (i *RedisInbox) Len(ctx context.Context, agentID string) (int64, error) {
	n, err := i.client.ZCard(ctx, timelineKey(agentID)).Result()
	if err != nil {
		return 0, fmt.Errorf("reading inbox length: %w", err)
	}
	return n, nil
}

func decodeRecord(fields map[string]string) model.Notification {
	n := model.Notification{
		ID:        fields[fieldID],
		AgentID:   fields[fieldAgentID],
		EventType: fields[fieldEventType],
		Read:      fields[fieldRead] == "1",
	}
	if payload := fields[fieldPayload]; payload != "" {
		n.Payload = []byte(payload)
	}
	if created := fields[fieldCreatedAt]; created != "" {
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			n.CreatedAt = t
		}
	}
	return n
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
