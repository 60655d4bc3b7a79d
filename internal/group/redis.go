package group

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"agora.dev/courier/common/logger"
	"agora.dev/courier/internal/chanlog"
	"agora.dev/courier/internal/model"
)

const groupPrefix = "agent:"

// RedisManager maps each (channel, agent) pair onto a Redis consumer group
// on the channel's log stream: the group's last-delivered-id is the cursor
// and its pending entries list (PEL) is the pending set. Both survive
// process restarts and are shared across instances, so delivery state never
// dies with a connection.
type RedisManager struct {
	client *redis.Client

	// redeliveryTimeout > 0 claims entries pending longer than this back
	// into ReadNext results. Zero keeps the source behavior: pending
	// entries wait for an explicit ListPending/Acknowledge cycle.
	redeliveryTimeout time.Duration
}

func NewRedisManager(client *redis.Client, redeliveryTimeout time.Duration) *RedisManager {
	return &RedisManager{
		client:            client,
		redeliveryTimeout: redeliveryTimeout,
	}
}

func groupName(agentID string) string {
	return groupPrefix + agentID
}

func agentFromGroup(group string) (string, bool) {
	if !strings.HasPrefix(group, groupPrefix) {
		return "", false
	}
	return strings.TrimPrefix(group, groupPrefix), true
}

func (m *RedisManager) Subscribe(ctx context.Context, channelID, agentID string, start model.StartPosition) error {
	ctx = m.logCtx(ctx, channelID, agentID)

	// "$" sees only future entries, "0" replays retained history.
	startID := "$"
	if start == model.StartAll {
		startID = "0"
	}

	err := m.client.XGroupCreateMkStream(ctx, chanlog.StreamKey(channelID), groupName(agentID), startID).Err()
	if err != nil {
		if isBusyGroup(err) {
			// Group already exists: leave its cursor alone.
			return nil
		}
		return fmt.Errorf("creating consumer group: %w", err)
	}

	slog.InfoContext(ctx, "consumer group created", "start", string(start))
	return nil
}

func (m *RedisManager) Unsubscribe(ctx context.Context, channelID, agentID string) error {
	ctx = m.logCtx(ctx, channelID, agentID)

	// The stream only exists once something was published or a group was
	// created on it; destroying a group on a missing key is as much of a
	// no-op as destroying a missing group.
	removed, err := m.client.XGroupDestroy(ctx, chanlog.StreamKey(channelID), groupName(agentID)).Result()
	if err != nil && !isNoGroup(err) && !isNoStream(err) {
		return fmt.Errorf("destroying consumer group: %w", err)
	}
	if removed > 0 {
		slog.InfoContext(ctx, "consumer group destroyed")
	}
	return nil
}

func (m *RedisManager) ReadNext(ctx context.Context, channelID, agentID string, maxCount int64, wait time.Duration) ([]model.Message, error) {
	ctx = m.logCtx(ctx, channelID, agentID)
	stream := chanlog.StreamKey(channelID)
	group := groupName(agentID)

	var out []model.Message

	if m.redeliveryTimeout > 0 {
		reclaimed, err := m.reclaimIdle(ctx, stream, group, maxCount)
		if err != nil {
			return nil, err
		}
		out = append(out, decodeGroupEntries(ctx, channelID, reclaimed)...)
		if int64(len(out)) >= maxCount {
			return out, nil
		}
	}

	args := &redis.XReadGroupArgs{
		Group:    group,
		Consumer: group,
		// ">" delivers entries past the cursor and records them in the
		// PEL in the same step.
		Streams: []string{stream, ">"},
		Count:   maxCount - int64(len(out)),
	}
	if len(out) == 0 && wait > 0 {
		args.Block = wait
	} else {
		args.Block = -1
	}

	streams, err := m.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return out, nil
		}
		if isNoGroup(err) {
			return nil, ErrNotSubscribed
		}
		return nil, fmt.Errorf("reading next entries: %w", err)
	}

	for _, s := range streams {
		out = append(out, decodeGroupEntries(ctx, channelID, s.Messages)...)
	}
	return out, nil
}

// reclaimIdle pulls entries that have sat pending past the redelivery
// timeout back into the delivery path.
func (m *RedisManager) reclaimIdle(ctx context.Context, stream, group string, maxCount int64) ([]redis.XMessage, error) {
	claimed, _, err := m.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: group,
		MinIdle:  m.redeliveryTimeout,
		Start:    "0-0",
		Count:    maxCount,
	}).Result()
	if err != nil {
		if isNoGroup(err) {
			return nil, ErrNotSubscribed
		}
		return nil, fmt.Errorf("reclaiming idle entries: %w", err)
	}
	if len(claimed) > 0 {
		slog.InfoContext(ctx, "redelivering idle pending entries", "count", len(claimed))
	}
	return claimed, nil
}

func (m *RedisManager) ListPending(ctx context.Context, channelID, agentID string, maxCount int64) ([]model.Message, error) {
	ctx = m.logCtx(ctx, channelID, agentID)

	// Reading from "0" returns this consumer's own PEL with entry data,
	// without delivering anything new.
	streams, err := m.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    groupName(agentID),
		Consumer: groupName(agentID),
		Streams:  []string{chanlog.StreamKey(channelID), "0"},
		Count:    maxCount,
		Block:    -1,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		if isNoGroup(err) {
			return nil, ErrNotSubscribed
		}
		return nil, fmt.Errorf("listing pending entries: %w", err)
	}

	var out []model.Message
	for _, s := range streams {
		out = append(out, decodeGroupEntries(ctx, channelID, s.Messages)...)
	}
	return out, nil
}

func (m *RedisManager) Acknowledge(ctx context.Context, channelID, agentID string, entryIDs []string) error {
	if len(entryIDs) == 0 {
		return nil
	}
	ctx = m.logCtx(ctx, channelID, agentID)

	// XACK ignores IDs not in the PEL, which gives us idempotent and
	// commutative acknowledgment for free.
	acked, err := m.client.XAck(ctx, chanlog.StreamKey(channelID), groupName(agentID), entryIDs...).Result()
	if err != nil {
		return fmt.Errorf("acknowledging entries: %w", err)
	}

	slog.DebugContext(ctx, "entries acknowledged", "requested", len(entryIDs), "acked", acked)
	return nil
}

func (m *RedisManager) Status(ctx context.Context, channelID, agentID string) (model.GroupStatus, error) {
	status := model.GroupStatus{ChannelID: channelID, AgentID: agentID}

	groups, err := m.client.XInfoGroups(ctx, chanlog.StreamKey(channelID)).Result()
	if err != nil {
		if isNoStream(err) {
			return status, nil
		}
		return model.GroupStatus{}, fmt.Errorf("inspecting consumer groups: %w", err)
	}

	want := groupName(agentID)
	for _, g := range groups {
		if g.Name != want {
			continue
		}
		status.Subscribed = true
		status.PendingCount = g.Pending
		if g.LastDeliveredID != "0-0" {
			status.Cursor = g.LastDeliveredID
		}
		return status, nil
	}
	return status, nil
}

func (m *RedisManager) ListSubscribers(ctx context.Context, channelID string) ([]model.Subscriber, error) {
	groups, err := m.client.XInfoGroups(ctx, chanlog.StreamKey(channelID)).Result()
	if err != nil {
		if isNoStream(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("inspecting consumer groups: %w", err)
	}

	subscribers := make([]model.Subscriber, 0, len(groups))
	for _, g := range groups {
		agentID, ok := agentFromGroup(g.Name)
		if !ok {
			continue
		}
		sub := model.Subscriber{AgentID: agentID, PendingCount: g.Pending}
		if g.LastDeliveredID != "0-0" {
			sub.Cursor = g.LastDeliveredID
		}
		subscribers = append(subscribers, sub)
	}
	return subscribers, nil
}

func (m *RedisManager) logCtx(ctx context.Context, channelID, agentID string) context.Context {
	return logger.WithLogFields(ctx, logger.LogFields{
		Component: "courier.group",
		ChannelID: &channelID,
		AgentID:   &agentID,
	})
}

func decodeGroupEntries(ctx context.Context, channelID string, entries []redis.XMessage) []model.Message {
	out := make([]model.Message, 0, len(entries))
	for _, entry := range entries {
		msg, err := chanlog.DecodeEntry(channelID, entry)
		if err != nil {
			slog.ErrorContext(ctx, "skipping malformed pending entry",
				"channel_id", channelID, "entry_id", entry.ID, "error", err)
			continue
		}
		out = append(out, msg)
	}
	return out
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

func isNoGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NOGROUP")
}

func isNoStream(err error) bool {
	if err == nil {
		return false
	}
	// XINFO on a missing stream reports "no such key"; XGROUP subcommands
	// report "requires the key to exist".
	msg := err.Error()
	return strings.Contains(msg, "no such key") ||
		strings.Contains(msg, "requires the key to exist")
}
