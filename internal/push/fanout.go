package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"agora.dev/courier/internal/model"
)

// FanoutRecord is the lightweight record published across instances so the
// instance actually holding a recipient's connection can deliver. Records
// are at-least-once and possibly duplicated; local delivery of a duplicate
// is harmless (same entry ID).
type FanoutRecord struct {
	Kind         EventKind           `json:"kind"`
	Origin       int64               `json:"origin"`
	Recipients   []string            `json:"recipients,omitempty"`
	TargetAgent  string              `json:"targetAgent,omitempty"`
	DeliveryID   string              `json:"deliveryId,omitempty"`
	Message      *model.Message      `json:"message,omitempty"`
	Notification *model.Notification `json:"notification,omitempty"`
}

// Bus is the shared fan-out medium between Push Router instances: the only
// cross-instance coordination point the router has.
type Bus interface {
	// Publish emits a fan-out record to every instance (including the
	// publisher's own subscriber).
	Publish(ctx context.Context, rec FanoutRecord) error

	// Run consumes records and hands them to the handler until ctx ends.
	Run(ctx context.Context, handler func(ctx context.Context, rec FanoutRecord)) error
}

// Claimer lets exactly one instance claim a targeted delivery, so the
// origin can tell "somebody had a live connection" from "nobody anywhere
// did" within the grace window.
type Claimer interface {
	// Claim marks the delivery as picked up. Returns true if this call
	// made the claim, false if it was already claimed.
	Claim(ctx context.Context, deliveryID string) (bool, error)

	// Claimed reports whether any instance claimed the delivery.
	Claimed(ctx context.Context, deliveryID string) (bool, error)
}

// RedisBus fans out over a Redis Pub/Sub channel.
type RedisBus struct {
	client  *redis.Client
	channel string
}

func NewRedisBus(client *redis.Client, channel string) *RedisBus {
	return &RedisBus{client: client, channel: channel}
}

func (b *RedisBus) Publish(ctx context.Context, rec FanoutRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding fanout record: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing fanout record: %w", err)
	}
	return nil
}

func (b *RedisBus) Run(ctx context.Context, handler func(ctx context.Context, rec FanoutRecord)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	slog.InfoContext(ctx, "fanout subscriber started", "channel", b.channel)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var rec FanoutRecord
			if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
				slog.ErrorContext(ctx, "dropping malformed fanout record", "error", err)
				continue
			}
			handler(ctx, rec)
		}
	}
}

// RedisClaimer claims deliveries with SETNX under a short TTL; the key only
// needs to outlive the grace window.
type RedisClaimer struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClaimer(client *redis.Client, ttl time.Duration) *RedisClaimer {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisClaimer{client: client, ttl: ttl}
}

func claimKey(deliveryID string) string {
	return "courier:claim:" + deliveryID
}

func (c *RedisClaimer) Claim(ctx context.Context, deliveryID string) (bool, error) {
	ok, err := c.client.SetNX(ctx, claimKey(deliveryID), "1", c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming delivery: %w", err)
	}
	return ok, nil
}

func (c *RedisClaimer) Claimed(ctx context.Context, deliveryID string) (bool, error) {
	n, err := c.client.Exists(ctx, claimKey(deliveryID)).Result()
	if err != nil {
		return false, fmt.Errorf("checking delivery claim: %w", err)
	}
	return n > 0, nil
}
