package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"agora.dev/courier/common/logger"
)

type ConsumerConfig struct {
	Stream       string        // Redis stream name
	Group        string        // Redis consumer group name
	Consumer     string        // Redis consumer name
	DLQStream    string        // Dead letter queue stream for failed deliveries
	BatchSize    int64         // Number of deliveries to process per batch
	Block        time.Duration // How long to block/poll for new deliveries
	MaxAttempts  int           // Maximum attempts before moving to DLQ
	RequeueDelay time.Duration // Delay before retrying failed deliveries
}

// Consumer is the worker-side view of the delivery queue. It exists so
// the worker loop can run against the embedded in-process queue too.
type Consumer interface {
	Read(ctx context.Context) ([]Delivery, error)
	Ack(ctx context.Context, d Delivery) error
	Requeue(ctx context.Context, d Delivery, errMsg string) error
	SendDLQ(ctx context.Context, d Delivery, errMsg string) error
}

type RedisConsumer struct {
	client *redis.Client
	cfg    ConsumerConfig
}

func NewRedisConsumer(client *redis.Client, cfg ConsumerConfig) (*RedisConsumer, error) {
	consumer := &RedisConsumer{
		client: client,
		cfg:    cfg,
	}

	if err := consumer.ensureGroup(context.Background()); err != nil { //nolint:contextcheck
		return nil, err
	}

	return consumer, nil
}

func (c *RedisConsumer) ensureGroup(ctx context.Context) error {
	// Consumer groups are just readers, deliveries live in the stream
	// itself. Starting from "0" instead of "$" means we don't lose
	// deliveries enqueued while no worker was running.
	if err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err(); err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

func (c *RedisConsumer) Read(ctx context.Context) ([]Delivery, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "courier.queue.consumer",
	})

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		// > = new deliveries not yet handed to anyone. Unacked ones are
		// handled by the reclaimer on its own goroutine.
		Streams: []string{c.cfg.Stream, ">"},
		Count:   c.cfg.BatchSize,
		Block:   c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Delivery{}, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	var deliveries []Delivery
	// XReadGroup supports multiple streams, but we only read one so this outer loop only runs once.
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			parsed, parseErr := ParseDelivery(msg)
			if parseErr != nil {
				slog.ErrorContext(ctx, "failed to parse delivery",
					"error", parseErr,
					"raw_message_id", msg.ID,
					"stream", c.cfg.Stream)
				_ = c.Ack(ctx, Delivery{ID: msg.ID, Raw: msg})
				continue
			}
			deliveries = append(deliveries, parsed)
		}
	}

	if len(deliveries) > 0 {
		slog.DebugContext(ctx, "read deliveries from stream",
			"count", len(deliveries),
			"stream", c.cfg.Stream,
			"consumer", c.cfg.Consumer)
	}

	return deliveries, nil
}

func (c *RedisConsumer) Ack(ctx context.Context, d Delivery) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, d.ID).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", c.cfg.Stream, err)
	}

	slog.DebugContext(ctx, "delivery acknowledged", "stream", c.cfg.Stream)
	return nil
}

func (c *RedisConsumer) Requeue(ctx context.Context, d Delivery, errMsg string) error {
	nextAttempt := d.Attempt + 1

	if err := c.Ack(ctx, d); err != nil {
		return fmt.Errorf("acking failed delivery for requeue: %w", err)
	}

	values := deliveryValues(d, nextAttempt)
	if errMsg != "" {
		values["last_error"] = errMsg
	}

	if c.cfg.RequeueDelay > 0 {
		time.Sleep(c.cfg.RequeueDelay)
	}

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd requeue: %w", err)
	}

	slog.InfoContext(ctx, "delivery requeued for retry",
		"delivery_id", d.DeliveryID,
		"next_attempt", nextAttempt,
		"reason", errMsg)
	return nil
}

func (c *RedisConsumer) SendDLQ(ctx context.Context, d Delivery, errMsg string) error {
	if err := c.Ack(ctx, d); err != nil {
		return fmt.Errorf("acking failed delivery for dlq: %w", err)
	}

	values := deliveryValues(d, d.Attempt)
	values["error"] = errMsg

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.DLQStream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd dlq (stream=%s): %w", c.cfg.DLQStream, err)
	}

	slog.ErrorContext(ctx, "delivery sent to DLQ",
		"delivery_id", d.DeliveryID,
		"final_error", errMsg,
		"dlq_stream", c.cfg.DLQStream)
	return nil
}

func ParseDelivery(msg redis.XMessage) (Delivery, error) {
	deliveryID, err := parseString(msg.Values, "delivery_id")
	if err != nil {
		return Delivery{}, err
	}
	agentID, err := parseString(msg.Values, "agent_id")
	if err != nil {
		return Delivery{}, err
	}
	eventType, err := parseString(msg.Values, "event_type")
	if err != nil {
		return Delivery{}, err
	}
	payload, err := parseString(msg.Values, "payload")
	if err != nil {
		return Delivery{}, err
	}

	traceID, err := parseOptionalString(msg.Values, "trace_id")
	if err != nil {
		return Delivery{}, err
	}

	attempt, err := parseOptionalInt(msg.Values, "attempt")
	if err != nil {
		return Delivery{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	return Delivery{
		ID:         msg.ID,
		DeliveryID: deliveryID,
		AgentID:    agentID,
		EventType:  eventType,
		Payload:    []byte(payload),
		Attempt:    attempt,
		TraceID:    traceID,
		Raw:        msg,
	}, nil
}

func parseString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	return fmt.Sprint(raw), nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	str := fmt.Sprint(raw)
	num, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", nil
	}
	return fmt.Sprint(raw), nil
}
