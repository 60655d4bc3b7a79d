package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type Producer interface {
	Enqueue(ctx context.Context, d Delivery) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, d Delivery) error {
	attempt := d.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: deliveryValues(d, attempt),
	}).Err(); err != nil {
		return fmt.Errorf("enqueue delivery: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued webhook delivery", "delivery_id", d.DeliveryID, "agent_id", d.AgentID, "event_type", d.EventType, "attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}

func deliveryValues(d Delivery, attempt int) map[string]any {
	values := map[string]any{
		"delivery_id": d.DeliveryID,
		"agent_id":    d.AgentID,
		"event_type":  d.EventType,
		"payload":     string(d.Payload),
		"attempt":     attempt,
	}
	if d.TraceID != "" {
		values["trace_id"] = d.TraceID
	}
	return values
}
