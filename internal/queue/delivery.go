// Package queue moves webhook delivery jobs from the server to the
// dispatch workers over a Redis stream with a consumer group, so a
// crashed worker never loses a delivery.
package queue

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// DeliveryProcessor processes a delivery job.
type DeliveryProcessor func(ctx context.Context, d Delivery) error

// Delivery is one webhook delivery job. Payload is the serialized
// delivery body; the worker signs and posts it as-is so the signature
// matches what the receiver gets.
type Delivery struct {
	// ID is the stream message ID, set on the consumer side.
	ID string

	DeliveryID string
	AgentID    string
	EventType  string
	Payload    []byte
	Attempt    int
	TraceID    string

	Raw redis.XMessage
}
