package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"agora.dev/courier/common/logger"
	"agora.dev/courier/internal/queue"
)

// Payload is the body POSTed to the receiver. The worker signs these
// exact bytes, so the dispatcher serializes once and the payload rides
// the queue verbatim.
type Payload struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Dispatcher fans events out to the delivery queue. Dispatch is
// fire-and-forget from the caller's point of view: a missing, disabled
// or unsubscribed registration is not an error, and enqueue failures
// are logged rather than surfaced, so a broken webhook can never fail
// a message publish.
type Dispatcher struct {
	store    Store
	producer queue.Producer
}

func NewDispatcher(store Store, producer queue.Producer) *Dispatcher {
	return &Dispatcher{store: store, producer: producer}
}

func (d *Dispatcher) Dispatch(ctx context.Context, agentID, eventType string, data any) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		AgentID:   logger.Ptr(agentID),
		EventType: logger.Ptr(eventType),
		Component: "courier.webhook.dispatcher",
	})

	reg, err := d.store.Get(ctx, agentID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.ErrorContext(ctx, "failed to load webhook registration", "error", err)
		}
		return
	}
	if !reg.Enabled || !reg.Subscribed(eventType) {
		return
	}

	deliveryID := uuid.NewString()
	payload, err := buildPayload(deliveryID, eventType, data)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode webhook payload", "error", err)
		return
	}

	job := queue.Delivery{
		DeliveryID: deliveryID,
		AgentID:    agentID,
		EventType:  eventType,
		Payload:    payload,
	}
	if err := d.producer.Enqueue(ctx, job); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue webhook delivery",
			"error", err,
			"delivery_id", deliveryID)
	}
}

func buildPayload(deliveryID, eventType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshaling event data: %w", err)
	}

	payload := Payload{
		ID:        deliveryID,
		Event:     eventType,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}
	return json.Marshal(payload)
}
