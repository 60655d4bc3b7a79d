// Package worker runs the webhook dispatch loop: it drains the delivery
// queue, signs and posts payloads, and maintains the consecutive-failure
// counter that eventually disables a broken registration.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"agora.dev/courier/common/logger"
	"agora.dev/courier/internal/queue"
	"agora.dev/courier/internal/webhook"
)

type DelivererConfig struct {
	SignatureHeader  string
	FailureThreshold int
	RequestTimeout   time.Duration
}

// Deliverer posts one delivery to its registered receiver.
type Deliverer struct {
	store  webhook.Store
	client *http.Client
	cfg    DelivererConfig
}

func NewDeliverer(store webhook.Store, cfg DelivererConfig) *Deliverer {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Deliverer{
		store:  store,
		client: &http.Client{Timeout: timeout},
		cfg:    cfg,
	}
}

// Deliver posts the delivery payload. A nil return means the job is
// done and should be acked; that includes registrations that vanished,
// were disabled, or unsubscribed from the event after enqueue. A
// non-nil return means the attempt failed and the failure counter has
// already been recorded.
func (d *Deliverer) Deliver(ctx context.Context, job queue.Delivery) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		AgentID:    logger.Ptr(job.AgentID),
		EventType:  logger.Ptr(job.EventType),
		DeliveryID: logger.Ptr(job.DeliveryID),
		Component:  "courier.worker.deliverer",
	})

	reg, err := d.store.Get(ctx, job.AgentID)
	if err != nil {
		if errors.Is(err, webhook.ErrNotFound) {
			slog.InfoContext(ctx, "registration gone, dropping delivery")
			return nil
		}
		return fmt.Errorf("loading webhook registration: %w", err)
	}

	// The registration may have changed between enqueue and now.
	if !reg.Enabled {
		slog.InfoContext(ctx, "registration disabled, dropping delivery")
		return nil
	}
	if !reg.Subscribed(job.EventType) {
		slog.InfoContext(ctx, "registration no longer subscribed, dropping delivery")
		return nil
	}

	if err := d.post(ctx, reg.URL, reg.Secret, job); err != nil {
		d.recordFailure(ctx, job.AgentID, err)
		return err
	}

	if err := d.store.RecordSuccess(ctx, job.AgentID, time.Now().UTC()); err != nil {
		slog.WarnContext(ctx, "failed to record webhook success", "error", err)
	}

	slog.InfoContext(ctx, "webhook delivered", "attempt", job.Attempt)
	return nil
}

func (d *Deliverer) post(ctx context.Context, url, secret string, job queue.Delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(job.Payload))
	if err != nil {
		return fmt.Errorf("building delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(d.cfg.SignatureHeader, webhook.Sign(secret, job.Payload))
	req.Header.Set("X-Courier-Event", job.EventType)
	req.Header.Set("X-Courier-Delivery", job.DeliveryID)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting delivery: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("receiver returned %d", resp.StatusCode)
	}
	return nil
}

func (d *Deliverer) recordFailure(ctx context.Context, agentID string, cause error) {
	failures, disabled, err := d.store.RecordFailure(ctx, agentID, time.Now().UTC(), d.cfg.FailureThreshold)
	if err != nil {
		slog.ErrorContext(ctx, "failed to record webhook failure", "error", err)
		return
	}

	if disabled {
		slog.WarnContext(ctx, "webhook disabled after consecutive failures",
			"consecutive_failures", failures,
			"last_error", cause.Error())
		return
	}
	slog.WarnContext(ctx, "webhook delivery failed",
		"consecutive_failures", failures,
		"error", cause.Error())
}
