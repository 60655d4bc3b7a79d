package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"agora.dev/courier/internal/queue"
)

type Config struct {
	MaxAttempts int
}

// Worker drains the delivery queue and runs each job through the
// Deliverer, requeuing or dead-lettering failures.
type Worker struct {
	consumer  queue.Consumer
	deliverer *Deliverer
	cfg       Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer queue.Consumer, deliverer *Deliverer, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Worker{
		consumer:  consumer,
		deliverer: deliverer,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	deliveries, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, d := range deliveries {
		if err := w.processDeliverySafe(ctx, d); err != nil {
			slog.ErrorContext(ctx, "delivery processing failed",
				"error", err,
				"message_id", d.ID,
				"delivery_id", d.DeliveryID)
			w.handleFailedDelivery(ctx, d, err)
		}
	}

	return nil
}

func (w *Worker) processDeliverySafe(ctx context.Context, d queue.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in delivery processing",
				"panic", r,
				"message_id", d.ID,
				"delivery_id", d.DeliveryID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessDelivery(ctx, d)
}

// Exported so it can be reused by the reclaimer.
func (w *Worker) ProcessDelivery(ctx context.Context, d queue.Delivery) error {
	if err := w.deliverer.Deliver(ctx, d); err != nil {
		return err
	}

	if err := w.consumer.Ack(ctx, d); err != nil {
		// Log but don't fail - the job will be reclaimed and the
		// duplicate delivery carries the same delivery ID.
		slog.WarnContext(ctx, "failed to ACK delivery",
			"error", err,
			"message_id", d.ID)
	}
	return nil
}

func (w *Worker) handleFailedDelivery(ctx context.Context, d queue.Delivery, err error) {
	if d.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"message_id", d.ID,
			"delivery_id", d.DeliveryID,
			"attempts", d.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, d, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed delivery",
		"message_id", d.ID,
		"delivery_id", d.DeliveryID,
		"attempt", d.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, d, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue delivery", "error", requeueErr)
	}
}
