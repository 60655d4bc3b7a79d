package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
)

// MemoryQueue is the embedded-mode delivery queue: Producer and Consumer
// backed by one buffered channel inside the server process. A delivery
// read but not acked sits in pending until Ack, Requeue or SendDLQ, so
// the worker loop behaves the same against both backends.
type MemoryQueue struct {
	jobs chan Delivery
	next atomic.Int64

	mu      sync.Mutex
	pending map[string]Delivery
	dlq     []Delivery
}

func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryQueue{
		jobs:    make(chan Delivery, buffer),
		pending: make(map[string]Delivery),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, d Delivery) error {
	if d.Attempt <= 0 {
		d.Attempt = 1
	}
	d.ID = strconv.FormatInt(q.next.Add(1), 10)

	select {
	case q.jobs <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("delivery queue full")
	}
}

func (q *MemoryQueue) Close() error { return nil }

// Read blocks until a delivery arrives or ctx is done.
func (q *MemoryQueue) Read(ctx context.Context) ([]Delivery, error) {
	select {
	case d := <-q.jobs:
		q.mu.Lock()
		q.pending[d.ID] = d
		q.mu.Unlock()
		return []Delivery{d}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Ack(_ context.Context, d Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, d.ID)
	return nil
}

func (q *MemoryQueue) Requeue(ctx context.Context, d Delivery, _ string) error {
	if err := q.Ack(ctx, d); err != nil {
		return err
	}
	d.Attempt++
	return q.Enqueue(ctx, d)
}

func (q *MemoryQueue) SendDLQ(ctx context.Context, d Delivery, _ string) error {
	if err := q.Ack(ctx, d); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dlq = append(q.dlq, d)
	return nil
}

// DLQ returns a snapshot of dead-lettered deliveries, for tests.
func (q *MemoryQueue) DLQ() []Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Delivery(nil), q.dlq...)
}
