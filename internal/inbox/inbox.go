// Package inbox is the bounded per-agent fallback buffer for targeted
// notifications that could not be pushed to a live connection. It is never
// used for channel broadcast traffic: consumer groups own that durability.
package inbox

import (
	"context"
	"errors"

	"agora.dev/courier/internal/model"
)

// ErrRecordNotFound is returned when marking a record that does not exist
// (or was already evicted).
var ErrRecordNotFound = errors.New("notification record not found")

// Inbox stores undeliverable-at-push-time notifications, capped per agent
// with FIFO eviction. Overflow is silent; the backlog length stays
// observable through Len.
type Inbox interface {
	// Enqueue appends a record, evicting the oldest past the cap.
	Enqueue(ctx context.Context, n *model.Notification) error

	// Drain returns all records oldest first; with ack it also clears
	// them.
	Drain(ctx context.Context, agentID string, ack bool) ([]model.Notification, error)

	// MarkRead flags a single record as read.
	MarkRead(ctx context.Context, agentID, recordID string) error

	// MarkAllRead flags every record for the agent as read.
	MarkAllRead(ctx context.Context, agentID string) error

	// Len reports the current backlog size.
	Len(ctx context.Context, agentID string) (int64, error)
}
