// Package group maintains per-(channel, agent) consumer groups: an
// independent read cursor plus a pending set of delivered-but-unacknowledged
// entries. Delivery is at-least-once; acknowledgment is idempotent.
package group

import (
	"context"
	"errors"
	"time"

	"agora.dev/courier/internal/model"
)

// ErrNotSubscribed is returned when an operation requires a consumer group
// that does not exist.
var ErrNotSubscribed = errors.New("agent is not subscribed to channel")

// Manager owns consumer-group state for all channels.
type Manager interface {
	// Subscribe creates the group if absent. Existing groups are left
	// untouched, making repeated subscribes idempotent.
	Subscribe(ctx context.Context, channelID, agentID string, start model.StartPosition) error

	// Unsubscribe destroys the group and its cursor/pending state
	// permanently. Unsubscribing an absent group is a no-op.
	Unsubscribe(ctx context.Context, channelID, agentID string) error

	// ReadNext returns up to maxCount entries strictly after the group's
	// cursor, moves them into the pending set, and advances the cursor.
	// With nothing available it blocks cooperatively up to wait, then
	// returns empty.
	ReadNext(ctx context.Context, channelID, agentID string, maxCount int64, wait time.Duration) ([]model.Message, error)

	// ListPending returns entries currently pending for the group without
	// altering delivery state. Used to recover in-flight work after a
	// crash or reconnect.
	ListPending(ctx context.Context, channelID, agentID string, maxCount int64) ([]model.Message, error)

	// Acknowledge removes entries from the pending set. Unknown or
	// already-acknowledged IDs are ignored.
	Acknowledge(ctx context.Context, channelID, agentID string, entryIDs []string) error

	// Status reports subscription state, pending count, and cursor.
	Status(ctx context.Context, channelID, agentID string) (model.GroupStatus, error)

	// ListSubscribers enumerates the consumer groups on a channel.
	ListSubscribers(ctx context.Context, channelID string) ([]model.Subscriber, error)
}
