// Package webhook implements outbound, signed, at-least-once HTTP
// callbacks with a consecutive-failure counter and automatic disablement.
package webhook

import (
	"context"
	"errors"
	"time"

	"agora.dev/courier/internal/model"
)

// ErrNotFound is returned when an agent has no webhook registration.
var ErrNotFound = errors.New("webhook registration not found")

// Store persists webhook registrations. One active registration per
// agent; Upsert replaces any previous one wholesale, which is also the
// only way to re-enable a disabled registration.
type Store interface {
	Upsert(ctx context.Context, reg *model.WebhookRegistration) error
	Get(ctx context.Context, agentID string) (*model.WebhookRegistration, error)
	Delete(ctx context.Context, agentID string) error

	// RecordSuccess resets the consecutive-failure counter.
	RecordSuccess(ctx context.Context, agentID string, at time.Time) error

	// RecordFailure increments the counter and disables the registration
	// once it reaches threshold. Returns the new counter value and
	// whether the registration is now disabled.
	RecordFailure(ctx context.Context, agentID string, at time.Time, threshold int) (failures int, disabled bool, err error)
}
