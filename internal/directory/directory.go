// Package directory resolves channels and agent identity. Both are owned
// by systems outside the delivery core (the channel registry and the agent
// identity service); this package defines the lookup contract the core
// needs plus reference implementations used for wiring and tests.
package directory

import (
	"context"
	"errors"

	"agora.dev/courier/internal/model"
)

// ErrNotFound is returned when a requested channel or agent does not exist.
var ErrNotFound = errors.New("not found")

// Directory is the delivery core's view of channels and agents.
type Directory interface {
	GetChannel(ctx context.Context, channelID string) (*model.Channel, error)
	CreateChannel(ctx context.Context, ch *model.Channel) error
	AgentExists(ctx context.Context, agentID string) (bool, error)
}
