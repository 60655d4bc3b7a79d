package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agora.dev/courier/internal/model"
)

// MemoryDirectory is the embedded-mode directory. Agents are implicit:
// any agent named by a channel membership exists.
type MemoryDirectory struct {
	mu       sync.RWMutex
	channels map[string]*model.Channel
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{channels: make(map[string]*model.Channel)}
}

func (d *MemoryDirectory) GetChannel(_ context.Context, channelID string) (*model.Channel, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ch, ok := d.channels[channelID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ch
	cp.Members = append([]string(nil), ch.Members...)
	return &cp, nil
}

func (d *MemoryDirectory) CreateChannel(_ context.Context, ch *model.Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.channels[ch.ID]; exists {
		return fmt.Errorf("channel %q already exists", ch.ID)
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}
	cp := *ch
	cp.Members = append([]string(nil), ch.Members...)
	d.channels[ch.ID] = &cp
	return nil
}

func (d *MemoryDirectory) AgentExists(_ context.Context, agentID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, ch := range d.channels {
		if ch.HasMember(agentID) {
			return true, nil
		}
	}
	return false, nil
}
