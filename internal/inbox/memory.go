package inbox

import (
	"context"
	"sync"
	"time"

	"agora.dev/courier/internal/model"
)

// MemoryInbox is the embedded-mode inbox: per-agent slices with the same
// cap and oldest-first eviction as the Redis implementation.
type MemoryInbox struct {
	cap int

	mu     sync.Mutex
	agents map[string][]model.Notification
}

func NewMemoryInbox(cap int) *MemoryInbox {
	return &MemoryInbox{
		cap:    cap,
		agents: make(map[string][]model.Notification),
	}
}

func (i *MemoryInbox) Enqueue(_ context.Context, n *model.Notification) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	records := append(i.agents[n.AgentID], *n)
	if len(records) > i.cap {
		records = records[len(records)-i.cap:]
	}
	i.agents[n.AgentID] = records
	return nil
}

func (i *MemoryInbox) Drain(_ context.Context, agentID string, ack bool) ([]model.Notification, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	records := i.agents[agentID]
	out := make([]model.Notification, len(records))
	copy(out, records)
	if ack {
		delete(i.agents, agentID)
	}
	return out, nil
}

func (i *MemoryInbox) MarkRead(_ context.Context, agentID, recordID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	records := i.agents[agentID]
	for idx := range records {
		if records[idx].ID == recordID {
			records[idx].Read = true
			return nil
		}
	}
	return ErrRecordNotFound
}

func (i *MemoryInbox) MarkAllRead(_ context.Context, agentID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	records := i.agents[agentID]
	for idx := range records {
		records[idx].Read = true
	}
	return nil
}

func (i *MemoryInbox) Len(_ context.Context, agentID string) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return int64(len(i.agents[agentID])), nil
}
