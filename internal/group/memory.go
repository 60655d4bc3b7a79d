package group

import (
	"context"
	"sync"
	"time"

	"agora.dev/courier/internal/chanlog"
	"agora.dev/courier/internal/model"
)

// MemoryManager is the embedded-mode counterpart of RedisManager, sharing
// a MemoryLog. State is process-local but follows the same semantics:
// cursors and pending sets outlive connections and are destroyed only by
// an explicit unsubscribe.
type MemoryManager struct {
	log               *chanlog.MemoryLog
	redeliveryTimeout time.Duration

	mu     sync.Mutex
	groups map[groupKey]*memoryGroup
}

type groupKey struct {
	channelID string
	agentID   string
}

type memoryGroup struct {
	cursor  string
	pending []pendingEntry
}

type pendingEntry struct {
	msg         model.Message
	deliveredAt time.Time
}

func NewMemoryManager(log *chanlog.MemoryLog, redeliveryTimeout time.Duration) *MemoryManager {
	return &MemoryManager{
		log:               log,
		redeliveryTimeout: redeliveryTimeout,
		groups:            make(map[groupKey]*memoryGroup),
	}
}

func (m *MemoryManager) Subscribe(_ context.Context, channelID, agentID string, start model.StartPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := groupKey{channelID, agentID}
	if _, exists := m.groups[key]; exists {
		return nil
	}

	g := &memoryGroup{}
	if start == model.StartNew {
		g.cursor = m.log.LastEntryID(channelID)
	}
	m.groups[key] = g
	return nil
}

func (m *MemoryManager) Unsubscribe(_ context.Context, channelID, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups, groupKey{channelID, agentID})
	return nil
}

func (m *MemoryManager) ReadNext(ctx context.Context, channelID, agentID string, maxCount int64, wait time.Duration) ([]model.Message, error) {
	deadline := time.Now().Add(wait)

	for {
		out, notify, subscribed, err := m.readOnce(ctx, channelID, agentID, maxCount)
		if err != nil {
			return nil, err
		}
		if !subscribed {
			return nil, ErrNotSubscribed
		}
		if len(out) > 0 {
			return out, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		// notify was captured under the log's lock in the same critical
		// section as the empty read, so an append racing this select still
		// wakes it.
		timer := time.NewTimer(remaining)
		select {
		case <-notify:
			timer.Stop()
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

func (m *MemoryManager) readOnce(ctx context.Context, channelID, agentID string, maxCount int64) ([]model.Message, <-chan struct{}, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[groupKey{channelID, agentID}]
	if !ok {
		return nil, nil, false, nil
	}

	now := time.Now()
	var out []model.Message

	if m.redeliveryTimeout > 0 {
		for i := range g.pending {
			if int64(len(out)) >= maxCount {
				break
			}
			if now.Sub(g.pending[i].deliveredAt) >= m.redeliveryTimeout {
				g.pending[i].deliveredAt = now
				out = append(out, g.pending[i].msg)
			}
		}
		if len(out) > 0 {
			return out, nil, true, nil
		}
	}

	fresh, notify, err := m.log.ReadRangeNotify(ctx, channelID, g.cursor, maxCount-int64(len(out)))
	if err != nil {
		return nil, nil, true, err
	}
	for _, msg := range fresh {
		g.pending = append(g.pending, pendingEntry{msg: msg, deliveredAt: now})
		g.cursor = msg.EntryID
		out = append(out, msg)
	}
	return out, notify, true, nil
}

func (m *MemoryManager) ListPending(_ context.Context, channelID, agentID string, maxCount int64) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[groupKey{channelID, agentID}]
	if !ok {
		return nil, ErrNotSubscribed
	}

	out := make([]model.Message, 0, len(g.pending))
	for _, p := range g.pending {
		if int64(len(out)) >= maxCount {
			break
		}
		out = append(out, p.msg)
	}
	return out, nil
}

func (m *MemoryManager) Acknowledge(_ context.Context, channelID, agentID string, entryIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[groupKey{channelID, agentID}]
	if !ok {
		// Matches XACK on a missing group: nothing to remove, not an error.
		return nil
	}

	acked := make(map[string]struct{}, len(entryIDs))
	for _, id := range entryIDs {
		acked[id] = struct{}{}
	}

	kept := g.pending[:0]
	for _, p := range g.pending {
		if _, ok := acked[p.msg.EntryID]; !ok {
			kept = append(kept, p)
		}
	}
	g.pending = kept
	return nil
}

func (m *MemoryManager) Status(_ context.Context, channelID, agentID string) (model.GroupStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := model.GroupStatus{ChannelID: channelID, AgentID: agentID}
	g, ok := m.groups[groupKey{channelID, agentID}]
	if !ok {
		return status, nil
	}
	status.Subscribed = true
	status.PendingCount = int64(len(g.pending))
	status.Cursor = g.cursor
	return status, nil
}

func (m *MemoryManager) ListSubscribers(_ context.Context, channelID string) ([]model.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var subscribers []model.Subscriber
	for key, g := range m.groups {
		if key.channelID != channelID {
			continue
		}
		subscribers = append(subscribers, model.Subscriber{
			AgentID:      key.agentID,
			PendingCount: int64(len(g.pending)),
			Cursor:       g.cursor,
		})
	}
	return subscribers, nil
}
