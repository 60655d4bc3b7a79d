package webhook

import (
	"context"
	"sync"
	"time"

	"agora.dev/courier/internal/model"
)

// MemoryStore is the embedded-mode registration store.
type MemoryStore struct {
	mu   sync.Mutex
	regs map[string]*model.WebhookRegistration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{regs: make(map[string]*model.WebhookRegistration)}
}

func (s *MemoryStore) Upsert(_ context.Context, reg *model.WebhookRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now().UTC()
	}
	reg.Enabled = true
	reg.ConsecutiveFailures = 0
	reg.LastSuccessAt = nil
	reg.LastFailureAt = nil

	cp := *reg
	cp.Events = append([]string(nil), reg.Events...)
	s.regs[reg.AgentID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, agentID string) (*model.WebhookRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.regs[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *reg
	cp.Events = append([]string(nil), reg.Events...)
	return &cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.regs[agentID]; !ok {
		return ErrNotFound
	}
	delete(s.regs, agentID)
	return nil
}

func (s *MemoryStore) RecordSuccess(_ context.Context, agentID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.regs[agentID]
	if !ok {
		return ErrNotFound
	}
	reg.ConsecutiveFailures = 0
	reg.LastSuccessAt = &at
	return nil
}

func (s *MemoryStore) RecordFailure(_ context.Context, agentID string, at time.Time, threshold int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.regs[agentID]
	if !ok {
		return 0, false, ErrNotFound
	}
	reg.ConsecutiveFailures++
	reg.LastFailureAt = &at
	if reg.ConsecutiveFailures >= threshold {
		reg.Enabled = false
	}
	return reg.ConsecutiveFailures, !reg.Enabled, nil
}
