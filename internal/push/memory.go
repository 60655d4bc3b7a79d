package push

import (
	"context"
	"sync"
	"time"
)

// MemoryBus is the embedded-mode fan-out: records go straight to the
// registered handlers. It still fans out to every subscribed handler so
// in-process multi-instance tests exercise the same paths as Redis.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers []func(ctx context.Context, rec FanoutRecord)
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Publish(ctx context.Context, rec FanoutRecord) error {
	b.mu.RLock()
	handlers := make([]func(ctx context.Context, rec FanoutRecord), len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, rec)
	}
	return nil
}

func (b *MemoryBus) Run(ctx context.Context, handler func(ctx context.Context, rec FanoutRecord)) error {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()

	<-ctx.Done()
	return ctx.Err()
}

// MemoryClaimer tracks claims in a map with the same expiry behavior as
// RedisClaimer's keyed TTL, so long-lived embedded processes do not
// accumulate one entry per delivery forever.
type MemoryClaimer struct {
	ttl time.Duration

	mu     sync.Mutex
	claims map[string]time.Time
}

func NewMemoryClaimer(ttl time.Duration) *MemoryClaimer {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MemoryClaimer{ttl: ttl, claims: make(map[string]time.Time)}
}

func (c *MemoryClaimer) Claim(_ context.Context, deliveryID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
	if _, ok := c.claims[deliveryID]; ok {
		return false, nil
	}
	c.claims[deliveryID] = time.Now().Add(c.ttl)
	return true, nil
}

func (c *MemoryClaimer) Claimed(_ context.Context, deliveryID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
	_, ok := c.claims[deliveryID]
	return ok, nil
}

func (c *MemoryClaimer) pruneLocked() {
	now := time.Now()
	for id, expiry := range c.claims {
		if now.After(expiry) {
			delete(c.claims, id)
		}
	}
}
