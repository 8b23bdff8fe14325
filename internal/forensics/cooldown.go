package forensics

import (
	"context"
	"sync"
	"time"
)

// MemoryCooldown is an in-process CooldownStore, used when no shared store
// is configured. Cooldowns are not shared between processes.
type MemoryCooldown struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

// NewMemoryCooldown creates an empty MemoryCooldown.
func NewMemoryCooldown() *MemoryCooldown {
	return &MemoryCooldown{
		until: make(map[string]time.Time),
		now:   time.Now,
	}
}

// Acquire implements CooldownStore. It never fails.
func (c *MemoryCooldown) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, exp := range c.until {
		if !now.Before(exp) {
			delete(c.until, k)
		}
	}

	if _, running := c.until[key]; running {
		return false, nil
	}

	c.until[key] = now.Add(ttl)
	return true, nil
}
