package identity

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/example/ride-dispatch/internal/models"
)

// DriverCache is a small TTL cache in front of FindDriver. Position reports
// arrive far more often than driver profiles change.
type DriverCache struct {
	Directory
	clock clockwork.Clock
	ttl   time.Duration

	mu    sync.RWMutex
	store map[string]cacheEntry
}

type cacheEntry struct {
	v  models.DriverSnapshot
	ts time.Time
}

func NewDriverCache(next Directory, ttl time.Duration, clock clockwork.Clock) *DriverCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &DriverCache{Directory: next, clock: clock, ttl: ttl, store: make(map[string]cacheEntry)}
}

func (c *DriverCache) FindDriver(ctx context.Context, id string) (models.DriverSnapshot, error) {
	c.mu.RLock()
	e, ok := c.store[id]
	c.mu.RUnlock()
	if ok && c.clock.Since(e.ts) <= c.ttl {
		return e.v, nil
	}
	d, err := c.Directory.FindDriver(ctx, id)
	if err != nil {
		if ok {
			c.mu.Lock()
			delete(c.store, id)
			c.mu.Unlock()
		}
		return d, err
	}
	c.mu.Lock()
	c.store[id] = cacheEntry{v: d, ts: c.clock.Now()}
	c.mu.Unlock()
	return d, nil
}
