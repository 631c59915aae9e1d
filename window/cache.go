package window

import (
	"context"
	"sync"
	"time"
)

// Cached memoizes the class reported by an underlying provider for a short
// time. Errors are cached too, so a missing display is not re-probed on every
// key press.
type Cached struct {
	p   Provider
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	class   string
	err     error
	fetched time.Time
	valid   bool
}

// NewCached wraps p. A ttl <= 0 disables caching.
func NewCached(p Provider, ttl time.Duration) *Cached {
	return &Cached{p: p, ttl: ttl, now: time.Now}
}

func (c *Cached) Class(ctx context.Context) (string, error) {
	if c.ttl <= 0 {
		return c.p.Class(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.valid && now.Sub(c.fetched) < c.ttl {
		return c.class, c.err
	}
	c.class, c.err = c.p.Class(ctx)
	c.fetched = now
	c.valid = true
	return c.class, c.err
}

// Invalidate drops the cached value.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}
