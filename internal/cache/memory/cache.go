// Package memory provides an in-process cache implementation.
// This is suitable for single-node deployments where Redis is not available.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/prn-tf/alexander-library/internal/repository"
)

// Cache implements repository.Cache with a map guarded by a RWMutex.
// Entries are not shared between server instances.
type Cache struct {
	mu    sync.RWMutex
	items map[string]entry

	stopOnce sync.Once
	stopCh   chan struct{}
}

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewCache creates a new in-memory cache that sweeps expired entries
// every sweepInterval.
func NewCache(sweepInterval time.Duration) *Cache {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	c := &Cache{
		items:  make(map[string]entry),
		stopCh: make(chan struct{}),
	}
	go c.sweepLoop(sweepInterval)
	return c
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for key, e := range c.items {
				if e.expired(now) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Stop stops the sweep goroutine.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Get retrieves a copy of the value stored under key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || e.expired(time.Now()) {
		return nil, repository.ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value. A zero ttl never expires.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.items[key] = e
	c.mu.Unlock()
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

var _ repository.Cache = (*Cache)(nil)
