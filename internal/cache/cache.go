// Package cache holds summaries across runs. Stores are keyed byte stores with a TTL;
// their lifetime is owned by whoever constructs them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// GenerateKey hashes the parts into a stable key.
func GenerateKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

type item struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store. Expired items are dropped by a cleanup loop
// until Close is called.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]item
	now   func() time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

func NewMemoryStore(cleanupEvery time.Duration) *MemoryStore {
	c := &MemoryStore{
		items: make(map[string]item),
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if cleanupEvery <= 0 {
		cleanupEvery = time.Hour
	}
	go c.cleanupLoop(cleanupEvery)
	return c
}

func (c *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = item{
		value:     append([]byte(nil), value...),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

func (c *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, exists := c.items[key]
	if !exists || c.now().After(it.expiresAt) {
		return nil, false, nil
	}
	return it.value, true, nil
}

func (c *MemoryStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *MemoryStore) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *MemoryStore) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryStore) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, key)
		}
	}
}
