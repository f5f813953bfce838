// Package cache keeps generated captions so identical articles are not sent
// to the language model twice.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Store is a string cache with per-entry expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Close() error
}

// GenerateKey hashes an article's title and body into a cache key.
func GenerateKey(title, content string) string {
	h := sha256.New()
	h.Write([]byte(title + content))
	return hex.EncodeToString(h.Sum(nil))
}

type item struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	items map[string]item
	now   func() time.Time
	done  chan struct{}
	once  sync.Once
}

var _ Store = (*Memory)(nil)

// NewMemory starts a memory cache that sweeps expired entries every interval.
func NewMemory(interval time.Duration) *Memory {
	c := &Memory{
		items: make(map[string]item),
		now:   time.Now,
		done:  make(chan struct{}),
	}
	if interval > 0 {
		go c.cleanupLoop(interval)
	}
	return c
}

func (c *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = item{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *Memory) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || c.now().After(it.expiresAt) {
		return "", false, nil
	}
	return it.value, true, nil
}

// Len returns the number of entries, expired ones included.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the sweeper.
func (c *Memory) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *Memory) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.done:
			return
		}
	}
}

func (c *Memory) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, key)
		}
	}
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (string, bool, error)        { return "", false, nil }
func (Nop) Set(context.Context, string, string, time.Duration) error { return nil }
func (Nop) Close() error                                             { return nil }
