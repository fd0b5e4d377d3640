// Package memory stores page markup in-memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
)

// PageCache keeps pages in a map keyed by PageKey.
type PageCache struct {
	mu     sync.RWMutex
	pages  map[crawler.PageKey][]byte
	writes int
}

// NewPageCache creates an empty in-memory page cache.
func NewPageCache() *PageCache {
	return &PageCache{pages: make(map[crawler.PageKey][]byte)}
}

// Exists reports whether key has been written.
func (c *PageCache) Exists(_ context.Context, key crawler.PageKey) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.pages[key]
	return ok, nil
}

// Read returns a copy of the stored markup.
func (c *PageCache) Read(_ context.Context, key crawler.PageKey) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.pages[key]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", key, crawler.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Write stores a copy of markup.
func (c *PageCache) Write(_ context.Context, key crawler.PageKey, markup []byte) error {
	if err := key.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[key] = append([]byte(nil), markup...)
	c.writes++
	return nil
}

// Writes returns how many Write calls succeeded.
func (c *PageCache) Writes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.writes
}
