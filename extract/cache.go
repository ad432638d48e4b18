package extract

import (
	"context"
	"sync"
	"time"
)

// cacheTTL is the extraction cache lifetime (spec §4.7/§6: 24h).
const cacheTTL = 24 * time.Hour

// Cache stores extraction results keyed by URL. Process-global per
// spec.md §5 ("global singletons"); construct once and share.
type Cache interface {
	Get(ctx context.Context, url string) (ExtractionResult, bool, error)
	Set(ctx context.Context, url string, result ExtractionResult) error
	Clear(ctx context.Context) error
}

type cacheEntry struct {
	result    ExtractionResult
	expiresAt time.Time
}

// MemoryCache is an in-process Cache with lazy expiry (original
// ExtractionCache's filesystem+MD5 design, ported to an in-memory map:
// no process restart durability is required of the extraction cache).
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, url string) (ExtractionResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[url]
	if !ok {
		return ExtractionResult{}, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, url)
		return ExtractionResult{}, false, nil
	}
	result := entry.result
	result.Cached = true
	return result, true, nil
}

func (c *MemoryCache) Set(_ context.Context, url string, result ExtractionResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = cacheEntry{result: result, expiresAt: c.now().Add(cacheTTL)}
	return nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	return nil
}

// ClearExpired removes entries past their TTL and returns the count
// removed (original clear_expired).
func (c *MemoryCache) ClearExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	now := c.now()
	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}
