// cache.go - In-memory result cache keyed by image content

package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/domusplus/receipt-engine/internal/recon"
)

// ResultCache remembers recent pipeline results by image content hash.
// Users retry uploads when the app feels slow; re-running the same photos
// through the vision provider burns quota for an identical answer.
type ResultCache struct {
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	result   *recon.Result
	storedAt time.Time
}

func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// CacheKey hashes the image payloads plus the processing mode. The same
// photos in a different mode are a different computation.
func CacheKey(images [][]byte, mode string) string {
	h := sha256.New()
	for _, img := range images {
		h.Write(img)
	}
	h.Write([]byte(mode))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached result that has not expired.
func (c *ResultCache) Get(key string) (*recon.Result, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Since(entry.storedAt) > c.ttl {
		return nil, false
	}
	return entry.result, true
}

// Put stores a result and opportunistically drops expired entries.
func (c *ResultCache) Put(key string, result *recon.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if time.Since(e.storedAt) > c.ttl {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{result: result, storedAt: time.Now()}
}
