package market

import (
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	quote   *PriceQuote
	savedAt time.Time
}

// PriceCache memoizes quotes per contract for one pipeline run so a token
// held by fifty wallets costs one upstream call, not fifty.
type PriceCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

func NewPriceCache(ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &PriceCache{entries: make(map[string]cacheEntry), ttl: ttl}
}

func (c *PriceCache) Get(contract string) (*PriceQuote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[strings.ToLower(contract)]
	if !ok || time.Since(e.savedAt) > c.ttl {
		return nil, false
	}
	return e.quote, true
}

func (c *PriceCache) Put(contract string, q *PriceQuote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[strings.ToLower(contract)] = cacheEntry{quote: q, savedAt: time.Now()}
}
