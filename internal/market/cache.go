package market

import (
	"fmt"
	"strings"
	"sync"
)

// keySep never appears in exchange names, intervals or symbols, so two
// distinct request tuples can never collide on the same key.
const keySep = "|"

// CacheKey identifies one (exchange, interval, symbol, start, end) tuple.
func CacheKey(exchange, interval, symbol string, start, end int64) string {
	return strings.Join([]string{
		exchange,
		interval,
		symbol,
		fmt.Sprintf("%d", start),
		fmt.Sprintf("%d", end),
	}, keySep)
}

// SeriesCache maps cache keys to candle series. Entries live for the process
// lifetime: no eviction, no TTL. A key's value is immutable once written,
// since identical keys always represent identical underlying data.
type SeriesCache struct {
	mu      sync.RWMutex
	entries map[string][]Candle
}

func NewSeriesCache() *SeriesCache {
	return &SeriesCache{entries: make(map[string][]Candle)}
}

func (c *SeriesCache) Get(key string) ([]Candle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	series, ok := c.entries[key]
	return series, ok
}

// Put stores a series under key. The first write wins; the store is
// append-only and existing entries are never replaced.
func (c *SeriesCache) Put(key string, series []Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return
	}
	c.entries[key] = series
}

func (c *SeriesCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns all stored keys, for diagnostics and tests.
func (c *SeriesCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}
