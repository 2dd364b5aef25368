package aggregator

import (
	"sync"
	"time"
)

// DefaultCacheTTL is the aggregator's fingerprint-cache default TTL.
const DefaultCacheTTL = 300 * time.Second

type cacheEntry struct {
	results    []Aggregated
	insertedAt time.Time
	hits       int
}

// Cache is the aggregator's fingerprint → aggregated-result cache.
// Identical inputs hash to the same fingerprint, so a repeat call
// returns the exact same ordering rather than re-running aggregation.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

// NewCache returns an empty Cache with the given TTL (0 uses the
// default 300s).
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{entries: make(map[string]*cacheEntry), ttl: ttl}
}

// Get returns the cached result set for fingerprint if present and not
// expired, incrementing its hit counter.
func (c *Cache) Get(fingerprint string) ([]Aggregated, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	if time.Since(e.insertedAt) > c.ttl {
		delete(c.entries, fingerprint)
		return nil, false
	}
	e.hits++
	return e.results, true
}

// GetWithDecay behaves like Get but applies a small confidence penalty
// proportional to cache age, without changing result ordering — a
// supplemental behavior carried over from the original implementation's
// result aggregator, not present in the base cache contract.
func (c *Cache) GetWithDecay(fingerprint string) ([]Aggregated, bool) {
	results, ok := c.Get(fingerprint)
	if !ok {
		return nil, false
	}
	c.mu.Lock()
	e := c.entries[fingerprint]
	age := time.Since(e.insertedAt)
	c.mu.Unlock()

	decayed := make([]Aggregated, len(results))
	copy(decayed, results)
	factor := 1 - minFloat(0.3, float64(age)/float64(c.ttl)*0.3)
	for i := range decayed {
		decayed[i].Confidence *= factor
	}
	return decayed, true
}

// Set stores results under fingerprint, replacing any prior entry.
func (c *Cache) Set(fingerprint string, results []Aggregated) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = &cacheEntry{results: results, insertedAt: time.Now()}
}

// Invalidate removes a single fingerprint.
func (c *Cache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fingerprint)
}

// Clear empties the cache, used when the caller cannot identify
// affected fingerprints individually (e.g. a full reindex).
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}
