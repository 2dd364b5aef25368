// Package querycache is the dispatcher's namespaced TTL result cache.
// Every cached entry is tagged with the files whose content it
// reflects, so a single file write can invalidate every cached query
// that depended on it without the writer needing to know which queries
// those were.
package querycache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Namespace partitions the cache by operation kind.
type Namespace string

const (
	NamespaceSymbolLookup        Namespace = "symbol_lookup"
	NamespaceSearch              Namespace = "search"
	NamespaceSemanticSearch      Namespace = "semantic_search"
	NamespaceProjectStatus       Namespace = "project_status"
	NamespaceDocumentationSearch Namespace = "documentation_search"
)

// DefaultTTLs are the per-namespace default time-to-live durations.
var DefaultTTLs = map[Namespace]time.Duration{
	NamespaceSymbolLookup:        1800 * time.Second,
	NamespaceSearch:              600 * time.Second,
	NamespaceSemanticSearch:      3600 * time.Second,
	NamespaceProjectStatus:       60 * time.Second,
	NamespaceDocumentationSearch: 600 * time.Second,
}

// DefaultCacheSize bounds the number of entries kept per namespace.
const DefaultCacheSize = 2048

type entry struct {
	value      any
	insertedAt time.Time
	ttl        time.Duration
	tags       []string
}

// Cache is a namespaced, tag-invalidatable, TTL-expiring result cache.
// Best-effort: a failure in this layer never fails the caller's query —
// callers fall back to recomputing the result uncached.
type Cache struct {
	mu    sync.Mutex
	lrus  map[Namespace]*lru.Cache[string, *entry]
	ttls  map[Namespace]time.Duration
	// tagIndex maps tag -> set of "namespace\x00key" cache entries that
	// carry it, so invalidate-by-tag doesn't need to scan every entry.
	tagIndex map[string]map[string]struct{}
}

// New returns a Cache using DefaultTTLs and DefaultCacheSize per
// namespace.
func New() *Cache {
	return NewWithOptions(DefaultTTLs, DefaultCacheSize)
}

// NewWithOptions returns a Cache with custom per-namespace TTLs and a
// shared per-namespace entry cap.
func NewWithOptions(ttls map[Namespace]time.Duration, size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c := &Cache{
		lrus:     make(map[Namespace]*lru.Cache[string, *entry]),
		ttls:     make(map[Namespace]time.Duration),
		tagIndex: make(map[string]map[string]struct{}),
	}
	for ns, ttl := range ttls {
		l, _ := lru.New[string, *entry](size)
		c.lrus[ns] = l
		c.ttls[ns] = ttl
	}
	return c
}

func (c *Cache) namespaceCache(ns Namespace) *lru.Cache[string, *entry] {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lrus[ns]
	if !ok {
		l, _ = lru.New[string, *entry](DefaultCacheSize)
		c.lrus[ns] = l
		if _, ok := c.ttls[ns]; !ok {
			c.ttls[ns] = DefaultTTLs[ns]
		}
	}
	return l
}

// Key canonicalizes an operation name plus parameters (order-independent)
// into a stable cache key.
func Key(operation string, params ...string) string {
	sorted := append([]string(nil), params...)
	sort.Strings(sorted)
	h := sha256.New()
	h.Write([]byte(operation))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sorted, "\x01")))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached value for (namespace, key) if present and
// unexpired.
func (c *Cache) Get(ns Namespace, key string) (any, bool) {
	l := c.namespaceCache(ns)
	e, ok := l.Get(key)
	if !ok {
		return nil, false
	}
	if time.Since(e.insertedAt) > e.ttl {
		l.Remove(key)
		c.dropFromTagIndex(ns, key, e.tags)
		return nil, false
	}
	return e.value, true
}

// Set stores value under (namespace, key), tagged with file:<path> for
// every file the result depends on.
func (c *Cache) Set(ns Namespace, key string, value any, tags []string) {
	c.mu.Lock()
	ttl, ok := c.ttls[ns]
	c.mu.Unlock()
	if !ok {
		ttl = DefaultTTLs[ns]
	}

	l := c.namespaceCache(ns)
	l.Add(key, &entry{value: value, insertedAt: time.Now(), ttl: ttl, tags: tags})

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tag := range tags {
		set, ok := c.tagIndex[tag]
		if !ok {
			set = make(map[string]struct{})
			c.tagIndex[tag] = set
		}
		set[indexKey(ns, key)] = struct{}{}
	}
}

func (c *Cache) dropFromTagIndex(ns Namespace, key string, tags []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ik := indexKey(ns, key)
	for _, tag := range tags {
		if set, ok := c.tagIndex[tag]; ok {
			delete(set, ik)
			if len(set) == 0 {
				delete(c.tagIndex, tag)
			}
		}
	}
}

// InvalidateFileQueries drops every cached entry tagged with
// file:<relativePath>, across all namespaces.
func (c *Cache) InvalidateFileQueries(relativePath string) {
	c.InvalidateTag(FileTag(relativePath))
}

// InvalidateTag drops every cached entry tagged with tag.
func (c *Cache) InvalidateTag(tag string) {
	c.mu.Lock()
	keys, ok := c.tagIndex[tag]
	if !ok {
		c.mu.Unlock()
		return
	}
	snapshot := make([]string, 0, len(keys))
	for k := range keys {
		snapshot = append(snapshot, k)
	}
	delete(c.tagIndex, tag)
	c.mu.Unlock()

	for _, ik := range snapshot {
		ns, key := splitIndexKey(ik)
		if l, ok := c.lrus[ns]; ok {
			l.Remove(key)
		}
	}
}

// FileTag is the canonical tag for a file's cached results.
func FileTag(relativePath string) string {
	return "file:" + relativePath
}

func indexKey(ns Namespace, key string) string {
	return string(ns) + "\x00" + key
}

func splitIndexKey(ik string) (Namespace, string) {
	parts := strings.SplitN(ik, "\x00", 2)
	if len(parts) != 2 {
		return "", ik
	}
	return Namespace(parts[0]), parts[1]
}
