package expand

import (
	"maps"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of expansions MemoryCache keeps.
const DefaultCacheSize = 10000

type memoryEntry struct {
	value     ExpandedQuery
	expiresAt time.Time
}

// MemoryCache is an in-process LRU cache with lazily checked TTLs.
// Expired entries are treated as misses on read; there is no sweeper.
type MemoryCache struct {
	entries *lru.Cache[string, memoryEntry]
	ttl     time.Duration
	now     func() time.Time
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates a MemoryCache. Non-positive arguments take defaults.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	entries, _ := lru.New[string, memoryEntry](size)
	return &MemoryCache{
		entries: entries,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a copy of the cached expansion if present and unexpired.
func (c *MemoryCache) Get(key string) (ExpandedQuery, bool) {
	e, ok := c.entries.Get(key)
	if !ok || !c.now().Before(e.expiresAt) {
		return ExpandedQuery{}, false
	}
	return e.value.clone(), true
}

// Set stores a copy of value under key. Concurrent writers of the same
// key store equivalent values, so last-writer-wins is fine.
func (c *MemoryCache) Set(key string, value ExpandedQuery) {
	c.entries.Add(key, memoryEntry{
		value:     value.clone(),
		expiresAt: c.now().Add(c.ttl),
	})
}

// Len returns the number of entries, expired ones included.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

// clone deep-copies the slice and map so cached values can't be mutated
// through a caller's copy.
func (q ExpandedQuery) clone() ExpandedQuery {
	out := q
	out.Synonyms = slices.Clone(q.Synonyms)
	if out.Synonyms == nil {
		out.Synonyms = []string{}
	}
	out.ExtractedFilters = maps.Clone(q.ExtractedFilters)
	if out.ExtractedFilters == nil {
		out.ExtractedFilters = map[string]any{}
	}
	return out
}
