package cache

import (
	"container/list"
	"fmt"
	"strings"
	"sync"
	"time"
)

// nameSeparator joins the query name and parameter parts of a cache key.
// InvalidateByName relies on this prefix structure.
const nameSeparator = ":"

// Key builds a cache key from a query name and its parameters.
//
// The key is the query name followed by each parameter, separated by
// colons. Keys built this way group under their query name, which is
// what InvalidateByName matches on.
//
// Example:
//
//	cache.Key("user_resumes", 42, "draft") // "user_resumes:42:draft"
func Key(name string, params ...any) string {
	if len(params) == 0 {
		return name
	}
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, name)
	for _, p := range params {
		parts = append(parts, fmt.Sprintf("%v", p))
	}
	return strings.Join(parts, nameSeparator)
}

// entry holds a cached value with its bookkeeping.
type entry struct {
	key        string
	value      any
	createdAt  time.Time
	ttl        time.Duration
	hits       uint64
	lastAccess time.Time
}

// expired reports whether the entry's TTL has elapsed at time now.
// A zero TTL means the entry never expires.
func (e *entry) expired(now time.Time) bool {
	if e.ttl <= 0 {
		return false
	}
	return now.Sub(e.createdAt) >= e.ttl
}

// Stats is a snapshot of cache effectiveness counters.
//
// HitRate is hits / (hits + misses) over the cache's lifetime and is
// reset only by Clear().
type Stats struct {
	Size          int     `json:"size"`
	Capacity      int     `json:"capacity"`
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
	HitRate       float64 `json:"hit_rate"`
	Evictions     uint64  `json:"evictions"`
	Invalidations uint64  `json:"invalidations"`
}

// Cache is a thread-safe LRU cache with per-entry TTL.
//
// The most-recently-used entry sits at the front of the recency list;
// eviction removes from the back. All operations are O(1) except the
// invalidation scans, which are O(size).
type Cache struct {
	mu sync.Mutex

	capacity   int
	defaultTTL time.Duration

	order *list.List               // front = most recently used
	index map[string]*list.Element // key -> element holding *entry

	hits          uint64
	misses        uint64
	evictions     uint64
	invalidations uint64
}

// New creates a cache with the given capacity and default TTL.
//
// Parameters:
//   - capacity: Maximum entries before LRU eviction (minimum 1)
//   - defaultTTL: TTL applied when Put is called with ttl = 0
//     (a zero default means entries never expire)
func New(capacity int, defaultTTL time.Duration) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity:   capacity,
		defaultTTL: defaultTTL,
		order:      list.New(),
		index:      make(map[string]*list.Element, capacity),
	}
}

// Get returns the cached value for key, if present and not expired.
//
// A hit moves the entry to the front of the recency order and bumps its
// hit counter. An expired entry is removed lazily and reported as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[key]
	if !ok {
		c.misses++
		return nil, false
	}

	e := elem.Value.(*entry)
	now := time.Now()
	if e.expired(now) {
		c.removeLocked(elem)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	e.hits++
	e.lastAccess = now
	c.hits++
	return e.value, true
}

// Put inserts or replaces the value for key.
//
// A ttl of zero applies the cache's default TTL. The entry moves to the
// front of the recency order; if the cache is over capacity the
// least-recently-used entry is evicted.
func (c *Cache) Put(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	if elem, ok := c.index[key]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.createdAt = now
		e.ttl = ttl
		e.lastAccess = now
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&entry{
		key:        key,
		value:      value,
		createdAt:  now,
		ttl:        ttl,
		lastAccess: now,
	})
	c.index[key] = elem

	if c.order.Len() > c.capacity {
		c.evictOldestLocked()
	}
}

// Invalidate removes every entry whose key contains pattern as a
// substring and returns the number removed. A pattern matching nothing
// is a no-op, not an error.
func (c *Cache) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.index {
		if strings.Contains(key, pattern) {
			c.removeLocked(elem)
			removed++
		}
	}
	c.invalidations += uint64(removed)
	return removed
}

// InvalidateByName removes every entry cached under the given query
// name (exact name, or name followed by parameters) and returns the
// number removed.
func (c *Cache) InvalidateByName(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := name + nameSeparator
	removed := 0
	for key, elem := range c.index {
		if key == name || strings.HasPrefix(key, prefix) {
			c.removeLocked(elem)
			removed++
		}
	}
	c.invalidations += uint64(removed)
	return removed
}

// Clear empties the cache and resets all statistics.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.index = make(map[string]*list.Element, c.capacity)
	c.hits = 0
	c.misses = 0
	c.evictions = 0
	c.invalidations = 0
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:          c.order.Len(),
		Capacity:      c.capacity,
		Hits:          c.hits,
		Misses:        c.misses,
		Evictions:     c.evictions,
		Invalidations: c.invalidations,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Len returns the current number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// evictOldestLocked removes the least-recently-used entry.
// Caller must hold c.mu.
func (c *Cache) evictOldestLocked() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	c.removeLocked(elem)
	c.evictions++
}

// removeLocked unlinks an element from both structures.
// Caller must hold c.mu.
func (c *Cache) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	c.order.Remove(elem)
	delete(c.index, e.key)
}
