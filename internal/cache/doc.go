// Package cache provides a thread-safe LRU query-result cache for Strata.
//
// This package manages:
//   - Bounded-capacity storage with least-recently-used eviction
//   - Per-entry TTL with lazy expiry (expired entries count as misses)
//   - Substring-pattern and query-name invalidation
//   - Hit/miss/eviction statistics
//
// The cache combines a hash map for O(1) lookup with a doubly-linked
// list for strict LRU ordering. A single mutex guards the structure;
// at the target throughput (hundreds of ops/sec) fine-grained or
// sharded locking buys nothing and costs clarity.
//
// Pattern invalidation is a linear scan over keys. That is a write-path
// cost, acceptable because invalidation happens far less often than
// reads. At the documented scale (≤1000 entries) the scan is cheap; a
// secondary name→keys index is the upgrade path if that ever changes.
//
// Usage:
//
//	c := cache.New(1000, 5*time.Minute)
//
//	key := cache.Key("user_resumes", userID)
//	if v, ok := c.Get(key); ok {
//	    return v.(*store.Result)
//	}
//
//	result := runQuery()
//	c.Put(key, result, 0) // 0 = default TTL
//
//	// After a write to the resumes table:
//	c.InvalidateByName("user_resumes")
package cache
