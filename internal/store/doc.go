// Package store is the data-access facade binding the connection pool,
// query cache, migration engine and performance monitor behind a single
// surface.
//
// Reads resolve through the cache first; on a miss the store acquires a
// pooled connection, executes the statement under monitor timing, caches
// the decoded result and releases the connection on every exit path.
// Concurrent misses for the same key are collapsed so the engine sees a
// single execution. Writes execute through the pool/monitor pair and then
// invalidate cached entries by the entities the query declares, giving
// read-after-write consistency within this process.
//
// Queries are registered by name up front; callers never pass raw SQL.
// Results are decoded once at the engine boundary into an explicit
// Result value (column names plus row values), never duck-typed.
package store
