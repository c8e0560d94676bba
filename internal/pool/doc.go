// Package pool provides a bounded SQLite connection pool for Strata.
//
// This package manages:
//   - A fixed set of base connections opened eagerly at construction
//   - A bounded overflow allowance for demand spikes
//   - Blocking acquire with caller-supplied timeout
//   - Liveness checking of connections on release
//
// Each pooled connection is an independent SQLite handle configured with
// the recommended concurrency pragmas (WAL journal mode, bounded page
// cache, in-memory temp storage). SQLite serialises writers at the
// storage layer; the pool's job is to bound how many connections exist,
// not to serialise access beyond what the engine already enforces.
//
// Performance Characteristics:
//   - Acquire/Release hold the pool mutex only for O(1) bookkeeping
//   - No lock is ever held across an engine call
//   - Overflow connections are closed on release, never cached
//
// Usage:
//
//	p, err := pool.New(cfg.Database, cfg.Pool)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Shutdown(5 * time.Second)
//
//	conn, err := p.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer p.Release(conn)
//
//	rows, err := conn.DB().QueryContext(ctx, "SELECT ...")
package pool
