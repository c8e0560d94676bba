// Package monitor provides query performance monitoring for Strata.
//
// This package manages:
//   - Timing of named operations via a higher-order wrapper
//   - A bounded rolling window of latency samples per operation
//   - A ring buffer of slow operations (oldest evicted first)
//   - Percentile statistics (p95/p99) computed on demand
//
// Percentile semantics: for percentile p over n sorted samples, the
// reported value is the sample at index ceil(p*n)-1.
//
// All operations are mutex-protected and hold the lock only for O(1)
// bookkeeping; percentile computation copies the window and sorts
// outside the hot path. The timed function itself always runs without
// any monitor lock held.
//
// Usage:
//
//	m := monitor.New(100*time.Millisecond, 1000, 100)
//
//	err := m.Timed("get_resume", func() error {
//	    return runQuery()
//	})
//
//	stats := m.Stats("get_resume")
//	fmt.Println(stats.P95, stats.P99)
package monitor
