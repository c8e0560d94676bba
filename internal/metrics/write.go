package metrics

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/strata/internal/cache"
	"github.com/nerrad567/strata/internal/monitor"
	"github.com/nerrad567/strata/internal/pool"
)

// WriteQueryLatency records a single timed query execution.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Wire this to the monitor's slow-query callback, or call it for every
// sample if full export is wanted.
//
// Parameters:
//   - sample: The latency sample as recorded by the monitor
func (c *Client) WriteQueryLatency(sample monitor.Sample) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"query_latency",
		map[string]string{
			"operation": sample.Operation,
			"success":   strconv.FormatBool(sample.Success),
		},
		map[string]interface{}{
			"duration_ms": float64(sample.Duration) / float64(time.Millisecond),
		},
		sample.Timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoolGauges records a snapshot of connection pool state.
func (c *Client) WritePoolGauges(stats pool.Stats) {
	if !c.IsConnected() {
		return
	}

	// #nosec G115 -- counters stay far below int64 max
	point := write.NewPoint(
		"pool",
		nil,
		map[string]interface{}{
			"idle":              stats.Idle,
			"checked_out":       stats.CheckedOut,
			"overflow_in_use":   stats.OverflowInUse,
			"total_checkouts":   int64(stats.TotalCheckouts),
			"total_timeouts":    int64(stats.TotalTimeouts),
			"liveness_failures": int64(stats.LivenessFailures),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCacheGauges records a snapshot of query cache state.
func (c *Client) WriteCacheGauges(stats cache.Stats) {
	if !c.IsConnected() {
		return
	}

	// #nosec G115 -- counters stay far below int64 max
	point := write.NewPoint(
		"cache",
		nil,
		map[string]interface{}{
			"size":          stats.Size,
			"hits":          int64(stats.Hits),
			"misses":        int64(stats.Misses),
			"hit_rate":      stats.HitRate,
			"evictions":     int64(stats.Evictions),
			"invalidations": int64(stats.Invalidations),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteOperationStats records aggregated latency statistics for one
// operation name: count, failures, min/max/mean and tail percentiles.
func (c *Client) WriteOperationStats(stats monitor.OpStats) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"operations",
		map[string]string{
			"operation": stats.Operation,
		},
		map[string]interface{}{
			"count":    stats.Count,
			"failures": stats.Failures,
			"min_ms":   float64(stats.Min) / float64(time.Millisecond),
			"max_ms":   float64(stats.Max) / float64(time.Millisecond),
			"mean_ms":  float64(stats.Mean) / float64(time.Millisecond),
			"p95_ms":   float64(stats.P95) / float64(time.Millisecond),
			"p99_ms":   float64(stats.P99) / float64(time.Millisecond),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
