package monitor

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Sample is a single recorded latency measurement.
// Samples are never mutated after creation.
type Sample struct {
	Operation string        `json:"operation"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
	Success   bool          `json:"success"`
}

// OpStats holds aggregated latency statistics for one operation name
// (or for all operations combined).
type OpStats struct {
	Operation string        `json:"operation"`
	Count     int           `json:"count"`
	Failures  int           `json:"failures"`
	Min       time.Duration `json:"min"`
	Max       time.Duration `json:"max"`
	Mean      time.Duration `json:"mean"`
	P95       time.Duration `json:"p95"`
	P99       time.Duration `json:"p99"`
}

// Monitor records latency samples for named operations and classifies
// slow ones.
//
// All public methods are thread-safe. The sample buffers are the only
// state requiring the lock, and the lock is never held while the timed
// function runs.
type Monitor struct {
	slowThreshold time.Duration
	windowSize    int
	slowCapacity  int

	mu      sync.Mutex
	samples map[string][]Sample
	slow    []Sample // ring buffer, oldest evicted first
	slowPos int
	slowLen int
	onSlow  func(Sample)
}

// New creates a monitor.
//
// Parameters:
//   - slowThreshold: Durations above this are filed as slow operations
//     (0 disables slow classification)
//   - windowSize: Samples retained per operation name (minimum 1)
//   - slowCapacity: Size of the slow-operation ring buffer (minimum 1)
func New(slowThreshold time.Duration, windowSize, slowCapacity int) *Monitor {
	if windowSize < 1 {
		windowSize = 1
	}
	if slowCapacity < 1 {
		slowCapacity = 1
	}
	return &Monitor{
		slowThreshold: slowThreshold,
		windowSize:    windowSize,
		slowCapacity:  slowCapacity,
		samples:       make(map[string][]Sample),
		slow:          make([]Sample, slowCapacity),
	}
}

// SetOnSlow registers a callback invoked whenever an operation exceeds
// the slow threshold. The callback runs on the recording goroutine
// without the monitor lock held; it must not block for long.
func (m *Monitor) SetOnSlow(fn func(Sample)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSlow = fn
}

// Timed executes fn, records a latency sample for it, and returns fn's
// error unchanged.
//
// Parameters:
//   - operation: Name the sample is recorded under
//   - fn: The operation to time
//
// Returns:
//   - error: Whatever fn returned
func (m *Monitor) Timed(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.Record(operation, time.Since(start), err == nil)
	return err
}

// Record appends a latency sample directly. Useful when the caller has
// already measured the duration.
func (m *Monitor) Record(operation string, duration time.Duration, success bool) {
	s := Sample{
		Operation: operation,
		Duration:  duration,
		Timestamp: time.Now(),
		Success:   success,
	}

	isSlow := m.slowThreshold > 0 && duration > m.slowThreshold

	m.mu.Lock()
	window := append(m.samples[operation], s)
	if len(window) > m.windowSize {
		// Prune the oldest sample; the window is a rolling view.
		window = window[1:]
	}
	m.samples[operation] = window

	if isSlow {
		m.slow[m.slowPos] = s
		m.slowPos = (m.slowPos + 1) % m.slowCapacity
		if m.slowLen < m.slowCapacity {
			m.slowLen++
		}
	}
	callback := m.onSlow
	m.mu.Unlock()

	if isSlow && callback != nil {
		callback(s)
	}
}

// Stats returns aggregated statistics for one operation name, or for
// all operations combined when operation is empty.
func (m *Monitor) Stats(operation string) OpStats {
	m.mu.Lock()
	var window []Sample
	if operation == "" {
		for _, w := range m.samples {
			window = append(window, w...)
		}
	} else {
		window = append(window, m.samples[operation]...)
	}
	m.mu.Unlock()

	return aggregate(operation, window)
}

// AllStats returns per-operation statistics for every recorded name.
func (m *Monitor) AllStats() map[string]OpStats {
	m.mu.Lock()
	windows := make(map[string][]Sample, len(m.samples))
	for name, w := range m.samples {
		windows[name] = append([]Sample(nil), w...)
	}
	m.mu.Unlock()

	out := make(map[string]OpStats, len(windows))
	for name, w := range windows {
		out[name] = aggregate(name, w)
	}
	return out
}

// SlowQueries returns up to limit slow operations, worst (longest
// duration) first. A limit of zero or less returns all retained slow
// samples.
func (m *Monitor) SlowQueries(limit int) []Sample {
	m.mu.Lock()
	out := make([]Sample, 0, m.slowLen)
	for i := 0; i < m.slowLen; i++ {
		out = append(out, m.slow[i])
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Duration > out[j].Duration
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Reset discards all samples and slow-operation history.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = make(map[string][]Sample)
	m.slow = make([]Sample, m.slowCapacity)
	m.slowPos = 0
	m.slowLen = 0
}

// aggregate computes summary statistics over a sample window.
func aggregate(operation string, window []Sample) OpStats {
	stats := OpStats{Operation: operation, Count: len(window)}
	if len(window) == 0 {
		return stats
	}

	durations := make([]time.Duration, len(window))
	var total time.Duration
	stats.Min = window[0].Duration
	for i, s := range window {
		durations[i] = s.Duration
		total += s.Duration
		if s.Duration < stats.Min {
			stats.Min = s.Duration
		}
		if s.Duration > stats.Max {
			stats.Max = s.Duration
		}
		if !s.Success {
			stats.Failures++
		}
	}
	stats.Mean = total / time.Duration(len(window))

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	stats.P95 = percentile(durations, 0.95)
	stats.P99 = percentile(durations, 0.99)

	return stats
}

// percentile returns the value at index ceil(p*n)-1 in a sorted slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
