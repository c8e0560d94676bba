package metrics

import (
	"time"

	"github.com/nerrad567/strata/internal/store"
)

// defaultReportInterval applies when the configured interval is not positive.
const defaultReportInterval = 30 * time.Second

// Reporter periodically samples the store's pool and cache gauges and the
// per-operation latency aggregates, and writes them through the client.
//
// Start it once after the store is serving and stop it during shutdown;
// Stop flushes nothing itself, the client's Close handles that.
type Reporter struct {
	client   *Client
	store    *store.Store
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewReporter builds a reporter over a connected client.
//
// Parameters:
//   - client: Connected metrics client
//   - st: The store whose components are sampled
//   - interval: Sampling period; non-positive falls back to the default
func NewReporter(client *Client, st *store.Store, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = defaultReportInterval
	}
	return &Reporter{
		client:   client,
		store:    st,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sampling goroutine. Call at most once.
func (r *Reporter) Start() {
	go r.run()
}

// Stop halts sampling and waits for the goroutine to exit.
func (r *Reporter) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reporter) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.report()
		case <-r.stop:
			return
		}
	}
}

// report writes one snapshot of every gauge and aggregate.
func (r *Reporter) report() {
	r.client.WritePoolGauges(r.store.Pool().Stats())
	r.client.WriteCacheGauges(r.store.Cache().Stats())
	for _, stats := range r.store.Monitor().AllStats() {
		r.client.WriteOperationStats(stats)
	}
}
