package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/strata/internal/infrastructure/config"
)

// Logger defines the logging interface used by the Pool.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats is a point-in-time snapshot of pool state and lifetime counters.
type Stats struct {
	Idle             int    `json:"idle"`
	CheckedOut       int    `json:"checked_out"`
	OverflowInUse    int    `json:"overflow_in_use"`
	TotalCheckouts   uint64 `json:"total_checkouts"`
	TotalTimeouts    uint64 `json:"total_timeouts"`
	LivenessFailures uint64 `json:"liveness_failures"`
}

// Pool owns a fixed set of persistent SQLite connections plus a bounded
// overflow allowance, and hands them out under concurrent demand.
//
// Invariant: checked-out count never exceeds base + overflow.
//
// All public methods are thread-safe. The pool mutex guards only the
// idle set, the waiter queue and the counters; it is never held across
// an engine call.
type Pool struct {
	dbCfg          config.DatabaseConfig
	base           int
	overflowMax    int
	defaultTimeout time.Duration
	logger         Logger

	mu         sync.Mutex
	idle       []*Conn
	waiters    []chan *Conn
	checkedOut int
	overflow   int
	closed     bool

	totalCheckouts   uint64
	totalTimeouts    uint64
	livenessFailures uint64

	drainOnce sync.Once
	drained   chan struct{}
}

// New creates a pool and eagerly opens the base connections.
//
// Parameters:
//   - dbCfg: SQLite settings (path, pragmas)
//   - poolCfg: Capacity and timeout settings
//
// Returns:
//   - *Pool: Pool with base connections open and idle
//   - error: If any base connection fails to open (already-opened
//     connections are closed before returning)
func New(dbCfg config.DatabaseConfig, poolCfg config.PoolConfig) (*Pool, error) {
	base := poolCfg.BaseSize
	if base < 1 {
		base = 1
	}
	overflowMax := poolCfg.Overflow
	if overflowMax < 0 {
		overflowMax = 0
	}

	p := &Pool{
		dbCfg:          dbCfg,
		base:           base,
		overflowMax:    overflowMax,
		defaultTimeout: time.Duration(poolCfg.AcquireTimeout) * time.Millisecond,
		logger:         noopLogger{},
		idle:           make([]*Conn, 0, base),
		drained:        make(chan struct{}),
	}

	for i := 0; i < base; i++ {
		c, err := openConn(dbCfg, false)
		if err != nil {
			for _, open := range p.idle {
				open.close() //nolint:errcheck // Best effort cleanup on error path
			}
			return nil, fmt.Errorf("opening base connection %d of %d: %w", i+1, base, err)
		}
		p.idle = append(p.idle, c)
	}

	return p, nil
}

// SetLogger sets the logger for the pool.
func (p *Pool) SetLogger(logger Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger = logger
}

// Acquire checks out a connection using the pool's configured default
// timeout. See AcquireTimeout for the full semantics.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	return p.AcquireTimeout(ctx, p.defaultTimeout)
}

// AcquireTimeout checks out a connection, waiting up to timeout for one
// to become available.
//
// The algorithm:
//  1. Pop from the idle set if non-empty
//  2. Otherwise open an overflow connection if capacity allows
//  3. Otherwise wait until a connection is released or timeout elapses
//
// A timeout of zero fails immediately when the pool is at capacity.
// The pool never retries internally; ErrExhausted is surfaced to the
// caller, which has the context to decide on retry policy.
//
// Parameters:
//   - ctx: Context for cancellation
//   - timeout: Maximum wait for a free connection (0 = fail fast)
//
// Returns:
//   - *Conn: Checked-out connection, owned by the caller until Release
//   - error: ErrExhausted on timeout, ErrClosed after Shutdown
func (p *Pool) AcquireTimeout(ctx context.Context, timeout time.Duration) (*Conn, error) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		p.mu.Lock()

		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}

		// Fast path: idle connection available.
		if n := len(p.idle); n > 0 {
			c := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.checkedOut++
			p.totalCheckouts++
			p.mu.Unlock()
			return c, nil
		}

		// Capacity available: open a new connection. The slot is
		// reserved under the lock; the open happens outside it.
		if p.checkedOut < p.base+p.overflowMax {
			isOverflow := p.checkedOut >= p.base
			p.checkedOut++
			p.totalCheckouts++
			if isOverflow {
				p.overflow++
			}
			p.mu.Unlock()

			c, err := openConn(p.dbCfg, isOverflow)
			if err != nil {
				p.mu.Lock()
				p.checkedOut--
				p.totalCheckouts--
				if isOverflow {
					p.overflow--
				}
				p.wakeOne()
				p.mu.Unlock()
				return nil, fmt.Errorf("opening connection: %w", err)
			}
			if isOverflow {
				p.logger.Debug("opened overflow connection", "conn_id", c.ID())
			}
			return c, nil
		}

		// Pool exhausted and caller asked for fail-fast.
		if timeoutCh == nil {
			p.totalTimeouts++
			p.mu.Unlock()
			return nil, fmt.Errorf("%w: %d connections in use", ErrExhausted, p.base+p.overflowMax)
		}

		// Join the wait queue. A released connection (or a freed
		// capacity slot) is handed to exactly one waiter.
		ch := make(chan *Conn, 1)
		p.waiters = append(p.waiters, ch)
		p.mu.Unlock()

		select {
		case c, ok := <-ch:
			if !ok {
				return nil, ErrClosed
			}
			if c != nil {
				return c, nil
			}
			// Capacity freed but no connection handed over; retry.
		case <-timeoutCh:
			p.abandonWait(ch)
			return nil, fmt.Errorf("%w: no connection released within %v", ErrExhausted, timeout)
		case <-ctx.Done():
			p.abandonWait(ch)
			return nil, fmt.Errorf("%w: %w", ErrExhausted, ctx.Err())
		}
	}
}

// abandonWait removes a waiter from the queue after timeout or
// cancellation. If a handoff raced with the abandonment, the delivered
// connection (or capacity token) is passed back to the pool so no slot
// is leaked.
func (p *Pool) abandonWait(ch chan *Conn) {
	p.mu.Lock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.totalTimeouts++
			p.mu.Unlock()
			return
		}
	}
	p.totalTimeouts++
	p.mu.Unlock()

	// Not in the queue: a handoff already happened.
	select {
	case c, ok := <-ch:
		if !ok {
			return
		}
		if c != nil {
			p.Release(c)
			return
		}
		p.mu.Lock()
		p.wakeOne()
		p.mu.Unlock()
	default:
	}
}

// Release returns a connection to the pool.
//
// Base connections pass a liveness check and rejoin the idle set (or go
// directly to a waiter). A connection that fails the check is discarded
// and replaced rather than pooled. Overflow connections are closed
// immediately, never cached, to bound resource usage.
func (p *Pool) Release(c *Conn) {
	if c == nil {
		return
	}

	// Liveness probe runs outside the pool lock.
	livenessErr := c.ping(context.Background())
	c.lastUsed = time.Now()

	if c.Overflow() {
		if err := c.close(); err != nil {
			p.logger.Warn("closing overflow connection", "conn_id", c.ID(), "error", err)
		}
		p.mu.Lock()
		p.checkedOut--
		p.overflow--
		if livenessErr != nil {
			p.livenessFailures++
		}
		p.wakeOne()
		p.notifyDrainLocked()
		p.mu.Unlock()
		return
	}

	if livenessErr != nil {
		p.logger.Warn("discarding dead connection", "conn_id", c.ID(), "error", livenessErr)
		if err := c.close(); err != nil {
			p.logger.Warn("closing dead connection", "conn_id", c.ID(), "error", err)
		}

		// Replace outside the lock.
		replacement, openErr := openConn(p.dbCfg, false)

		p.mu.Lock()
		p.livenessFailures++
		p.checkedOut--
		switch {
		case p.closed:
			if openErr == nil {
				p.mu.Unlock()
				replacement.close() //nolint:errcheck // Pool is shutting down
				p.mu.Lock()
			}
			p.notifyDrainLocked()
		case openErr != nil:
			p.logger.Error("replacing dead connection failed", "error", openErr)
			p.wakeOne()
		default:
			p.logger.Info("replaced dead connection", "old", c.ID(), "new", replacement.ID())
			p.returnLocked(replacement)
		}
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	p.checkedOut--
	if p.closed {
		p.notifyDrainLocked()
		p.mu.Unlock()
		if err := c.close(); err != nil {
			p.logger.Warn("closing connection after shutdown", "conn_id", c.ID(), "error", err)
		}
		return
	}
	p.returnLocked(c)
	p.mu.Unlock()
}

// returnLocked hands a healthy base connection to the first waiter, or
// parks it in the idle set. Caller must hold p.mu.
func (p *Pool) returnLocked(c *Conn) {
	if len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.checkedOut++
		p.totalCheckouts++
		ch <- c
		return
	}
	p.idle = append(p.idle, c)
}

// wakeOne signals the first waiter that a capacity slot has been freed.
// The waiter re-runs the acquire loop and may open a fresh connection.
// Caller must hold p.mu.
func (p *Pool) wakeOne() {
	if len(p.waiters) == 0 {
		return
	}
	ch := p.waiters[0]
	p.waiters = p.waiters[1:]
	ch <- nil
}

// notifyDrainLocked marks the drain complete once the last checked-out
// connection comes back after Shutdown. Caller must hold p.mu.
func (p *Pool) notifyDrainLocked() {
	if p.closed && p.checkedOut == 0 {
		p.drainOnce.Do(func() { close(p.drained) })
	}
}

// Stats returns a snapshot of pool state and lifetime counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Idle:             len(p.idle),
		CheckedOut:       p.checkedOut,
		OverflowInUse:    p.overflow,
		TotalCheckouts:   p.totalCheckouts,
		TotalTimeouts:    p.totalTimeouts,
		LivenessFailures: p.livenessFailures,
	}
}

// Shutdown drains and closes the pool.
//
// It rejects new acquires, fails all waiters with ErrClosed, closes the
// idle connections, then waits up to drainTimeout for checked-out
// connections to be released (they are closed as they come back).
//
// Parameters:
//   - drainTimeout: Maximum time to wait for outstanding checkouts
//
// Returns:
//   - error: ErrDrainTimeout if connections were still checked out when
//     the timeout elapsed, nil otherwise
func (p *Pool) Shutdown(drainTimeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	// Fail all waiters.
	for _, ch := range p.waiters {
		close(ch)
	}
	p.waiters = nil

	// Take the idle set; close outside the lock.
	idle := p.idle
	p.idle = nil
	p.notifyDrainLocked()
	outstanding := p.checkedOut
	p.mu.Unlock()

	for _, c := range idle {
		if err := c.close(); err != nil {
			p.logger.Warn("closing idle connection", "conn_id", c.ID(), "error", err)
		}
	}

	if outstanding == 0 {
		return nil
	}

	p.logger.Info("waiting for checked-out connections", "count", outstanding)
	select {
	case <-p.drained:
		return nil
	case <-time.After(drainTimeout):
		p.mu.Lock()
		remaining := p.checkedOut
		p.mu.Unlock()
		return fmt.Errorf("%w: %d remaining", ErrDrainTimeout, remaining)
	}
}
