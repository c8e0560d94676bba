package pool

import "errors"

// Domain errors for the pool package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, pool.ErrExhausted) {
//	    // back off or surface a 503 to the caller
//	}
var (
	// ErrExhausted is returned when no connection becomes available
	// within the acquire timeout. The caller decides whether to retry;
	// the pool never retries internally.
	ErrExhausted = errors.New("pool: exhausted, acquire timed out")

	// ErrClosed is returned when acquiring from a pool that has been
	// shut down.
	ErrClosed = errors.New("pool: closed")

	// ErrLiveness is returned when a connection fails its health check.
	// The connection is discarded and replaced, never returned to the
	// idle set.
	ErrLiveness = errors.New("pool: connection failed liveness check")

	// ErrDrainTimeout is returned by Shutdown when checked-out
	// connections were not returned within the drain timeout.
	ErrDrainTimeout = errors.New("pool: drain timed out with connections still checked out")
)
