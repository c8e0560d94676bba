package metrics

import "errors"

// Sentinel errors for metrics export operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, metrics.ErrDisabled) {
//	    // Continue without metrics export
//	}
var (
	// ErrNotConnected indicates the exporter is not connected to InfluxDB.
	ErrNotConnected = errors.New("metrics: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("metrics: connection failed")

	// ErrDisabled indicates metrics export is disabled in config.
	ErrDisabled = errors.New("metrics: disabled in configuration")
)
