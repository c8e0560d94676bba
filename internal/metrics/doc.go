// Package metrics exports Strata's runtime statistics to InfluxDB.
//
// The exporter is optional: when the metrics section of the configuration
// is disabled, Connect returns ErrDisabled and the rest of the system runs
// without it. In-process reads and writes never depend on the exporter.
//
// Writes are non-blocking and batched by the underlying client; async
// write failures are surfaced through the SetOnError callback. A Reporter
// goroutine samples pool and cache gauges at a fixed interval, while
// per-query latency points are written as operations complete.
package metrics
