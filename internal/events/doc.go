// Package events publishes Strata lifecycle events over MQTT.
//
// The publisher is optional: when the events section of the configuration
// is disabled, Connect returns ErrDisabled and the rest of the system runs
// without it. In-process reads and writes never depend on the publisher.
//
// Published events:
//   - slow-query alerts, wired to the monitor's slow-query callback
//   - migration applied / rolled back, wired to the store's migration hooks
//   - online/offline status with a Last Will for crash detection
//
// The package is publish-only; Strata does not react to inbound messages.
package events
