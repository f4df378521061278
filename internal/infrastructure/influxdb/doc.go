// Package influxdb provides optional time-series telemetry for sensor
// readings and dispatched actuator levels.
//
// Writes are non-blocking and batched; the client is safe for concurrent
// use. When telemetry is disabled in configuration, Connect returns
// ErrDisabled and callers run without a client.
package influxdb
