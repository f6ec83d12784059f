package influxdb

import "errors"

// Telemetry errors. Writes never return errors directly; failures reach the
// SetOnError callback wrapped in ErrWriteFailed.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: telemetry disabled")

	// ErrConnectionFailed wraps a failed or unhealthy startup ping.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrClosed is returned by HealthCheck after Close.
	ErrClosed = errors.New("influxdb: client closed")

	// ErrWriteFailed wraps an asynchronous batch write failure.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
