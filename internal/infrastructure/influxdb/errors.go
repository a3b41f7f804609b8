package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed is returned by Connect when the server does not
	// answer the ping or reports itself unhealthy.
	ErrConnectionFailed = errors.New("influxdb: connection failed")
)
