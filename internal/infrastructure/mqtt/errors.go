package mqtt

import "errors"

var (
	// ErrConnectionFailed is returned by Connect when the broker cannot be reached in time.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected is returned by publishes while the broker is unreachable.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrPublishFailed is returned when the broker does not acknowledge a publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")
)
