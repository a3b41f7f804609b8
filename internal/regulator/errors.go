package regulator

import "errors"

// Domain errors for the regulator. None of them stops the loop; they are
// logged and surfaced in the tick Report.
var (
	// ErrSample marks a meter query that failed and was masked to 0 W.
	ErrSample = errors.New("regulator: meter sample failed")

	// ErrActuator marks a dimmer command that was rejected or not delivered.
	// The setpoint is not recorded as applied and is retried next tick.
	ErrActuator = errors.New("regulator: actuator command failed")

	// ErrProbe marks an override probe that failed. The loop stays active.
	ErrProbe = errors.New("regulator: override probe failed")

	// ErrClosed is reported by Tick after Close.
	ErrClosed = errors.New("regulator: loop closed")

	// ErrInvalidConfig is returned by New for unusable options.
	ErrInvalidConfig = errors.New("regulator: invalid configuration")
)
