package shelly

import "errors"

// Domain errors for the Shelly device transport.
var (
	// ErrUnreachable is returned when the device cannot be reached
	// (connection refused, timeout, DNS failure).
	ErrUnreachable = errors.New("shelly: device unreachable")

	// ErrRequestFailed is returned when the device answers with a non-2xx status.
	ErrRequestFailed = errors.New("shelly: request failed")

	// ErrMalformedResponse is returned when the response body is not JSON
	// or lacks the expected field.
	ErrMalformedResponse = errors.New("shelly: malformed response")

	// ErrUnknownGeneration is returned for a device generation other than gen1 or gen2.
	ErrUnknownGeneration = errors.New("shelly: unknown device generation")

	// ErrInvalidPhase is returned for a phase index outside 0..2.
	ErrInvalidPhase = errors.New("shelly: invalid phase")
)
