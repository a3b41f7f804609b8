// Package shelly talks to the Shelly devices around the heater over their
// local HTTP APIs.
//
// Three roles are supported, each in two device generations:
//
//	Meter   three-phase energy meter at the grid connection
//	Dimmer  0-100% output driving the heating element
//	Switch  relay of a competing consumer, probed before pausing
//
// Gen1 devices use the REST-style API (/status, /emeter/N, /light/0,
// /relay/0); Gen2 devices use JSON-RPC over GET (/rpc/EM.GetStatus,
// /rpc/Light.Set, /rpc/Switch.GetStatus). The generation is fixed when a
// client is created.
//
// Errors wrap ErrUnreachable, ErrRequestFailed or ErrMalformedResponse.
// No request is retried here; retry policy belongs to the caller.
package shelly
