package regulator

import (
	"context"
	"fmt"
	"math"
)

// Dimmer sets the physical output. Satisfied by *shelly.Dimmer.
type Dimmer interface {
	// Set switches the output on at level percent, or explicitly off.
	Set(ctx context.Context, on bool, level int) error
}

// Actuator applies setpoints to the dimmer and remembers the last
// acknowledged one.
//
// The last output is the loop's only memory between ticks. It changes only
// when the dimmer acknowledges a command, so an unacknowledged setpoint is
// naturally sent again on the next tick.
//
// Thread Safety: not safe for concurrent use; the Loop serialises access.
type Actuator struct {
	dimmer Dimmer
	last   float64
}

// NewActuator creates an actuator. The output is assumed to start at 0.
func NewActuator(dimmer Dimmer) *Actuator {
	return &Actuator{dimmer: dimmer}
}

// LastOutput returns the last acknowledged output in whole percent.
func (a *Actuator) LastOutput() float64 {
	return a.last
}

// Apply rounds output to a whole percent and sends it unless it equals the
// last acknowledged output. Level 0 is sent as an explicit off command.
func (a *Actuator) Apply(ctx context.Context, output float64) error {
	level := int(math.Round(clampOutput(output)))
	if float64(level) == a.last {
		return nil
	}

	if err := a.dimmer.Set(ctx, level > 0, level); err != nil {
		return fmt.Errorf("%w: set %d%%: %w", ErrActuator, level, err)
	}

	a.last = float64(level)
	return nil
}
