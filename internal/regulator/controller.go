package regulator

import (
	"fmt"
	"math"
)

// Output bounds in percent.
const (
	minOutput = 0.0
	maxOutput = 100.0
)

// Tuning holds the controller parameters. All values are fixed for the
// process lifetime.
type Tuning struct {
	// RatedPower is the load's power at 100% output, in watts.
	RatedPower float64

	// TargetMargin is the meter reading the loop steers towards, in watts.
	// Negative keeps a small feed-in buffer.
	TargetMargin float64

	// Damping scales the proportional step (typically 0.5).
	Damping float64

	// MinStep is the dead-band: smaller steps are dropped (percentage points).
	MinStep float64

	// FastDescentThreshold is the grid draw in watts above which the output
	// falls by at least FastDescentDecrement per tick.
	FastDescentThreshold float64

	// FastDescentDecrement is in percentage points.
	FastDescentDecrement float64
}

func (t Tuning) validate() error {
	if t.RatedPower <= 0 {
		return fmt.Errorf("%w: rated power must be positive", ErrInvalidConfig)
	}
	if t.Damping <= 0 {
		return fmt.Errorf("%w: damping must be positive", ErrInvalidConfig)
	}
	if t.MinStep < 0 || t.FastDescentDecrement < 0 {
		return fmt.Errorf("%w: min step and fast descent decrement must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Decision is the breakdown of one controller step.
type Decision struct {
	// Error is the meter reading minus the target margin, in watts.
	Error float64

	// RawStep is the proportional step before the dead-band, in percentage points.
	RawStep float64

	// DeadBand is true when RawStep was dropped as noise.
	DeadBand bool

	// FastDescent is true when the over-draw bias lowered the candidate.
	FastDescent bool

	// Output is the new setpoint in [0,100], not yet rounded.
	Output float64
}

// Controller converts a meter reading into a new output setpoint.
//
// There is no integral term: the previous output carries the accumulated
// state, so each step only corrects the remaining error. The controller
// itself is stateless and safe for concurrent use.
type Controller struct {
	tuning Tuning
}

// NewController creates a controller with the given tuning.
func NewController(tuning Tuning) (*Controller, error) {
	if err := tuning.validate(); err != nil {
		return nil, err
	}
	return &Controller{tuning: tuning}, nil
}

// Compute returns the new output for a meter reading (W, positive = draw)
// and the last applied output (%). The result is always within [0,100].
func (c *Controller) Compute(totalPower, lastOutput float64) float64 {
	return c.Step(totalPower, lastOutput).Output
}

// Step is Compute with the intermediate values exposed for logging and telemetry.
func (c *Controller) Step(totalPower, lastOutput float64) Decision {
	t := c.tuning

	d := Decision{Error: totalPower - t.TargetMargin}

	wattPerPercent := t.RatedPower / 100
	d.RawStep = -(d.Error / wattPerPercent) * t.Damping

	step := d.RawStep
	if math.Abs(step) < t.MinStep {
		step = 0
		d.DeadBand = true
	}

	candidate := lastOutput + step

	if totalPower > t.FastDescentThreshold {
		if limit := lastOutput - t.FastDescentDecrement; candidate > limit {
			candidate = limit
			d.FastDescent = true
		}
	}

	d.Output = clampOutput(candidate)
	return d
}

func clampOutput(v float64) float64 {
	if math.IsNaN(v) {
		return minOutput
	}
	return math.Max(minOutput, math.Min(maxOutput, v))
}
