package regulator

import (
	"fmt"
	"time"
)

// Mode is the state of the pause coordination machine.
type Mode int

const (
	// ModeActive runs proportional control every tick.
	ModeActive Mode = iota

	// ModeCheckingOverride waits for an outstanding override probe.
	ModeCheckingOverride

	// ModePaused holds the output at 0 until the resume deadline.
	ModePaused
)

// String returns the lower-case mode name used in logs and telemetry.
func (m Mode) String() string {
	switch m {
	case ModeActive:
		return "active"
	case ModeCheckingOverride:
		return "checking_override"
	case ModePaused:
		return "paused"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// PauseConfig holds the pause coordination parameters.
type PauseConfig struct {
	// ExcessThreshold is the meter reading (W) below which full output is
	// considered unable to absorb the surplus.
	ExcessThreshold float64

	// Duration is how long the output stays at 0 once paused.
	Duration time.Duration

	// CacheCycles is how many trigger evaluations an override probe result
	// stays valid, counting the evaluation that probed. 0 or 1 disables reuse.
	CacheCycles int
}

func (c PauseConfig) validate() error {
	if c.Duration <= 0 {
		return fmt.Errorf("%w: pause duration must be positive", ErrInvalidConfig)
	}
	if c.CacheCycles < 0 {
		return fmt.Errorf("%w: override cache cycles must not be negative", ErrInvalidConfig)
	}
	return nil
}

// OverrideCache remembers the last successful override probe.
//
// Invariants: at most one probe is outstanding (checking); while
// cyclesRemaining > 0 the cached value is consumed before any new probe;
// cyclesRemaining never goes below zero.
type OverrideCache struct {
	checking        bool
	value           bool
	cyclesRemaining int
}

// store records a probe result valid for lifetime evaluations, the probing
// one included.
func (c *OverrideCache) store(value bool, lifetime int) {
	c.value = value
	c.cyclesRemaining = lifetime
}

// take consumes one cycle of validity and returns the cached value if it is
// still valid for this evaluation.
func (c *OverrideCache) take() (value, ok bool) {
	if c.cyclesRemaining == 0 {
		return false, false
	}
	c.cyclesRemaining--
	if c.cyclesRemaining == 0 {
		return false, false
	}
	return c.value, true
}

// action tells the loop what to do after the coordinator has been consulted.
type action int

const (
	// actionControl runs the controller and applies its output.
	actionControl action = iota

	// actionHold skips control this tick.
	actionHold

	// actionPause enters the paused state and forces the output to 0.
	actionPause

	// actionProbe starts an asynchronous override probe; control is skipped.
	actionProbe
)

// PauseCoordinator decides whether actuation is suppressed so that other
// consumers can claim surplus the load cannot absorb.
//
// Driving the load to 100% hides the surplus from the meter. When the load
// is saturated and feed-in persists, the coordinator briefly pauses it so a
// competing consumer can take over, unless the override device reports that
// such a consumer is already running.
//
// Thread Safety: not safe for concurrent use; the Loop serialises access.
type PauseCoordinator struct {
	cfg      PauseConfig
	override bool // an override device is configured

	paused   bool
	resumeAt time.Time
	cache    OverrideCache
}

// NewPauseCoordinator creates a coordinator in the active state.
// hasOverride reports whether an override device can be probed.
func NewPauseCoordinator(cfg PauseConfig, hasOverride bool) (*PauseCoordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &PauseCoordinator{cfg: cfg, override: hasOverride}, nil
}

// Mode returns the current state.
func (p *PauseCoordinator) Mode() Mode {
	switch {
	case p.paused:
		return ModePaused
	case p.cache.checking:
		return ModeCheckingOverride
	default:
		return ModeActive
	}
}

// ResumeAt returns the resume deadline; zero unless paused.
func (p *PauseCoordinator) ResumeAt() time.Time {
	if !p.paused {
		return time.Time{}
	}
	return p.resumeAt
}

// evaluate is consulted once per tick with the fresh reading and the last
// applied output.
func (p *PauseCoordinator) evaluate(now time.Time, totalPower, lastOutput float64) action {
	if p.paused {
		if now.Before(p.resumeAt) {
			return actionHold
		}
		// The deadline is final: no re-check of the trigger condition.
		p.paused = false
		p.resumeAt = time.Time{}
		return actionControl
	}

	if p.cache.checking {
		return actionHold
	}

	if lastOutput < maxOutput || totalPower >= p.cfg.ExcessThreshold {
		return actionControl
	}

	if !p.override {
		return actionPause
	}

	if on, ok := p.cache.take(); ok {
		if on {
			return actionControl
		}
		return actionPause
	}

	p.cache.checking = true
	return actionProbe
}

// probeDone applies the outcome of the outstanding probe. A failed probe
// never pauses and is not cached.
func (p *PauseCoordinator) probeDone(on bool, err error) action {
	p.cache.checking = false

	if err != nil {
		return actionControl
	}

	p.cache.store(on, p.cfg.CacheCycles)
	if on {
		return actionControl
	}
	return actionPause
}

// enterPause starts the pause window. It is never cancelled.
func (p *PauseCoordinator) enterPause(now time.Time) {
	p.paused = true
	p.resumeAt = now.Add(p.cfg.Duration)
}
