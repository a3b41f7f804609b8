package regulator

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// OverrideProbe reports whether the competing consumer is switched on.
// Satisfied by *shelly.Switch.
type OverrideProbe interface {
	IsOn(ctx context.Context) (bool, error)
}

// Observer receives a Report after every tick and after every probe
// completion. It is called outside the loop's lock and must not call back
// into the Loop synchronously.
type Observer interface {
	Observe(report Report)
}

// Transition names a change of Mode worth announcing.
type Transition string

// Transitions reported by the loop.
const (
	TransitionNone    Transition = ""
	TransitionProbing Transition = "probing"
	TransitionPaused  Transition = "paused"
	TransitionResumed Transition = "resumed"
)

// Report describes what one tick (or probe completion) did.
type Report struct {
	Time    time.Time
	Reading Reading

	// Decision is nil when control was skipped.
	Decision *Decision

	Mode       Mode
	Transition Transition

	// Output is the last acknowledged output after the tick, in percent.
	Output float64

	// ResumeAt is the pause deadline while paused.
	ResumeAt time.Time

	// Err is the actuator or probe error of this tick, if any.
	Err error
}

// State is a point-in-time view of the loop.
type State struct {
	Mode        Mode
	Output      float64
	ResumeAt    time.Time
	CachedOn    bool
	CacheCycles int
}

// Options configures a Loop.
type Options struct {
	// Meter is required.
	Meter Meter

	// Aggregate reads the meter total instead of three phases.
	Aggregate bool

	// Dimmer is required.
	Dimmer Dimmer

	// Override is optional; nil means no override device is installed.
	Override OverrideProbe

	Tuning Tuning
	Pause  PauseConfig

	// Observer is optional.
	Observer Observer

	// Logger is optional.
	Logger Logger

	// Clock is optional and defaults to time.Now.
	Clock func() time.Time
}

// Loop runs the control pipeline once per tick:
//
//	sample → pause coordination → controller → actuator → observer
//
// All control state lives in the Loop and is mutated only while holding mu,
// which plays the role of a single execution context: ticks and override
// probe completions are serialised against each other.
type Loop struct {
	sampler    *Sampler
	controller *Controller
	actuator   *Actuator
	pause      *PauseCoordinator
	override   OverrideProbe
	observer   Observer
	logger     Logger
	now        func() time.Time

	mu     sync.Mutex
	closed bool

	// Probe lifetime, independent of individual tick contexts.
	ctx    context.Context
	cancel context.CancelFunc
	probes sync.WaitGroup
}

// New creates a Loop with last output 0, active mode and an empty override cache.
func New(opts Options) (*Loop, error) {
	if opts.Meter == nil {
		return nil, fmt.Errorf("%w: meter is required", ErrInvalidConfig)
	}
	if opts.Dimmer == nil {
		return nil, fmt.Errorf("%w: dimmer is required", ErrInvalidConfig)
	}

	controller, err := NewController(opts.Tuning)
	if err != nil {
		return nil, err
	}
	pause, err := NewPauseCoordinator(opts.Pause, opts.Override != nil)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Loop{
		sampler:    NewSampler(opts.Meter, opts.Aggregate, logger),
		controller: controller,
		actuator:   NewActuator(opts.Dimmer),
		pause:      pause,
		override:   opts.Override,
		observer:   opts.Observer,
		logger:     logger,
		now:        clock,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Tick runs one iteration of the control pipeline and returns its Report.
// No failure stops the loop: errors are logged and reported.
// After Close it does nothing and reports ErrClosed.
func (l *Loop) Tick(ctx context.Context) Report {
	l.mu.Lock()

	if l.closed {
		report := Report{Time: l.now(), Err: ErrClosed}
		l.finish(&report, l.pause.Mode())
		l.mu.Unlock()
		return report
	}

	reading := l.sampler.Sample(ctx)
	now := l.now()
	before := l.pause.Mode()
	last := l.actuator.LastOutput()

	report := Report{Time: now, Reading: reading}

	switch l.pause.evaluate(now, reading.Total, last) {
	case actionControl:
		if before == ModePaused {
			l.logger.Info("pause elapsed, resuming control")
		}
		decision := l.controller.Step(reading.Total, last)
		report.Decision = &decision
		report.Err = l.apply(ctx, decision.Output)
		if l.actuator.LastOutput() != last {
			l.logger.Debug("output changed",
				"power_w", reading.Total,
				"error_w", decision.Error,
				"step", decision.RawStep,
				"dead_band", decision.DeadBand,
				"fast_descent", decision.FastDescent,
				"from", last,
				"to", l.actuator.LastOutput(),
			)
		}

	case actionHold:
		// While paused, keep re-sending the off command until it is acknowledged.
		if before == ModePaused {
			report.Err = l.apply(ctx, minOutput)
		}

	case actionPause:
		report.Err = l.enterPause(ctx, now, reading.Total)

	case actionProbe:
		l.logger.Debug("output saturated with surplus left, probing override device",
			"power_w", reading.Total)
		l.startProbe(reading.Total)
	}

	l.finish(&report, before)
	l.mu.Unlock()

	l.observe(report)
	return report
}

// Snapshot returns the current loop state.
func (l *Loop) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return State{
		Mode:        l.pause.Mode(),
		Output:      l.actuator.LastOutput(),
		ResumeAt:    l.pause.ResumeAt(),
		CachedOn:    l.pause.cache.value,
		CacheCycles: l.pause.cache.cyclesRemaining,
	}
}

// Close stops accepting ticks, cancels outstanding probes and waits for
// them to finish. It is safe to call more than once.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.probes.Wait()
}

// apply sends output to the actuator, logging a failure.
func (l *Loop) apply(ctx context.Context, output float64) error {
	err := l.actuator.Apply(ctx, output)
	if err != nil {
		l.logger.Warn("actuator command failed, will retry next tick",
			"output", output,
			"error", err)
	}
	return err
}

// enterPause forces the output to 0 and arms the resume deadline.
func (l *Loop) enterPause(ctx context.Context, now time.Time, totalPower float64) error {
	l.pause.enterPause(now)
	l.logger.Info("load saturated with surplus left, pausing",
		"power_w", totalPower,
		"resume_at", l.pause.ResumeAt())
	return l.apply(ctx, minOutput)
}

// startProbe queries the override device in the background. The result is
// applied under the loop lock, like a tick.
func (l *Loop) startProbe(totalPower float64) {
	l.probes.Add(1)
	go func() {
		defer l.probes.Done()

		on, err := l.override.IsOn(l.ctx)

		l.mu.Lock()
		now := l.now()
		before := l.pause.Mode()
		report := Report{Time: now}

		if err != nil {
			err = fmt.Errorf("%w: %w", ErrProbe, err)
			report.Err = err
			l.logger.Warn("override probe failed, staying active", "error", err)
		}

		if l.pause.probeDone(on, err) == actionPause {
			l.logger.Info("override device is off", "cache_cycles", l.pause.cfg.CacheCycles)
			if applyErr := l.enterPause(l.ctx, now, totalPower); applyErr != nil {
				report.Err = applyErr
			}
		} else if err == nil {
			l.logger.Debug("override device is on, keeping full output")
		}

		l.finish(&report, before)
		l.mu.Unlock()

		l.observe(report)
	}()
}

// finish fills the post-tick fields of a report. Caller holds mu.
func (l *Loop) finish(report *Report, before Mode) {
	report.Mode = l.pause.Mode()
	report.Output = l.actuator.LastOutput()
	report.ResumeAt = l.pause.ResumeAt()
	report.Transition = transition(before, report.Mode)
}

func (l *Loop) observe(report Report) {
	if l.observer != nil {
		l.observer.Observe(report)
	}
}

func transition(before, after Mode) Transition {
	switch {
	case before == after:
		return TransitionNone
	case after == ModePaused:
		return TransitionPaused
	case after == ModeCheckingOverride:
		return TransitionProbing
	case before == ModePaused:
		return TransitionResumed
	default:
		return TransitionNone
	}
}
