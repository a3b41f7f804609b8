// Package regulator steers a dimmable resistive load so that it consumes
// the PV surplus measured at the grid connection point.
//
// Each tick the Loop runs:
//
//	Sampler → PauseCoordinator → Controller → Actuator → Observer
//
// The Sampler reads the three-phase meter and masks failed queries as 0 W.
// The Controller is a damped proportional step on top of the last output,
// with a dead-band against jitter and a fast-descent bias when the grid
// draw gets large. The Actuator rounds to whole percent and suppresses
// duplicate commands.
//
// When the load sits at 100% and surplus is still being exported, the
// PauseCoordinator switches it off for a while so another consumer (for
// example a heat pump boost) can take the surplus. An optional override
// device is probed first; its answer is cached for a number of cycles.
//
// Thread Safety:
//
// All control state is owned by the Loop and mutated only under its mutex.
// Ticks and override probe completions are serialised.
//
// Usage:
//
//	loop, err := regulator.New(regulator.Options{
//	    Meter:  meter,
//	    Dimmer: dimmer,
//	    Tuning: regulator.Tuning{RatedPower: 3000, TargetMargin: -20, Damping: 0.5, MinStep: 1,
//	        FastDescentThreshold: 200, FastDescentDecrement: 10},
//	    Pause:  regulator.PauseConfig{ExcessThreshold: -200, Duration: time.Minute, CacheCycles: 30},
//	    Logger: log,
//	})
//	if err != nil {
//	    return err
//	}
//	defer loop.Close()
//	report := loop.Tick(ctx)
package regulator
