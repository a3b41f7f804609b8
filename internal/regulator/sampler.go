package regulator

import (
	"context"
	"fmt"
	"sync"
)

// phaseCount is the number of phases at the grid connection.
const phaseCount = 3

// Meter reads active power at the grid connection, in watts
// (positive = draw, negative = feed-in). Satisfied by *shelly.Meter.
type Meter interface {
	// PhasePower returns the power of one phase (0, 1, 2).
	PhasePower(ctx context.Context, phase int) (float64, error)

	// TotalPower returns the meter's aggregate over all phases.
	TotalPower(ctx context.Context) (float64, error)
}

// Reading is one sample of the grid connection.
type Reading struct {
	// Total is the signed sum in watts. Failed queries contribute 0 W.
	Total float64

	// Phases are the per-phase values (all zero in aggregate mode).
	Phases [phaseCount]float64

	// Aggregate is true when Total came from a single aggregate query.
	Aggregate bool

	// Masked counts the queries that failed and were replaced by 0 W.
	Masked int
}

// Degraded reports whether any part of the reading is a masked failure,
// i.e. Total may underestimate the true draw or surplus.
func (r Reading) Degraded() bool {
	return r.Masked > 0
}

// Sampler obtains the total active power from the meter.
//
// A failed query never aborts sampling: the phase (or the aggregate) is
// counted as 0 W and the loop keeps running on the degraded value.
type Sampler struct {
	meter     Meter
	aggregate bool
	logger    Logger
}

// NewSampler creates a sampler. With aggregate set, the meter's total is
// used directly instead of summing three phase queries.
func NewSampler(meter Meter, aggregate bool, logger Logger) *Sampler {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Sampler{meter: meter, aggregate: aggregate, logger: logger}
}

// Sample queries the meter and returns the combined reading.
func (s *Sampler) Sample(ctx context.Context) Reading {
	if s.aggregate {
		total, err := s.meter.TotalPower(ctx)
		if err != nil {
			s.logger.Warn("meter total unavailable, assuming 0 W",
				"error", fmt.Errorf("%w: total: %w", ErrSample, err))
			return Reading{Aggregate: true, Masked: 1}
		}
		return Reading{Total: total, Aggregate: true}
	}

	// Every phase is read even when another fails, so there is no first
	// error to cancel on.
	var (
		reading Reading
		errs    [phaseCount]error
		wg      sync.WaitGroup
	)
	for i := range phaseCount {
		wg.Go(func() {
			reading.Phases[i], errs[i] = s.meter.PhasePower(ctx, i)
		})
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			reading.Phases[i] = 0
			reading.Masked++
			s.logger.Warn("meter phase unavailable, assuming 0 W",
				"phase", phaseName(i),
				"error", fmt.Errorf("%w: phase %s: %w", ErrSample, phaseName(i), err))
			continue
		}
		reading.Total += reading.Phases[i]
	}

	return reading
}

func phaseName(i int) string {
	return string(rune('A' + i))
}
