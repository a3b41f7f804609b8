package shelly

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Meter reads active power from a three-phase energy meter
// (Shelly 3EM for Gen1, Shelly Pro 3EM for Gen2).
//
// Readings are signed: positive is draw from the grid, negative is feed-in.
type Meter struct {
	c *client

	// Gen2 answers every phase in one EM.GetStatus document; concurrent
	// phase reads share a single request.
	status singleflight.Group
}

// NewMeter creates a meter client.
func NewMeter(cfg Config) (*Meter, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating meter client: %w", err)
	}
	return &Meter{c: c}, nil
}

// gen1Emeter is the body of Gen1 GET /emeter/{i}.
type gen1Emeter struct {
	Power *float64 `json:"power"`
}

// gen1Status is the relevant part of Gen1 GET /status.
type gen1Status struct {
	TotalPower *float64     `json:"total_power"`
	Emeters    []gen1Emeter `json:"emeters"`
}

// gen2EMStatus is the body of Gen2 EM.GetStatus.
type gen2EMStatus struct {
	APower     *float64 `json:"a_act_power"`
	BPower     *float64 `json:"b_act_power"`
	CPower     *float64 `json:"c_act_power"`
	TotalPower *float64 `json:"total_act_power"`
}

// PhasePower returns the active power of one phase (0 = A, 1 = B, 2 = C) in watts.
func (m *Meter) PhasePower(ctx context.Context, phase int) (float64, error) {
	if phase < 0 || phase > 2 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPhase, phase)
	}

	switch m.c.gen {
	case Gen1:
		var body gen1Emeter
		if err := m.c.getJSON(ctx, fmt.Sprintf("/emeter/%d", phase), nil, &body); err != nil {
			return 0, err
		}
		return required(body.Power, "power")
	default:
		status, err := m.emStatus(ctx)
		if err != nil {
			return 0, err
		}
		fields := [3]*float64{status.APower, status.BPower, status.CPower}
		names := [3]string{"a_act_power", "b_act_power", "c_act_power"}
		return required(fields[phase], names[phase])
	}
}

// TotalPower returns the total over all phases in watts. The meter's own
// total is preferred; without it, the phases the device did report are
// summed. It fails only when neither is present.
func (m *Meter) TotalPower(ctx context.Context) (float64, error) {
	switch m.c.gen {
	case Gen1:
		var body gen1Status
		if err := m.c.getJSON(ctx, "/status", nil, &body); err != nil {
			return 0, err
		}
		if body.TotalPower != nil {
			return *body.TotalPower, nil
		}
		phases := make([]*float64, 0, len(body.Emeters))
		for _, e := range body.Emeters {
			phases = append(phases, e.Power)
		}
		return sumPresent("total_power", phases...)
	default:
		status, err := m.emStatus(ctx)
		if err != nil {
			return 0, err
		}
		if status.TotalPower != nil {
			return *status.TotalPower, nil
		}
		return sumPresent("total_act_power", status.APower, status.BPower, status.CPower)
	}
}

func (m *Meter) emStatus(ctx context.Context) (gen2EMStatus, error) {
	v, err, _ := m.status.Do("EM.GetStatus", func() (any, error) {
		var status gen2EMStatus
		err := m.c.getJSON(ctx, "/rpc/EM.GetStatus", map[string]string{"id": "0"}, &status)
		return status, err
	})
	if err != nil {
		return gen2EMStatus{}, err
	}
	return v.(gen2EMStatus), nil
}

// required dereferences a decoded field, failing if the device omitted it.
func required(v *float64, field string) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: missing field %q", ErrMalformedResponse, field)
	}
	return *v, nil
}

// sumPresent adds the non-nil phase values. With none present the total
// field is reported missing.
func sumPresent(totalField string, phases ...*float64) (float64, error) {
	var (
		sum   float64
		found bool
	)
	for _, p := range phases {
		if p != nil {
			sum += *p
			found = true
		}
	}
	if !found {
		return 0, fmt.Errorf("%w: missing field %q and all phase fields", ErrMalformedResponse, totalField)
	}
	return sum, nil
}
