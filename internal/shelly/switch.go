package shelly

import (
	"context"
	"fmt"
)

// Switch reads the relay state of a secondary consumer (Shelly 1 / Plus 1).
// It answers whether that consumer is currently switched on.
type Switch struct {
	c *client
}

// NewSwitch creates a switch client.
func NewSwitch(cfg Config) (*Switch, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating switch client: %w", err)
	}
	return &Switch{c: c}, nil
}

// gen1Relay is the body of Gen1 GET /relay/0.
type gen1Relay struct {
	IsOn *bool `json:"ison"`
}

// gen2SwitchStatus is the body of Gen2 Switch.GetStatus.
type gen2SwitchStatus struct {
	Output *bool `json:"output"`
}

// IsOn reports the relay state.
//
// Gen1: GET /relay/0, field "ison"
// Gen2: GET /rpc/Switch.GetStatus?id=0, field "output"
func (s *Switch) IsOn(ctx context.Context) (bool, error) {
	var (
		value *bool
		field string
	)

	switch s.c.gen {
	case Gen1:
		var body gen1Relay
		if err := s.c.getJSON(ctx, "/relay/0", nil, &body); err != nil {
			return false, err
		}
		value, field = body.IsOn, "ison"
	default:
		var body gen2SwitchStatus
		if err := s.c.getJSON(ctx, "/rpc/Switch.GetStatus", map[string]string{"id": "0"}, &body); err != nil {
			return false, err
		}
		value, field = body.Output, "output"
	}

	if value == nil {
		return false, fmt.Errorf("%w: missing field %q", ErrMalformedResponse, field)
	}
	return *value, nil
}
