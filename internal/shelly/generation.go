package shelly

import (
	"fmt"
	"strings"
)

// Generation selects the wire protocol of a device.
// The two generations differ only in address and payload shape.
type Generation int

const (
	// Gen1 devices expose a REST-like API (/status, /relay/0, /light/0).
	Gen1 Generation = iota + 1

	// Gen2 devices expose the JSON-RPC API over HTTP GET (/rpc/Method?params).
	Gen2
)

// ParseGeneration converts a config value ("gen1", "gen2") to a Generation.
func ParseGeneration(s string) (Generation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gen1", "1":
		return Gen1, nil
	case "gen2", "2":
		return Gen2, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownGeneration, s)
	}
}

// String returns the config spelling of the generation.
func (g Generation) String() string {
	switch g {
	case Gen1:
		return "gen1"
	case Gen2:
		return "gen2"
	default:
		return fmt.Sprintf("generation(%d)", int(g))
	}
}
