package selector

import (
	"math"

	"antalyabus/pkg/types"
)

// Gate decides whether a bus is still idling at the terminal. A bus whose
// position is within Tolerance degrees of the reference point on both axes
// has not departed yet.
type Gate struct {
	Latitude  float64
	Longitude float64
	Tolerance float64
}

// Terminal is the reference point buses start their routes from.
var Terminal = Gate{
	Latitude:  36.8308009,
	Longitude: 30.5962667,
	Tolerance: 0.002,
}

// AtTerminal reports whether the bus is still at the reference point.
func (g Gate) AtTerminal(bus types.BusSnapshot) bool {
	return approxEqual(bus.Latitude, g.Latitude, g.Tolerance) &&
		approxEqual(bus.Longitude, g.Longitude, g.Tolerance)
}

// HasDeparted reports whether the bus has left the terminal.
func (g Gate) HasDeparted(bus types.BusSnapshot) bool {
	return !g.AtTerminal(bus)
}

func approxEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}
