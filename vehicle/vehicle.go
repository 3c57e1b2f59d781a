// Package vehicle defines the agent state the simulator advances each step:
// head and tail cells, speed, destination, behaviour, and agent type.
package vehicle

import (
	"github.com/LdDl/micro-traffic-sim-core/core"
)

// Behaviour is a closed tag selecting a vehicle's randomisation and
// politeness parameters. Per-behaviour constants are looked up from a fixed
// table (Params), never computed.
type Behaviour int

const (
	// Cooperative vehicles slow down more readily (higher p_slow).
	Cooperative Behaviour = iota
	// Aggressive vehicles slow down less often (lower p_slow).
	Aggressive
)

// String renders a Behaviour for logs and snapshot rows.
func (b Behaviour) String() string {
	switch b {
	case Cooperative:
		return "cooperative"
	case Aggressive:
		return "aggressive"
	default:
		return "unknown"
	}
}

// BehaviourParams holds the constants looked up for a Behaviour tag.
type BehaviourParams struct {
	// PSlow is the NaSch randomisation probability: chance per step of
	// decrementing the proposed speed by one.
	PSlow float64
	// Politeness is the behaviour's merge-yielding constant. It is stored
	// in the table only: conflict.Resolver's arbitration does not read it,
	// so merges are decided the same way for every behaviour.
	Politeness float64
}

// Params is the fixed per-behaviour constant table; behaviours are a
// closed set, so parameters are looked up, never computed.
var Params = map[Behaviour]BehaviourParams{
	Cooperative: {PSlow: 0.3, Politeness: 0.7},
	Aggressive:  {PSlow: 0.1, Politeness: 0.2},
}

// AgentType is a closed tag for the kind of agent a Vehicle represents.
type AgentType int

const (
	// Car is the default agent type.
	Car AgentType = iota
	// Bus is a larger agent type, typically configured with a longer tail.
	Bus
	// Truck is a larger, slower agent type.
	Truck
)

// String renders an AgentType for logs and snapshot rows.
func (a AgentType) String() string {
	switch a {
	case Car:
		return "car"
	case Bus:
		return "bus"
	case Truck:
		return "truck"
	default:
		return "unknown"
	}
}

// DefaultSpeedLimits gives each AgentType a default vehicle speed limit,
// consulted by the trip spawner when instantiating a new vehicle. A cell's
// own speed limit still applies (the effective cap is the min of the two).
var DefaultSpeedLimits = map[AgentType]int{
	Car:   3,
	Bus:   2,
	Truck: 2,
}

// Vehicle is a multi-cell agent. Tail lists previously occupied cells,
// head-adjacent first (Tail[0] is immediately behind Head). Speed is the
// vehicle's current integer speed, always in [0, min(SpeedLimit,
// head's cell speed limit)].
type Vehicle struct {
	ID            core.VehicleID
	Head          core.CellID
	Tail          []core.CellID
	AgentType     AgentType
	Behaviour     Behaviour
	SpeedLimit    int
	Speed         int
	Destination   core.CellID
	LastDirection *core.Direction // nil until the vehicle has moved at least once
	// LastAngle is the heading (radians, atan2 convention) from the
	// vehicle's previous head cell toward its current one, computed by
	// movement.Commit from their core.Cell.Point coordinates. Zero until
	// the vehicle's first move; unchanged on a step where it doesn't move.
	LastAngle float64
}

// BodyLength is 1 (the head) plus the tail length.
func (v *Vehicle) BodyLength() int {
	return 1 + len(v.Tail)
}

// Occupies returns every cell this vehicle currently claims: head first,
// then tail in head-adjacent order.
func (v *Vehicle) Occupies() []core.CellID {
	out := make([]core.CellID, 0, v.BodyLength())
	out = append(out, v.Head)
	out = append(out, v.Tail...)

	return out
}

// ShiftBody computes the vehicle's new head and tail after advancing along
// path (path[0] must equal v.Head; path[len(path)-1] is the new head).
// It does not mutate v.
//
// The new body is the last BodyLength() cells of the vehicle's full
// occupancy trail in chronological oldest-to-newest order: the tail read
// rearmost-first, then the old head, then each newly entered path cell.
// Keeping only the most recent BodyLength() cells of that trail is exactly
// the tail-shift rule: a vehicle's body is always its most recent
// BodyLength() positions, newest at the head.
func (v *Vehicle) ShiftBody(path []core.CellID) (core.CellID, []core.CellID) {
	length := v.BodyLength()
	trail := make([]core.CellID, 0, len(v.Tail)+len(path))
	for i := len(v.Tail) - 1; i >= 0; i-- {
		trail = append(trail, v.Tail[i])
	}
	trail = append(trail, v.Head)
	if len(path) > 1 {
		trail = append(trail, path[1:]...)
	}
	if len(trail) > length {
		trail = trail[len(trail)-length:]
	}

	newHead := trail[len(trail)-1]
	rest := trail[:len(trail)-1]
	newTail := make([]core.CellID, len(rest))
	for i, c := range rest {
		newTail[len(rest)-1-i] = c
	}

	return newHead, newTail
}
