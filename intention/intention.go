// Package intention turns each vehicle's current state into a proposed
// next move: the NaSch four-stage rule (accelerate, choose direction,
// brake, randomise) materialised as an ordered intention path.
package intention

import (
	"github.com/LdDl/micro-traffic-sim-core/core"
)

// Intention is one vehicle's proposed move for the current step. Path has
// length NewSpeed+1: Path[0] is the vehicle's current head, Path[NewSpeed]
// is the cell it proposes to move its head to. A vehicle that proposes not
// to move emits the empty-step intention: NewSpeed=0, Path=[head].
type Intention struct {
	VehicleID core.VehicleID
	Path      []core.CellID
	NewSpeed  int
	Turn      core.Direction
	// Stuck is true when the head cell has no successor link in any
	// direction this step; NewSpeed is forced to 0 and Path is the
	// single-cell empty-step path. A router failure alone does not set it:
	// a vehicle with no route but with a successor still advances along
	// its fallback direction. A dead end is a local, recovered condition:
	// the vehicle simply holds, it is not an engine error.
	Stuck bool
}

// NewHead returns the cell the intention proposes moving the head to —
// Path[NewSpeed], which equals the current head when NewSpeed is 0.
func (i Intention) NewHead() core.CellID {
	return i.Path[len(i.Path)-1]
}
