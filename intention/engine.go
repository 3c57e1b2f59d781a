package intention

import (
	"math/rand"
	"sort"

	"github.com/samber/lo"

	"github.com/LdDl/micro-traffic-sim-core/core"
	"github.com/LdDl/micro-traffic-sim-core/router"
	"github.com/LdDl/micro-traffic-sim-core/signal"
	"github.com/LdDl/micro-traffic-sim-core/vehicle"
)

// Engine builds one Intention per vehicle, per step, following the NaSch
// rule: accelerate, choose direction via the router, brake for
// obstacles/tails/signals, randomise, emit.
type Engine struct {
	Graph  *core.CellGraph
	Occ    *core.OccupancyIndex
	Lights *signal.Table

	// Deterministic disables the randomise stage entirely (p_slow treated as
	// zero, nothing drawn from the RNG); every other stage is unchanged.
	Deterministic bool

	vehicles map[core.VehicleID]*vehicle.Vehicle
}

// NewEngine constructs an Engine bound to a graph, the prior step's
// committed occupancy, and the signal table.
func NewEngine(g *core.CellGraph, occ *core.OccupancyIndex, lights *signal.Table) *Engine {
	return &Engine{Graph: g, Occ: occ, Lights: lights}
}

// BuildAll builds one Intention per vehicle in vehicles, processing
// vehicle IDs in ascending order so randomisation consumes rng in a
// fixed, reproducible sequence. step is the current simulation step,
// used for signal lookups.
func (e *Engine) BuildAll(vehicles map[core.VehicleID]*vehicle.Vehicle, step int, rng *rand.Rand) map[core.VehicleID]Intention {
	e.vehicles = vehicles
	ids := lo.Keys(vehicles)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make(map[core.VehicleID]Intention, len(ids))
	for _, id := range ids {
		out[id] = e.buildOne(vehicles[id], step, rng)
	}

	return out
}

// buildOne runs the four NaSch stages for a single vehicle.
func (e *Engine) buildOne(v *vehicle.Vehicle, step int, rng *rand.Rand) Intention {
	headCell, err := e.Graph.GetCell(v.Head)
	if err != nil {
		return emptyStep(v)
	}

	// Stage 1: accelerate.
	s := v.Speed + 1
	if s > v.SpeedLimit {
		s = v.SpeedLimit
	}
	if s > headCell.SpeedLimit {
		s = headCell.SpeedLimit
	}
	if s < 0 {
		s = 0
	}

	// Stage 2: choose direction toward the destination.
	turn, ok := e.chooseDirection(v)
	if !ok {
		stuck := emptyStep(v)
		stuck.Stuck = true

		return stuck
	}

	// Stage 3: brake for obstacles, un-cleared tails, and signals.
	path := e.brake(v, turn, s, step)
	sPrime := len(path) - 1

	// Stage 4: randomise.
	if !e.Deterministic {
		params := vehicle.Params[v.Behaviour]
		roll := rng.Float64()
		if roll < params.PSlow && sPrime > 0 {
			sPrime--
		}
	}
	path = path[:sPrime+1]

	return Intention{
		VehicleID: v.ID,
		Path:      path,
		NewSpeed:  sPrime,
		Turn:      turn,
	}
}

// emptyStep is the zero-motion intention: the vehicle proposes to stay put.
func emptyStep(v *vehicle.Vehicle) Intention {
	return Intention{
		VehicleID: v.ID,
		Path:      []core.CellID{v.Head},
		NewSpeed:  0,
		Turn:      core.Forward,
	}
}

// chooseDirection queries the router for a path toward v's destination and
// picks the turn matching its first hop, preferring forward, then left,
// then right, falling back to whichever of those exists if the router's
// hop matches none directly. Returns ok=false only when the vehicle has no
// legal successor at all (a true dead end) — PathNotFound alone still
// yields a direction if a successor exists, so the vehicle can still be
// blocked/held by the brake stage rather than being marked permanently lost.
func (e *Engine) chooseDirection(v *vehicle.Vehicle) (core.Direction, bool) {
	fwd, _ := e.Graph.Successor(v.Head, core.Forward)
	left, _ := e.Graph.Successor(v.Head, core.Left)
	right, _ := e.Graph.Successor(v.Head, core.Right)

	path, err := router.ShortestPath(e.Graph, v.Head, v.Destination)
	if err == nil && len(path) >= 2 {
		nextHop := path[1]
		switch nextHop {
		case fwd:
			return core.Forward, true
		case left:
			return core.Left, true
		case right:
			return core.Right, true
		}
	}

	switch {
	case fwd != core.NoSuccessor:
		return core.Forward, true
	case left != core.NoSuccessor:
		return core.Left, true
	case right != core.NoSuccessor:
		return core.Right, true
	default:
		return core.Forward, false
	}
}

// brake walks up to s hops from v's head, first via turn then via Forward
// at each subsequent cell, stopping before any cell that is occupied (and
// not about to clear), signal-blocked, or has no successor. It always
// returns at least the single-cell path [v.Head].
func (e *Engine) brake(v *vehicle.Vehicle, turn core.Direction, s int, step int) []core.CellID {
	path := []core.CellID{v.Head}
	if s == 0 {
		return path
	}

	cur := v.Head
	dir := turn
	for hop := 0; hop < s; hop++ {
		next, err := e.Graph.Successor(cur, dir)
		if err != nil || next == core.NoSuccessor {
			break
		}
		if e.blocked(v, next, hop+1, step) {
			break
		}
		path = append(path, next)
		cur = next
		dir = core.Forward
	}

	return path
}

// blocked reports whether cell stops v's advance this step: a signal that
// is Red or Yellow, or a vehicle body (v's own included) that will not have
// cleared the cell by the time v's head arrives there at the given hop.
//
// For a cell held by another vehicle's tail (not its head), clearing is
// estimated optimistically from that vehicle's own best-case feasible
// speed this step (its speed limit capped by its head cell's speed limit),
// rather than that vehicle's actual intention — which may not exist yet if
// it has a higher vehicle ID and has not been built this step. This keeps
// the brake stage independent of processing order while still letting a
// queue of vehicles flow instead of permanently wedging on each other's
// tails. conflict.Resolver's follow rule re-checks against each vehicle's
// actual decided move, so an optimistic guess here never commits a
// collision.
//
// A cell held by v's own body is stricter: a rigid body cannot swap its
// head into a cell its tail vacates the same sub-step, so the head's
// arrival must come strictly after the cell has shifted out of the body.
// This is what wedges vehicles permanently on pingpong/zigzag turns — a
// legal terminal state, not an error.
func (e *Engine) blocked(v *vehicle.Vehicle, cell core.CellID, arrival int, step int) bool {
	if colour, controlled := e.Lights.ColourForCell(cell, step); controlled && colour != signal.Green {
		return true
	}

	occupant, ok := e.Occ.Occupant(cell)
	if !ok {
		return false
	}

	if occupant == v.ID {
		cleared := len(v.Tail) + 1 // looping back onto the head cell itself
		for i, tc := range v.Tail {
			if tc == cell {
				cleared = len(v.Tail) - i

				break
			}
		}

		return arrival <= cleared
	}

	w, exists := e.vehicles[occupant]
	if !exists {
		return true
	}
	if cell == w.Head {
		return true
	}

	idx := -1
	for i, t := range w.Tail {
		if t == cell {
			idx = i

			break
		}
	}
	if idx == -1 {
		return true
	}

	maxFeasible := w.SpeedLimit
	if wc, err := e.Graph.GetCell(w.Head); err == nil && wc.SpeedLimit < maxFeasible {
		maxFeasible = wc.SpeedLimit
	}

	// ShiftBody keeps only the last BodyLength() cells of
	// reverse(w.Tail)++[w.Head]++path[1:]; w.Tail[idx] (idx=0 nearest the
	// head) survives that trim until the leader has advanced at least
	// len(w.Tail)-idx hops, not merely idx+1.
	required := len(w.Tail) - idx

	return maxFeasible < required
}
