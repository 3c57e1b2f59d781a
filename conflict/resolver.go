// Package conflict detects same-target, crossing, merge, and follow
// conflicts among a step's proposed intentions and arbitrates winners by
// signal state, explicit conflict-zone priority, lane role, path length,
// and finally vehicle ID — the fixed order determinism requires.
package conflict

import (
	"sort"

	"github.com/samber/lo"

	"github.com/LdDl/micro-traffic-sim-core/conflictzone"
	"github.com/LdDl/micro-traffic-sim-core/core"
	"github.com/LdDl/micro-traffic-sim-core/intention"
	"github.com/LdDl/micro-traffic-sim-core/signal"
	"github.com/LdDl/micro-traffic-sim-core/vehicle"
)

// Kind is the outcome of arbitration for one vehicle's intention.
type Kind int

const (
	// Accept takes the intention as proposed.
	Accept Kind = iota
	// Truncate keeps only the first Hops hops of the intention path.
	Truncate
	// Hold forces the vehicle to stay at its current head (speed 0).
	Hold
)

// Decision is the resolver's verdict for one vehicle.
type Decision struct {
	Kind Kind
	// Hops is the number of hops kept when Kind==Truncate (0 when Kind==Hold).
	Hops int
}

// Apply materializes d against the original intention, returning the final
// path and speed movement should commit.
func Apply(i intention.Intention, d Decision) ([]core.CellID, int) {
	switch d.Kind {
	case Hold:
		return []core.CellID{i.Path[0]}, 0
	case Truncate:
		return i.Path[:d.Hops+1], d.Hops
	default:
		return i.Path, i.NewSpeed
	}
}

// Resolver arbitrates a step's intentions against the signal table and
// declared conflict zones.
type Resolver struct {
	Lights *signal.Table
	Zones  *conflictzone.Table
}

// NewResolver constructs a Resolver.
func NewResolver(lights *signal.Table, zones *conflictzone.Table) *Resolver {
	return &Resolver{Lights: lights, Zones: zones}
}

// claim is one vehicle's bid to enter a cell at a specific hop of its path.
type claim struct {
	vehicleID core.VehicleID
	hop       int // index into path; path[hop] == cell
	entryEdge conflictzone.Edge
	turn      core.Direction
	pathLen   int
}

// Resolve runs the arbitration loop to fixpoint (or a bound of len(intents)
// iterations, whichever comes first — each iteration strictly truncates at
// least one losing intention, and speeds are bounded non-negative integers,
// so the loop always terminates within the bound).
//
// vehicles supplies each intention's body (head and tail) so the follow
// rule can simulate tail shifts: a path that drives through a cell another
// vehicle's body still covers after its own (possibly truncated) move
// loses. An intention whose vehicle is absent from the map is treated as a
// bodyless point agent occupying only its final cell.
//
// Complexity: O(bound * V * hops) in the worst case.
func (r *Resolver) Resolve(step int, vehicles map[core.VehicleID]*vehicle.Vehicle, intents map[core.VehicleID]intention.Intention) map[core.VehicleID]Decision {
	decisions := make(map[core.VehicleID]Decision, len(intents))
	current := make(map[core.VehicleID][]core.CellID, len(intents))
	for id, it := range intents {
		decisions[id] = Decision{Kind: Accept}
		current[id] = it.Path
	}

	ids := sortedIDs(intents)
	bound := len(intents)
	for iter := 0; iter < bound; iter++ {
		changed := false

		// Defensive signal re-check: an intention should never have been
		// built entering a non-Green cell (intention.Engine already brakes
		// for that), but a step always re-validates rather than trusting
		// upstream silently.
		for _, id := range ids {
			path := current[id]
			for hop := 1; hop < len(path); hop++ {
				if colour, controlled := r.Lights.ColourForCell(path[hop], step); controlled && colour != signal.Green {
					path = path[:hop]
					current[id] = path
					decisions[id] = holdOrTruncate(path)
					changed = true

					break
				}
			}
		}

		// Same-target / crossing / merge: every cell two or more intentions
		// enter this step picks one winner; the rest stop short of it. Cells
		// are visited in ascending ID order so repeated runs truncate in the
		// same sequence.
		cellClaims := r.collectClaims(ids, current, intents)
		cells := lo.Keys(cellClaims)
		sort.Slice(cells, func(i, j int) bool { return cells[i] < cells[j] })
		for _, cell := range cells {
			// An earlier cell this pass may have cut a path short of this
			// claim's hop already; a stale claim must neither win the cell
			// nor be sliced back out to its hop (the subslice still shares
			// the original backing array, so that would silently undo the
			// earlier truncation).
			claims := liveClaims(cellClaims[cell], current)
			if len(claims) < 2 {
				continue
			}
			winner := r.arbitrate(claims)
			for _, c := range claims {
				if c.vehicleID == winner {
					continue
				}
				current[c.vehicleID] = current[c.vehicleID][:c.hop]
				decisions[c.vehicleID] = holdOrTruncate(current[c.vehicleID])
				changed = true
			}
		}

		// Follow / rear-end: simulate every vehicle's tail shift along its
		// current (possibly truncated) path and stop any other vehicle whose
		// path drives through a cell the shifted body still covers.
		bodies := make(map[core.CellID][]core.VehicleID, len(ids))
		for _, id := range ids {
			for _, cell := range postMoveBody(vehicles[id], current[id]) {
				bodies[cell] = append(bodies[cell], id)
			}
		}
		for _, id := range ids {
			path := current[id]
			for hop := 1; hop < len(path); hop++ {
				if coveredByOther(bodies, path[hop], id) {
					current[id] = path[:hop]
					decisions[id] = holdOrTruncate(current[id])
					changed = true

					break
				}
			}
		}

		if !changed {
			break
		}
	}

	return decisions
}

// postMoveBody returns every cell v's body covers after advancing along
// path. A nil vehicle degrades to a point agent at the path's final cell.
func postMoveBody(v *vehicle.Vehicle, path []core.CellID) []core.CellID {
	if v == nil {
		return path[len(path)-1:]
	}
	newHead, newTail := v.ShiftBody(path)

	return append([]core.CellID{newHead}, newTail...)
}

// liveClaims drops claims whose vehicle's current path no longer reaches
// their hop.
func liveClaims(claims []claim, current map[core.VehicleID][]core.CellID) []claim {
	out := claims[:0:0]
	for _, c := range claims {
		if c.hop < len(current[c.vehicleID]) {
			out = append(out, c)
		}
	}

	return out
}

// coveredByOther reports whether any vehicle other than id still covers
// cell after its own move.
func coveredByOther(bodies map[core.CellID][]core.VehicleID, cell core.CellID, id core.VehicleID) bool {
	for _, occ := range bodies[cell] {
		if occ != id {
			return true
		}
	}

	return false
}

// holdOrTruncate builds the Decision matching a (possibly single-cell)
// truncated path.
func holdOrTruncate(path []core.CellID) Decision {
	hops := len(path) - 1
	if hops <= 0 {
		return Decision{Kind: Hold}
	}

	return Decision{Kind: Truncate, Hops: hops}
}

// collectClaims gathers, for every cell entered by any non-held intention
// this step, the list of vehicles proposing to enter it (hop >= 1 in their
// current, possibly already-truncated path).
func (r *Resolver) collectClaims(ids []core.VehicleID, current map[core.VehicleID][]core.CellID, intents map[core.VehicleID]intention.Intention) map[core.CellID][]claim {
	out := make(map[core.CellID][]claim)
	for _, id := range ids {
		path := current[id]
		it := intents[id]
		for hop := 1; hop < len(path); hop++ {
			edge := conflictzone.Edge{Source: path[hop-1], Target: path[hop]}
			out[path[hop]] = append(out[path[hop]], claim{
				vehicleID: id,
				hop:       hop,
				entryEdge: edge,
				turn:      entryTurn(it, hop),
				pathLen:   len(path),
			})
		}
	}

	return out
}

// entryTurn reports the turn used to enter path[hop]: the intention's
// overall Turn for hop 1 (the first transition out of the head), Forward
// for every subsequent hop (intention.Engine only ever turns once, at the
// first hop — see intention/engine.go's brake stage).
func entryTurn(it intention.Intention, hop int) core.Direction {
	if hop == 1 {
		return it.Turn
	}

	return core.Forward
}

// arbitrate picks the single winning vehicle among claims contending for
// one cell, applying the fixed rule order: conflict zone, lane role,
// longest path, lowest vehicle ID.
func (r *Resolver) arbitrate(claims []claim) core.VehicleID {
	candidates := claims

	if len(candidates) == 2 && r.Zones != nil {
		a, b := candidates[0], candidates[1]
		if zone, isEdgeA, found := r.Zones.Lookup(a.entryEdge); found {
			other := zone.EdgeB
			if !isEdgeA {
				other = zone.EdgeA
			}
			if other == b.entryEdge {
				switch zone.Rule {
				case conflictzone.First:
					if isEdgeA {
						return a.vehicleID
					}

					return b.vehicleID
				case conflictzone.Second:
					if isEdgeA {
						return b.vehicleID
					}

					return a.vehicleID
				case conflictzone.Equal:
					// Neither proceeds; report an ID matching no claimant so
					// every contender is truncated as a loser below.
					return equalZoneOutcome(candidates)
				}
			}
		}
	}

	forwardOnly := filterTurn(candidates, core.Forward)
	if len(forwardOnly) == 1 {
		return forwardOnly[0].vehicleID
	}
	if len(forwardOnly) > 1 {
		candidates = forwardOnly
	}

	longest := filterLongest(candidates)
	if len(longest) == 1 {
		return longest[0].vehicleID
	}
	candidates = longest

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].vehicleID < candidates[j].vehicleID })

	return candidates[0].vehicleID
}

// equalZoneOutcome returns a vehicle ID that matches none of the claimants,
// forcing every claimant to be treated as a loser in Resolve's loop (the
// zone's Equal rule means neither side legitimately proceeds this step).
func equalZoneOutcome(claims []claim) core.VehicleID {
	var max core.VehicleID
	for _, c := range claims {
		if c.vehicleID > max {
			max = c.vehicleID
		}
	}

	return max + 1
}

func filterTurn(claims []claim, dir core.Direction) []claim {
	var out []claim
	for _, c := range claims {
		if c.turn == dir {
			out = append(out, c)
		}
	}

	return out
}

func filterLongest(claims []claim) []claim {
	best := -1
	for _, c := range claims {
		if c.pathLen > best {
			best = c.pathLen
		}
	}
	var out []claim
	for _, c := range claims {
		if c.pathLen == best {
			out = append(out, c)
		}
	}

	return out
}

func sortedIDs(intents map[core.VehicleID]intention.Intention) []core.VehicleID {
	ids := lo.Keys(intents)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}
