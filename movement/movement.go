// Package movement commits a step's resolved intentions: it shifts each
// vehicle's body along its accepted path, rebuilds the occupancy index
// aside, and swaps it in only once every vehicle has been applied without
// collision.
package movement

import (
	"fmt"
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/LdDl/micro-traffic-sim-core/conflict"
	"github.com/LdDl/micro-traffic-sim-core/core"
	"github.com/LdDl/micro-traffic-sim-core/intention"
	"github.com/LdDl/micro-traffic-sim-core/vehicle"
)

// Result reports the outcome of a committed step.
type Result struct {
	// Occupancy is the new, committed occupancy index. The caller swaps this
	// in for the session's prior index.
	Occupancy *core.OccupancyIndex
	// Despawned lists vehicles whose new head landed on a Death cell this
	// step, in ascending vehicle-ID order.
	Despawned []core.VehicleID
}

// Commit applies each vehicle's resolved decision (via conflict.Apply) in
// ascending vehicle-ID order. Every vehicle's old cells are released before
// any vehicle's new cells are claimed, so a vehicle moving off a cell this
// step never spuriously blocks another vehicle moving onto it. A genuine
// double-claim (two vehicles' final paths overlapping after conflict
// resolution, which conflict.Resolver should have prevented) surfaces as
// core.ErrInvariantViolation.
func Commit(
	g *core.CellGraph,
	prevOcc *core.OccupancyIndex,
	vehicles map[core.VehicleID]*vehicle.Vehicle,
	intents map[core.VehicleID]intention.Intention,
	decisions map[core.VehicleID]conflict.Decision,
) (*Result, error) {
	ids := lo.Keys(vehicles)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	next := prevOcc.Clone()
	for _, id := range ids {
		for _, cell := range vehicles[id].Occupies() {
			next.Release(cell)
		}
	}

	newHeads := make(map[core.VehicleID]core.CellID, len(ids))
	newTails := make(map[core.VehicleID][]core.CellID, len(ids))
	newSpeeds := make(map[core.VehicleID]int, len(ids))
	newDirections := make(map[core.VehicleID]*core.Direction, len(ids))
	newAngles := make(map[core.VehicleID]float64, len(ids))
	for _, id := range ids {
		v := vehicles[id]
		it := intents[id]
		path, speed := conflict.Apply(it, decisions[id])

		newHead, newTail := v.ShiftBody(path)
		newHeads[id] = newHead
		newTails[id] = newTail

		newSpeeds[id] = speed
		newDirections[id] = v.LastDirection
		newAngles[id] = v.LastAngle
		if speed > 0 {
			turn := it.Turn
			newDirections[id] = &turn
			if angle, ok := headingAngle(g, v.Head, newHead); ok {
				newAngles[id] = angle
			}
		}
	}

	for _, id := range ids {
		for _, cell := range append([]core.CellID{newHeads[id]}, newTails[id]...) {
			if err := next.Claim(cell, id); err != nil {
				return nil, fmt.Errorf("movement: vehicle %d cell %d: %w", id, cell, core.ErrInvariantViolation)
			}
		}
	}

	// Every claim above succeeded: only now is it safe to write the
	// computed state into the shared Vehicle values. Until this point a
	// failed claim returns with every vehicle's Speed/LastDirection/
	// Head/Tail exactly as Commit found them.
	var despawned []core.VehicleID
	for _, id := range ids {
		v := vehicles[id]
		v.Head = newHeads[id]
		v.Tail = newTails[id]
		v.Speed = newSpeeds[id]
		v.LastDirection = newDirections[id]
		v.LastAngle = newAngles[id]

		if cell, err := g.GetCell(v.Head); err == nil && cell.Zone == core.Death {
			despawned = append(despawned, id)
		}
	}

	// A despawned vehicle leaves the network entirely; its body cells are
	// freed so the Death cell and its approach stay usable for followers.
	for _, id := range despawned {
		next.Release(newHeads[id])
		for _, cell := range newTails[id] {
			next.Release(cell)
		}
	}

	return &Result{Occupancy: next, Despawned: despawned}, nil
}

// headingAngle returns the angle (radians, atan2 convention) from from's
// point toward to's point, the heading a vehicle faces after moving between
// them. ok is false if either cell's position could not be resolved, or the
// two cells share the same point (heading undefined); the caller then keeps
// the vehicle's prior LastAngle.
func headingAngle(g *core.CellGraph, from, to core.CellID) (float64, bool) {
	fromCell, err := g.GetCell(from)
	if err != nil {
		return 0, false
	}
	toCell, err := g.GetCell(to)
	if err != nil {
		return 0, false
	}

	dx := toCell.Point.X - fromCell.Point.X
	dy := toCell.Point.Y - fromCell.Point.Y
	if dx == 0 && dy == 0 {
		return 0, false
	}

	return math.Atan2(dy, dx), true
}
