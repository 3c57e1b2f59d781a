package router

import (
	"github.com/LdDl/micro-traffic-sim-core/core"
	"github.com/LdDl/micro-traffic-sim-core/geom"
)

// heuristic estimates the remaining hop count from a cell to the goal as
// Euclidean distance divided by the fastest speed limit seen anywhere in
// the graph. Dividing by the fastest (not slowest) speed keeps the estimate
// an underestimate of the true hop count, which is what admissibility
// requires: no vehicle can cover ground faster than the graph's fastest
// cell allows, so this never overestimates the hops actually needed.
type heuristic struct {
	g        *core.CellGraph
	maxSpeed float64
}

func newHeuristic(g *core.CellGraph) *heuristic {
	maxSpeed := 1.0
	for _, id := range g.Cells() {
		c, err := g.GetCell(id)
		if err != nil {
			continue
		}
		if float64(c.SpeedLimit) > maxSpeed {
			maxSpeed = float64(c.SpeedLimit)
		}
	}

	return &heuristic{g: g, maxSpeed: maxSpeed}
}

func (h *heuristic) estimate(from, to core.CellID) int {
	cf, err1 := h.g.GetCell(from)
	ct, err2 := h.g.GetCell(to)
	if err1 != nil || err2 != nil {
		return 0
	}

	return int(geom.Distance(cf.Point, ct.Point) / h.maxSpeed)
}
