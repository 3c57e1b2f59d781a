// Package conflictzone declares pairs of intersecting/merging edges and the
// priority rule that decides a winner when both are entered the same step.
package conflictzone

import (
	"errors"
	"fmt"

	"github.com/LdDl/micro-traffic-sim-core/core"
)

// Rule selects which of a zone's two edges wins when both are contended for
// in the same step.
type Rule int

const (
	// First gives EdgeA priority.
	First Rule = iota
	// Second gives EdgeB priority.
	Second
	// Equal holds both contenders (neither proceeds this step).
	Equal
)

// Edge is a directed source->target pair, matching how an intention enters
// a cell.
type Edge struct {
	Source core.CellID
	Target core.CellID
}

// ErrUnknownEdge is returned when a declared zone references an edge whose
// endpoints are not both present in the cell graph.
var ErrUnknownEdge = errors.New("conflictzone: edge references unknown cell")

// ZoneID identifies a conflict zone.
type ZoneID int64

// Zone declares two edges that intersect or merge at a point, and the rule
// that arbitrates between them.
type Zone struct {
	ID    ZoneID
	EdgeA Edge
	EdgeB Edge
	Rule  Rule
}

// Table indexes zones by their edge pairs for O(1) lookup during conflict
// arbitration, regardless of which side of the pair an intention matches.
type Table struct {
	byEdge map[Edge]*boundZone
}

type boundZone struct {
	zone    Zone
	isEdgeA bool
}

// NewTable validates each zone's edges against g (ErrUnknownEdge if either
// endpoint is missing) and builds the lookup table.
func NewTable(g *core.CellGraph, zones []Zone) (*Table, error) {
	t := &Table{byEdge: make(map[Edge]*boundZone, len(zones)*2)}
	for _, z := range zones {
		if err := t.Add(g, z); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// Add validates z's edges against g and registers it.
func (t *Table) Add(g *core.CellGraph, z Zone) error {
	for _, e := range []Edge{z.EdgeA, z.EdgeB} {
		if !g.HasCell(e.Source) || !g.HasCell(e.Target) {
			return fmt.Errorf("%w: zone %d edge %d->%d", ErrUnknownEdge, z.ID, e.Source, e.Target)
		}
	}
	t.byEdge[z.EdgeA] = &boundZone{zone: z, isEdgeA: true}
	t.byEdge[z.EdgeB] = &boundZone{zone: z, isEdgeA: false}

	return nil
}

// Lookup returns the zone matching edge a (from the perspective of an
// intention entering a.Target via a), if any, along with whether a is the
// zone's EdgeA (true) or EdgeB (false).
func (t *Table) Lookup(a Edge) (Zone, bool, bool) {
	bz, ok := t.byEdge[a]
	if !ok {
		return Zone{}, false, false
	}

	return bz.zone, bz.isEdgeA, true
}
