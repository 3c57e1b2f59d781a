package core

import (
	"fmt"
	"sort"
)

// AddCell inserts c into the graph. Returns ErrGraphFrozen once Freeze has
// run, ErrDuplicateCell if c.ID is already present — re-adding an existing
// ID is never a silent no-op.
//
// Complexity: O(1) amortized.
func (g *CellGraph) AddCell(c Cell) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return ErrGraphFrozen
	}
	if _, exists := g.cells[c.ID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateCell, c.ID)
	}

	cp := c
	g.cells[c.ID] = &cp

	return nil
}

// Freeze validates the graph's invariants and makes it immutable:
//
//   - every non-sentinel successor ID resolves to a known cell;
//   - speed limits are non-negative.
//
// It also builds the predecessor index used by Predecessors. Once frozen,
// AddCell fails with ErrGraphFrozen; Successor/Neighbors/Predecessors may
// only be called after Freeze.
//
// Complexity: O(V) where V is the number of cells.
func (g *CellGraph) Freeze() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return nil
	}

	for id, c := range g.cells {
		if c.SpeedLimit < 0 {
			return fmt.Errorf("%w: cell %d has negative speed limit %d", ErrInvalidGraph, id, c.SpeedLimit)
		}
		for _, succ := range []CellID{c.Forward, c.Left, c.Right} {
			if succ == NoSuccessor {
				continue
			}
			if _, ok := g.cells[succ]; !ok {
				return fmt.Errorf("%w: cell %d references unknown successor %d", ErrInvalidGraph, id, succ)
			}
		}
	}

	for id, c := range g.cells {
		for _, succ := range []CellID{c.Forward, c.Left, c.Right} {
			if succ == NoSuccessor {
				continue
			}
			if g.preds[succ] == nil {
				g.preds[succ] = make(map[CellID]struct{})
			}
			g.preds[succ][id] = struct{}{}
		}
	}

	g.frozen = true

	return nil
}

// GetCell returns a copy of the cell with the given ID, or ErrUnknownCell.
// Complexity: O(1).
func (g *CellGraph) GetCell(id CellID) (Cell, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	c, ok := g.cells[id]
	if !ok {
		return Cell{}, fmt.Errorf("%w: %d", ErrUnknownCell, id)
	}

	return *c, nil
}

// HasCell reports whether id refers to a known cell.
// Complexity: O(1).
func (g *CellGraph) HasCell(id CellID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.cells[id]

	return ok
}

// Successor returns the successor of id in the given direction. Returns
// NoSuccessor, nil if the cell simply has no link in that direction.
// Returns ErrGraphNotFrozen if called before Freeze, ErrUnknownCell if id
// does not exist.
// Complexity: O(1).
func (g *CellGraph) Successor(id CellID, dir Direction) (CellID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.frozen {
		return NoSuccessor, ErrGraphNotFrozen
	}
	c, ok := g.cells[id]
	if !ok {
		return NoSuccessor, fmt.Errorf("%w: %d", ErrUnknownCell, id)
	}
	switch dir {
	case Forward:
		return c.Forward, nil
	case Left:
		return c.Left, nil
	case Right:
		return c.Right, nil
	default:
		return NoSuccessor, fmt.Errorf("core: unknown direction %d", dir)
	}
}

// Neighbors returns the distinct, non-sentinel successor cell IDs of id, in
// forward/left/right order (duplicates across directions collapsed once).
// Complexity: O(1).
func (g *CellGraph) Neighbors(id CellID) ([]CellID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.frozen {
		return nil, ErrGraphNotFrozen
	}
	c, ok := g.cells[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCell, id)
	}

	out := make([]CellID, 0, 3)
	seen := make(map[CellID]struct{}, 3)
	for _, succ := range []CellID{c.Forward, c.Left, c.Right} {
		if succ == NoSuccessor {
			continue
		}
		if _, dup := seen[succ]; dup {
			continue
		}
		seen[succ] = struct{}{}
		out = append(out, succ)
	}

	return out, nil
}

// Predecessors returns every cell ID whose successor (in any direction)
// is id, sorted ascending for deterministic iteration.
// Complexity: O(deg) where deg is the number of in-edges to id.
func (g *CellGraph) Predecessors(id CellID) ([]CellID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.frozen {
		return nil, ErrGraphNotFrozen
	}
	if _, ok := g.cells[id]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCell, id)
	}

	set := g.preds[id]
	out := make([]CellID, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out, nil
}

// Cells returns every cell ID in the graph, sorted ascending. Callers that
// need deterministic iteration order (spawners, intention builders) should
// range over this instead of a raw map.
// Complexity: O(V log V).
func (g *CellGraph) Cells() []CellID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]CellID, 0, len(g.cells))
	for id := range g.cells {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// Len reports the number of cells in the graph.
func (g *CellGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.cells)
}
