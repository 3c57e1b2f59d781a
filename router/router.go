// Package router implements the shortest-path query vehicles consult to pick
// a turn direction toward their destination.
//
// ShortestPath runs A* over the cell graph's successor relation (forward,
// left, right), using hop count as g and Euclidean distance divided by the
// fastest speed limit observed in the graph as an admissible heuristic h.
// Ties in f = g+h break on the smaller cell ID, so two queries over the same
// graph always return the same path — callers that need to reproduce a run
// do not need to cache anything themselves.
//
// The open set is a lazy decrease-key binary heap: stale entries stay in
// the heap and are skipped on pop, which keeps pushes O(log n) without a
// positional index.
package router

import (
	"container/heap"
	"errors"
	"fmt"

	"github.com/LdDl/micro-traffic-sim-core/core"
)

// ErrPathNotFound is returned when no successor sequence connects start to
// goal, or either endpoint is unknown to the graph.
var ErrPathNotFound = errors.New("router: path not found")

// Path is an ordered sequence of cell IDs from start (Path[0]) to goal
// (Path[len(Path)-1]). A path to a cell from itself has length 1.
type Path []core.CellID

// ShortestPath searches g for a path from start to goal. Returns
// ErrPathNotFound if either endpoint is unknown or no path exists.
//
// Complexity: O((V+E) log V) worst case, same bound as the underlying
// Dijkstra-family search this specializes.
func ShortestPath(g *core.CellGraph, start, goal core.CellID) (Path, error) {
	if !g.HasCell(start) || !g.HasCell(goal) {
		return nil, fmt.Errorf("%w: unknown endpoint", ErrPathNotFound)
	}
	if start == goal {
		return Path{start}, nil
	}

	h := newHeuristic(g)

	open := make(nodePQ, 0, g.Len())
	heap.Init(&open)
	heap.Push(&open, &node{id: start, g: 0, f: h.estimate(start, goal)})

	gScore := map[core.CellID]int{start: 0}
	cameFrom := map[core.CellID]core.CellID{}
	closed := map[core.CellID]bool{}

	for open.Len() > 0 {
		cur := heap.Pop(&open).(*node)
		if closed[cur.id] {
			continue
		}
		if cur.id == goal {
			return reconstruct(cameFrom, start, goal), nil
		}
		closed[cur.id] = true

		neighbors, err := g.Neighbors(cur.id)
		if err != nil {
			return nil, fmt.Errorf("router: %w", err)
		}
		for _, next := range neighbors {
			if closed[next] {
				continue
			}
			tentativeG := gScore[cur.id] + 1
			best, seen := gScore[next]
			if !seen || tentativeG < best {
				gScore[next] = tentativeG
				cameFrom[next] = cur.id
				heap.Push(&open, &node{id: next, g: tentativeG, f: tentativeG + h.estimate(next, goal)})
			}
		}
	}

	return nil, fmt.Errorf("%w: %d -> %d", ErrPathNotFound, start, goal)
}

// reconstruct walks cameFrom backwards from goal to start and reverses it.
func reconstruct(cameFrom map[core.CellID]core.CellID, start, goal core.CellID) Path {
	path := Path{goal}
	cur := goal
	for cur != start {
		cur = cameFrom[cur]
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	return path
}

// node is a heap entry: a cell, its accumulated hop count g, and its
// estimated total cost f = g + h.
type node struct {
	id core.CellID
	g  int
	f  int
}

// nodePQ is a min-heap of *node ordered by f, breaking ties by smaller
// cell ID so repeated queries over the same graph are reproducible.
type nodePQ []*node

func (pq nodePQ) Len() int { return len(pq) }
func (pq nodePQ) Less(i, j int) bool {
	if pq[i].f != pq[j].f {
		return pq[i].f < pq[j].f
	}

	return pq[i].id < pq[j].id
}
func (pq nodePQ) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }
func (pq *nodePQ) Push(x interface{}) {
	*pq = append(*pq, x.(*node))
}
func (pq *nodePQ) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]

	return item
}
