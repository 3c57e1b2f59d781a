// Package core holds the simulator's central data model: Cell, CellGraph,
// and OccupancyIndex. Everything else — the router, signals, intentions,
// conflict resolution, movement — operates on these three types.
package core
