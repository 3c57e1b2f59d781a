// Package router computes shortest paths over a core.CellGraph for vehicles
// picking a turn direction toward their destination.
package router
