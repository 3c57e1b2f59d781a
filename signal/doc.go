// Package signal computes O(1) per-cell traffic light colour at a given
// simulation step, from an ordered list of fixed-duration phases and the
// signal groups that bind cells to a colour timeline.
package signal
