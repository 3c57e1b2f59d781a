// Package intention implements the NaSch rule that turns each vehicle's
// current state into a proposed next move for the current step.
package intention
