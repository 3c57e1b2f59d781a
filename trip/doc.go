// Package trip spawns vehicles at Birth cells via per-step Bernoulli trials,
// run in trip-ID order before the intentions phase.
package trip
