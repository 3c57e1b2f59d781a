// Package movement applies a step's resolved intentions to vehicles and the
// occupancy index.
package movement
