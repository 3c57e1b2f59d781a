// Package conflictzone is the explicit-priority escape hatch for conflict
// resolution: declared edge pairs with a First/Second/Equal winner rule,
// consulted by conflict.Resolver before falling back to lane-role and
// path-length tie-breaks.
package conflictzone
