// Package conflict arbitrates between vehicles whose intentions contend for
// the same cell in the same step, producing an Accept/Truncate/Hold
// decision per vehicle.
package conflict
