package session

import (
	"errors"
	"fmt"

	"github.com/LdDl/micro-traffic-sim-core/conflictzone"
	"github.com/LdDl/micro-traffic-sim-core/core"
	"github.com/LdDl/micro-traffic-sim-core/router"
	"github.com/LdDl/micro-traffic-sim-core/signal"
	"github.com/LdDl/micro-traffic-sim-core/trip"
)

// ErrorKind classifies a session-level failure into the fixed taxonomy a
// caller can branch on without inspecting error text.
type ErrorKind int

const (
	// UnknownCell wraps core.ErrUnknownCell.
	UnknownCell ErrorKind = iota
	// UnknownVehicle is returned when a vehicle ID is not currently tracked.
	UnknownVehicle
	// PathNotFound wraps router.ErrPathNotFound.
	PathNotFound
	// InvalidGraph wraps core's graph-construction/freeze errors.
	InvalidGraph
	// InvariantViolation wraps core.ErrInvariantViolation surfacing from
	// movement.Commit — a cell claimed twice in one sweep, which
	// conflict.Resolver should already prevent — and core.ErrCellOccupied
	// from a direct occupancy claim.
	InvariantViolation
	// ConfigError wraps malformed trip/signal/conflict-zone configuration.
	ConfigError
)

// String renders an ErrorKind for logs.
func (k ErrorKind) String() string {
	switch k {
	case UnknownCell:
		return "unknown_cell"
	case UnknownVehicle:
		return "unknown_vehicle"
	case PathNotFound:
		return "path_not_found"
	case InvalidGraph:
		return "invalid_graph"
	case InvariantViolation:
		return "invariant_violation"
	case ConfigError:
		return "config_error"
	default:
		return "unknown"
	}
}

// ErrUnknownVehicle is returned by Session.Vehicle for an ID not currently
// tracked (never spawned, or already despawned at a Death cell).
var ErrUnknownVehicle = errors.New("session: unknown vehicle")

// Error is the wrapper every Session method returns: a fixed ErrorKind plus
// the underlying cause, so callers can branch with errors.As(err, &sessErr)
// or reach the cause with errors.Is/errors.Unwrap.
type Error struct {
	Kind ErrorKind
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("session: %s: %v", e.Kind, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// wrap classifies err into the session ErrorKind taxonomy.
func wrap(err error) *Error {
	switch {
	case errors.Is(err, core.ErrUnknownCell):
		return &Error{Kind: UnknownCell, Err: err}
	case errors.Is(err, ErrUnknownVehicle):
		return &Error{Kind: UnknownVehicle, Err: err}
	case errors.Is(err, router.ErrPathNotFound):
		return &Error{Kind: PathNotFound, Err: err}
	case errors.Is(err, core.ErrInvalidGraph), errors.Is(err, core.ErrGraphNotFrozen), errors.Is(err, core.ErrGraphFrozen):
		return &Error{Kind: InvalidGraph, Err: err}
	case errors.Is(err, core.ErrInvariantViolation), errors.Is(err, core.ErrCellOccupied):
		return &Error{Kind: InvariantViolation, Err: err}
	case errors.Is(err, trip.ErrConfigError), errors.Is(err, signal.ErrConfigError), errors.Is(err, conflictzone.ErrUnknownEdge):
		return &Error{Kind: ConfigError, Err: err}
	default:
		return &Error{Kind: ConfigError, Err: err}
	}
}
