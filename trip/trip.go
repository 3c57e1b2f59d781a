// Package trip implements the trip spawner: per-step Bernoulli trials that
// instantiate vehicles at Birth cells when an origin is free and reachable.
package trip

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/LdDl/micro-traffic-sim-core/core"
	"github.com/LdDl/micro-traffic-sim-core/router"
	"github.com/LdDl/micro-traffic-sim-core/vehicle"
)

// Type distinguishes how a trip's origin/destination are chosen. Both
// variants are declared upfront in this version: Random trips are simply
// free to be reused across many spawned vehicles, Fixed trips are meant for
// a single scripted vehicle; the spawner treats them identically, the
// distinction is informational for callers building scenarios.
type Type int

const (
	// Random trips may spawn repeatedly over a session's lifetime.
	Random Type = iota
	// Fixed trips represent one scripted origin/destination pairing.
	Fixed
)

// ID identifies a trip.
type ID int64

// ErrConfigError is returned by NewTrip when probability is outside [0,1].
var ErrConfigError = errors.New("trip: invalid configuration")

// Trip declares a potential vehicle: where it enters, where it is headed,
// what it looks like, and how likely it is to spawn on any given step.
type Trip struct {
	ID          ID
	Origin      core.CellID
	Destination core.CellID
	AgentType   vehicle.AgentType
	Behaviour   vehicle.Behaviour
	Probability float64
	Type        Type
}

// NewTrip validates probability and constructs a Trip.
func NewTrip(id ID, origin, destination core.CellID, agentType vehicle.AgentType, behaviour vehicle.Behaviour, probability float64, tripType Type) (Trip, error) {
	if probability < 0 || probability > 1 {
		return Trip{}, fmt.Errorf("%w: probability %f outside [0,1]", ErrConfigError, probability)
	}

	return Trip{
		ID:          id,
		Origin:      origin,
		Destination: destination,
		AgentType:   agentType,
		Behaviour:   behaviour,
		Probability: probability,
		Type:        tripType,
	}, nil
}

// Spawned is one successful spawn: the trip that fired and the vehicle it
// produced (without an ID assigned yet — the caller, Session, owns vehicle
// ID allocation).
type Spawned struct {
	Trip    Trip
	Vehicle vehicle.Vehicle
}

// Spawner runs the per-step trial for a fixed ordered set of trips.
type Spawner struct {
	trips []Trip
}

// NewSpawner returns a Spawner over trips, sorted ascending by ID so trials
// consume the session RNG in a fixed, reproducible order.
func NewSpawner(trips []Trip) *Spawner {
	sorted := append([]Trip(nil), trips...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].ID > sorted[j].ID; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}

	return &Spawner{trips: sorted}
}

// Add registers one more trip, keeping the ID-ascending trial order.
func (s *Spawner) Add(t Trip) {
	s.trips = append(s.trips, t)
	for j := len(s.trips) - 1; j > 0 && s.trips[j-1].ID > s.trips[j].ID; j-- {
		s.trips[j-1], s.trips[j] = s.trips[j], s.trips[j-1]
	}
}

// Step runs one Bernoulli trial per trip, in trip-ID order, consuming rng
// once per trip regardless of outcome (so a reseed reproduces the same
// sequence of successes). A trial succeeds only if the origin cell is
// currently unoccupied and the router finds a path from origin to
// destination; otherwise the trial is a no-op for this step (not retried).
func (s *Spawner) Step(g *core.CellGraph, occ *core.OccupancyIndex, rng *rand.Rand) []Spawned {
	var spawned []Spawned
	for _, t := range s.trips {
		roll := rng.Float64()
		if roll >= t.Probability {
			continue
		}
		if occ.IsOccupied(t.Origin) {
			continue
		}
		if _, err := router.ShortestPath(g, t.Origin, t.Destination); err != nil {
			continue
		}

		spawned = append(spawned, Spawned{
			Trip: t,
			Vehicle: vehicle.Vehicle{
				Head:        t.Origin,
				AgentType:   t.AgentType,
				Behaviour:   t.Behaviour,
				Destination: t.Destination,
				SpeedLimit:  vehicle.DefaultSpeedLimits[t.AgentType],
			},
		})
	}

	return spawned
}

// Trips returns the spawner's trips in the fixed ID-ascending trial order.
func (s *Spawner) Trips() []Trip {
	return append([]Trip(nil), s.trips...)
}
