// Package session owns one running simulation: the cell graph, signal
// table, conflict zones, trip spawner, vehicle population, and the RNG they
// all share. Advance runs exactly one step of the pipeline: tick signals,
// spawn trips, build intentions, resolve conflicts, commit movement, emit
// a snapshot.
package session

import (
	"fmt"
	"math/rand"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/LdDl/micro-traffic-sim-core/broadcast"
	"github.com/LdDl/micro-traffic-sim-core/conflict"
	"github.com/LdDl/micro-traffic-sim-core/conflictzone"
	"github.com/LdDl/micro-traffic-sim-core/core"
	"github.com/LdDl/micro-traffic-sim-core/intention"
	"github.com/LdDl/micro-traffic-sim-core/movement"
	"github.com/LdDl/micro-traffic-sim-core/signal"
	"github.com/LdDl/micro-traffic-sim-core/trip"
	"github.com/LdDl/micro-traffic-sim-core/vehicle"
)

// Verbosity selects how much a Session logs, independent of the session's
// simulation semantics.
type Verbosity int

const (
	// VerbosityNone disables logging entirely.
	VerbosityNone Verbosity = iota
	// VerbosityMain logs step boundaries and spawn/despawn events.
	VerbosityMain
	// VerbosityAdditional adds per-vehicle intention/decision detail.
	VerbosityAdditional
	// VerbosityDetailed adds per-stage NaSch-rule tracing.
	VerbosityDetailed

	verbosityUnset Verbosity = -1
)

func (v Verbosity) zerologLevel() zerolog.Level {
	switch v {
	case VerbosityMain:
		return zerolog.InfoLevel
	case VerbosityAdditional:
		return zerolog.DebugLevel
	case VerbosityDetailed:
		return zerolog.TraceLevel
	default:
		return zerolog.Disabled
	}
}

// verbosityFromEnv reads TRAFFIC_SIM_LOG_LEVEL (any zerolog level string:
// "info", "debug", "trace", …) as the fallback when no WithVerbosity option
// was given. Unset or unrecognised values fall back to VerbosityNone.
func verbosityFromEnv() Verbosity {
	lvl, err := zerolog.ParseLevel(os.Getenv("TRAFFIC_SIM_LOG_LEVEL"))
	if err != nil {
		return VerbosityNone
	}
	switch lvl {
	case zerolog.InfoLevel:
		return VerbosityMain
	case zerolog.DebugLevel:
		return VerbosityAdditional
	case zerolog.TraceLevel:
		return VerbosityDetailed
	default:
		return VerbosityNone
	}
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithSeed seeds the session's RNG. Two sessions built with the same graph,
// configuration, and seed produce identical step-by-step results.
func WithSeed(seed int64) Option {
	return func(s *Session) { s.rng = rand.New(rand.NewSource(seed)) }
}

// WithVerbosity sets the session's log verbosity, overriding
// TRAFFIC_SIM_LOG_LEVEL.
func WithVerbosity(v Verbosity) Option {
	return func(s *Session) { s.verbosity = v }
}

// WithBroadcaster attaches a broadcast.Hub that receives a JSON Snapshot
// after every Advance call.
func WithBroadcaster(h *broadcast.Hub) Option {
	return func(s *Session) { s.broadcaster = h }
}

// WithDeterministic disables the NaSch randomise stage (p_slow treated as
// zero). Trip spawn trials still draw from the RNG; only the per-vehicle
// slowdown is removed.
func WithDeterministic() Option {
	return func(s *Session) { s.deterministic = true }
}

// Session is a running simulation instance.
type Session struct {
	graph  *core.CellGraph
	lights *signal.Table
	zones  *conflictzone.Table

	occ      *core.OccupancyIndex
	spawner  *trip.Spawner
	resolver *conflict.Resolver
	vehicles map[core.VehicleID]*vehicle.Vehicle
	stuck    map[core.VehicleID]struct{}

	rng           *rand.Rand
	step          int
	nextVehicleID core.VehicleID
	deterministic bool

	verbosity   Verbosity
	logger      zerolog.Logger
	broadcaster *broadcast.Hub
}

// NewSession constructs a Session over a frozen graph, signal table,
// conflict-zone table (nil if the network declares none), and initial trip
// set.
func NewSession(g *core.CellGraph, lights *signal.Table, zones *conflictzone.Table, trips []trip.Trip, opts ...Option) *Session {
	s := &Session{
		graph:         g,
		lights:        lights,
		zones:         zones,
		occ:           core.NewOccupancyIndex(),
		spawner:       trip.NewSpawner(trips),
		resolver:      conflict.NewResolver(lights, zones),
		vehicles:      make(map[core.VehicleID]*vehicle.Vehicle),
		stuck:         make(map[core.VehicleID]struct{}),
		rng:           rand.New(rand.NewSource(1)),
		nextVehicleID: 1,
		verbosity:     verbosityUnset,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.zones == nil {
		s.zones, _ = conflictzone.NewTable(g, nil)
		s.resolver = conflict.NewResolver(lights, s.zones)
	}
	if s.verbosity == verbosityUnset {
		s.verbosity = verbosityFromEnv()
	}
	s.logger = zerolog.New(os.Stderr).Level(s.verbosity.zerologLevel()).With().Timestamp().Logger()

	return s
}

// SetVerboseLevel changes the session's log verbosity mid-run. Purely
// diagnostic; results never depend on it.
func (s *Session) SetVerboseLevel(v Verbosity) {
	s.verbosity = v
	s.logger = s.logger.Level(v.zerologLevel())
}

// AddVehicle statically injects a vehicle: validates its cells, speed, and
// ID, claims its body's occupancy, and tracks it from the next Advance on.
// A zero ID is assigned the session's next free one; the assigned vehicle's
// ID is returned either way.
func (s *Session) AddVehicle(v vehicle.Vehicle) (core.VehicleID, error) {
	if v.SpeedLimit < 0 || v.Speed < 0 || v.Speed > v.SpeedLimit {
		return 0, &Error{Kind: ConfigError, Err: fmt.Errorf("vehicle %d: speed %d outside [0, %d]", v.ID, v.Speed, v.SpeedLimit)}
	}
	for _, cell := range append([]core.CellID{v.Head, v.Destination}, v.Tail...) {
		if _, err := s.graph.GetCell(cell); err != nil {
			return 0, wrap(err)
		}
	}
	if v.ID == 0 {
		v.ID = s.nextVehicleID
	}
	if _, exists := s.vehicles[v.ID]; exists {
		return 0, &Error{Kind: ConfigError, Err: fmt.Errorf("vehicle %d already tracked", v.ID)}
	}
	for _, cell := range v.Occupies() {
		if s.occ.IsOccupied(cell) {
			return 0, &Error{Kind: ConfigError, Err: fmt.Errorf("vehicle %d: cell %d already occupied", v.ID, cell)}
		}
	}

	for _, cell := range v.Occupies() {
		if err := s.occ.Claim(cell, v.ID); err != nil {
			return 0, wrap(err)
		}
	}
	s.vehicles[v.ID] = &v
	if v.ID >= s.nextVehicleID {
		s.nextVehicleID = v.ID + 1
	}

	return v.ID, nil
}

// AddTrip registers one more trip with the spawner, keeping trial order by
// trip ID.
func (s *Session) AddTrip(t trip.Trip) error {
	if t.Probability < 0 || t.Probability > 1 {
		return wrap(fmt.Errorf("%w: probability %f outside [0,1]", trip.ErrConfigError, t.Probability))
	}
	for _, cell := range []core.CellID{t.Origin, t.Destination} {
		if _, err := s.graph.GetCell(cell); err != nil {
			return wrap(err)
		}
	}
	s.spawner.Add(t)

	return nil
}

// AddTrafficLight registers one more light; its groups' cells become
// controlled from the next Advance on.
func (s *Session) AddTrafficLight(l *signal.Light) {
	s.lights.Add(l)
}

// AddConflictZone declares one more conflict zone, validated against the
// session's graph.
func (s *Session) AddConflictZone(z conflictzone.Zone) error {
	if err := s.zones.Add(s.graph, z); err != nil {
		return wrap(err)
	}

	return nil
}

// CurrentStep returns the number of steps advanced so far.
func (s *Session) CurrentStep() int {
	return s.step
}

// Vehicle returns a copy of the vehicle with the given ID, or
// ErrUnknownVehicle wrapped as a session Error.
func (s *Session) Vehicle(id core.VehicleID) (vehicle.Vehicle, error) {
	v, ok := s.vehicles[id]
	if !ok {
		return vehicle.Vehicle{}, wrap(&unknownVehicleError{id: id})
	}

	return *v, nil
}

// StuckVehicles reports every vehicle whose head cell had no successor link
// in any direction on the most recent Advance, ascending by ID. Vehicles
// held by traffic, signals, or their own tail are not listed. This is a
// diagnostic query, not an error condition (a dead end is locally
// recovered, never a session-level error).
func (s *Session) StuckVehicles() []core.VehicleID {
	out := lo.Keys(s.stuck)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// Advance runs exactly one simulation step: spawn trips, build every
// vehicle's intention, resolve conflicts, commit movement, and return the
// resulting Snapshot. The occupancy index is rebuilt aside by movement.Commit
// and only swapped into the session after a clean commit — a failed commit
// leaves the session's prior state untouched.
func (s *Session) Advance() (Snapshot, error) {
	s.step++

	for _, sp := range s.spawner.Step(s.graph, s.occ, s.rng) {
		// The spawner only proposes; it does not claim. Two trips sharing a
		// free origin can both appear in this slice, since neither observes
		// the other's claim before Advance starts committing them. The
		// first to commit here wins the cell; a later trip's proposal for
		// an origin already claimed this step is a no-op, same as the
		// spawner's own occupied-origin skip.
		if s.occ.IsOccupied(sp.Vehicle.Head) {
			s.logger.Debug().Int64("trip_id", int64(sp.Trip.ID)).Msg("origin claimed by another trip this step")

			continue
		}

		v := sp.Vehicle
		v.ID = s.nextVehicleID
		s.nextVehicleID++
		if err := s.occ.Claim(v.Head, v.ID); err != nil {
			return Snapshot{}, wrap(err)
		}
		s.vehicles[v.ID] = &v
		s.logger.Info().Int64("vehicle_id", int64(v.ID)).Int64("trip_id", int64(sp.Trip.ID)).Msg("vehicle spawned")
	}

	engine := intention.NewEngine(s.graph, s.occ, s.lights)
	engine.Deterministic = s.deterministic
	intents := engine.BuildAll(s.vehicles, s.step, s.rng)

	decisions := s.resolver.Resolve(s.step, s.vehicles, intents)

	result, err := movement.Commit(s.graph, s.occ, s.vehicles, intents, decisions)
	if err != nil {
		return Snapshot{}, wrap(err)
	}
	s.occ = result.Occupancy

	for _, id := range result.Despawned {
		delete(s.vehicles, id)
		delete(s.stuck, id)
		s.logger.Info().Int64("vehicle_id", int64(id)).Msg("vehicle despawned")
	}

	s.stuck = make(map[core.VehicleID]struct{}, len(s.stuck))
	for id, it := range intents {
		if it.Stuck {
			s.stuck[id] = struct{}{}
			s.logger.Debug().Int64("vehicle_id", int64(id)).Msg("vehicle stuck: no successor from head")
		}
	}

	snap := s.snapshot()
	if s.broadcaster != nil {
		if pubErr := s.broadcaster.Publish(snap); pubErr != nil {
			s.logger.Warn().Err(pubErr).Msg("snapshot broadcast failed")
		}
	}

	return snap, nil
}

// unknownVehicleError carries the offending ID while still satisfying
// errors.Is(err, ErrUnknownVehicle).
type unknownVehicleError struct {
	id core.VehicleID
}

func (e *unknownVehicleError) Error() string {
	return fmt.Sprintf("%s: %d", ErrUnknownVehicle, e.id)
}

func (e *unknownVehicleError) Unwrap() error {
	return ErrUnknownVehicle
}
