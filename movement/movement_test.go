package movement_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/LdDl/micro-traffic-sim-core/conflict"
	"github.com/LdDl/micro-traffic-sim-core/core"
	"github.com/LdDl/micro-traffic-sim-core/geom"
	"github.com/LdDl/micro-traffic-sim-core/intention"
	"github.com/LdDl/micro-traffic-sim-core/movement"
	"github.com/LdDl/micro-traffic-sim-core/vehicle"
)

// CommitSuite covers movement.Commit's body-shift, collision-avoidance, and
// despawn preconditions over a shared chain graph fixture.
type CommitSuite struct {
	suite.Suite
}

func (s *CommitSuite) chain(n int, deathAt core.CellID) *core.CellGraph {
	g := core.NewCellGraph()
	for i := 1; i <= n; i++ {
		fwd := core.NoSuccessor
		if i < n {
			fwd = core.CellID(i + 1)
		}
		zone := core.Common
		if core.CellID(i) == deathAt {
			zone = core.Death
		}
		require.NoError(s.T(), g.AddCell(core.Cell{
			ID: core.CellID(i), Zone: zone, SpeedLimit: 3,
			Forward: fwd, Left: core.NoSuccessor, Right: core.NoSuccessor, MesoLink: core.NoSuccessor,
		}))
	}
	require.NoError(s.T(), g.Freeze())

	return g
}

// TestAdvancesHeadAndTail checks a single vehicle's body shifts one cell
// forward and its vacated rearmost tail cell is released in the new index.
func (s *CommitSuite) TestAdvancesHeadAndTail() {
	g := s.chain(10, 0)
	occ := core.NewOccupancyIndex()
	v := &vehicle.Vehicle{ID: 1, Head: 3, Tail: []core.CellID{2, 1}}
	require.NoError(s.T(), occ.Claim(3, 1))
	require.NoError(s.T(), occ.Claim(2, 1))
	require.NoError(s.T(), occ.Claim(1, 1))
	vehicles := map[core.VehicleID]*vehicle.Vehicle{1: v}

	it := intention.Intention{VehicleID: 1, Path: []core.CellID{3, 4}, NewSpeed: 1, Turn: core.Forward}
	intents := map[core.VehicleID]intention.Intention{1: it}
	decisions := map[core.VehicleID]conflict.Decision{1: {Kind: conflict.Accept}}

	res, err := movement.Commit(g, occ, vehicles, intents, decisions)
	require.NoError(s.T(), err)
	require.Equal(s.T(), core.CellID(4), v.Head)
	require.Equal(s.T(), []core.CellID{3, 2}, v.Tail)
	require.Equal(s.T(), 1, v.Speed)

	occupant, ok := res.Occupancy.Occupant(4)
	require.True(s.T(), ok)
	require.Equal(s.T(), core.VehicleID(1), occupant)
	require.False(s.T(), res.Occupancy.IsOccupied(1))
	require.Empty(s.T(), res.Despawned)
}

// TestTwoVehiclesSwapNeighboringCellsWithoutFalseCollision checks that
// releasing every vehicle's old cells before claiming any new cell lets a
// follower move onto a cell its leader is vacating the same step.
func (s *CommitSuite) TestTwoVehiclesSwapNeighboringCellsWithoutFalseCollision() {
	g := s.chain(10, 0)
	occ := core.NewOccupancyIndex()
	v1 := &vehicle.Vehicle{ID: 1, Head: 3}
	v2 := &vehicle.Vehicle{ID: 2, Head: 4}
	require.NoError(s.T(), occ.Claim(3, 1))
	require.NoError(s.T(), occ.Claim(4, 2))
	vehicles := map[core.VehicleID]*vehicle.Vehicle{1: v1, 2: v2}

	intents := map[core.VehicleID]intention.Intention{
		1: {VehicleID: 1, Path: []core.CellID{3, 4}, NewSpeed: 1, Turn: core.Forward},
		2: {VehicleID: 2, Path: []core.CellID{4, 5}, NewSpeed: 1, Turn: core.Forward},
	}
	decisions := map[core.VehicleID]conflict.Decision{
		1: {Kind: conflict.Accept},
		2: {Kind: conflict.Accept},
	}

	res, err := movement.Commit(g, occ, vehicles, intents, decisions)
	require.NoError(s.T(), err)
	require.Equal(s.T(), core.CellID(4), v1.Head)
	require.Equal(s.T(), core.CellID(5), v2.Head)

	occupant, ok := res.Occupancy.Occupant(4)
	require.True(s.T(), ok)
	require.Equal(s.T(), core.VehicleID(1), occupant)
}

// TestDespawnsAtDeathCell checks a vehicle whose new head lands on a Death
// cell is reported in Result.Despawned and that its whole body — tail
// included — is released, so the death cell and its approach stay usable.
func (s *CommitSuite) TestDespawnsAtDeathCell() {
	g := s.chain(5, 5)
	occ := core.NewOccupancyIndex()
	v := &vehicle.Vehicle{ID: 1, Head: 4, Tail: []core.CellID{3}}
	require.NoError(s.T(), occ.Claim(4, 1))
	require.NoError(s.T(), occ.Claim(3, 1))
	vehicles := map[core.VehicleID]*vehicle.Vehicle{1: v}
	intents := map[core.VehicleID]intention.Intention{
		1: {VehicleID: 1, Path: []core.CellID{4, 5}, NewSpeed: 1, Turn: core.Forward},
	}
	decisions := map[core.VehicleID]conflict.Decision{1: {Kind: conflict.Accept}}

	res, err := movement.Commit(g, occ, vehicles, intents, decisions)
	require.NoError(s.T(), err)
	require.Equal(s.T(), []core.VehicleID{1}, res.Despawned)
	require.False(s.T(), res.Occupancy.IsOccupied(5), "death cell released after despawn")
	require.False(s.T(), res.Occupancy.IsOccupied(4), "despawned vehicle's tail released")
	require.False(s.T(), res.Occupancy.IsOccupied(3))
}

// TestCommitLeavesVehiclesUntouchedOnDoubleClaim checks that a double-claim
// later in commit order (conflict.Resolver should have prevented it, but
// Commit must still not corrupt state if it somehow reaches here) leaves
// every vehicle's Speed, LastDirection, Head, and Tail exactly as Commit
// found them: either the whole step commits, or nothing does.
func (s *CommitSuite) TestCommitLeavesVehiclesUntouchedOnDoubleClaim() {
	g := s.chain(10, 0)
	occ := core.NewOccupancyIndex()
	v1 := &vehicle.Vehicle{ID: 1, Head: 1, Speed: 0}
	v2 := &vehicle.Vehicle{ID: 2, Head: 3, Speed: 0}
	require.NoError(s.T(), occ.Claim(1, 1))
	require.NoError(s.T(), occ.Claim(3, 2))
	vehicles := map[core.VehicleID]*vehicle.Vehicle{1: v1, 2: v2}

	// Both paths converge on cell 2: vehicle 1 (processed first in
	// ascending order) claims it; vehicle 2's claim then collides.
	intents := map[core.VehicleID]intention.Intention{
		1: {VehicleID: 1, Path: []core.CellID{1, 2}, NewSpeed: 2, Turn: core.Left},
		2: {VehicleID: 2, Path: []core.CellID{3, 2}, NewSpeed: 1, Turn: core.Forward},
	}
	decisions := map[core.VehicleID]conflict.Decision{
		1: {Kind: conflict.Accept},
		2: {Kind: conflict.Accept},
	}

	_, err := movement.Commit(g, occ, vehicles, intents, decisions)
	require.ErrorIs(s.T(), err, core.ErrInvariantViolation)

	require.Equal(s.T(), core.CellID(1), v1.Head)
	require.Equal(s.T(), 0, v1.Speed)
	require.Nil(s.T(), v1.LastDirection)
	require.Equal(s.T(), core.CellID(3), v2.Head)
	require.Equal(s.T(), 0, v2.Speed)
	require.Nil(s.T(), v2.LastDirection)
}

// TestCommitComputesHeadingAngle checks that a moved vehicle's LastAngle is
// derived from its old and new head cells' points, and that a vehicle which
// doesn't move this step keeps its prior LastAngle untouched.
func (s *CommitSuite) TestCommitComputesHeadingAngle() {
	g := core.NewCellGraph()
	require.NoError(s.T(), g.AddCell(core.Cell{ID: 1, Point: geom.Point{X: 0, Y: 0}, SpeedLimit: 3, Forward: 2, Left: core.NoSuccessor, Right: core.NoSuccessor, MesoLink: core.NoSuccessor}))
	require.NoError(s.T(), g.AddCell(core.Cell{ID: 2, Point: geom.Point{X: 1, Y: 1}, SpeedLimit: 3, Forward: core.NoSuccessor, Left: core.NoSuccessor, Right: core.NoSuccessor, MesoLink: core.NoSuccessor}))
	require.NoError(s.T(), g.AddCell(core.Cell{ID: 3, Point: geom.Point{X: 5, Y: 5}, SpeedLimit: 3, Forward: core.NoSuccessor, Left: core.NoSuccessor, Right: core.NoSuccessor, MesoLink: core.NoSuccessor}))
	require.NoError(s.T(), g.Freeze())

	occ := core.NewOccupancyIndex()
	moving := &vehicle.Vehicle{ID: 1, Head: 1, LastAngle: 99}
	still := &vehicle.Vehicle{ID: 2, Head: 3, LastAngle: 1.25}
	require.NoError(s.T(), occ.Claim(1, 1))
	require.NoError(s.T(), occ.Claim(3, 2))
	vehicles := map[core.VehicleID]*vehicle.Vehicle{1: moving, 2: still}

	intents := map[core.VehicleID]intention.Intention{
		1: {VehicleID: 1, Path: []core.CellID{1, 2}, NewSpeed: 1, Turn: core.Forward},
		2: {VehicleID: 2, Path: []core.CellID{3}, NewSpeed: 0, Turn: core.Forward},
	}
	decisions := map[core.VehicleID]conflict.Decision{
		1: {Kind: conflict.Accept},
		2: {Kind: conflict.Accept},
	}

	_, err := movement.Commit(g, occ, vehicles, intents, decisions)
	require.NoError(s.T(), err)

	require.InDelta(s.T(), math.Atan2(1, 1), moving.LastAngle, 1e-9)
	require.Equal(s.T(), 1.25, still.LastAngle, "a vehicle that doesn't move this step keeps its prior LastAngle")
}

func TestCommitSuite(t *testing.T) {
	suite.Run(t, new(CommitSuite))
}
