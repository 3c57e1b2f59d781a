package session_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LdDl/micro-traffic-sim-core/conflictzone"
	"github.com/LdDl/micro-traffic-sim-core/core"
	"github.com/LdDl/micro-traffic-sim-core/session"
	"github.com/LdDl/micro-traffic-sim-core/signal"
	"github.com/LdDl/micro-traffic-sim-core/vehicle"
)

// End-to-end scenarios over small hand-built networks, run with the
// randomise stage disabled so every trace is exact.

type cellSpec struct {
	id               core.CellID
	zone             core.ZoneType
	fwd, left, right core.CellID
}

func buildGrid(t *testing.T, cells []cellSpec) *core.CellGraph {
	t.Helper()
	g := core.NewCellGraph()
	for _, c := range cells {
		require.NoError(t, g.AddCell(core.Cell{
			ID: c.id, Zone: c.zone, SpeedLimit: 3,
			Forward: c.fwd, Left: c.left, Right: c.right, MesoLink: core.NoSuccessor,
		}))
	}
	require.NoError(t, g.Freeze())

	return g
}

// chainSpecs builds a forward chain from..to (inclusive); the last cell's
// forward link is left open for the caller to close.
func chainSpecs(from, to core.CellID, lastFwd core.CellID, lastZone core.ZoneType) []cellSpec {
	var out []cellSpec
	for id := from; id <= to; id++ {
		c := cellSpec{id: id, fwd: id + 1, left: core.NoSuccessor, right: core.NoSuccessor}
		if id == to {
			c.fwd = lastFwd
			c.zone = lastZone
		}
		out = append(out, c)
	}

	return out
}

// TestScenario_SingleLaneFreeFlow: one unobstructed vehicle on a straight
// chain accelerates 1, 2, 3 and then cruises; after 7 steps it has moved at
// least 15 cells.
func TestScenario_SingleLaneFreeFlow(t *testing.T) {
	g := buildGrid(t, chainSpecs(1, 20, core.NoSuccessor, core.Common))
	s := session.NewSession(g, signal.NewTable(nil), nil, nil, session.WithSeed(0), session.WithDeterministic())

	_, err := s.AddVehicle(vehicle.Vehicle{ID: 1, Head: 3, SpeedLimit: 3, Destination: 20})
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		_, err := s.Advance()
		require.NoError(t, err)
	}

	v, err := s.Vehicle(1)
	require.NoError(t, err)
	require.GreaterOrEqual(t, int(v.Head), 18, "head should have advanced at least 15 cells in 7 steps")
}

// TestScenario_MergeRightOfWay: two tailed vehicles reach a merge cell the
// same step; the declared zone's Second rule sends the lower approach
// through first and the upper one waits its turn.
func TestScenario_MergeRightOfWay(t *testing.T) {
	cells := chainSpecs(401, 405, 406, core.Common)
	cells = append(cells, chainSpecs(411, 415, 406, core.Common)...)
	cells = append(cells, chainSpecs(406, 409, 410, core.Common)...)
	cells = append(cells, cellSpec{id: 410, zone: core.Death, fwd: core.NoSuccessor, left: core.NoSuccessor, right: core.NoSuccessor})
	g := buildGrid(t, cells)

	s := session.NewSession(g, signal.NewTable(nil), nil, nil, session.WithSeed(0), session.WithDeterministic())
	require.NoError(t, s.AddConflictZone(conflictzone.Zone{
		ID:    1,
		EdgeA: conflictzone.Edge{Source: 405, Target: 406},
		EdgeB: conflictzone.Edge{Source: 415, Target: 406},
		Rule:  conflictzone.Second,
	}))

	_, err := s.AddVehicle(vehicle.Vehicle{ID: 5, Head: 403, Tail: []core.CellID{402, 401}, SpeedLimit: 3, Destination: 410})
	require.NoError(t, err)
	_, err = s.AddVehicle(vehicle.Vehicle{ID: 6, Head: 413, Tail: []core.CellID{412, 411}, SpeedLimit: 3, Destination: 410})
	require.NoError(t, err)

	advance := func() {
		_, err := s.Advance()
		require.NoError(t, err)
	}

	advance() // both accelerate to 1
	advance() // both bid for 406; the zone hands it to vehicle 6

	v5, err := s.Vehicle(5)
	require.NoError(t, err)
	v6, err := s.Vehicle(6)
	require.NoError(t, err)
	require.Equal(t, core.CellID(406), v6.Head, "Second rule: the 415->406 edge wins the merge")
	require.Equal(t, core.CellID(405), v5.Head, "the loser truncates to the cell before the merge")

	advance() // vehicle 6 clears; vehicle 5 still blocked by its head
	advance() // vehicle 5 takes the merge; vehicle 6 despawns at 410

	v5, err = s.Vehicle(5)
	require.NoError(t, err)
	require.Equal(t, core.CellID(406), v5.Head)
	_, err = s.Vehicle(6)
	require.Error(t, err, "vehicle 6 passed the merge first and has reached the death cell")

	advance()
	advance() // vehicle 5 reaches 410 and despawns
	_, err = s.Vehicle(5)
	require.Error(t, err)
}

// TestScenario_RearEndWithTails: a trailing vehicle catches up to one
// permanently parked at a dead end and queues behind its tail without ever
// overlapping it.
func TestScenario_RearEndWithTails(t *testing.T) {
	cells := chainSpecs(601, 615, core.NoSuccessor, core.Common)
	// The nominal destination exists but is unreachable from the dead end.
	cells = append(cells, chainSpecs(616, 620, core.NoSuccessor, core.Common)...)
	g := buildGrid(t, cells)

	s := session.NewSession(g, signal.NewTable(nil), nil, nil, session.WithSeed(0), session.WithDeterministic())
	_, err := s.AddVehicle(vehicle.Vehicle{ID: 9, Head: 603, Tail: []core.CellID{602, 601}, SpeedLimit: 3, Speed: 3, Destination: 620})
	require.NoError(t, err)
	_, err = s.AddVehicle(vehicle.Vehicle{ID: 10, Head: 612, Tail: []core.CellID{611, 610}, SpeedLimit: 3, Speed: 1, Destination: 620})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := s.Advance()
		require.NoError(t, err)

		v9, err := s.Vehicle(9)
		require.NoError(t, err)
		require.Less(t, int(v9.Head), 613, "the follower must never enter the parked vehicle's body")
	}

	v9, err := s.Vehicle(9)
	require.NoError(t, err)
	require.Equal(t, core.CellID(612), v9.Head)
	require.Equal(t, 0, v9.Speed)

	v10, err := s.Vehicle(10)
	require.NoError(t, err)
	require.Equal(t, core.CellID(615), v10.Head)
	require.Contains(t, s.StuckVehicles(), core.VehicleID(10), "the dead-ended vehicle surfaces in the stuck diagnostic")
}

// TestScenario_TripleMerge: three approaches contend for one cell with no
// declared zone; arbitration falls through signals (none) to lane role (the
// forward approach), then to the lower vehicle ID between the two turns.
func TestScenario_TripleMerge(t *testing.T) {
	cells := []cellSpec{
		{id: 701, fwd: 702, left: core.NoSuccessor, right: core.NoSuccessor},
		{id: 702, fwd: 703, left: core.NoSuccessor, right: core.NoSuccessor},
		{id: 703, fwd: core.NoSuccessor, left: 710, right: core.NoSuccessor},
	}
	cells = append(cells, chainSpecs(705, 709, 710, core.Common)...)
	cells = append(cells,
		cellSpec{id: 713, fwd: 714, left: core.NoSuccessor, right: core.NoSuccessor},
		cellSpec{id: 714, fwd: 715, left: core.NoSuccessor, right: core.NoSuccessor},
		cellSpec{id: 715, fwd: core.NoSuccessor, left: core.NoSuccessor, right: 710},
		cellSpec{id: 710, fwd: 711, left: core.NoSuccessor, right: core.NoSuccessor},
		cellSpec{id: 711, fwd: 712, left: core.NoSuccessor, right: core.NoSuccessor},
		cellSpec{id: 712, zone: core.Death, fwd: core.NoSuccessor, left: core.NoSuccessor, right: core.NoSuccessor},
	)
	g := buildGrid(t, cells)

	s := session.NewSession(g, signal.NewTable(nil), nil, nil, session.WithSeed(0), session.WithDeterministic())
	for id, head := range map[core.VehicleID]core.CellID{11: 702, 12: 707, 13: 714} {
		_, err := s.AddVehicle(vehicle.Vehicle{ID: id, Head: head, SpeedLimit: 3, Destination: 712})
		require.NoError(t, err)
	}

	headOf := func(id core.VehicleID) core.CellID {
		v, err := s.Vehicle(id)
		require.NoError(t, err)

		return v.Head
	}
	advance := func() {
		_, err := s.Advance()
		require.NoError(t, err)
	}

	advance()
	advance()
	require.Equal(t, core.CellID(710), headOf(12), "the forward approach wins the three-way merge")
	require.Equal(t, core.CellID(703), headOf(11))
	require.Equal(t, core.CellID(715), headOf(13))

	advance() // vehicle 12 clears through to the sink
	advance()
	require.Equal(t, core.CellID(710), headOf(11), "between the two turning approaches, the lower ID goes next")
	require.Equal(t, core.CellID(715), headOf(13))

	advance()
	advance()
	require.Equal(t, core.CellID(710), headOf(13))

	advance()
	_, err := s.Vehicle(13)
	require.Error(t, err, "all three vehicles should have drained through the merge")
}

// TestScenario_SignalCompliance: a vehicle approaching a red-controlled
// cell halts one cell before it and resumes the step the light turns green.
func TestScenario_SignalCompliance(t *testing.T) {
	g := buildGrid(t, chainSpecs(1, 8, core.NoSuccessor, core.Common))

	light, err := signal.NewLight(1, 5, []int{5, 5}, []signal.Group{
		{ID: "approach", Cells: []core.CellID{5}, Colours: []signal.Colour{signal.Red, signal.Green}},
	})
	require.NoError(t, err)

	s := session.NewSession(g, signal.NewTable(nil), nil, nil, session.WithSeed(0), session.WithDeterministic())
	s.AddTrafficLight(light)

	_, err = s.AddVehicle(vehicle.Vehicle{ID: 1, Head: 1, SpeedLimit: 3, Destination: 8})
	require.NoError(t, err)

	headAndSpeed := func() (core.CellID, int) {
		v, err := s.Vehicle(1)
		require.NoError(t, err)

		return v.Head, v.Speed
	}

	var snap session.Snapshot
	for i := 0; i < 3; i++ {
		snap, err = s.Advance()
		require.NoError(t, err)
	}
	head, speed := headAndSpeed()
	require.Equal(t, core.CellID(4), head, "held one cell before the red-controlled cell")
	require.Equal(t, 0, speed)
	require.Equal(t, signal.Red, snap.Lights[0].Colours["approach"])

	_, err = s.Advance()
	require.NoError(t, err)
	head, speed = headAndSpeed()
	require.Equal(t, core.CellID(4), head)
	require.Equal(t, 0, speed)

	snap, err = s.Advance() // step 5: green phase begins
	require.NoError(t, err)
	head, speed = headAndSpeed()
	require.Equal(t, core.CellID(5), head, "resumes the step the light turns green")
	require.Equal(t, 1, speed)
	require.Equal(t, signal.Green, snap.Lights[0].Colours["approach"])

	for i := 0; i < 2; i++ {
		_, err = s.Advance()
		require.NoError(t, err)
	}
	head, _ = headAndSpeed()
	require.Equal(t, core.CellID(8), head)
}
