package session

import (
	"sort"

	"github.com/samber/lo"

	"github.com/LdDl/micro-traffic-sim-core/core"
	"github.com/LdDl/micro-traffic-sim-core/signal"
	"github.com/LdDl/micro-traffic-sim-core/vehicle"
)

// VehicleSnapshot is one vehicle's externally visible state after a step.
type VehicleSnapshot struct {
	ID          core.VehicleID    `json:"id"`
	Head        core.CellID       `json:"head"`
	Tail        []core.CellID     `json:"tail"`
	Speed       int               `json:"speed"`
	LastAngle   float64           `json:"last_angle"`
	AgentType   vehicle.AgentType `json:"agent_type"`
	Behaviour   vehicle.Behaviour `json:"behaviour"`
	Destination core.CellID       `json:"destination"`
	Stuck       bool              `json:"stuck"`
}

// LightSnapshot is one traffic light's externally visible state after a
// step: where it stands, its active phase index, and the colour each of
// its groups shows.
type LightSnapshot struct {
	ID       signal.LightID                   `json:"id"`
	Location core.CellID                      `json:"location"`
	Phase    int                              `json:"phase"`
	Colours  map[signal.GroupID]signal.Colour `json:"colours"`
}

// Snapshot is a session's full externally visible state after one Advance
// call: every tracked vehicle and every registered light, plus the step
// counter they belong to.
type Snapshot struct {
	Step     int               `json:"step"`
	Vehicles []VehicleSnapshot `json:"vehicles"`
	Lights   []LightSnapshot   `json:"lights"`
}

// snapshot builds the current Snapshot, vehicles and lights both sorted
// ascending by ID for deterministic output.
func (s *Session) snapshot() Snapshot {
	ids := lo.Keys(s.vehicles)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	vehicles := make([]VehicleSnapshot, 0, len(ids))
	for _, id := range ids {
		v := s.vehicles[id]
		_, stuck := s.stuck[id]
		vehicles = append(vehicles, VehicleSnapshot{
			ID:          v.ID,
			Head:        v.Head,
			Tail:        append([]core.CellID(nil), v.Tail...),
			Speed:       v.Speed,
			LastAngle:   v.LastAngle,
			AgentType:   v.AgentType,
			Behaviour:   v.Behaviour,
			Destination: v.Destination,
			Stuck:       stuck,
		})
	}

	lights := s.lights.Lights()
	sort.Slice(lights, func(i, j int) bool { return lights[i].ID < lights[j].ID })
	lightSnaps := make([]LightSnapshot, 0, len(lights))
	for _, l := range lights {
		colours := make(map[signal.GroupID]signal.Colour, len(l.Groups))
		for gid := range l.Groups {
			if c, err := l.ColourAt(gid, s.step); err == nil {
				colours[gid] = c
			}
		}
		lightSnaps = append(lightSnaps, LightSnapshot{ID: l.ID, Location: l.Location, Phase: l.PhaseAt(s.step), Colours: colours})
	}

	return Snapshot{Step: s.step, Vehicles: vehicles, Lights: lightSnaps}
}
