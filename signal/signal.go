// Package signal models per-junction traffic lights: an ordered list of
// fixed-duration phases, and signal groups that each emit their own colour
// for the active phase. A cell joined to no group reads perpetually Green.
package signal

import (
	"errors"
	"fmt"

	"github.com/LdDl/micro-traffic-sim-core/core"
)

// Colour is a signal's state for one phase.
type Colour int

const (
	// Green permits entry.
	Green Colour = iota
	// Yellow is the optional intergreen colour between Green and Red; per
	// the brake rule it is treated the same as Red (no new entry).
	Yellow
	// Red forbids entry.
	Red
)

// String renders a Colour for logs and snapshot rows.
func (c Colour) String() string {
	switch c {
	case Green:
		return "green"
	case Yellow:
		return "yellow"
	case Red:
		return "red"
	default:
		return "unknown"
	}
}

// Sentinel errors for traffic light configuration.
var (
	// ErrConfigError wraps any malformed light configuration: a non-positive
	// phase duration, or a group whose colour list length does not equal
	// the phase count.
	ErrConfigError = errors.New("signal: invalid configuration")
	// ErrUnknownLight is returned when a light ID is not registered.
	ErrUnknownLight = errors.New("signal: unknown light")
	// ErrUnknownGroup is returned when a group ID is not registered on a light.
	ErrUnknownGroup = errors.New("signal: unknown group")
)

// GroupID identifies a signal group within a light.
type GroupID string

// LightID identifies a traffic light.
type LightID int64

// Group binds a set of cells to one colour timeline, one entry per phase.
type Group struct {
	ID      GroupID
	Cells   []core.CellID
	Colours []Colour // len(Colours) must equal len(Light.PhaseDurations)
}

// Light is a junction's traffic signal: an ordered list of phase durations
// (in simulation steps) and the groups whose colour timelines it drives.
type Light struct {
	ID              LightID
	Location        core.CellID
	PhaseDurations  []int
	Groups          map[GroupID]Group
	totalDuration   int
	phaseBoundaries []int // cumulative duration, one entry per phase
}

// NewLight validates and constructs a Light. Every phase duration must be
// positive, and every group's colour list must have exactly one entry per
// phase; violations return ErrConfigError.
func NewLight(id LightID, location core.CellID, phaseDurations []int, groups []Group) (*Light, error) {
	if len(phaseDurations) == 0 {
		return nil, fmt.Errorf("%w: light %d has no phases", ErrConfigError, id)
	}
	total := 0
	boundaries := make([]int, len(phaseDurations))
	for i, d := range phaseDurations {
		if d <= 0 {
			return nil, fmt.Errorf("%w: light %d phase %d has non-positive duration %d", ErrConfigError, id, i, d)
		}
		total += d
		boundaries[i] = total
	}

	groupMap := make(map[GroupID]Group, len(groups))
	for _, grp := range groups {
		if len(grp.Colours) != len(phaseDurations) {
			return nil, fmt.Errorf("%w: light %d group %s has %d colours, want %d",
				ErrConfigError, id, grp.ID, len(grp.Colours), len(phaseDurations))
		}
		groupMap[grp.ID] = grp
	}

	return &Light{
		ID:              id,
		Location:        location,
		PhaseDurations:  append([]int(nil), phaseDurations...),
		Groups:          groupMap,
		totalDuration:   total,
		phaseBoundaries: boundaries,
	}, nil
}

// PhaseAt returns the phase index active at simulation step t.
// Complexity: O(P) where P is the number of phases (P is small, typically
// single digits, so a linear scan beats building a lookup table).
func (l *Light) PhaseAt(t int) int {
	if l.totalDuration == 0 {
		return 0
	}
	r := t % l.totalDuration
	for i, bound := range l.phaseBoundaries {
		if r < bound {
			return i
		}
	}

	return len(l.PhaseDurations) - 1
}

// ColourAt returns the colour group emits at step t. Returns ErrUnknownGroup
// if group is not registered on l.
func (l *Light) ColourAt(group GroupID, t int) (Colour, error) {
	grp, ok := l.Groups[group]
	if !ok {
		return Red, fmt.Errorf("%w: %s on light %d", ErrUnknownGroup, group, l.ID)
	}

	return grp.Colours[l.PhaseAt(t)], nil
}

// Table indexes lights by ID and derives, for any cell, the colour it
// currently shows via group membership. A cell belonging to no group is
// perpetually Green.
type Table struct {
	lights   map[LightID]*Light
	cellToLG map[core.CellID]cellBinding
}

type cellBinding struct {
	light LightID
	group GroupID
}

// NewTable builds a lookup table from a set of lights, indexing each group's
// cells for O(1) per-cell colour queries.
func NewTable(lights []*Light) *Table {
	t := &Table{
		lights:   make(map[LightID]*Light, len(lights)),
		cellToLG: make(map[core.CellID]cellBinding),
	}
	for _, l := range lights {
		t.lights[l.ID] = l
		for _, grp := range l.Groups {
			for _, cell := range grp.Cells {
				t.cellToLG[cell] = cellBinding{light: l.ID, group: grp.ID}
			}
		}
	}

	return t
}

// Add registers one more light, indexing its groups' cells. A cell already
// bound to another light is rebound to the new one.
func (t *Table) Add(l *Light) {
	t.lights[l.ID] = l
	for _, grp := range l.Groups {
		for _, cell := range grp.Cells {
			t.cellToLG[cell] = cellBinding{light: l.ID, group: grp.ID}
		}
	}
}

// ColourForCell returns the colour currently shown for cell at step, and
// whether the cell is controlled at all. An uncontrolled cell reports
// (Green, false).
func (t *Table) ColourForCell(cell core.CellID, step int) (Colour, bool) {
	binding, ok := t.cellToLG[cell]
	if !ok {
		return Green, false
	}
	l := t.lights[binding.light]
	colour, err := l.ColourAt(binding.group, step)
	if err != nil {
		return Green, false
	}

	return colour, true
}

// Light returns the light with the given ID, if registered.
func (t *Table) Light(id LightID) (*Light, bool) {
	l, ok := t.lights[id]

	return l, ok
}

// Lights returns every registered light.
func (t *Table) Lights() []*Light {
	out := make([]*Light, 0, len(t.lights))
	for _, l := range t.lights {
		out = append(out, l)
	}

	return out
}
