package light

// PresetCount is the number of colour presets a fixture remembers.
const PresetCount = 3

// DefaultMinColourDist is the aurora rejection threshold used when a request
// does not specify one.
const DefaultMinColourDist = 0.4

// AuroraSettings describes an in-progress aurora cycle.
type AuroraSettings struct {
	// StoredColour is the active preset as it was before aurora started; it is
	// restored verbatim when aurora ends.
	StoredColour  Colour
	MinColour     Colour
	MaxColour     Colour
	MinColourDist float64
}

// State is the logical target of the fixture. The active preset is the target
// colour independent of power and on/off.
type State struct {
	On        bool                `json:"on"`
	Power     int                 `json:"power"`
	PresetIdx int                 `json:"presetIdx"`
	Presets   [PresetCount]Colour `json:"presets"`
	Aurora    *AuroraSettings     `json:"-"`
}

// DefaultState is used when no persisted state exists yet.
func DefaultState() State {
	return State{
		On:        false,
		Power:     100,
		PresetIdx: 0,
		Presets: [PresetCount]Colour{
			{White: 100},
			{Red: 100, Green: 60, White: 40},
			{Red: 20, Green: 40, Blue: 100},
		},
	}
}

// Active returns the colour of the selected preset.
func (s State) Active() Colour {
	return s.Presets[s.PresetIdx]
}

// SetActive replaces the colour of the selected preset.
func (s *State) SetActive(c Colour) {
	s.Presets[s.PresetIdx] = c
}

// EffectivePower is the power applied to the normalized colour: Power when on,
// zero otherwise.
func (s State) EffectivePower() int {
	if !s.On {
		return 0
	}
	return s.Power
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	if s.Aurora != nil {
		a := *s.Aurora
		s.Aurora = &a
	}
	return s
}

// Persistable returns the state as it should be written to storage. Aurora
// colours are transient, so the pre-aurora colour takes the active slot.
func (s State) Persistable() State {
	out := s.Clone()
	if out.Aurora != nil {
		out.SetActive(out.Aurora.StoredColour)
		out.Aurora = nil
	}
	return out
}
