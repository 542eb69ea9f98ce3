package light

import (
	"github.com/rotisserie/eris"

	"github.com/dokzlo13/dimmerd/internal/utils"
)

// ErrUnknownCommand is returned for a Command implementation Apply does not
// handle. It cannot happen for the variants declared in this package.
var ErrUnknownCommand = eris.New("unknown command")

// ColourGenerator produces aurora colours.
type ColourGenerator interface {
	Generate(minColour, maxColour Colour, minDist float64, previous Colour) (Colour, error)
}

// Apply derives the new target state for cmd. It never touches hardware or
// storage and never mutates s. Only Aurora can fail; on failure s is returned
// unchanged together with the error.
func Apply(s State, cmd Command, gen ColourGenerator) (State, error) {
	next := s.Clone()

	if _, ok := cmd.(Aurora); !ok && next.Aurora != nil {
		next.SetActive(next.Aurora.StoredColour)
		next.Aurora = nil
	}

	switch c := cmd.(type) {
	case Adjustment:
		return applyAdjustment(next, c), nil
	case Switch:
		return applySwitch(next), nil
	case StateChange:
		return applyStateChange(next, c), nil
	case ChangePreset:
		next.PresetIdx = (next.PresetIdx + 1) % PresetCount
		return next, nil
	case Aurora:
		out, err := applyAurora(next, c, gen)
		if err != nil {
			return s, err
		}
		return out, nil
	}

	return s, eris.Wrapf(ErrUnknownCommand, "%T", cmd)
}

func applyAdjustment(s State, c Adjustment) State {
	active := s.Active()

	// Turning a channel up while off jumps straight to the requested value
	// instead of adding to a stale colour.
	if s.On || !c.Colour.HasPositive() {
		s.SetActive(active.Add(c.Colour).Clamp(0, 100))
	} else {
		s.SetActive(c.Colour.Clamp(0, 100))
	}

	if s.On {
		s.Power = utils.Clamp(s.Power+c.Power, 0, 100)
	} else if c.Power > 0 {
		s.Power = utils.Clamp(c.Power, 0, 100)
	}

	s.On = true
	return s
}

func applySwitch(s State) State {
	if s.Power == 0 {
		s.On = true
		s.Power = 100
		return s
	}
	s.On = !s.On
	return s
}

func applyStateChange(s State, c StateChange) State {
	active := s.Active()
	if c.Red != nil {
		active.Red = *c.Red
	}
	if c.Green != nil {
		active.Green = *c.Green
	}
	if c.Blue != nil {
		active.Blue = *c.Blue
	}
	if c.White != nil {
		active.White = *c.White
	}
	s.SetActive(active)

	if c.Power != nil {
		s.Power = utils.Clamp(*c.Power, 0, 100)
	}
	if c.On != nil {
		s.On = *c.On
	}
	return s
}

func applyAurora(s State, c Aurora, gen ColourGenerator) (State, error) {
	if gen == nil {
		return s, eris.New("aurora requested without a colour generator")
	}

	stored := s.Active()
	if s.Aurora != nil {
		stored = s.Aurora.StoredColour
	}

	minDist := c.MinColourDist
	if minDist <= 0 {
		minDist = DefaultMinColourDist
	}

	colour, err := gen.Generate(c.MinColour, c.MaxColour, minDist, s.Active())
	if err != nil {
		return s, err
	}

	s.Aurora = &AuroraSettings{
		StoredColour:  stored,
		MinColour:     c.MinColour,
		MaxColour:     c.MaxColour,
		MinColourDist: minDist,
	}
	s.SetActive(colour)
	return s, nil
}
