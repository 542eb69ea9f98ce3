package storage

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/dokzlo13/dimmerd/internal/light"
)

var (
	// ErrMalformedState is returned when a persisted document cannot be
	// interpreted as a lighting state.
	ErrMalformedState = eris.New("malformed persisted state")
	// ErrStateNotFound is returned when nothing has been persisted yet.
	ErrStateNotFound = eris.New("persisted state not found")
)

// document is the on-disk shape of the lighting state.
type document struct {
	On        *bool          `json:"on"`
	Power     *int           `json:"power"`
	PresetIdx *int           `json:"presetIdx"`
	Presets   []light.Colour `json:"presets"`
}

// Encode serializes the persistable form of s.
func Encode(s light.State) ([]byte, error) {
	p := s.Persistable()
	doc := document{
		On:        &p.On,
		Power:     &p.Power,
		PresetIdx: &p.PresetIdx,
		Presets:   p.Presets[:],
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "failed to encode state")
	}
	return data, nil
}

// Decode parses and validates a persisted document. Missing presets are
// padded with black.
func Decode(data []byte) (light.State, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return light.State{}, eris.Wrapf(ErrMalformedState, "invalid json: %v", err)
	}

	switch {
	case doc.On == nil:
		return light.State{}, eris.Wrap(ErrMalformedState, "missing field on")
	case doc.Power == nil:
		return light.State{}, eris.Wrap(ErrMalformedState, "missing field power")
	case doc.PresetIdx == nil:
		return light.State{}, eris.Wrap(ErrMalformedState, "missing field presetIdx")
	case len(doc.Presets) > light.PresetCount:
		return light.State{}, eris.Wrapf(ErrMalformedState, "%d presets, at most %d allowed", len(doc.Presets), light.PresetCount)
	case *doc.PresetIdx < 0 || *doc.PresetIdx >= light.PresetCount:
		return light.State{}, eris.Wrapf(ErrMalformedState, "presetIdx %d out of range", *doc.PresetIdx)
	case *doc.Power < 0 || *doc.Power > 100:
		return light.State{}, eris.Wrapf(ErrMalformedState, "power %d out of range", *doc.Power)
	}

	s := light.State{
		On:        *doc.On,
		Power:     *doc.Power,
		PresetIdx: *doc.PresetIdx,
	}
	copy(s.Presets[:], doc.Presets)
	for i, c := range s.Presets {
		if c.Clamp(0, 100) != c {
			return light.State{}, eris.Wrapf(ErrMalformedState, "preset %d channel out of range", i)
		}
	}
	return s, nil
}
