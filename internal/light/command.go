package light

import "time"

// Kind names a command variant.
type Kind string

const (
	KindAdjustment   Kind = "adjustment"
	KindSwitch       Kind = "switch"
	KindStateChange  Kind = "state_change"
	KindChangePreset Kind = "change_preset"
	KindAurora       Kind = "aurora"
)

// Options carries the animation parameters shared by every command.
type Options struct {
	FadeTime  time.Duration
	PostDelay time.Duration
	// Flash makes the engine revert to the pre-command state once the command
	// has completed and its post delay elapsed.
	Flash bool
}

// CommandOptions returns the animation parameters of the command.
func (o Options) CommandOptions() Options { return o }

// Command is the closed set of requests the fade engine understands. Only the
// variants declared in this package implement it.
type Command interface {
	Kind() Kind
	CommandOptions() Options
	isCommand()
}

// Adjustment is a relative change of power and colour.
type Adjustment struct {
	Options
	Power  int
	Colour Colour
}

// Switch toggles the fixture on or off.
type Switch struct {
	Options
}

// StateChange sets explicit values; nil fields keep their current value.
type StateChange struct {
	Options
	Red   *float64
	Green *float64
	Blue  *float64
	White *float64
	On    *bool
	Power *int
}

// ChangePreset advances to the next colour preset.
type ChangePreset struct {
	Options
}

// Aurora replaces the active colour with a constrained random colour. It keeps
// cycling until another command arrives.
type Aurora struct {
	Options
	MinColour     Colour
	MaxColour     Colour
	MinColourDist float64
}

func (Adjustment) Kind() Kind   { return KindAdjustment }
func (Switch) Kind() Kind       { return KindSwitch }
func (StateChange) Kind() Kind  { return KindStateChange }
func (ChangePreset) Kind() Kind { return KindChangePreset }
func (Aurora) Kind() Kind       { return KindAurora }

func (Adjustment) isCommand()   {}
func (Switch) isCommand()       {}
func (StateChange) isCommand()  {}
func (ChangePreset) isCommand() {}
func (Aurora) isCommand()       {}

// Some returns a pointer to v, for filling optional StateChange fields.
func Some[T any](v T) *T {
	return &v
}

// RestoreCommand builds a StateChange that puts every field of the active
// colour, on and power back to the values held by s.
func RestoreCommand(s State, opts Options) StateChange {
	c := s.Active()
	return StateChange{
		Options: opts,
		Red:     Some(c.Red),
		Green:   Some(c.Green),
		Blue:    Some(c.Blue),
		White:   Some(c.White),
		On:      Some(s.On),
		Power:   Some(s.Power),
	}
}

// SolidPreview builds a StateChange that shows one channel at full weight.
func SolidPreview(ch Channel, opts Options) StateChange {
	c := Solid(ch)
	return StateChange{
		Options: opts,
		Red:     Some(c.Red),
		Green:   Some(c.Green),
		Blue:    Some(c.Blue),
		White:   Some(c.White),
	}
}
