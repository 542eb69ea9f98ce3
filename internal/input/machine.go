// Package input turns button and rotary encoder events into fixture commands.
package input

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/light"
)

// Default gesture timings
const (
	DefaultHoldTime        = 500 * time.Millisecond
	DefaultDoubleClickTime = 200 * time.Millisecond
	DefaultKnobTimeout     = 10 * time.Second
)

const (
	powerStep  = 10
	colourStep = 5
	exitPower  = 10
)

// Mode is the knob editing mode.
type Mode int

const (
	ModeDefault Mode = iota
	ModeRed
	ModeGreen
	ModeBlue
	ModeWhite
)

func (m Mode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeRed:
		return "red"
	case ModeGreen:
		return "green"
	case ModeBlue:
		return "blue"
	case ModeWhite:
		return "white"
	default:
		return "unknown"
	}
}

// channel returns the colour channel edited in m.
func (m Mode) channel() light.Channel {
	return light.Channel(m - ModeRed)
}

// next returns the edit mode after m. Default enters red.
func (m Mode) next() Mode {
	if m == ModeDefault || m == ModeWhite {
		return ModeRed
	}
	return m + 1
}

// Timer identifies one of the machine's timers.
type Timer int

const (
	TimerHold Timer = iota
	TimerDoubleClick
	TimerIdle
	timerCount
)

func (t Timer) String() string {
	switch t {
	case TimerHold:
		return "hold"
	case TimerDoubleClick:
		return "double_click"
	case TimerIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Gesture is a resolved button interaction.
type Gesture string

const (
	GestureSingleClick Gesture = "single_click"
	GestureDoubleClick Gesture = "double_click"
	GestureHold        Gesture = "hold"
	GestureIdle        Gesture = "idle_timeout"
	GestureRotate      Gesture = "rotate"
)

// Timings configures gesture detection and the animation of each emitted
// command.
type Timings struct {
	HoldTime        time.Duration
	DoubleClickTime time.Duration
	KnobTimeout     time.Duration

	Switch  light.Options
	Preset  light.Options
	Rotate  light.Options
	Preview light.Options
}

// DefaultTimings returns the stock gesture timings.
func DefaultTimings() Timings {
	return Timings{
		HoldTime:        DefaultHoldTime,
		DoubleClickTime: DefaultDoubleClickTime,
		KnobTimeout:     DefaultKnobTimeout,
		Switch:          light.Options{FadeTime: time.Second},
		Preset:          light.Options{FadeTime: time.Second},
		Rotate:          light.Options{FadeTime: 200 * time.Millisecond},
		Preview:         light.Options{FadeTime: 200 * time.Millisecond, PostDelay: time.Second},
	}
}

// Arm schedules a timer. When it expires the owner must call Machine.Fire
// with the same timer and generation.
type Arm func(t Timer, generation uint64, d time.Duration)

// Output is what the machine emits for one event.
type Output struct {
	Gesture  Gesture
	Commands []light.Command
}

// Machine resolves raw events into commands. It is not safe for concurrent
// use; Controller serializes all access.
type Machine struct {
	timings Timings
	arm     Arm

	mode         Mode
	pressed      bool
	held         bool
	clickPending bool
	generations  [timerCount]uint64
}

// NewMachine creates a machine in the default mode.
func NewMachine(timings Timings, arm Arm) *Machine {
	return &Machine{timings: timings, arm: arm}
}

// Mode returns the current editing mode.
func (m *Machine) Mode() Mode {
	return m.mode
}

// Press handles the button going down.
func (m *Machine) Press() Output {
	if m.pressed {
		return Output{}
	}
	m.pressed = true
	m.held = false
	m.start(TimerHold, m.timings.HoldTime)
	return Output{}
}

// Release handles the button going up. A release after a hold is ignored; a
// quick release either starts the double-click window or completes a
// double-click.
func (m *Machine) Release() Output {
	if !m.pressed {
		return Output{}
	}
	m.pressed = false
	m.cancel(TimerHold)

	if m.held {
		m.held = false
		return Output{}
	}

	if m.clickPending {
		m.clickPending = false
		m.cancel(TimerDoubleClick)
		return m.doubleClick()
	}

	m.clickPending = true
	m.start(TimerDoubleClick, m.timings.DoubleClickTime)
	return Output{}
}

// Rotate handles one encoder detent. Positive is clockwise; zero is a no-op.
func (m *Machine) Rotate(direction int) Output {
	if direction == 0 {
		return Output{}
	}
	sign := 1
	if direction < 0 {
		sign = -1
	}

	var cmd light.Adjustment
	cmd.Options = m.timings.Rotate
	if m.mode == ModeDefault {
		cmd.Power = sign * powerStep
	} else {
		cmd.Colour = light.Colour{}.With(m.mode.channel(), float64(sign*colourStep))
		m.start(TimerIdle, m.timings.KnobTimeout)
	}
	return Output{Gesture: GestureRotate, Commands: []light.Command{cmd}}
}

// Fire handles an expired timer. Timers that were cancelled or re-armed
// since generation was issued are ignored.
func (m *Machine) Fire(t Timer, generation uint64) Output {
	if t < 0 || t >= timerCount || m.generations[t] != generation {
		return Output{}
	}
	m.generations[t]++

	switch t {
	case TimerHold:
		if !m.pressed {
			return Output{}
		}
		m.held = true
		return m.hold()
	case TimerDoubleClick:
		if !m.clickPending {
			return Output{}
		}
		m.clickPending = false
		return m.singleClick()
	case TimerIdle:
		if m.mode == ModeDefault {
			return Output{}
		}
		return Output{Gesture: GestureIdle, Commands: m.exitEditing()}
	}
	return Output{}
}

func (m *Machine) singleClick() Output {
	if m.mode == ModeDefault {
		return Output{Gesture: GestureSingleClick, Commands: []light.Command{light.Switch{Options: m.timings.Switch}}}
	}
	return Output{Gesture: GestureSingleClick, Commands: m.exitEditing()}
}

func (m *Machine) doubleClick() Output {
	m.mode = m.mode.next()
	m.start(TimerIdle, m.timings.KnobTimeout)
	return Output{
		Gesture:  GestureDoubleClick,
		Commands: []light.Command{light.SolidPreview(m.mode.channel(), m.previewOptions())},
	}
}

func (m *Machine) hold() Output {
	if m.mode == ModeDefault {
		return Output{Gesture: GestureHold, Commands: []light.Command{light.ChangePreset{Options: m.timings.Preset}}}
	}
	return Output{Gesture: GestureHold, Commands: m.exitEditing()}
}

// exitEditing returns to the default mode with a dim preview that reverts.
func (m *Machine) exitEditing() []light.Command {
	log.Debug().Str("from", m.mode.String()).Msg("Leaving colour edit mode")
	m.mode = ModeDefault
	m.cancel(TimerIdle)
	return []light.Command{light.StateChange{
		Options: m.previewOptions(),
		Power:   light.Some(exitPower),
	}}
}

func (m *Machine) previewOptions() light.Options {
	opts := m.timings.Preview
	opts.Flash = true
	return opts
}

// start re-arms t, invalidating any pending expiry.
func (m *Machine) start(t Timer, d time.Duration) {
	m.generations[t]++
	if m.arm != nil {
		m.arm(t, m.generations[t], d)
	}
}

func (m *Machine) cancel(t Timer) {
	m.generations[t]++
}
