// Package light holds the fixture's value types and the pure rules that turn
// a command into a new target lighting state.
package light

import (
	"fmt"
	"math"

	"github.com/dokzlo13/dimmerd/internal/utils"
)

// Channel identifies one of the four PWM outputs of the fixture.
type Channel int

const (
	Red Channel = iota
	Green
	Blue
	White
)

// ChannelCount is the number of PWM outputs driven by the fixture.
const ChannelCount = 4

// Channels lists every channel in hardware order.
var Channels = [ChannelCount]Channel{Red, Green, Blue, White}

// String returns the lower-case channel name.
func (c Channel) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	case White:
		return "white"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Colour is a set of proportional channel weights, conventionally in [0,100].
type Colour struct {
	Red   float64 `json:"red"`
	Green float64 `json:"green"`
	Blue  float64 `json:"blue"`
	White float64 `json:"white"`
}

// Get returns the weight of a single channel.
func (c Colour) Get(ch Channel) float64 {
	switch ch {
	case Red:
		return c.Red
	case Green:
		return c.Green
	case Blue:
		return c.Blue
	case White:
		return c.White
	}
	return 0
}

// With returns a copy of c with one channel replaced.
func (c Colour) With(ch Channel, v float64) Colour {
	switch ch {
	case Red:
		c.Red = v
	case Green:
		c.Green = v
	case Blue:
		c.Blue = v
	case White:
		c.White = v
	}
	return c
}

// Add sums two colours channel by channel.
func (c Colour) Add(o Colour) Colour {
	return Colour{
		Red:   c.Red + o.Red,
		Green: c.Green + o.Green,
		Blue:  c.Blue + o.Blue,
		White: c.White + o.White,
	}
}

// Clamp bounds every channel to [lo, hi].
func (c Colour) Clamp(lo, hi float64) Colour {
	return Colour{
		Red:   utils.Clamp(c.Red, lo, hi),
		Green: utils.Clamp(c.Green, lo, hi),
		Blue:  utils.Clamp(c.Blue, lo, hi),
		White: utils.Clamp(c.White, lo, hi),
	}
}

// Max returns the largest channel weight.
func (c Colour) Max() float64 {
	return math.Max(math.Max(c.Red, c.Green), math.Max(c.Blue, c.White))
}

// IsZero reports whether all four channels are zero.
func (c Colour) IsZero() bool {
	return c.Red == 0 && c.Green == 0 && c.Blue == 0 && c.White == 0
}

// HasPositive reports whether any channel is strictly positive.
func (c Colour) HasPositive() bool {
	return c.Red > 0 || c.Green > 0 || c.Blue > 0 || c.White > 0
}

// Vector returns the channels as an array in hardware order.
func (c Colour) Vector() [ChannelCount]float64 {
	return [ChannelCount]float64{c.Red, c.Green, c.Blue, c.White}
}

// Solid returns a colour with one channel at full weight and the rest off.
func Solid(ch Channel) Colour {
	return Colour{}.With(ch, 100)
}
