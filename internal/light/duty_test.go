package light

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestTargetDuty(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected [ChannelCount]int
	}{
		{
			name:     "full_white",
			state:    stateWith(true, 100, Colour{White: 100}),
			expected: [ChannelCount]int{0, 0, 0, 255},
		},
		{
			name:     "normalizes_to_peak",
			state:    stateWith(true, 100, Colour{Red: 25, Blue: 50}),
			expected: [ChannelCount]int{127, 0, 255, 0},
		},
		{
			name:     "half_power",
			state:    stateWith(true, 50, Colour{Green: 10}),
			expected: [ChannelCount]int{0, 127, 0, 0},
		},
		{
			name:     "off_is_dark",
			state:    stateWith(false, 100, Colour{Red: 100, White: 100}),
			expected: [ChannelCount]int{},
		},
		{
			name:     "zero_colour_is_dark",
			state:    stateWith(true, 100, Colour{}),
			expected: [ChannelCount]int{},
		},
		{
			name:     "zero_power_is_dark",
			state:    stateWith(true, 0, Colour{White: 100}),
			expected: [ChannelCount]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TargetDuty(tt.state))
		})
	}
}

func TestTargetDutyPropertyNormalization(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := Colour{
			Red:   rapid.Float64Range(0, 100).Draw(t, "r"),
			Green: rapid.Float64Range(0, 100).Draw(t, "g"),
			Blue:  rapid.Float64Range(0, 100).Draw(t, "b"),
			White: rapid.Float64Range(0, 100).Draw(t, "w"),
		}
		s := stateWith(rapid.Bool().Draw(t, "on"), rapid.IntRange(0, 100).Draw(t, "power"), c)

		got := TargetDuty(s)
		peak := c.Max()
		for i, ch := range Channels {
			want := 0
			if peak > 0 {
				raw := c.Get(ch) / peak * 100 * float64(s.EffectivePower()) * 255 / 10000
				want = int(math.Floor(math.Max(0, math.Min(255, raw)) + 1e-9))
			}
			if got[i] != want {
				t.Fatalf("channel %s duty = %d, want %d", ch, got[i], want)
			}
		}
	})
}
