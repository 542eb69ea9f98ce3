package fade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestCurveEndpoints(t *testing.T) {
	c := NewCurve(DefaultIntervals)

	assert.InDelta(t, 0, c.Factor(0, true), 1e-9)
	assert.InDelta(t, 254.0/255.0, c.Factor(DefaultIntervals, true), 1e-9)
	assert.InDelta(t, 1.0/255.0, c.Factor(0, false), 1e-9)
	assert.InDelta(t, 1, c.Factor(DefaultIntervals, false), 1e-9)

	assert.Equal(t, 0, c.Step(0))
	assert.Equal(t, 150, c.Step(0.5))
	assert.Equal(t, DefaultIntervals, c.Step(1))
	assert.Equal(t, DefaultIntervals, c.Step(3))
	assert.Equal(t, 0, c.Step(-1))
}

func TestCurveMinimumRatio(t *testing.T) {
	c := NewCurve(0)
	assert.Equal(t, DefaultIntervals, c.Intervals())
	assert.GreaterOrEqual(t, NewCurve(1).r, 0.1)
}

func TestCurveDuty(t *testing.T) {
	c := NewCurve(DefaultIntervals)

	tests := []struct {
		name   string
		start  int
		target int
		step   int
		want   int
	}{
		{name: "increasing_start", start: 0, target: 255, step: 0, want: 0},
		{name: "increasing_end", start: 0, target: 255, step: DefaultIntervals, want: 254},
		{name: "decreasing_end", start: 255, target: 0, step: DefaultIntervals, want: 0},
		{name: "decreasing_start", start: 255, target: 0, step: 0, want: 254},
		{name: "flat", start: 42, target: 42, step: 120, want: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Duty(tt.start, tt.target, tt.step))
		})
	}
}

func TestCurvePropertyStaysBetweenEndpoints(t *testing.T) {
	c := NewCurve(DefaultIntervals)
	rapid.Check(t, func(t *rapid.T) {
		start := rapid.IntRange(0, 255).Draw(t, "start")
		target := rapid.IntRange(0, 255).Draw(t, "target")

		lo, hi := min(start, target), max(start, target)
		prev := start
		for i := 0; i <= DefaultIntervals; i++ {
			d := c.Duty(start, target, i)
			if d < lo || d > hi {
				t.Fatalf("step %d duty %d outside [%d, %d]", i, d, lo, hi)
			}
			if (target > start && d < prev) || (target < start && d > prev) {
				t.Fatalf("step %d duty %d moves away from target", i, d)
			}
			prev = d
		}
	})
}
