package fade

import (
	"math"

	"github.com/dokzlo13/dimmerd/internal/light"
	"github.com/dokzlo13/dimmerd/internal/utils"
)

// DefaultIntervals is the number of discrete steps in a fade.
const DefaultIntervals = 300

// Curve is the exponential easing used for every fade. Perceived brightness
// is roughly logarithmic in duty, so equal steps of i double the duty at a
// constant rate.
type Curve struct {
	intervals int
	r         float64
}

// NewCurve builds a curve with the given number of steps.
func NewCurve(intervals int) Curve {
	if intervals <= 0 {
		intervals = DefaultIntervals
	}
	r := float64(intervals) * math.Log10(2) / math.Log10(light.MaxDuty)
	return Curve{intervals: intervals, r: math.Max(0.1, r)}
}

// Intervals returns the number of steps.
func (c Curve) Intervals() int {
	return c.intervals
}

// Step maps an elapsed fraction in [0, 1] to a step index.
func (c Curve) Step(f float64) int {
	f = utils.Clamp(f, 0, 1)
	return int(math.Floor(f * float64(c.intervals)))
}

// Factor is the interpolation weight at step i.
func (c Curve) Factor(i int, increasing bool) float64 {
	i = utils.Clamp(i, 0, c.intervals)
	if increasing {
		return (math.Pow(2, float64(i)/c.r) - 1) / light.MaxDuty
	}
	return 1 - (math.Pow(2, float64(c.intervals-i)/c.r)-1)/light.MaxDuty
}

// Duty is the duty written at step i of a fade from start to target.
func (c Curve) Duty(start, target, i int) int {
	k := c.Factor(i, target > start)
	return utils.TruncateDuty(float64(start) + k*float64(target-start))
}
