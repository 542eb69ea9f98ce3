package utils

import (
	"math"
	"time"

	"golang.org/x/exp/constraints"
)

// Clamp constrains v to the range [minVal, maxVal].
func Clamp[T constraints.Ordered](v, minVal, maxVal T) T {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

// dutyEpsilon keeps products like 254.99999999999997 from truncating a step
// below their exact value.
const dutyEpsilon = 1e-9

// TruncateDuty drops the fractional part of a duty cycle and clamps it to
// [0, 255].
func TruncateDuty(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return Clamp(int(math.Floor(v+dutyEpsilon)), 0, 255)
}

// Seconds converts a float number of seconds into a duration, treating
// negative values as zero.
func Seconds(s float64) time.Duration {
	if s <= 0 || math.IsNaN(s) {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
