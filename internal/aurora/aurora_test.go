package aurora

import (
	"math"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dokzlo13/dimmerd/internal/light"
)

func TestNormalizedDistance(t *testing.T) {
	assert.InDelta(t, 0, NormalizedDistance([]float64{1, 1, 1}, []float64{50, 50, 50}), 1e-9)
	assert.InDelta(t, math.Sqrt2, NormalizedDistance([]float64{1, 0}, []float64{0, 7}), 1e-9)
	// zero vector maps to itself, so its distance to any unit vector is 1
	assert.InDelta(t, 1, NormalizedDistance([]float64{0, 0, 0}, []float64{0, 0, 3}), 1e-9)
}

func TestGenerateSatisfiesConstraints(t *testing.T) {
	g := New(WithSeed(1))
	previous := light.Colour{Red: 100}
	maxColour := light.Colour{Red: 100, Green: 100, Blue: 100, White: 100}

	for i := 0; i < 200; i++ {
		c, err := g.Generate(light.Colour{}, maxColour, 0.4, previous)
		require.NoError(t, err)
		assertConstraints(t, c, light.Colour{}, maxColour, 0.4, previous)
		previous = c
	}
}

func TestGenerateInvalidBounds(t *testing.T) {
	g := New(WithSeed(2))
	_, err := g.Generate(light.Colour{Red: 10.5}, light.Colour{Red: 10.7}, 0.4, light.Colour{})
	assert.True(t, eris.Is(err, ErrInvalidBounds))
}

func TestGenerateRejectsHugeBounds(t *testing.T) {
	g := New(WithSeed(2))
	tests := []struct {
		name     string
		min, max light.Colour
	}{
		{"overflowing_range", light.Colour{Red: -5e18}, light.Colour{Red: 5e18}},
		{"above_limit", light.Colour{}, light.Colour{Blue: MaxBound + 1}},
		{"infinite", light.Colour{White: math.Inf(-1)}, light.Colour{White: 10}},
		{"nan", light.Colour{}, light.Colour{Green: math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotPanics(t, func() {
				_, err := g.Generate(tt.min, tt.max, 0.4, light.Colour{})
				assert.True(t, eris.Is(err, ErrInvalidBounds))
			})
		})
	}

	_, err := g.Generate(light.Colour{Red: -MaxBound}, light.Colour{Red: MaxBound}, 0.4, light.Colour{})
	assert.NoError(t, err)
}

func TestGenerateUnsatisfiable(t *testing.T) {
	g := New(WithSeed(3), WithMaxAttempts(50))

	// Only grey candidates exist, which are always too close to white.
	grey := light.Colour{Red: 40, Green: 40, Blue: 40}
	_, err := g.Generate(grey, grey, 0.4, light.Colour{})
	assert.True(t, eris.Is(err, ErrNoValidColour))

	// All-zero bounds can only produce black.
	_, err = g.Generate(light.Colour{}, light.Colour{}, 0.4, light.Colour{White: 100})
	assert.True(t, eris.Is(err, ErrNoValidColour))
}

func TestGenerateExhaustedWithoutScan(t *testing.T) {
	g := New(WithSeed(4), WithMaxAttempts(10), WithScanLimit(0))
	grey := light.Colour{Red: 40, Green: 40, Blue: 40}
	_, err := g.Generate(grey, grey, 0.4, light.Colour{})
	assert.True(t, eris.Is(err, ErrNoValidColour))
}

func TestGenerateFallsBackToScan(t *testing.T) {
	// A single random draw is not enough to be sure of a hit; the exhaustive
	// scan over the eight candidates must still find one.
	g := New(WithSeed(5), WithMaxAttempts(1))
	minColour := light.Colour{}
	maxColour := light.Colour{Red: 1, Green: 1, Blue: 1}
	previous := light.Colour{Red: 100}

	for i := 0; i < 20; i++ {
		c, err := g.Generate(minColour, maxColour, 0.4, previous)
		require.NoError(t, err)
		assertConstraints(t, c, minColour, maxColour, 0.4, previous)
	}
}

func TestGeneratePropertyConstraints(t *testing.T) {
	g := New(WithSeed(6), WithMaxAttempts(500))

	rapid.Check(t, func(t *rapid.T) {
		var lo, hi [light.ChannelCount]float64
		for i, ch := range light.Channels {
			l := rapid.IntRange(0, 100).Draw(t, "lo_"+ch.String())
			w := rapid.IntRange(0, 8).Draw(t, "width_"+ch.String())
			lo[i], hi[i] = float64(l), float64(l+w)
		}
		minColour := light.Colour{Red: lo[0], Green: lo[1], Blue: lo[2], White: lo[3]}
		maxColour := light.Colour{Red: hi[0], Green: hi[1], Blue: hi[2], White: hi[3]}
		previous := light.Colour{
			Red:   float64(rapid.IntRange(0, 100).Draw(t, "prev_r")),
			Green: float64(rapid.IntRange(0, 100).Draw(t, "prev_g")),
			Blue:  float64(rapid.IntRange(0, 100).Draw(t, "prev_b")),
			White: float64(rapid.IntRange(0, 100).Draw(t, "prev_w")),
		}
		minDist := rapid.Float64Range(0.05, 0.6).Draw(t, "min_dist")

		c, err := g.Generate(minColour, maxColour, minDist, previous)
		if err != nil {
			if !eris.Is(err, ErrNoValidColour) {
				t.Fatalf("unexpected error: %v", err)
			}
			if satisfiable(minColour, maxColour, minDist, previous) {
				t.Fatalf("generator gave up on satisfiable bounds %v..%v", minColour, maxColour)
			}
			return
		}

		if !inBounds(c, minColour, maxColour) {
			t.Fatalf("colour %v outside bounds %v..%v", c, minColour, maxColour)
		}
		if c.IsZero() {
			t.Fatalf("generated black")
		}
		v := c.Vector()
		if NormalizedDistance(v[:3], []float64{1, 1, 1}) < minDist {
			t.Fatalf("colour %v too close to white", c)
		}
		p := previous.Vector()
		if NormalizedDistance(v[:], p[:]) < minDist {
			t.Fatalf("colour %v too close to previous %v", c, previous)
		}
	})
}

func assertConstraints(t *testing.T, c, minColour, maxColour light.Colour, minDist float64, previous light.Colour) {
	t.Helper()
	assert.True(t, inBounds(c, minColour, maxColour), "colour %v outside bounds", c)
	assert.False(t, c.IsZero())
	v := c.Vector()
	p := previous.Vector()
	assert.GreaterOrEqual(t, NormalizedDistance(v[:3], []float64{1, 1, 1}), minDist)
	assert.GreaterOrEqual(t, NormalizedDistance(v[:], p[:]), minDist)
}

func inBounds(c, minColour, maxColour light.Colour) bool {
	v, lo, hi := c.Vector(), minColour.Vector(), maxColour.Vector()
	for i := range v {
		if v[i] < lo[i] || v[i] > hi[i] || v[i] != math.Trunc(v[i]) {
			return false
		}
	}
	return true
}

func satisfiable(minColour, maxColour light.Colour, minDist float64, previous light.Colour) bool {
	ranges, err := integerRanges(minColour, maxColour)
	if err != nil {
		return false
	}
	pv := previous.Vector()
	prev := normalize(pv[:])
	for r := ranges[0].lo; r <= ranges[0].hi; r++ {
		for g := ranges[1].lo; g <= ranges[1].hi; g++ {
			for b := ranges[2].lo; b <= ranges[2].hi; b++ {
				for w := ranges[3].lo; w <= ranges[3].hi; w++ {
					if Acceptable([light.ChannelCount]float64{float64(r), float64(g), float64(b), float64(w)}, minDist, prev) {
						return true
					}
				}
			}
		}
	}
	return false
}
