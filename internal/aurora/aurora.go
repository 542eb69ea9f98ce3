// Package aurora generates random colours that stay visibly away from white
// and from the colour they replace.
package aurora

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/light"
)

var (
	// ErrNoValidColour is returned when no colour satisfying the constraints
	// was found.
	ErrNoValidColour = eris.New("no valid aurora colour")
	// ErrInvalidBounds is returned when a channel's [min, max] range contains
	// no integer or reaches past MaxBound.
	ErrInvalidBounds = eris.New("invalid aurora bounds")
)

// Default limits.
const (
	DefaultMaxAttempts = 10000
	DefaultScanLimit   = 1 << 16

	// MaxBound is the largest magnitude accepted for a channel bound.
	MaxBound = 1 << 20
)

var whiteReference = normalize([]float64{1, 1, 1})

// Generator samples aurora colours by rejection. It is safe for concurrent use.
type Generator struct {
	mu          sync.Mutex
	rng         *rand.Rand
	maxAttempts int
	scanLimit   int
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxAttempts caps the number of random candidates drawn per call.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithScanLimit sets the largest candidate space that is searched
// exhaustively once random sampling gives up. Zero disables the scan.
func WithScanLimit(n int) Option {
	return func(g *Generator) {
		if n >= 0 {
			g.scanLimit = n
		}
	}
}

// WithSeed makes the generator deterministic.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		maxAttempts: DefaultMaxAttempts,
		scanLimit:   DefaultScanLimit,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type channelRange struct {
	lo, hi int
}

func (r channelRange) size() int { return r.hi - r.lo + 1 }

// Generate draws a colour with every channel an integer in
// [minColour, maxColour] such that the colour is not black, its normalized rgb
// part is at least minDist from normalized white, and its normalized rgbw
// vector is at least minDist from the normalized previous colour.
func (g *Generator) Generate(minColour, maxColour light.Colour, minDist float64, previous light.Colour) (light.Colour, error) {
	ranges, err := integerRanges(minColour, maxColour)
	if err != nil {
		return light.Colour{}, err
	}

	pv := previous.Vector()
	prev := normalize(pv[:])

	g.mu.Lock()
	defer g.mu.Unlock()

	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		var v [light.ChannelCount]float64
		for i, r := range ranges {
			v[i] = float64(r.lo + g.rng.IntN(r.size()))
		}
		if Acceptable(v, minDist, prev) {
			return fromVector(v), nil
		}
	}

	total := 1
	for _, r := range ranges {
		total *= r.size()
		if total > g.scanLimit {
			log.Warn().
				Int("attempts", g.maxAttempts).
				Float64("min_dist", minDist).
				Msg("Aurora sampling exhausted")
			return light.Colour{}, eris.Wrapf(ErrNoValidColour, "gave up after %d attempts", g.maxAttempts)
		}
	}

	return g.scan(ranges, minDist, prev)
}

// scan enumerates a small candidate space and picks uniformly among the
// colours that pass.
func (g *Generator) scan(ranges [light.ChannelCount]channelRange, minDist float64, prev []float64) (light.Colour, error) {
	var valid [][light.ChannelCount]float64
	for r := ranges[0].lo; r <= ranges[0].hi; r++ {
		for gr := ranges[1].lo; gr <= ranges[1].hi; gr++ {
			for b := ranges[2].lo; b <= ranges[2].hi; b++ {
				for w := ranges[3].lo; w <= ranges[3].hi; w++ {
					v := [light.ChannelCount]float64{float64(r), float64(gr), float64(b), float64(w)}
					if Acceptable(v, minDist, prev) {
						valid = append(valid, v)
					}
				}
			}
		}
	}
	if len(valid) == 0 {
		return light.Colour{}, eris.Wrap(ErrNoValidColour, "constraints are unsatisfiable for the given bounds")
	}
	return fromVector(valid[g.rng.IntN(len(valid))]), nil
}

// Acceptable reports whether a candidate satisfies the aurora constraints.
// prev must already be normalized.
func Acceptable(v [light.ChannelCount]float64, minDist float64, prev []float64) bool {
	if v[0] == 0 && v[1] == 0 && v[2] == 0 && v[3] == 0 {
		return false
	}
	if distance(normalize(v[:3]), whiteReference) < minDist {
		return false
	}
	return distance(normalize(v[:]), prev) >= minDist
}

func integerRanges(minColour, maxColour light.Colour) ([light.ChannelCount]channelRange, error) {
	var out [light.ChannelCount]channelRange
	lo, hi := minColour.Vector(), maxColour.Vector()
	for i, ch := range light.Channels {
		if !withinBound(lo[i]) || !withinBound(hi[i]) {
			return out, eris.Wrapf(ErrInvalidBounds, "%s range [%v, %v] exceeds ±%d", ch, lo[i], hi[i], MaxBound)
		}
		r := channelRange{lo: int(math.Ceil(lo[i])), hi: int(math.Floor(hi[i]))}
		if r.hi < r.lo {
			return out, eris.Wrapf(ErrInvalidBounds, "%s range [%v, %v] holds no integer", ch, lo[i], hi[i])
		}
		out[i] = r
	}
	return out, nil
}

func withinBound(x float64) bool {
	return !math.IsNaN(x) && math.Abs(x) <= MaxBound
}

// normalize scales v to unit length; the zero vector maps to itself.
func normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	out := make([]float64, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// NormalizedDistance is the euclidean distance between the unit-length forms
// of a and b.
func NormalizedDistance(a, b []float64) float64 {
	return distance(normalize(a), normalize(b))
}

func distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func fromVector(v [light.ChannelCount]float64) light.Colour {
	return light.Colour{Red: v[0], Green: v[1], Blue: v[2], White: v[3]}
}
