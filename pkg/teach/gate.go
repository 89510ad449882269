package teach

import (
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Gate is a significance-gated downsampler. It keeps a sample when nothing
// has been kept yet, when any joint moved at least Epsilon radians since the
// last kept sample, or when MaxGap has passed since it. A zero MaxGap
// disables the time clause.
type Gate struct {
	Epsilon float64
	MaxGap  time.Duration

	primed bool
	last   []float64
	lastAt time.Duration
}

// Offer reports whether the sample taken at elapsed should be kept, and
// remembers it if so.
func (g *Gate) Offer(elapsed time.Duration, angles []float64) bool {
	keep := !g.primed ||
		Distance(angles, g.last) >= g.Epsilon ||
		(g.MaxGap > 0 && elapsed-g.lastAt >= g.MaxGap)
	if keep {
		g.primed = true
		g.last = slices.Clone(angles)
		g.lastAt = elapsed
	}
	return keep
}

// Reset forgets the last kept sample.
func (g *Gate) Reset() {
	g.primed = false
	g.last = nil
	g.lastAt = 0
}

// Distance is the largest per-joint difference between two poses. Poses of
// different widths are infinitely far apart.
func Distance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	if len(a) == 0 {
		return 0
	}
	return floats.Distance(a, b, math.Inf(1))
}
