package geometry

import (
	"math"

	"github.com/paulmach/orb"
)

// Seed returns a deterministic pseudo-random sequence in [0, 1) derived from s.
func Seed(s float64) func() float64 {
	return func() float64 {
		s = math.Sin(s) * 10000
		return s - math.Floor(s)
	}
}

func RandomPointIn(b orb.Bound, rnd func() float64) orb.Point {
	return orb.Point{
		b.Min[0] + rnd()*(b.Max[0]-b.Min[0]),
		b.Max[1] - rnd()*(b.Max[1]-b.Min[1]),
	}
}
