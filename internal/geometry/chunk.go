package geometry

import "github.com/paulmach/orb"

const chunkEpsilon = 1e-6

// Chunk splits line into consecutive pieces of the given length and returns
// the end point of each piece. The last piece ends exactly at the last point.
func Chunk(line []orb.Point, meters float64) []orb.Point {
	if len(line) == 0 {
		return nil
	}
	last := line[len(line)-1]
	if len(line) == 1 || meters <= 0 {
		return []orb.Point{last}
	}

	var out []orb.Point
	need := meters
	for i := 0; i < len(line)-1; i++ {
		a, b := line[i], line[i+1]
		seg := DistanceMeters(a, b)
		pos := 0.0
		for seg > 0 && seg-pos >= need {
			pos += need
			out = append(out, interpolate(a, b, pos/seg))
			need = meters
		}
		need -= seg - pos
	}

	if tail := meters - need; len(out) > 0 && tail < chunkEpsilon {
		out[len(out)-1] = last
		return out
	}
	return append(out, last)
}

func interpolate(a, b orb.Point, t float64) orb.Point {
	if t >= 1 {
		return b
	}
	return orb.Point{a[0] + (b[0]-a[0])*t, a[1] + (b[1]-a[1])*t}
}
