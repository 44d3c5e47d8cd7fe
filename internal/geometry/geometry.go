// Package geometry implements the polyline algorithms the dispatch engine runs
// on routes: bounds, nearest segment lookup and fixed-length chunking.
// Points are [lng, lat] pairs; distances are meters.
package geometry

import (
	"math"

	"github.com/mmcloughlin/geohash"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// NearMeters is the proximity threshold for matching a position onto a route.
const NearMeters = 0.5

const MetersPerDegree = orb.EarthRadius * math.Pi / 180

func BBox(points []orb.Point) (orb.Bound, bool) {
	if len(points) == 0 {
		return orb.Bound{}, false
	}
	return orb.MultiPoint(points).Bound(), true
}

func DistanceMeters(a, b orb.Point) float64 {
	return geo.Distance(a, b)
}

// SegmentDistanceMeters returns the distance from p to the segment ab.
// The segment is projected onto a local equirectangular plane centered at p,
// which is exact enough for segments of a few kilometers.
func SegmentDistanceMeters(p, a, b orb.Point) float64 {
	return planar.DistanceFromSegment(project(p, a), project(p, b), orb.Point{})
}

func project(origin, p orb.Point) orb.Point {
	k := math.Cos(origin.Lat() * math.Pi / 180)
	return orb.Point{
		(p.Lon() - origin.Lon()) * k * MetersPerDegree,
		(p.Lat() - origin.Lat()) * MetersPerDegree,
	}
}

// NearestIndex finds the segment of line closest to p within NearMeters.
// When the final segment qualifies and is at least as close as the best match,
// the index of the line's last point is returned instead.
func NearestIndex(line []orb.Point, p orb.Point) (int, bool) {
	best := math.Inf(1)
	idx := -1
	for i := 0; i < len(line)-1; i++ {
		d := SegmentDistanceMeters(p, line[i], line[i+1])
		if d >= NearMeters {
			continue
		}
		if d < best {
			best, idx = d, i
		}
		if i == len(line)-2 && d <= best {
			best, idx = d, i+1
		}
	}
	return idx, idx >= 0
}

func Within(area orb.MultiPolygon, p orb.Point) bool {
	return planar.MultiPolygonContains(area, p)
}

func GeohashCell(p orb.Point) string {
	return geohash.EncodeWithPrecision(p.Lat(), p.Lon(), 9)
}
