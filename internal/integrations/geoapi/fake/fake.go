package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"net/url"

	"github.com/BearBump/DispatchBox/internal/geometry"
	"github.com/BearBump/DispatchBox/internal/integrations/geoapi"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/paulmach/orb"
)

// FakeClient is an offline geo provider: legs are straight lines, names come
// from a hash of the input, isochrones are circles. Same input, same answer.
type FakeClient struct {
	bound orb.Bound
	step  float64
}

// New returns a fake that places free-text geocodes inside bound.
func New(bound orb.Bound) *FakeClient {
	return &FakeClient{bound: bound, step: 150}
}

var streets = []string{
	"Tverskaya", "Arbat", "Myasnitskaya", "Pokrovka", "Sretenka",
	"Petrovka", "Neglinnaya", "Ostozhenka", "Prechistenka", "Bolshaya Ordynka",
}

// metersPerSecond is the travel speed the fake assumes for each mode.
func metersPerSecond(mode models.RouteMode) float64 {
	if mode == models.RouteModeWalking {
		return 5.0 * 1000 / 3600
	}
	return 30.0 * 1000 / 3600
}

func (f *FakeClient) BuildRoute(ctx context.Context, waypoints []orb.Point, mode models.RouteMode) (*models.RouterResult, error) {
	if len(waypoints) < 2 {
		return nil, nil
	}

	var points []orb.Point
	var distance float64
	for i, wp := range waypoints {
		points = append(points, wp)
		if i == len(waypoints)-1 {
			break
		}
		next := waypoints[i+1]
		d := geometry.DistanceMeters(wp, next)
		distance += d

		// every leg gets at least one interior point, so the route always
		// carries more points than waypoints
		n := int(math.Ceil(d/f.step)) - 1
		if n < 1 {
			n = 1
		}
		for k := 1; k <= n; k++ {
			t := float64(k) / float64(n+1)
			points = append(points, orb.Point{
				wp[0] + (next[0]-wp[0])*t,
				wp[1] + (next[1]-wp[1])*t,
			})
		}
	}

	return &models.RouterResult{
		Points:   points,
		Duration: math.Ceil(distance / metersPerSecond(mode)),
		Distance: math.Ceil(distance),
		Mode:     mode,
	}, nil
}

func (f *FakeClient) Geocode(ctx context.Context, q geoapi.GeocodeQuery) (*geoapi.GeocodeResult, error) {
	switch {
	case q.URI != "":
		return f.byText(q.URI), nil
	case q.Text != "":
		return f.byText(q.Text), nil
	case q.Point != nil:
		key := fmt.Sprintf("%.5f,%.5f", q.Point[0], q.Point[1])
		return &geoapi.GeocodeResult{Name: streetName(key), Coordinates: *q.Point}, nil
	}
	return nil, nil
}

func (f *FakeClient) byText(s string) *geoapi.GeocodeResult {
	if u, err := url.Parse(s); err == nil && u.Query().Get("text") != "" {
		s = u.Query().Get("text")
	}
	rnd := geometry.Seed(float64(hash(s) % 100000))
	return &geoapi.GeocodeResult{
		Name:        streetName(s),
		Coordinates: geometry.RandomPointIn(f.bound, rnd),
	}
}

func (f *FakeClient) Suggest(ctx context.Context, q geoapi.SuggestQuery) ([]geoapi.SuggestItem, error) {
	if q.Text == "" {
		return []geoapi.SuggestItem{}, nil
	}
	n := q.Results
	if n <= 0 || n > 5 {
		n = 5
	}

	items := make([]geoapi.SuggestItem, 0, n)
	for i := 0; i < n; i++ {
		text := fmt.Sprintf("%s %s", q.Text, streetName(fmt.Sprintf("%s|%d", q.Text, i)))
		u := url.URL{Scheme: "fake", Host: "geo", RawQuery: url.Values{"text": {text}}.Encode()}
		items = append(items, geoapi.SuggestItem{
			Title: geoapi.Highlighted{Text: text, HL: [][2]int{{0, len(q.Text)}}},
			URI:   u.String(),
			Tags:  []string{"street"},
		})
	}
	return items, nil
}

// BuildIsochrone returns a 32-gon around p whose radius is the distance
// covered in the given time.
func (f *FakeClient) BuildIsochrone(ctx context.Context, p orb.Point, seconds int, mode models.RouteMode) (orb.MultiPolygon, error) {
	radius := metersPerSecond(mode) * float64(seconds)
	dLat := radius / geometry.MetersPerDegree
	dLng := dLat / math.Cos(p[1]*math.Pi/180)

	const sides = 32
	ring := make(orb.Ring, 0, sides+1)
	for i := 0; i < sides; i++ {
		a := 2 * math.Pi * float64(i) / sides
		ring = append(ring, orb.Point{p[0] + dLng*math.Cos(a), p[1] + dLat*math.Sin(a)})
	}
	ring = append(ring, ring[0])

	return orb.MultiPolygon{orb.Polygon{ring}}, nil
}

func (f *FakeClient) BuildDistanceMatrix(ctx context.Context, origins, destinations []orb.Point, mode models.RouteMode) (*geoapi.Matrix, error) {
	m := &geoapi.Matrix{Rows: make([][]geoapi.MatrixCell, len(origins))}
	for i, o := range origins {
		row := make([]geoapi.MatrixCell, len(destinations))
		for j, d := range destinations {
			dist := math.Ceil(geometry.DistanceMeters(o, d))
			row[j] = geoapi.MatrixCell{
				Status:   geoapi.CellOK,
				Distance: dist,
				Duration: math.Ceil(dist / metersPerSecond(mode)),
			}
		}
		m.Rows[i] = row
	}
	return m, nil
}

func streetName(key string) string {
	v := hash(key)
	return fmt.Sprintf("%s, %d", streets[v%uint32(len(streets))], v%120+1)
}

func hash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
