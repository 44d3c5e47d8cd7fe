// Package geoapi declares the external geo providers the dispatch engine consumes:
// routing, geocoding, suggest, isochrones and distance matrices.
//
// A nil result with a nil error means the provider answered but found nothing.
// Callers treat that exactly like an error and degrade.
package geoapi

import (
	"context"

	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/paulmach/orb"
)

type GeocodeQuery struct {
	Point    *orb.Point
	URI      string
	Text     string
	BBox     *orb.Bound
	Language string
}

type GeocodeResult struct {
	Name        string    `json:"name"`
	Coordinates orb.Point `json:"coordinates"`
}

type SuggestQuery struct {
	Text     string
	BBox     *orb.Bound
	Language string
	Results  int
}

type Highlighted struct {
	Text string   `json:"text"`
	HL   [][2]int `json:"hl"`
}

type SuggestDistance struct {
	Text  string  `json:"text"`
	Value float64 `json:"value"`
}

type SuggestItem struct {
	Title    Highlighted      `json:"title"`
	Subtitle *Highlighted     `json:"subtitle,omitempty"`
	Distance *SuggestDistance `json:"distance,omitempty"`
	URI      string           `json:"uri,omitempty"`
	Tags     []string         `json:"tags,omitempty"`
}

const (
	CellOK   = "OK"
	CellFail = "FAIL"
)

type MatrixCell struct {
	Status   string  `json:"status"`
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}

// Matrix has one row per origin and one cell per destination.
type Matrix struct {
	Rows [][]MatrixCell `json:"rows"`
}

// Cell returns the cell for origin i and destination j, if present.
func (m *Matrix) Cell(i, j int) (MatrixCell, bool) {
	if m == nil || i >= len(m.Rows) || j >= len(m.Rows[i]) {
		return MatrixCell{}, false
	}
	return m.Rows[i][j], true
}

type Router interface {
	BuildRoute(ctx context.Context, waypoints []orb.Point, mode models.RouteMode) (*models.RouterResult, error)
}

type Geocoder interface {
	Geocode(ctx context.Context, q GeocodeQuery) (*GeocodeResult, error)
}

type Suggester interface {
	Suggest(ctx context.Context, q SuggestQuery) ([]SuggestItem, error)
}

type Isochroner interface {
	BuildIsochrone(ctx context.Context, p orb.Point, seconds int, mode models.RouteMode) (orb.MultiPolygon, error)
}

type DistanceMatrixer interface {
	BuildDistanceMatrix(ctx context.Context, origins, destinations []orb.Point, mode models.RouteMode) (*Matrix, error)
}

type Client interface {
	Router
	Geocoder
	Suggester
	Isochroner
	DistanceMatrixer
}
