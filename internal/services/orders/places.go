package orders

import (
	"context"
	"log/slog"
	"sort"

	"github.com/BearBump/DispatchBox/internal/errs"
	"github.com/BearBump/DispatchBox/internal/geometry"
	"github.com/BearBump/DispatchBox/internal/integrations/geoapi"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/paulmach/orb"
)

const (
	suggestWalkSeconds    = 20 * 60
	suggestPickpointCount = 3

	SuggestTypeSuggest   = "suggest"
	SuggestTypePickpoint = "pickpoint"
)

// exactTags mark suggestions precise enough to look for pickpoints around.
var exactTags = []string{"business", "street", "metro", "house"}

type SuggestEntry struct {
	Type     string   `json:"type"`
	Item     any      `json:"item"`
	Distance *float64 `json:"distance,omitempty"`
}

type NearestPickpoint struct {
	Pickpoint *models.Pickpoint
	Distance  float64
}

func (s *Service) Pickpoints(ctx context.Context) ([]*models.Pickpoint, error) {
	return s.store.ListPickpoints(ctx)
}

// Search geocodes a point, a provider uri or free text. Provider failures
// degrade to a nil result.
func (s *Service) Search(ctx context.Context, q geoapi.GeocodeQuery) *geoapi.GeocodeResult {
	if q.Language == "" {
		q.Language = s.opts.Language
	}
	res, err := s.geo.Geocode(ctx, q)
	if err != nil {
		slog.Warn("search failed", "error", err.Error())
		return nil
	}
	return res
}

// Suggest completes text. With withPickpoints the pickpoints within a short
// walk of the first precise suggestion are put in front, nearest first.
func (s *Service) Suggest(ctx context.Context, text string, bbox *orb.Bound, withPickpoints bool) []SuggestEntry {
	items, err := s.geo.Suggest(ctx, geoapi.SuggestQuery{Text: text, BBox: bbox, Language: s.opts.Language})
	if err != nil {
		slog.Warn("suggest failed", "error", err.Error())
		return []SuggestEntry{}
	}

	out := make([]SuggestEntry, 0, len(items)+suggestPickpointCount)
	if withPickpoints && len(items) > 0 && hasExactTag(items[0].Tags) {
		for _, np := range s.suggestPickpoints(ctx, items[0]) {
			d := np.Distance
			out = append(out, SuggestEntry{Type: SuggestTypePickpoint, Item: np.Pickpoint, Distance: &d})
		}
	}
	for _, it := range items {
		out = append(out, SuggestEntry{Type: SuggestTypeSuggest, Item: it})
	}
	return out
}

func hasExactTag(tags []string) bool {
	for _, t := range tags {
		for _, e := range exactTags {
			if t == e {
				return true
			}
		}
	}
	return false
}

func (s *Service) suggestPickpoints(ctx context.Context, item geoapi.SuggestItem) []NearestPickpoint {
	q := geoapi.GeocodeQuery{URI: item.URI, Language: s.opts.Language}
	if q.URI == "" {
		q.Text = item.Title.Text
	}
	place := s.Search(ctx, q)
	if place == nil {
		return nil
	}
	nearest, err := s.NearestPickpoints(ctx, place.Coordinates, suggestWalkSeconds, suggestPickpointCount)
	if err != nil {
		slog.Warn("nearest pickpoints failed", "error", err.Error())
		return nil
	}
	return nearest
}

// NearestPickpoints returns up to count pickpoints inside the walking
// isochrone of p, sorted by walking distance. Straight-line distance stands in
// for cells the matrix could not compute.
func (s *Service) NearestPickpoints(ctx context.Context, p orb.Point, seconds, count int) ([]NearestPickpoint, error) {
	iso, err := s.geo.BuildIsochrone(ctx, p, seconds, models.RouteModeWalking)
	if err != nil {
		slog.Warn("isochrone failed", "error", err.Error())
		return nil, nil
	}
	if len(iso) == 0 {
		return nil, nil
	}

	candidates, err := s.store.ListPickpointsInBound(ctx, iso.Bound())
	if err != nil {
		return nil, err
	}
	var inside []*models.Pickpoint
	for _, pp := range candidates {
		if geometry.Within(iso, pp.Position) {
			inside = append(inside, pp)
			if len(inside) == count {
				break
			}
		}
	}
	if len(inside) == 0 {
		return nil, nil
	}

	origins := make([]orb.Point, len(inside))
	for i, pp := range inside {
		origins[i] = pp.Position
	}
	matrix, err := s.geo.BuildDistanceMatrix(ctx, origins, []orb.Point{p}, models.RouteModeWalking)
	if err != nil {
		slog.Warn("distance matrix failed", "error", err.Error())
		matrix = nil
	}

	out := make([]NearestPickpoint, len(inside))
	for i, pp := range inside {
		out[i] = NearestPickpoint{Pickpoint: pp, Distance: geometry.DistanceMeters(p, pp.Position)}
		if cell, ok := matrix.Cell(i, 0); ok && cell.Status == geoapi.CellOK {
			out[i].Distance = cell.Distance
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, nil
}

// nearestWarehouse picks the warehouse with the shortest driving distance to
// p, or the first warehouse when distances are unavailable.
func (s *Service) nearestWarehouse(ctx context.Context, p orb.Point) (models.Warehouse, error) {
	whs := s.opts.Warehouses
	if len(whs) == 0 {
		return models.Warehouse{}, errs.Invalid("no warehouses configured")
	}

	origins := make([]orb.Point, len(whs))
	for i, w := range whs {
		origins[i] = w.Position
	}
	matrix, err := s.geo.BuildDistanceMatrix(ctx, origins, []orb.Point{p}, models.RouteModeDriving)
	if err != nil {
		slog.Warn("distance matrix failed, using first warehouse", "error", err.Error())
		return whs[0], nil
	}

	best, bestDistance := 0, -1.0
	for i := range whs {
		cell, ok := matrix.Cell(i, 0)
		if !ok || cell.Status != geoapi.CellOK {
			continue
		}
		if bestDistance < 0 || cell.Distance < bestDistance {
			best, bestDistance = i, cell.Distance
		}
	}
	return whs[best], nil
}
