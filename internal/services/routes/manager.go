// Package routes owns the six route kinds of an order and keeps actual and
// remaining consistent while the driver reports positions.
package routes

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/BearBump/DispatchBox/internal/errs"
	"github.com/BearBump/DispatchBox/internal/geometry"
	"github.com/BearBump/DispatchBox/internal/integrations/geoapi"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/BearBump/DispatchBox/internal/storage/sqlitestore"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

type Repository interface {
	GetRoute(ctx context.Context, orderID int64, typ models.RouteType) (*models.Route, error)
	ReplaceDraftRoutes(ctx context.Context, orderID int64, routes []*models.Route) (bool, error)
	SaveRoutes(ctx context.Context, routes ...*models.Route) error
	SpliceRoutes(ctx context.Context, orderID int64, fn sqlitestore.SpliceFunc) error
	UpdateRoutePoints(ctx context.Context, orderID int64, typ models.RouteType, points []orb.Point) (bool, error)
}

type Geo interface {
	geoapi.Router
	geoapi.Geocoder
}

type Manager struct {
	repo     Repository
	geo      Geo
	language string
	now      func() time.Time
}

func New(repo Repository, geo Geo, language string) *Manager {
	return &Manager{repo: repo, geo: geo, language: language, now: time.Now}
}

func (m *Manager) stamp() string {
	return m.now().UTC().Format(time.RFC3339Nano)
}

// Label is the reverse-geocoded name of p, or its coordinates when the
// geocoder has nothing.
func (m *Manager) Label(ctx context.Context, p orb.Point) string {
	res, err := m.geo.Geocode(ctx, geoapi.GeocodeQuery{Point: &p, Language: m.language})
	if err != nil {
		slog.Warn("reverse geocode failed", "point", p, "error", err.Error())
	}
	if err != nil || res == nil || res.Name == "" {
		return strconv.FormatFloat(p[0], 'f', -1, 64) + ", " + strconv.FormatFloat(p[1], 'f', -1, 64)
	}
	return res.Name
}

func (m *Manager) Waypoints(ctx context.Context, points []orb.Point) []models.Waypoint {
	out := make([]models.Waypoint, len(points))
	for i, p := range points {
		out[i] = models.Waypoint{Coordinates: p, Description: m.Label(ctx, p)}
	}
	return out
}

// tryBuild asks the router and folds every failure into a nil result.
func (m *Manager) tryBuild(ctx context.Context, points []orb.Point, mode models.RouteMode) *models.RouterResult {
	res, err := m.geo.BuildRoute(ctx, points, mode)
	if err != nil {
		slog.Warn("build route failed", "mode", mode, "waypoints", len(points), "error", err.Error())
		return nil
	}
	return res
}

// Build returns an Upstream error when no route can be built.
func (m *Manager) Build(ctx context.Context, points []orb.Point, mode models.RouteMode) (*models.RouterResult, error) {
	if len(points) < 2 {
		return nil, errs.Invalid("at least two waypoints are required")
	}
	res := m.tryBuild(ctx, points, mode)
	if res == nil {
		return nil, errs.Upstream("no %s route through %d waypoints", mode, len(points))
	}
	return res, nil
}

func newRoute(orderID int64, typ models.RouteType, res *models.RouterResult, waypoints []models.Waypoint, price float64, updatedAt string) *models.Route {
	return &models.Route{
		Type:    typ,
		OrderID: orderID,
		Points:  res.Points,
		Meta: models.RouteMeta{
			Type:      typ,
			UpdatedAt: updatedAt,
			Price:     price,
			Duration:  res.Duration,
			Distance:  res.Distance,
			Waypoints: waypoints,
			Mode:      res.Mode,
		},
	}
}

// Candidates replaces every route of a draft order with a driving and a
// walking candidate through points and returns their metas.
func (m *Manager) Candidates(ctx context.Context, orderID int64, points []orb.Point) ([]models.RouteMeta, error) {
	if len(points) < 2 {
		return nil, errs.Invalid("at least two waypoints are required")
	}
	waypoints := m.Waypoints(ctx, points)
	updatedAt := m.stamp()

	var routes []*models.Route
	for _, c := range []struct {
		typ  models.RouteType
		mode models.RouteMode
	}{
		{models.RouteTypeDriving, models.RouteModeDriving},
		{models.RouteTypeWalking, models.RouteModeWalking},
	} {
		res := m.tryBuild(ctx, points, c.mode)
		if res == nil {
			continue
		}
		routes = append(routes, newRoute(orderID, c.typ, res, waypoints, math.Ceil(res.Distance*0.01), updatedAt))
	}
	if len(routes) == 0 {
		return nil, errs.Upstream("neither driving nor walking route could be built")
	}

	ok, err := m.repo.ReplaceDraftRoutes(ctx, orderID, routes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.NotApplied("order %d is not a draft", orderID)
	}

	metas := make([]models.RouteMeta, len(routes))
	for i, r := range routes {
		metas[i] = r.Meta
	}
	return metas, nil
}

// PlanFromCandidate returns a planned route copied from the selected
// candidate. It is not stored; finalizing the order does that.
func (m *Manager) PlanFromCandidate(ctx context.Context, orderID int64, kind models.RouteType) (*models.Route, error) {
	if !kind.Candidate() {
		return nil, errs.Invalid("route %q cannot be selected", kind)
	}
	r, err := m.repo.GetRoute(ctx, orderID, kind)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errs.Invalid("order %d has no %s route", orderID, kind)
	}
	planned := r.Clone()
	planned.Type = models.RouteTypePlanned
	planned.Meta.Type = models.RouteTypePlanned
	return planned, nil
}

// PlanNew builds a driving route through waypoints to be stored as planned.
func (m *Manager) PlanNew(ctx context.Context, orderID int64, waypoints []models.Waypoint) (*models.Route, error) {
	points := make([]orb.Point, len(waypoints))
	for i, w := range waypoints {
		points[i] = w.Coordinates
	}
	res, err := m.Build(ctx, points, models.RouteModeDriving)
	if err != nil {
		return nil, err
	}
	return newRoute(orderID, models.RouteTypePlanned, res, waypoints, 0, m.stamp()), nil
}

// StartDelivery creates arrival, remaining and an empty actual for an order
// that has just been accepted by a driver standing at driverPos.
func (m *Manager) StartDelivery(ctx context.Context, order *models.Order, driverPos orb.Point) error {
	if len(order.Waypoints) == 0 {
		return errors.Errorf("order %d has no waypoints", order.ID)
	}
	planned, err := m.repo.GetRoute(ctx, order.ID, models.RouteTypePlanned)
	if err != nil {
		return err
	}
	if planned == nil {
		return errors.Errorf("order %d has no planned route", order.ID)
	}

	start := models.Waypoint{Coordinates: driverPos, Description: m.Label(ctx, driverPos)}
	arrivalWaypoints := []models.Waypoint{start, order.Waypoints[0]}
	res, err := m.Build(ctx, []orb.Point{driverPos, order.Waypoints[0].Coordinates}, planned.Meta.Mode)
	if err != nil {
		return err
	}
	updatedAt := m.stamp()
	arrival := newRoute(order.ID, models.RouteTypeArrival, res, arrivalWaypoints, 0, updatedAt)

	points := append([]orb.Point{}, arrival.Points...)
	tail := planned.Points
	if len(points) > 0 && len(tail) > 0 && points[len(points)-1] == tail[0] {
		tail = tail[1:]
	}
	points = append(points, tail...)

	fullWaypoints := append([]models.Waypoint{start}, order.Waypoints...)
	remaining := &models.Route{
		Type:    models.RouteTypeRemaining,
		OrderID: order.ID,
		Points:  points,
		Meta: models.RouteMeta{
			Type:      models.RouteTypeRemaining,
			UpdatedAt: updatedAt,
			Price:     planned.Meta.Price,
			Duration:  arrival.Meta.Duration + planned.Meta.Duration,
			Distance:  arrival.Meta.Distance + planned.Meta.Distance,
			Waypoints: fullWaypoints,
			Mode:      planned.Meta.Mode,
		},
	}
	actual := &models.Route{
		Type:    models.RouteTypeActual,
		OrderID: order.ID,
		Points:  []orb.Point{},
		Meta: models.RouteMeta{
			Type:      models.RouteTypeActual,
			UpdatedAt: updatedAt,
			Price:     planned.Meta.Price,
			Waypoints: fullWaypoints,
			Mode:      planned.Meta.Mode,
		},
	}

	return m.repo.SaveRoutes(ctx, arrival, remaining, actual)
}

// ApplyPosition moves the part of remaining the driver has passed into actual.
// It reports false when pos is not on the remaining route; nothing is stored then.
// Reports for one order are applied one at a time.
func (m *Manager) ApplyPosition(ctx context.Context, orderID int64, pos orb.Point) (bool, error) {
	var applied bool
	err := m.repo.SpliceRoutes(ctx, orderID, func(actual, remaining *models.Route) (*models.Route, *models.Route, error) {
		if actual == nil || remaining == nil {
			return nil, nil, errors.Errorf("order %d is not in delivery", orderID)
		}
		nextActual, nextRemaining, ok := Splice(actual, remaining, pos)
		if !ok {
			return nil, nil, nil
		}
		updatedAt := m.stamp()
		nextActual.Meta.UpdatedAt = updatedAt
		nextRemaining.Meta.UpdatedAt = updatedAt
		applied = true
		return nextActual, nextRemaining, nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// Splice returns the new actual and remaining routes after the driver
// reported pos. ok is false when pos is farther than geometry.NearMeters from
// remaining. Inputs are not modified.
func Splice(actual, remaining *models.Route, pos orb.Point) (*models.Route, *models.Route, bool) {
	idx, ok := geometry.NearestIndex(remaining.Points, pos)
	if !ok {
		return nil, nil, false
	}

	nextActual := actual.Clone()
	nextActual.Points = append(nextActual.Points, remaining.Points[:idx]...)
	nextActual.Points = append(nextActual.Points, pos)

	nextRemaining := remaining.Clone()
	if idx < len(remaining.Points)-1 {
		nextRemaining.Points = nextRemaining.Points[idx:]
	} else {
		nextRemaining.Points = []orb.Point{}
	}
	nextRemaining.Meta = rescale(remaining.Meta, len(remaining.Points), len(nextRemaining.Points))

	if len(actual.Points) == 0 {
		nextActual.Meta.Duration += remaining.Meta.Duration - nextRemaining.Meta.Duration
		nextActual.Meta.Distance += remaining.Meta.Distance - nextRemaining.Meta.Distance
	} else {
		nextActual.Meta = rescale(actual.Meta, len(actual.Points), len(nextActual.Points))
	}
	return nextActual, nextRemaining, true
}

// rescale spreads the metrics evenly over the points and recounts them.
func rescale(meta models.RouteMeta, oldCount, newCount int) models.RouteMeta {
	if oldCount == 0 {
		return meta
	}
	meta.Duration = meta.Duration / float64(oldCount) * float64(newCount)
	meta.Distance = meta.Distance / float64(oldCount) * float64(newCount)
	return meta
}

// CustomerView hides the pre-pickup leg of actual and remaining from the
// customer unless withArrival is set. It returns a copy.
func CustomerView(r *models.Route, withArrival bool) *models.Route {
	if r == nil {
		return nil
	}
	out := r.Clone()
	if withArrival || (r.Type != models.RouteTypeActual && r.Type != models.RouteTypeRemaining) {
		return out
	}

	if len(out.Points) > 2 && len(out.Meta.Waypoints) > 1 {
		idx, ok := geometry.NearestIndex(out.Points, out.Meta.Waypoints[1].Coordinates)
		switch {
		case ok:
			out.Points = out.Points[idx:]
		case r.Type == models.RouteTypeActual:
			out.Points = []orb.Point{}
		}
		out.Meta = rescale(r.Meta, len(r.Points), len(out.Points))
	}
	if n := len(out.Meta.Waypoints); n > 2 {
		out.Meta.Waypoints = out.Meta.Waypoints[n-2:]
	}
	return out
}

// ReplaceActual overwrites the driven route with a fresh driving route
// through points.
func (m *Manager) ReplaceActual(ctx context.Context, orderID int64, points []orb.Point) (*models.RouterResult, error) {
	res, err := m.Build(ctx, points, models.RouteModeDriving)
	if err != nil {
		return nil, err
	}
	ok, err := m.repo.UpdateRoutePoints(ctx, orderID, models.RouteTypeActual, res.Points)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.NotApplied("order %d has no actual route", orderID)
	}
	return res, nil
}

// Route returns nil when the order has no route of that kind.
func (m *Manager) Route(ctx context.Context, orderID int64, kind models.RouteType) (*models.Route, error) {
	if !kind.Valid() {
		return nil, errs.Invalid("unknown route type %q", kind)
	}
	return m.repo.GetRoute(ctx, orderID, kind)
}
