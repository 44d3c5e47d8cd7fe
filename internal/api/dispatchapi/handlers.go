package dispatchapi

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/BearBump/DispatchBox/internal/errs"
	"github.com/BearBump/DispatchBox/internal/integrations/geoapi"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/BearBump/DispatchBox/internal/services/orders"
	"github.com/paulmach/orb"
)

type DispatchAPI struct {
	svc *orders.Service
}

// New returns the router with the whole endpoint table registered.
func New(svc *orders.Service) *Router {
	a := &DispatchAPI{svc: svc}
	r := NewRouter()
	r.Use(Authenticate)

	r.Get("/api/config", a.config)

	d := r.Group("/api/driver", RequireRole(RoleDriver))
	d.Get("/self", a.driverSelf)
	d.Post("/self", a.registerDriver)
	d.Post("/track", a.driverTrack)
	d.Post("/route", a.buildRoute)
	d.Get("/orders/available", a.availableOrders)
	d.Get("/orders/history", a.orderHistory)
	d.Get("/orders/:id", a.driverOrder)
	d.Post("/orders/:id/decline", orderAction(svc.Decline))
	d.Post("/orders/:id/accept", orderAction(svc.Accept))
	d.Post("/orders/:id/start", orderAction(svc.Start))
	d.Post("/orders/:id/delivered", orderAction(svc.Delivered))
	d.Post("/orders/:id/reroute", a.driverReroute)
	d.Get("/orders/:id/routes/:type", a.driverOrderRoute)
	d.Post("/orders/:id/track", a.orderTrack)

	m := r.Group("/api/manager", RequireRole(RoleManager))
	m.Get("/orders", a.managerOrders)
	m.Get("/orders/:id", a.managerOrder)
	m.Get("/orders/:id/routes/:type", a.managerRoute)
	m.Get("/drivers", a.managerDrivers)
	m.Get("/drivers/:id", a.managerDriver)

	u := r.Group("/api/user", RequireRole(RoleClient))
	u.Get("/pickpoints", a.pickpoints)
	u.Get("/search", a.search)
	u.Get("/suggest", a.suggest)
	u.Get("/orders/:id", a.customerOrder)
	u.Get("/orders/:id/routes/:type", a.customerRoute)
	u.Post("/orders", a.createOrder)
	u.Post("/orders/:id/reroute", a.rerouteOrder)
	u.Post("/orders/:id/finalize", a.finalizeOrder)
	u.Post("/orders/:id/confirm", a.confirmOrder)

	return r
}

type OKBody struct {
	OK bool `json:"ok"`
}

var okResponse = Response{Body: OKBody{OK: true}}

func body(v any) (Response, error) {
	return Response{Body: v}, nil
}

func decode(req *Request, v any) error {
	if len(req.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Body, v); err != nil {
		return errs.Invalid("malformed body: %v", err)
	}
	return nil
}

func pathID(req *Request) (int64, error) {
	id, err := strconv.ParseInt(req.Params["id"], 10, 64)
	if err != nil {
		return 0, errs.Invalid("bad id %q", req.Params["id"])
	}
	return id, nil
}

// parsePoint reads "lng,lat".
func parsePoint(s string) (orb.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return orb.Point{}, errs.Invalid("bad point %q", s)
	}
	x, errX := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	y, errY := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errX != nil || errY != nil {
		return orb.Point{}, errs.Invalid("bad point %q", s)
	}
	return orb.Point{x, y}, nil
}

// parseBBox reads "lng,lat~lng,lat".
func parseBBox(s string) (*orb.Bound, error) {
	parts := strings.Split(s, "~")
	if len(parts) != 2 {
		return nil, errs.Invalid("bad bbox %q", s)
	}
	a, err := parsePoint(parts[0])
	if err != nil {
		return nil, err
	}
	b, err := parsePoint(parts[1])
	if err != nil {
		return nil, err
	}
	bound := orb.Bound{Min: a, Max: a}.Extend(b)
	return &bound, nil
}

type positionBody struct {
	Position *orb.Point `json:"position"`
}

func (p positionBody) point() (orb.Point, error) {
	if p.Position == nil {
		return orb.Point{}, errs.Invalid("position is required")
	}
	return *p.Position, nil
}

type waypointsBody struct {
	Waypoints []orb.Point `json:"waypoints"`
}

func (a *DispatchAPI) config(ctx context.Context, req *Request) (Response, error) {
	return body(a.svc.Settings())
}

func (a *DispatchAPI) driverSelf(ctx context.Context, req *Request) (Response, error) {
	d, err := a.svc.Driver(ctx, req.Auth.ID)
	if err != nil {
		return Response{}, err
	}
	return body(d)
}

func (a *DispatchAPI) registerDriver(ctx context.Context, req *Request) (Response, error) {
	var in struct {
		Name   string             `json:"name"`
		State  models.DriverState `json:"state"`
		Avatar *string            `json:"avatar"`
	}
	if err := decode(req, &in); err != nil {
		return Response{}, err
	}
	d, err := a.svc.RegisterDriver(ctx, models.DriverCreateInput{Name: in.Name, State: in.State, Avatar: in.Avatar})
	if err != nil {
		return Response{}, err
	}
	return body(d)
}

func (a *DispatchAPI) driverTrack(ctx context.Context, req *Request) (Response, error) {
	var in positionBody
	if err := decode(req, &in); err != nil {
		return Response{}, err
	}
	p, err := in.point()
	if err != nil {
		return Response{}, err
	}
	if err := a.svc.UpdatePosition(ctx, req.Auth.ID, p); err != nil {
		return Response{}, err
	}
	return okResponse, nil
}

func (a *DispatchAPI) buildRoute(ctx context.Context, req *Request) (Response, error) {
	var in waypointsBody
	if err := decode(req, &in); err != nil {
		return Response{}, err
	}
	res, err := a.svc.BuildRoute(ctx, in.Waypoints)
	if err != nil {
		return Response{}, err
	}
	return body(res)
}

func (a *DispatchAPI) availableOrders(ctx context.Context, req *Request) (Response, error) {
	list, err := a.svc.Available(ctx, req.Auth.ID)
	if err != nil {
		return Response{}, err
	}
	return body(list)
}

func (a *DispatchAPI) orderHistory(ctx context.Context, req *Request) (Response, error) {
	list, err := a.svc.History(ctx, req.Auth.ID)
	if err != nil {
		return Response{}, err
	}
	return body(list)
}

func (a *DispatchAPI) driverOrder(ctx context.Context, req *Request) (Response, error) {
	id, err := pathID(req)
	if err != nil {
		return Response{}, err
	}
	o, err := a.svc.Order(ctx, id)
	if err != nil {
		return Response{}, err
	}
	return body(o)
}

// orderAction adapts a driver transition to a handler answering {ok:true}.
func orderAction(fn func(ctx context.Context, orderID, driverID int64) error) HandlerFunc {
	return func(ctx context.Context, req *Request) (Response, error) {
		id, err := pathID(req)
		if err != nil {
			return Response{}, err
		}
		if err := fn(ctx, id, req.Auth.ID); err != nil {
			return Response{}, err
		}
		return okResponse, nil
	}
}

func (a *DispatchAPI) driverReroute(ctx context.Context, req *Request) (Response, error) {
	id, err := pathID(req)
	if err != nil {
		return Response{}, err
	}
	var in waypointsBody
	if err := decode(req, &in); err != nil {
		return Response{}, err
	}
	res, err := a.svc.DriverReroute(ctx, id, req.Auth.ID, in.Waypoints)
	if err != nil {
		return Response{}, err
	}
	return body(map[string]any{"route": res})
}

func (a *DispatchAPI) driverOrderRoute(ctx context.Context, req *Request) (Response, error) {
	id, err := pathID(req)
	if err != nil {
		return Response{}, err
	}
	r, err := a.svc.RouteForDriver(ctx, id, req.Auth.ID, models.RouteType(req.Params["type"]))
	if err != nil {
		return Response{}, err
	}
	return body(r)
}

type TrackResult struct {
	OK      bool `json:"ok"`
	Applied bool `json:"applied"`
}

func (a *DispatchAPI) orderTrack(ctx context.Context, req *Request) (Response, error) {
	id, err := pathID(req)
	if err != nil {
		return Response{}, err
	}
	var in positionBody
	if err := decode(req, &in); err != nil {
		return Response{}, err
	}
	p, err := in.point()
	if err != nil {
		return Response{}, err
	}
	applied, err := a.svc.Track(ctx, id, req.Auth.ID, p)
	if err != nil {
		return Response{}, err
	}
	return body(TrackResult{OK: true, Applied: applied})
}

func (a *DispatchAPI) managerOrders(ctx context.Context, req *Request) (Response, error) {
	out, err := a.svc.ManagerOrders(ctx)
	if err != nil {
		return Response{}, err
	}
	return body(out)
}

func (a *DispatchAPI) managerOrder(ctx context.Context, req *Request) (Response, error) {
	id, err := pathID(req)
	if err != nil {
		return Response{}, err
	}
	out, err := a.svc.ManagerOrder(ctx, id)
	if err != nil {
		return Response{}, err
	}
	return body(out)
}

func (a *DispatchAPI) managerRoute(ctx context.Context, req *Request) (Response, error) {
	id, err := pathID(req)
	if err != nil {
		return Response{}, err
	}
	r, err := a.svc.RouteForManager(ctx, id, models.RouteType(req.Params["type"]))
	if err != nil {
		return Response{}, err
	}
	return body(r)
}

func (a *DispatchAPI) managerDrivers(ctx context.Context, req *Request) (Response, error) {
	out, err := a.svc.ManagerDrivers(ctx)
	if err != nil {
		return Response{}, err
	}
	return body(out)
}

func (a *DispatchAPI) managerDriver(ctx context.Context, req *Request) (Response, error) {
	id, err := pathID(req)
	if err != nil {
		return Response{}, err
	}
	out, err := a.svc.ManagerDriver(ctx, id)
	if err != nil {
		return Response{}, err
	}
	return body(out)
}

func (a *DispatchAPI) pickpoints(ctx context.Context, req *Request) (Response, error) {
	list, err := a.svc.Pickpoints(ctx)
	if err != nil {
		return Response{}, err
	}
	return body(list)
}

func (a *DispatchAPI) search(ctx context.Context, req *Request) (Response, error) {
	q := geoapi.GeocodeQuery{URI: req.Query.Get("uri"), Text: req.Query.Get("text")}
	if s := req.Query.Get("point"); s != "" {
		p, err := parsePoint(s)
		if err != nil {
			return Response{}, err
		}
		q.Point = &p
	}
	return body(a.svc.Search(ctx, q))
}

func (a *DispatchAPI) suggest(ctx context.Context, req *Request) (Response, error) {
	var bbox *orb.Bound
	if s := req.Query.Get("bbox"); s != "" {
		b, err := parseBBox(s)
		if err != nil {
			return Response{}, err
		}
		bbox = b
	}
	return body(a.svc.Suggest(ctx, req.Query.Get("text"), bbox, req.Query.Get("pickpoints") == "true"))
}

func (a *DispatchAPI) customerOrder(ctx context.Context, req *Request) (Response, error) {
	id, err := pathID(req)
	if err != nil {
		return Response{}, err
	}
	out, err := a.svc.CustomerOrder(ctx, id)
	if err != nil {
		return Response{}, err
	}
	return body(out)
}

func (a *DispatchAPI) customerRoute(ctx context.Context, req *Request) (Response, error) {
	id, err := pathID(req)
	if err != nil {
		return Response{}, err
	}
	withArrival := req.Query.Get("withArrival") == "true"
	r, err := a.svc.RouteForCustomer(ctx, id, models.RouteType(req.Params["type"]), withArrival)
	if err != nil {
		return Response{}, err
	}
	return body(r)
}

func (a *DispatchAPI) createOrder(ctx context.Context, req *Request) (Response, error) {
	var in struct {
		Description string           `json:"description"`
		Meta        models.OrderMeta `json:"meta"`
		Products    []models.Product `json:"products"`
	}
	if err := decode(req, &in); err != nil {
		return Response{}, err
	}
	o, err := a.svc.Create(ctx, orders.CreateInput{Description: in.Description, Meta: in.Meta, Products: in.Products})
	if err != nil {
		return Response{}, err
	}
	return body(o)
}

func (a *DispatchAPI) rerouteOrder(ctx context.Context, req *Request) (Response, error) {
	id, err := pathID(req)
	if err != nil {
		return Response{}, err
	}
	var in waypointsBody
	if err := decode(req, &in); err != nil {
		return Response{}, err
	}
	metas, err := a.svc.Reroute(ctx, id, in.Waypoints)
	if err != nil {
		return Response{}, err
	}
	return body(metas)
}

func (a *DispatchAPI) finalizeOrder(ctx context.Context, req *Request) (Response, error) {
	id, err := pathID(req)
	if err != nil {
		return Response{}, err
	}
	var in struct {
		Type        models.OrderType `json:"type"`
		Selected    models.RouteType `json:"selected"`
		Pickpoint   int64            `json:"pickpoint"`
		Destination *orb.Point       `json:"destination"`
	}
	if err := decode(req, &in); err != nil {
		return Response{}, err
	}
	o, err := a.svc.Finalize(ctx, id, orders.FinalizeInput{
		Type:        in.Type,
		Selected:    in.Selected,
		PickpointID: in.Pickpoint,
		Destination: in.Destination,
	})
	if err != nil {
		return Response{}, err
	}
	return body(o)
}

func (a *DispatchAPI) confirmOrder(ctx context.Context, req *Request) (Response, error) {
	id, err := pathID(req)
	if err != nil {
		return Response{}, err
	}
	o, err := a.svc.Confirm(ctx, id)
	if err != nil {
		return Response{}, err
	}
	return body(o)
}
