package orders

import (
	"context"
	"sort"

	"github.com/BearBump/DispatchBox/internal/errs"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/BearBump/DispatchBox/internal/services/routes"
	"github.com/paulmach/orb"
)

type CustomerOrder struct {
	*models.Order
	Position *orb.Point     `json:"position,omitempty"`
	Driver   *models.Driver `json:"driver"`
}

type OrderWithDriver struct {
	Order  *models.Order  `json:"order"`
	Driver *models.Driver `json:"driver"`
}

type ManagerOrders struct {
	Orders  []*models.Order   `json:"orders"`
	Items   []OrderWithDriver `json:"items"`
	HasMore bool              `json:"hasMore"`
}

type DriverWithOrder struct {
	Driver *models.Driver `json:"driver"`
	Order  *models.Order  `json:"order,omitempty"`
}

type ManagerDrivers struct {
	Drivers []*models.Driver  `json:"drivers"`
	Items   []DriverWithOrder `json:"items"`
	HasMore bool              `json:"hasMore"`
}

func (s *Service) Order(ctx context.Context, id int64) (*models.Order, error) {
	return s.mustOrder(ctx, id)
}

// Available lists the orders the driver may accept, manually created ones first.
func (s *Service) Available(ctx context.Context, driverID int64) ([]*models.Order, error) {
	orders, err := s.store.ListAvailableOrders(ctx, driverID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return !orders[i].Meta.Autoplay && orders[j].Meta.Autoplay
	})
	return orders, nil
}

func (s *Service) History(ctx context.Context, driverID int64) ([]*models.Order, error) {
	return s.store.ListDriverHistory(ctx, driverID)
}

func (s *Service) ManagerOrders(ctx context.Context) (*ManagerOrders, error) {
	orders, hasMore, err := s.store.ListOrdersPage(ctx, s.opts.PageSize)
	if err != nil {
		return nil, err
	}

	var ids []int64
	for _, o := range orders {
		if o.DriverID != nil {
			ids = append(ids, *o.DriverID)
		}
	}
	drivers, err := s.store.GetDriversByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*models.Driver, len(drivers))
	for _, d := range drivers {
		byID[d.ID] = d
	}

	items := make([]OrderWithDriver, len(orders))
	for i, o := range orders {
		items[i] = OrderWithDriver{Order: o}
		if o.DriverID != nil {
			items[i].Driver = byID[*o.DriverID]
		}
	}
	return &ManagerOrders{Orders: orders, Items: items, HasMore: hasMore}, nil
}

// ManagerOrder joins the assigned driver while the order is not completed.
func (s *Service) ManagerOrder(ctx context.Context, id int64) (*OrderWithDriver, error) {
	o, err := s.mustOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	out := &OrderWithDriver{Order: o}
	if o.State != models.OrderStateCompleted && o.DriverID != nil {
		if out.Driver, err = s.store.GetDriver(ctx, *o.DriverID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Service) ManagerDrivers(ctx context.Context) (*ManagerDrivers, error) {
	drivers, hasMore, err := s.store.ListDriversPage(ctx, s.opts.PageSize)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(drivers))
	for i, d := range drivers {
		ids[i] = d.ID
	}
	orders, err := s.store.ListOrdersByDrivers(ctx, ids)
	if err != nil {
		return nil, err
	}

	active := make(map[int64]*models.Order, len(orders))
	for _, o := range orders {
		if o.State == models.OrderStateCompleted || o.DriverID == nil {
			continue
		}
		if _, ok := active[*o.DriverID]; !ok {
			active[*o.DriverID] = o
		}
	}

	items := make([]DriverWithOrder, len(drivers))
	for i, d := range drivers {
		items[i] = DriverWithOrder{Driver: d, Order: active[d.ID]}
	}
	return &ManagerDrivers{Drivers: drivers, Items: items, HasMore: hasMore}, nil
}

func (s *Service) ManagerDriver(ctx context.Context, id int64) (*DriverWithOrder, error) {
	d, err := s.store.GetDriver(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, errs.NotFound("driver", id)
	}
	o, err := s.store.GetActiveOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return &DriverWithOrder{Driver: d, Order: o}, nil
}

func (s *Service) CustomerOrder(ctx context.Context, id int64) (*CustomerOrder, error) {
	o, err := s.mustOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	out := &CustomerOrder{Order: o}
	if o.DriverID != nil {
		if out.Driver, err = s.store.GetDriver(ctx, *o.DriverID); err != nil {
			return nil, err
		}
	}
	out.Position = customerPosition(o, out.Driver)
	return out, nil
}

// customerPosition is where the customer sees the parcel: with the driver
// once it is on board, at the destination once delivered.
func customerPosition(o *models.Order, d *models.Driver) *orb.Point {
	switch o.State {
	case models.OrderStateAccepted:
		if o.Type == models.OrderTypeDelivery && d != nil {
			return d.Position
		}
	case models.OrderStateDelivering:
		if d != nil {
			return d.Position
		}
	case models.OrderStateDelivered, models.OrderStateCompleted:
		if o.PlannedRouteMeta != nil && len(o.PlannedRouteMeta.Waypoints) > 0 {
			p := o.PlannedRouteMeta.Waypoints[len(o.PlannedRouteMeta.Waypoints)-1].Coordinates
			return &p
		}
	}
	return nil
}

// RouteForDriver hides other drivers' progress. The planned route of an order
// somebody else accepted in the meantime comes back as nil.
func (s *Service) RouteForDriver(ctx context.Context, orderID, driverID int64, kind models.RouteType) (*models.Route, error) {
	o, err := s.mustOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch kind {
	case models.RouteTypeActual, models.RouteTypeArrival, models.RouteTypeRemaining:
		if !o.OwnedBy(driverID) {
			return nil, errs.Forbidden("order %d belongs to another driver", orderID)
		}
	case models.RouteTypePlanned:
		if o.State != models.OrderStateNew && !o.OwnedBy(driverID) {
			return nil, nil
		}
	}
	return s.routes.Route(ctx, orderID, kind)
}

func (s *Service) RouteForManager(ctx context.Context, orderID int64, kind models.RouteType) (*models.Route, error) {
	return s.routes.Route(ctx, orderID, kind)
}

func (s *Service) RouteForCustomer(ctx context.Context, orderID int64, kind models.RouteType, withArrival bool) (*models.Route, error) {
	r, err := s.routes.Route(ctx, orderID, kind)
	if err != nil {
		return nil, err
	}
	return routes.CustomerView(r, withArrival), nil
}
