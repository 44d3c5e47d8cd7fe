package orders

import (
	"context"
	"log/slog"

	"github.com/BearBump/DispatchBox/internal/errs"
	"github.com/BearBump/DispatchBox/internal/geometry"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/BearBump/DispatchBox/internal/storage/sqlitestore"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

type CreateInput struct {
	Description string
	// Meta carries the client-provided flags (autoplay, deliveryType).
	Meta     models.OrderMeta
	Products []models.Product
}

func (s *Service) defaultProducts() []models.Product {
	rate := s.opts.Region.CurrencyRate
	return []models.Product{
		{Title: "Telescope", Description: "Lightweight telescope with a tripod", Price: 175 * rate},
		{Title: "Hobbyhorse", Description: "Very beautiful", Price: 20 * rate},
	}
}

// Create stores a draft order. Without explicit products the default cart is used.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Order, error) {
	products := in.Products
	if len(products) == 0 {
		products = s.defaultProducts()
	}
	var total float64
	for _, p := range products {
		total += p.Price
	}

	meta := in.Meta
	meta.Products = products
	meta.TotalAmount = total
	meta.Surge = nil
	meta.Fulfillment = nil

	id, err := s.store.CreateOrder(ctx, sqlitestore.OrderCreateInput{
		Description: in.Description,
		Meta:        meta,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return nil, err
	}
	s.published(ctx, id, "", models.OrderStateDraft, nil)
	return s.mustOrder(ctx, id)
}

func (s *Service) mustOrder(ctx context.Context, id int64) (*models.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, errs.NotFound("order", id)
	}
	return o, nil
}

// Reroute computes the driving and walking candidates of a draft order.
func (s *Service) Reroute(ctx context.Context, orderID int64, points []orb.Point) ([]models.RouteMeta, error) {
	o, err := s.mustOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.State != models.OrderStateDraft {
		return nil, errs.NotApplied("order %d is %s, only drafts can be rerouted", orderID, o.State)
	}
	return s.routes.Candidates(ctx, orderID, points)
}

type FinalizeInput struct {
	Type models.OrderType
	// Selected is the candidate route of a delivery order.
	Selected    models.RouteType
	PickpointID int64
	Destination *orb.Point
}

// Finalize fixes the type and planned route of a draft and publishes it to
// drivers. The planned route is stored only by the call that wins the draft.
func (s *Service) Finalize(ctx context.Context, orderID int64, in FinalizeInput) (*models.Order, error) {
	o, err := s.mustOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.State != models.OrderStateDraft {
		return nil, errs.NotApplied("order %d is already finalized", orderID)
	}

	var (
		planned     *models.Route
		fulfillment models.Fulfillment
	)
	switch in.Type {
	case models.OrderTypeDelivery:
		planned, err = s.routes.PlanFromCandidate(ctx, orderID, in.Selected)
		if err != nil {
			return nil, err
		}
		fulfillment = models.DeliveryFulfillment{}

	case models.OrderTypePickpoint:
		pp, err := s.store.GetPickpoint(ctx, in.PickpointID)
		if err != nil {
			return nil, err
		}
		if pp == nil {
			return nil, errs.NotFound("pickpoint", in.PickpointID)
		}
		wh, err := s.nearestWarehouse(ctx, pp.Position)
		if err != nil {
			return nil, err
		}
		waypoints := s.routes.Waypoints(ctx, []orb.Point{wh.Position, pp.Position})
		if planned, err = s.routes.PlanNew(ctx, orderID, waypoints); err != nil {
			return nil, err
		}
		fulfillment = models.PickpointFulfillment{WarehouseID: wh.ID, PickpointID: pp.ID}

	case models.OrderTypeAddress:
		if in.Destination == nil {
			return nil, errs.Invalid("destination is required")
		}
		wh, err := s.nearestWarehouse(ctx, *in.Destination)
		if err != nil {
			return nil, err
		}
		waypoints := s.routes.Waypoints(ctx, []orb.Point{wh.Position, *in.Destination})
		if planned, err = s.routes.PlanNew(ctx, orderID, waypoints); err != nil {
			return nil, err
		}
		fulfillment = models.AddressFulfillment{WarehouseID: wh.ID, Destination: *in.Destination}

	default:
		return nil, errs.Invalid("unknown order type %q", in.Type)
	}

	meta := o.Meta
	meta.Fulfillment = fulfillment
	surge := 1 + 0.6*(geometry.Seed(float64(orderID))()-0.5)
	meta.Surge = &surge

	ok, err := s.store.FinalizeOrder(ctx, orderID, in.Type, planned, meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.NotApplied("order %d is already finalized", orderID)
	}
	s.published(ctx, orderID, models.OrderStateDraft, models.OrderStateNew, nil)
	return s.mustOrder(ctx, orderID)
}

// Accept assigns a new order to the driver. Of several concurrent callers
// exactly one succeeds; the rest get errs.ErrNotApplied.
func (s *Service) Accept(ctx context.Context, orderID, driverID int64) error {
	d, err := s.store.GetDriver(ctx, driverID)
	if err != nil {
		return err
	}
	if d == nil {
		return errs.NotFound("driver", driverID)
	}
	if d.Position == nil {
		return errs.Invalid("driver %d has not reported a position", driverID)
	}

	ok, err := s.store.AcceptOrder(ctx, orderID, driverID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotApplied("order %d is not available", orderID)
	}
	s.published(ctx, orderID, models.OrderStateNew, models.OrderStateAccepted, &driverID)

	o, err := s.mustOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.routes.StartDelivery(ctx, o, *d.Position); err != nil {
		slog.Error("accepted order has no delivery routes", "order_id", orderID, "driver_id", driverID, "error", err.Error())
		s.release(ctx, orderID, driverID)
		return errors.Wrapf(err, "start delivery of order %d", orderID)
	}
	return nil
}

// release returns an order whose delivery could not start to the pool.
func (s *Service) release(ctx context.Context, orderID, driverID int64) {
	ok, err := s.store.ReleaseOrder(ctx, orderID, driverID)
	if err != nil {
		slog.Error("release order failed", "order_id", orderID, "driver_id", driverID, "error", err.Error())
		return
	}
	if ok {
		s.published(ctx, orderID, models.OrderStateAccepted, models.OrderStateNew, nil)
	}
}

func (s *Service) Decline(ctx context.Context, orderID, driverID int64) error {
	if _, err := s.mustOrder(ctx, orderID); err != nil {
		return err
	}
	d, err := s.store.GetDriver(ctx, driverID)
	if err != nil {
		return err
	}
	if d == nil {
		return errs.NotFound("driver", driverID)
	}
	return s.store.DeclineOrder(ctx, orderID, driverID)
}

func (s *Service) transition(ctx context.Context, orderID int64, from, to models.OrderState, driverID *int64) error {
	ok, err := s.store.TransitionOrder(ctx, orderID, from, to, driverID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotApplied("order %d cannot move from %s to %s", orderID, from, to)
	}
	s.published(ctx, orderID, from, to, driverID)
	return nil
}

func (s *Service) Start(ctx context.Context, orderID, driverID int64) error {
	return s.transition(ctx, orderID, models.OrderStateAccepted, models.OrderStateDelivering, &driverID)
}

func (s *Service) Delivered(ctx context.Context, orderID, driverID int64) error {
	return s.transition(ctx, orderID, models.OrderStateDelivering, models.OrderStateDelivered, &driverID)
}

func (s *Service) Confirm(ctx context.Context, orderID int64) (*models.Order, error) {
	if err := s.transition(ctx, orderID, models.OrderStateDelivered, models.OrderStateCompleted, nil); err != nil {
		return nil, err
	}
	return s.mustOrder(ctx, orderID)
}

// Track records a position report of the driver delivering orderID and
// advances the order's actual and remaining routes. It reports whether the
// position was on the remaining route.
func (s *Service) Track(ctx context.Context, orderID, driverID int64, pos orb.Point) (bool, error) {
	if err := s.UpdatePosition(ctx, driverID, pos); err != nil {
		return false, err
	}

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if o == nil || o.State == models.OrderStateCompleted || !o.OwnedBy(driverID) {
		return false, errs.NotApplied("order %d is not delivered by driver %d", orderID, driverID)
	}

	if _, err := s.store.AppendTrack(ctx, models.Track{
		TS:       s.now(),
		DriverID: driverID,
		OrderID:  orderID,
		Position: pos,
		Geohash:  geometry.GeohashCell(pos),
	}); err != nil {
		return false, err
	}
	return s.routes.ApplyPosition(ctx, orderID, pos)
}

// DriverReroute replaces the driven route of an order in progress.
func (s *Service) DriverReroute(ctx context.Context, orderID, driverID int64, points []orb.Point) (*models.RouterResult, error) {
	o, err := s.mustOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.OwnedBy(driverID) || (o.State != models.OrderStateAccepted && o.State != models.OrderStateDelivering) {
		return nil, errs.NotApplied("order %d is not in progress for driver %d", orderID, driverID)
	}
	return s.routes.ReplaceActual(ctx, orderID, points)
}
