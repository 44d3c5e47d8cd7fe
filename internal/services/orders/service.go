// Package orders runs the order lifecycle draft → new → accepted → delivering
// → delivered → completed and serves the read models of the three roles.
//
// Every transition is a single conditional statement in the store; a transition
// whose guard does not match fails with errs.ErrNotApplied.
package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/DispatchBox/internal/broker/messages"
	"github.com/BearBump/DispatchBox/internal/integrations/geoapi"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/BearBump/DispatchBox/internal/region"
	"github.com/BearBump/DispatchBox/internal/storage/sqlitestore"
	"github.com/paulmach/orb"
)

type Store interface {
	CreateOrder(ctx context.Context, in sqlitestore.OrderCreateInput) (int64, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	ListAvailableOrders(ctx context.Context, driverID int64) ([]*models.Order, error)
	ListDriverHistory(ctx context.Context, driverID int64) ([]*models.Order, error)
	ListOrdersPage(ctx context.Context, limit int) ([]*models.Order, bool, error)
	ListOrdersByDrivers(ctx context.Context, driverIDs []int64) ([]*models.Order, error)
	GetActiveOrder(ctx context.Context, driverID int64) (*models.Order, error)
	TransitionOrder(ctx context.Context, id int64, from, to models.OrderState, driverID *int64) (bool, error)
	AcceptOrder(ctx context.Context, id, driverID int64) (bool, error)
	ReleaseOrder(ctx context.Context, id, driverID int64) (bool, error)
	FinalizeOrder(ctx context.Context, id int64, typ models.OrderType, planned *models.Route, meta models.OrderMeta) (bool, error)
	DeclineOrder(ctx context.Context, orderID, driverID int64) error

	CreateDriver(ctx context.Context, in models.DriverCreateInput) (int64, error)
	GetDriver(ctx context.Context, id int64) (*models.Driver, error)
	ListDriversPage(ctx context.Context, limit int) ([]*models.Driver, bool, error)
	GetDriversByIDs(ctx context.Context, ids []int64) ([]*models.Driver, error)
	UpdateDriverPosition(ctx context.Context, id int64, p orb.Point) (bool, error)

	GetPickpoint(ctx context.Context, id int64) (*models.Pickpoint, error)
	ListPickpoints(ctx context.Context) ([]*models.Pickpoint, error)
	ListPickpointsInBound(ctx context.Context, b orb.Bound) ([]*models.Pickpoint, error)

	AppendTrack(ctx context.Context, t models.Track) (int64, error)
}

type RouteManager interface {
	Candidates(ctx context.Context, orderID int64, points []orb.Point) ([]models.RouteMeta, error)
	PlanFromCandidate(ctx context.Context, orderID int64, kind models.RouteType) (*models.Route, error)
	PlanNew(ctx context.Context, orderID int64, waypoints []models.Waypoint) (*models.Route, error)
	StartDelivery(ctx context.Context, order *models.Order, driverPos orb.Point) error
	ApplyPosition(ctx context.Context, orderID int64, pos orb.Point) (bool, error)
	ReplaceActual(ctx context.Context, orderID int64, points []orb.Point) (*models.RouterResult, error)
	Route(ctx context.Context, orderID int64, kind models.RouteType) (*models.Route, error)
	Waypoints(ctx context.Context, points []orb.Point) []models.Waypoint
	Build(ctx context.Context, points []orb.Point, mode models.RouteMode) (*models.RouterResult, error)
}

type Events interface {
	OrderStateChanged(ctx context.Context, ev messages.OrderStateChanged) error
}

// LogEvents is the Events sink used when no broker is configured.
type LogEvents struct{}

func (LogEvents) OrderStateChanged(ctx context.Context, ev messages.OrderStateChanged) error {
	slog.Debug("order state changed", "order_id", ev.OrderID, "from", ev.From, "to", ev.To, "event_id", ev.EventID)
	return nil
}

type Options struct {
	Region     region.Region
	Warehouses []models.Warehouse
	Language   string
	// PageSize bounds the manager listings.
	PageSize int
}

type Service struct {
	store  Store
	routes RouteManager
	geo    geoapi.Client
	events Events
	opts   Options
	now    func() time.Time
}

func New(store Store, routes RouteManager, geo geoapi.Client, events Events, opts Options) *Service {
	if events == nil {
		events = LogEvents{}
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.Region.CurrencyRate == 0 {
		opts.Region.CurrencyRate = 1
	}
	return &Service{store: store, routes: routes, geo: geo, events: events, opts: opts, now: time.Now}
}

// Settings is the body of GET /api/config.
func (s *Service) Settings() region.Settings {
	return s.opts.Region.Settings()
}

// published reports a transition that already happened; a broker failure is
// logged and does not undo it.
func (s *Service) published(ctx context.Context, orderID int64, from, to models.OrderState, driverID *int64) {
	ev := messages.NewOrderStateChanged(orderID, string(from), string(to), driverID, s.now())
	if err := s.events.OrderStateChanged(ctx, ev); err != nil {
		slog.Error("publish order event failed", "order_id", orderID, "to", to, "error", err.Error())
	}
}
