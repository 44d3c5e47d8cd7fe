// Package engine assembles the dispatcher: store, seed data, providers,
// services, the request router and the bus in front of it.
package engine

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/BearBump/DispatchBox/internal/api/dispatchapi"
	"github.com/BearBump/DispatchBox/internal/broker/messages"
	"github.com/BearBump/DispatchBox/internal/errs"
	"github.com/BearBump/DispatchBox/internal/integrations/geoapi"
	"github.com/BearBump/DispatchBox/internal/integrations/geoapi/fake"
	"github.com/BearBump/DispatchBox/internal/region"
	"github.com/BearBump/DispatchBox/internal/services/orders"
	"github.com/BearBump/DispatchBox/internal/services/routes"
	"github.com/BearBump/DispatchBox/internal/storage/sqlitestore"
	"github.com/BearBump/DispatchBox/internal/transport"
	"github.com/pkg/errors"
)

type Options struct {
	DSN    string
	Region region.Region

	Warehouses int
	Pickpoints int
	// Seed makes the generated warehouses and pickpoints reproducible; zero
	// picks one from the clock.
	Seed int64

	Language string
	PageSize int
	Timeout  time.Duration

	// Geo defaults to the offline fake provider.
	Geo geoapi.Client
	// Events defaults to logging.
	Events orders.Events
}

type Engine struct {
	Store  *sqlitestore.Storage
	Orders *orders.Service
	Router *dispatchapi.Router
	Bus    *transport.Bus
}

func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Region.BBox.IsZero() {
		opts.Region = region.Moscow
	}
	if opts.Warehouses <= 0 {
		opts.Warehouses = region.DefaultWarehouses
	}
	if opts.Pickpoints < 0 {
		opts.Pickpoints = 0
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.Geo == nil {
		opts.Geo = fake.New(opts.Region.BBox)
	}

	st, err := sqlitestore.New(opts.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}

	rnd := rand.New(rand.NewSource(opts.Seed))
	warehouses := opts.Region.Warehouses(opts.Warehouses, rnd.Float64)
	if err := opts.Region.SeedPickpoints(ctx, st, opts.Pickpoints, rnd.Float64); err != nil {
		st.Close()
		return nil, err
	}

	svc := orders.New(st, routes.New(st, opts.Geo, opts.Language), opts.Geo, opts.Events, orders.Options{
		Region:     opts.Region,
		Warehouses: warehouses,
		Language:   opts.Language,
		PageSize:   opts.PageSize,
	})
	slog.Info("engine ready", "warehouses", len(warehouses), "pickpoints", opts.Pickpoints)

	return &Engine{
		Store:  st,
		Orders: svc,
		Router: dispatchapi.New(svc),
		Bus:    transport.New(opts.Timeout),
	}, nil
}

// Serve answers bus requests until ctx is done.
func (e *Engine) Serve(ctx context.Context) error {
	return e.Bus.Serve(ctx, e.Router.ServeMessage)
}

func (e *Engine) Close() {
	e.Bus.Close()
	e.Store.Close()
}

// ApplyPosition ingests a position report from the broker the same way the
// track endpoint does. Reports the lifecycle rejects are dropped.
func (e *Engine) ApplyPosition(ctx context.Context, m messages.DriverPositionReported) error {
	_, err := e.Orders.Track(ctx, m.OrderID, m.DriverID, m.Position)
	if err == nil {
		return nil
	}
	switch errs.KindOf(err) {
	case errs.ErrNotApplied, errs.ErrNotFound, errs.ErrInvalid:
		slog.Warn("position dropped", "order_id", m.OrderID, "driver_id", m.DriverID, "error", err.Error())
		return nil
	}
	return err
}
