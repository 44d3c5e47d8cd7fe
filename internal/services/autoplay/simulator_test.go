package autoplay

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/DispatchBox/internal/api/dispatchapi"
	"github.com/BearBump/DispatchBox/internal/integrations/geoapi/fake"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/BearBump/DispatchBox/internal/region"
	"github.com/BearBump/DispatchBox/internal/services/orders"
	"github.com/BearBump/DispatchBox/internal/services/routes"
	"github.com/BearBump/DispatchBox/internal/storage/sqlitestore"
	"github.com/BearBump/DispatchBox/internal/transport"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

var dbSeq atomic.Int64

// startDispatcher serves a complete dispatcher over an in-process bus.
func startDispatcher(t *testing.T) (*transport.Bus, *dispatchapi.Router) {
	t.Helper()
	st, err := sqlitestore.New(fmt.Sprintf("file:autoplay_%d?mode=memory&cache=shared", dbSeq.Add(1)))
	require.NoError(t, err)
	t.Cleanup(st.Close)

	geo := fake.New(region.Moscow.BBox)
	svc := orders.New(st, routes.New(st, geo, ""), geo, nil, orders.Options{
		Region:     region.Moscow,
		Warehouses: []models.Warehouse{{ID: 1, Position: orb.Point{37.60, 55.75}}},
	})
	_, err = st.CreatePickpoint(context.Background(), sqlitestore.PickpointCreateInput{
		Description: "by the fountain", Position: orb.Point{37.62, 55.76},
	})
	require.NoError(t, err)

	router := dispatchapi.New(svc)
	bus := transport.New(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.Serve(ctx, router.ServeMessage)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		bus.Close()
	})
	return bus, router
}

func TestSimulator_Run(t *testing.T) {
	bus, router := startDispatcher(t)

	cfg := quickConfig()
	cfg.AutoplayFreshness = 0
	cfg.ManualFreshness = 0
	cfg.OrderAgents = 2
	sim := New(bus, NewRouteWalker(100000, time.Millisecond), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- sim.Run(ctx) }()

	require.Eventually(t, func() bool {
		return sim.Stats().OrdersCompleted >= 2
	}, 20*time.Second, 10*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-runErr, context.Canceled)

	st := sim.Stats()
	require.GreaterOrEqual(t, st.OrdersCreated, st.OrdersCompleted)
	require.GreaterOrEqual(t, st.Deliveries, int64(2))
	require.GreaterOrEqual(t, st.Accepts, st.Deliveries)
	require.Positive(t, st.Reports)

	status, raw := router.Serve(context.Background(), "GET", "/api/manager/drivers", map[string]string{"authorization": "Bearer manager:1"}, nil)
	require.Equal(t, 200, status)
	require.Contains(t, string(raw), "Diogenes of Sinope")
	require.Contains(t, string(raw), `"vacation"`)
}

func TestSimulator_RunFailsWithoutDispatcher(t *testing.T) {
	bus := transport.New(time.Second)
	bus.Close()

	err := New(bus, NewRouteWalker(0, 0), quickConfig()).Run(context.Background())
	require.ErrorIs(t, err, transport.ErrClosed)
}
