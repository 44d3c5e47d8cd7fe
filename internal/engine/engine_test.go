package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/DispatchBox/internal/broker/messages"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/BearBump/DispatchBox/internal/region"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

var dbSeq atomic.Int64

func start(t *testing.T) *Engine {
	t.Helper()
	e, err := New(context.Background(), Options{
		DSN:        fmt.Sprintf("file:engine_%d?mode=memory&cache=shared", dbSeq.Add(1)),
		Warehouses: 3,
		Pickpoints: 5,
		Seed:       7,
		Timeout:    time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		e.Close()
	})
	return e
}

func call(t *testing.T, e *Engine, token, method, url string, in, out any) int {
	t.Helper()
	resp, err := e.Bus.Do(context.Background(), method, url, map[string]string{"authorization": "Bearer " + token}, in)
	require.NoError(t, err)
	if out != nil && resp.Status == 200 {
		require.NoError(t, resp.Decode(out))
	}
	return resp.Status
}

func TestEngine_SeedsAndServes(t *testing.T) {
	e := start(t)

	var settings region.Settings
	require.Equal(t, 200, call(t, e, "client:1", "GET", "/api/config", nil, &settings))
	require.Equal(t, region.Moscow.Zoom, settings.Zoom)

	var pickpoints []*models.Pickpoint
	require.Equal(t, 200, call(t, e, "client:1", "GET", "/api/user/pickpoints", nil, &pickpoints))
	require.Len(t, pickpoints, 5)
	for _, p := range pickpoints {
		require.True(t, region.Moscow.BBox.Contains(p.Position))
	}

	require.Equal(t, 404, call(t, e, "client:1", "GET", "/api/nowhere", nil, nil))
}

func TestEngine_SameSeedSamePickpoints(t *testing.T) {
	a, b := start(t), start(t)

	var pa, pb []*models.Pickpoint
	call(t, a, "client:1", "GET", "/api/user/pickpoints", nil, &pa)
	call(t, b, "client:1", "GET", "/api/user/pickpoints", nil, &pb)
	require.Equal(t, pa, pb)
}

func TestEngine_ApplyPosition(t *testing.T) {
	e := start(t)
	ctx := context.Background()

	// unknown driver and order: dropped, not fatal for the consumer
	require.NoError(t, e.ApplyPosition(ctx, messages.DriverPositionReported{DriverID: 9, OrderID: 9, Position: orb.Point{37.6, 55.7}}))

	var o models.Order
	require.Equal(t, 200, call(t, e, "client:1", "POST", "/api/user/orders", map[string]any{"description": "parcel"}, &o))
	require.Equal(t, 200, call(t, e, "client:1", "POST", fmt.Sprintf("/api/user/orders/%d/finalize", o.ID),
		map[string]any{"type": "address", "destination": orb.Point{37.65, 55.76}}, nil))

	var d models.Driver
	require.Equal(t, 200, call(t, e, "driver:0", "POST", "/api/driver/self", map[string]any{"name": "Ann"}, &d))
	token := fmt.Sprintf("driver:%d", d.ID)
	require.Equal(t, 200, call(t, e, token, "POST", "/api/driver/track", map[string]any{"position": orb.Point{37.60, 55.75}}, nil))

	// not accepted yet
	require.NoError(t, e.ApplyPosition(ctx, messages.DriverPositionReported{DriverID: d.ID, OrderID: o.ID, Position: orb.Point{37.6, 55.75}}))
	tracks, err := e.Store.ListTracks(ctx, o.ID)
	require.NoError(t, err)
	require.Empty(t, tracks)

	require.Equal(t, 200, call(t, e, token, "POST", fmt.Sprintf("/api/driver/orders/%d/accept", o.ID), nil, nil))
	require.NoError(t, e.ApplyPosition(ctx, messages.DriverPositionReported{DriverID: d.ID, OrderID: o.ID, Position: orb.Point{37.601, 55.75}}))
	tracks, err = e.Store.ListTracks(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	require.Equal(t, d.ID, tracks[0].DriverID)
}
