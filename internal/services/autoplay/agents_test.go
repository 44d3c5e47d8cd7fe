package autoplay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/BearBump/DispatchBox/internal/transport"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

type call struct {
	Method string
	URL    string
	Token  string
	Body   any
}

// scriptedDoer answers requests from a table keyed by "METHOD url" and
// records every call.
type scriptedDoer struct {
	mu      sync.Mutex
	calls   []call
	replies map[string]any
	status  map[string]int
}

func newScriptedDoer() *scriptedDoer {
	return &scriptedDoer{replies: map[string]any{}, status: map[string]int{}}
}

func (d *scriptedDoer) Do(ctx context.Context, method, url string, headers map[string]string, body any) (*transport.Response, error) {
	key := method + " " + url
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call{Method: method, URL: url, Token: strings.TrimPrefix(headers["authorization"], "Bearer "), Body: body})

	status := http.StatusOK
	if s, ok := d.status[key]; ok {
		status = s
	}
	var raw []byte
	if v, ok := d.replies[key]; ok {
		raw, _ = json.Marshal(v)
	}
	return &transport.Response{Status: status, Body: raw}, nil
}

func (d *scriptedDoer) urls(method string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, c := range d.calls {
		if c.Method == method {
			out = append(out, c.URL)
		}
	}
	return out
}

type fixedRand struct {
	f float64
	n int
}

func (r fixedRand) Float64() float64 { return r.f }
func (r fixedRand) Intn(n int) int   { return r.n % n }

// pointsSource emits a fixed list regardless of the route.
type pointsSource []orb.Point

func (s pointsSource) Follow(ctx context.Context, route []orb.Point, emit func(orb.Point) error) error {
	for _, p := range s {
		if err := emit(p); err != nil {
			return err
		}
	}
	return nil
}

func quickConfig() Config {
	cfg := DefaultConfig()
	cfg.DriverWait = 0
	cfg.SettleWait = 0
	cfg.DriveWait = 0
	cfg.OrderWait = 0
	cfg.PollInterval = time.Millisecond
	cfg.DeclineProbability = 0
	return cfg
}

func TestStatusError(t *testing.T) {
	d := newScriptedDoer()
	d.status["POST /api/driver/orders/1/accept"] = http.StatusConflict

	err := NewClient(d, "driver:1").post(context.Background(), "/api/driver/orders/1/accept", nil, nil)
	require.EqualError(t, err, "POST /api/driver/orders/1/accept => 409")
	require.Equal(t, "driver:1", d.calls[0].Token)
}

func TestDriverAgent_ReportsEveryTenthAndNearEnd(t *testing.T) {
	end := orb.Point{37.7, 55.8}
	var pts pointsSource
	for i := 0; i < 24; i++ {
		pts = append(pts, orb.Point{37.6 + float64(i)*0.001, 55.75})
	}
	pts = append(pts, end)

	d := newScriptedDoer()
	sim := New(d, pts, quickConfig())
	a := &driverAgent{sim: sim, id: 1, client: NewClient(d, "driver:1"), rnd: fixedRand{}}

	require.NoError(t, a.drive(context.Background(), 5, []orb.Point{{37.6, 55.75}, end}))

	// the 10th, the 20th and the final position
	require.Len(t, d.calls, 3)
	require.Equal(t, map[string]any{"position": pts[9]}, d.calls[0].Body)
	require.Equal(t, map[string]any{"position": pts[19]}, d.calls[1].Body)
	require.Equal(t, map[string]any{"position": end}, d.calls[2].Body)
	require.Equal(t, "/api/driver/orders/5/track", d.calls[2].URL)
	require.EqualValues(t, 3, sim.Stats().Reports)
}

func TestDriverAgent_SkipsFreshOrders(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := newScriptedDoer()
	d.replies["GET /api/driver/orders/available"] = []*models.Order{
		{ID: 1, CreatedAt: now.Add(-30 * time.Second)},
		{ID: 2, CreatedAt: now.Add(-10 * time.Second), Meta: models.OrderMeta{Autoplay: true}},
		{ID: 3, CreatedAt: now.Add(-20 * time.Second), Meta: models.OrderMeta{Autoplay: true}},
	}
	cfg := quickConfig()
	cfg.AutoplayFreshness = 15 * time.Second
	cfg.ManualFreshness = time.Minute
	sim := New(d, pointsSource{}, cfg)
	sim.now = func() time.Time { return now }
	a := &driverAgent{sim: sim, id: 1, client: NewClient(d, "driver:1"), rnd: fixedRand{}}

	o, err := a.selectOrder(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 3, o.ID)
}

func TestDriverAgent_LostRaceIsNotAnError(t *testing.T) {
	d := newScriptedDoer()
	d.replies["GET /api/driver/orders/available"] = []*models.Order{{ID: 7}}
	d.status["POST /api/driver/orders/7/accept"] = http.StatusConflict
	cfg := quickConfig()
	cfg.ManualFreshness = 0
	sim := New(d, pointsSource{}, cfg)
	a := &driverAgent{sim: sim, id: 1, client: NewClient(d, "driver:1"), rnd: fixedRand{f: 0.5}}

	require.NoError(t, a.runOnce(context.Background()))
	require.EqualValues(t, 1, sim.Stats().LostRaces)
	require.EqualValues(t, 0, sim.Stats().Accepts)
}

func TestDriverAgent_Declines(t *testing.T) {
	d := newScriptedDoer()
	d.replies["GET /api/driver/orders/available"] = []*models.Order{{ID: 7}}
	cfg := quickConfig()
	cfg.ManualFreshness = 0
	cfg.DeclineProbability = 0.1
	sim := New(d, pointsSource{}, cfg)
	a := &driverAgent{sim: sim, id: 1, client: NewClient(d, "driver:1"), rnd: fixedRand{f: 0.05}}

	require.NoError(t, a.runOnce(context.Background()))
	require.Equal(t, []string{"/api/driver/orders/7/decline"}, d.urls(http.MethodPost))
	require.EqualValues(t, 1, sim.Stats().Declines)
}

func TestDriverAgent_FullDelivery(t *testing.T) {
	d := newScriptedDoer()
	d.replies["GET /api/driver/orders/available"] = []*models.Order{{ID: 7}}
	d.replies["GET /api/driver/orders/7/routes/arrival"] = models.Route{Points: []orb.Point{{37.6, 55.7}, {37.61, 55.7}}}
	d.replies["GET /api/driver/orders/7/routes/planned"] = models.Route{Points: []orb.Point{{37.61, 55.7}, {37.62, 55.7}}}
	cfg := quickConfig()
	cfg.ManualFreshness = 0
	sim := New(d, pointsSource{{37.61, 55.7}}, cfg)
	a := &driverAgent{sim: sim, id: 1, client: NewClient(d, "driver:1"), rnd: fixedRand{f: 0.5}}

	require.NoError(t, a.runOnce(context.Background()))
	require.Equal(t, []string{
		"/api/driver/orders/7/accept",
		"/api/driver/orders/7/track",
		"/api/driver/orders/7/start",
		"/api/driver/orders/7/delivered",
	}, d.urls(http.MethodPost))
	require.EqualValues(t, 1, sim.Stats().Deliveries)
}

func TestDriverAgent_NoArrivalRouteStops(t *testing.T) {
	d := newScriptedDoer()
	d.replies["GET /api/driver/orders/available"] = []*models.Order{{ID: 7}}
	cfg := quickConfig()
	cfg.ManualFreshness = 0
	sim := New(d, pointsSource{}, cfg)
	a := &driverAgent{sim: sim, id: 1, client: NewClient(d, "driver:1"), rnd: fixedRand{f: 0.5}}

	require.NoError(t, a.runOnce(context.Background()))
	require.Equal(t, []string{"/api/driver/orders/7/accept"}, d.urls(http.MethodPost))
}

func TestOrderAgent_Checkout(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{37.5, 55.7}, Max: orb.Point{37.7, 55.8}}
	d := newScriptedDoer()
	d.replies["POST /api/user/orders/1/reroute"] = []models.RouteMeta{{Type: models.RouteTypeDriving}, {Type: models.RouteTypeWalking}}
	d.replies["GET /api/user/pickpoints"] = []*models.Pickpoint{{ID: 4}, {ID: 9}}
	sim := New(d, pointsSource{}, quickConfig())

	// Intn picks the order type first: 0 address, 1 delivery, 2 pickpoint
	a := &orderAgent{sim: sim, client: NewClient(d, "client:1"), rnd: fixedRand{f: 0.5, n: 0}}
	fin, err := a.checkout(context.Background(), "/api/user/orders/1", bound)
	require.NoError(t, err)
	require.Equal(t, models.OrderTypeAddress, fin.Type)
	require.True(t, bound.Contains(*fin.Destination))

	a.rnd = fixedRand{n: 1}
	fin, err = a.checkout(context.Background(), "/api/user/orders/1", bound)
	require.NoError(t, err)
	require.Equal(t, finalizeBody{Type: models.OrderTypeDelivery, Selected: models.RouteTypeWalking}, fin)

	a.rnd = fixedRand{n: 2}
	fin, err = a.checkout(context.Background(), "/api/user/orders/1", bound)
	require.NoError(t, err)
	require.Equal(t, finalizeBody{Type: models.OrderTypePickpoint, Pickpoint: 4}, fin)
}
