package autoplay

import (
	"context"
	"fmt"
	"net/http"

	"github.com/BearBump/DispatchBox/internal/geometry"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/BearBump/DispatchBox/internal/region"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

type driverAgent struct {
	sim    *Simulator
	id     int64
	client *Client
	rnd    Rand
}

// runOnce takes one order through to delivery, or gives up on it early when
// it declines or loses the race for it.
func (a *driverAgent) runOnce(ctx context.Context) error {
	o, err := a.selectOrder(ctx)
	if err != nil {
		return err
	}
	base := fmt.Sprintf("/api/driver/orders/%d", o.ID)

	if a.rnd.Float64() < a.sim.cfg.DeclineProbability {
		if err := a.client.post(ctx, base+"/decline", nil, nil); err != nil {
			return err
		}
		a.sim.declines.Add(1)
		return nil
	}
	if err := a.client.post(ctx, base+"/accept", nil, nil); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status == http.StatusConflict {
			a.sim.lostRaces.Add(1)
			return nil
		}
		return err
	}
	a.sim.accepts.Add(1)

	if err := sleep(ctx, randDuration(a.rnd, a.sim.cfg.SettleWait)); err != nil {
		return err
	}
	var arrival *models.Route
	if err := a.client.get(ctx, base+"/routes/arrival", &arrival); err != nil {
		return err
	}
	if arrival == nil {
		return nil
	}
	if err := a.drive(ctx, o.ID, arrival.Points); err != nil {
		return err
	}
	if err := a.client.post(ctx, base+"/start", nil, nil); err != nil {
		return err
	}

	var planned *models.Route
	if err := a.client.get(ctx, base+"/routes/planned", &planned); err != nil {
		return err
	}
	if planned != nil {
		if err := a.drive(ctx, o.ID, planned.Points); err != nil {
			return err
		}
	}
	if err := a.client.post(ctx, base+"/delivered", nil, nil); err != nil {
		return err
	}
	a.sim.deliveries.Add(1)
	return nil
}

// selectOrder polls the available list until an order old enough to take
// shows up, then picks one at random.
func (a *driverAgent) selectOrder(ctx context.Context) (*models.Order, error) {
	for {
		if err := sleep(ctx, randDuration(a.rnd, a.sim.cfg.DriverWait)); err != nil {
			return nil, err
		}
		var list []*models.Order
		if err := a.client.get(ctx, "/api/driver/orders/available", &list); err != nil {
			return nil, err
		}
		now := a.sim.now()
		ripe := list[:0]
		for _, o := range list {
			freshness := a.sim.cfg.ManualFreshness
			if o.Meta.Autoplay {
				freshness = a.sim.cfg.AutoplayFreshness
			}
			if now.Sub(o.CreatedAt) >= freshness {
				ripe = append(ripe, o)
			}
		}
		if len(ripe) > 0 {
			return ripe[a.rnd.Intn(len(ripe))], nil
		}
	}
}

// drive follows route and reports every ReportEvery-th position, plus every
// position close to the end of the route.
func (a *driverAgent) drive(ctx context.Context, orderID int64, route []orb.Point) error {
	if len(route) == 0 {
		return nil
	}
	if err := sleep(ctx, randDuration(a.rnd, a.sim.cfg.DriveWait)); err != nil {
		return err
	}
	end := route[len(route)-1]
	url := fmt.Sprintf("/api/driver/orders/%d/track", orderID)
	i := 1
	return a.sim.positions.Follow(ctx, route, func(p orb.Point) error {
		n := i
		i++
		if n%a.sim.cfg.ReportEvery != 0 && geometry.DistanceMeters(p, end) >= geometry.NearMeters {
			return nil
		}
		if err := a.client.post(ctx, url, map[string]any{"position": p}, nil); err != nil {
			return err
		}
		a.sim.reports.Add(1)
		return nil
	})
}

func regionBound(s region.Settings) orb.Bound {
	return orb.Bound{Min: s.BBox[0], Max: s.BBox[0]}.Extend(s.BBox[1])
}

func randomPoint(b orb.Bound, rnd Rand) orb.Point {
	return geometry.RandomPointIn(b, rnd.Float64)
}
