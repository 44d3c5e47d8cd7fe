package autoplay

import (
	"context"
	"fmt"

	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/BearBump/DispatchBox/internal/region"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

var orderTypes = []models.OrderType{models.OrderTypeAddress, models.OrderTypeDelivery, models.OrderTypePickpoint}

type orderAgent struct {
	sim    *Simulator
	client *Client
	rnd    Rand
}

type finalizeBody struct {
	Type        models.OrderType `json:"type"`
	Selected    models.RouteType `json:"selected,omitempty"`
	Pickpoint   int64            `json:"pickpoint,omitempty"`
	Destination *orb.Point       `json:"destination,omitempty"`
}

// runOnce places one order, waits for its delivery and confirms it.
func (a *orderAgent) runOnce(ctx context.Context) error {
	var settings region.Settings
	if err := a.client.get(ctx, "/api/config", &settings); err != nil {
		return err
	}
	bound := regionBound(settings)

	var o models.Order
	err := a.client.post(ctx, "/api/user/orders", map[string]any{
		"description": "my order",
		"meta":        map[string]any{"autoplay": true},
	}, &o)
	if err != nil {
		return err
	}
	a.sim.ordersCreated.Add(1)
	base := fmt.Sprintf("/api/user/orders/%d", o.ID)

	fin, err := a.checkout(ctx, base, bound)
	if err != nil {
		return err
	}
	if err := a.client.post(ctx, base+"/finalize", fin, nil); err != nil {
		return err
	}

	for {
		if err := sleep(ctx, a.sim.cfg.PollInterval); err != nil {
			return err
		}
		var cur models.Order
		if err := a.client.get(ctx, base, &cur); err != nil {
			return err
		}
		if cur.State == models.OrderStateDelivered {
			break
		}
	}
	if err := a.client.post(ctx, base+"/confirm", nil, nil); err != nil {
		return err
	}
	a.sim.ordersCompleted.Add(1)
	return nil
}

// checkout picks a random fulfillment and prepares whatever it needs.
func (a *orderAgent) checkout(ctx context.Context, base string, bound orb.Bound) (finalizeBody, error) {
	kind := orderTypes[a.rnd.Intn(len(orderTypes))]
	switch kind {
	case models.OrderTypeDelivery:
		var metas []models.RouteMeta
		err := a.client.post(ctx, base+"/reroute", map[string]any{
			"waypoints": []orb.Point{randomPoint(bound, a.rnd), randomPoint(bound, a.rnd)},
		}, &metas)
		if err != nil {
			return finalizeBody{}, err
		}
		if len(metas) == 0 {
			return finalizeBody{}, errors.Errorf("no route candidates for %s", base)
		}
		return finalizeBody{Type: kind, Selected: metas[a.rnd.Intn(len(metas))].Type}, nil
	case models.OrderTypePickpoint:
		var pickpoints []*models.Pickpoint
		if err := a.client.get(ctx, "/api/user/pickpoints", &pickpoints); err != nil {
			return finalizeBody{}, err
		}
		if len(pickpoints) > 0 {
			return finalizeBody{Type: kind, Pickpoint: pickpoints[a.rnd.Intn(len(pickpoints))].ID}, nil
		}
	}
	dest := randomPoint(bound, a.rnd)
	return finalizeBody{Type: models.OrderTypeAddress, Destination: &dest}, nil
}
