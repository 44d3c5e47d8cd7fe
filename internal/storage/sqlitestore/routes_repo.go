package sqlitestore

import (
	"context"
	"database/sql"

	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// GetRoute returns nil without an error when the order has no route of that type.
func (s *Storage) GetRoute(ctx context.Context, orderID int64, typ models.RouteType) (*models.Route, error) {
	return getRoute(ctx, s.db, orderID, typ)
}

func getRoute(ctx context.Context, db execer, orderID int64, typ models.RouteType) (*models.Route, error) {
	var points, meta sql.NullString
	err := db.QueryRowContext(ctx, `
SELECT points, meta FROM routes WHERE order_id = ? AND type = ?
`, orderID, typ).Scan(&points, &meta)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select route")
	}

	r := &models.Route{Type: typ, OrderID: orderID, Points: []orb.Point{}}
	if err := fromJSON(points, &r.Points); err != nil {
		return nil, err
	}
	if err := fromJSON(meta, &r.Meta); err != nil {
		return nil, err
	}
	r.Meta.Type = typ
	if r.Meta.Waypoints == nil {
		r.Meta.Waypoints = []models.Waypoint{}
	}
	return r, nil
}

func (s *Storage) UpsertRoute(ctx context.Context, r *models.Route) error {
	return upsertRoute(ctx, s.db, r)
}

// ReplaceDraftRoutes drops every route of a draft order and stores routes
// instead. It reports false and changes nothing when the order is not a draft.
func (s *Storage) ReplaceDraftRoutes(ctx context.Context, orderID int64, routes []*models.Route) (bool, error) {
	var replaced bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var state models.OrderState
		err := tx.QueryRowContext(ctx, `SELECT state FROM orders WHERE id = ?`, orderID).Scan(&state)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "select order state")
		}
		if state != models.OrderStateDraft {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM routes WHERE order_id = ?`, orderID); err != nil {
			return errors.Wrap(err, "delete routes")
		}
		for _, r := range routes {
			if r.OrderID != orderID {
				return errors.Errorf("route %s belongs to order %d, not %d", r.Type, r.OrderID, orderID)
			}
			if err := upsertRoute(ctx, tx, r); err != nil {
				return err
			}
		}
		replaced = true
		return nil
	})
	return replaced, err
}

// SaveRoutes upserts several routes of one order in a single transaction.
func (s *Storage) SaveRoutes(ctx context.Context, routes ...*models.Route) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range routes {
			if err := upsertRoute(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// SpliceFunc gets the current actual and remaining routes of an order (nil
// when missing) and returns their replacements. Returning nil routes leaves
// both untouched.
type SpliceFunc func(actual, remaining *models.Route) (*models.Route, *models.Route, error)

// SpliceRoutes reads actual and remaining, calls fn and stores its result in
// one transaction, so concurrent splices of an order see each other's writes.
func (s *Storage) SpliceRoutes(ctx context.Context, orderID int64, fn SpliceFunc) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		actual, err := getRoute(ctx, tx, orderID, models.RouteTypeActual)
		if err != nil {
			return err
		}
		remaining, err := getRoute(ctx, tx, orderID, models.RouteTypeRemaining)
		if err != nil {
			return err
		}

		nextActual, nextRemaining, err := fn(actual, remaining)
		if err != nil {
			return err
		}
		for _, r := range []*models.Route{nextActual, nextRemaining} {
			if r == nil {
				continue
			}
			if r.OrderID != orderID {
				return errors.Errorf("route %s belongs to order %d, not %d", r.Type, r.OrderID, orderID)
			}
			if err := upsertRoute(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Storage) UpdateRoutePoints(ctx context.Context, orderID int64, typ models.RouteType, points []orb.Point) (bool, error) {
	raw, err := toJSON(points)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE routes SET points = ? WHERE order_id = ? AND type = ?`, raw, orderID, typ)
	if err != nil {
		return false, errors.Wrap(err, "update route points")
	}
	return affected(res)
}

func upsertRoute(ctx context.Context, db execer, r *models.Route) error {
	points := r.Points
	if points == nil {
		points = []orb.Point{}
	}
	raw, err := toJSON(points)
	if err != nil {
		return err
	}
	meta := r.Meta
	meta.Type = r.Type
	m, err := toJSON(meta)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `
INSERT INTO routes (order_id, type, points, meta)
VALUES (?, ?, ?, ?)
ON CONFLICT (order_id, type) DO UPDATE SET points = excluded.points, meta = excluded.meta
`, r.OrderID, r.Type, raw, m); err != nil {
		return errors.Wrapf(err, "upsert %s route", r.Type)
	}
	return nil
}
