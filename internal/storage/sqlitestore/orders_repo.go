package sqlitestore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/pkg/errors"
)

const selectOrders = `
SELECT
  o.id, o.state, o.type, o.description, o.meta, o.waypoints, o.driver_id, o.created_at,
  p.meta, a.meta
FROM orders o
LEFT JOIN routes p ON p.order_id = o.id AND p.type = 'planned'
LEFT JOIN routes a ON a.order_id = o.id AND a.type = 'actual'
`

type OrderCreateInput struct {
	Description string
	Meta        models.OrderMeta
	CreatedAt   time.Time
}

func (s *Storage) CreateOrder(ctx context.Context, in OrderCreateInput) (int64, error) {
	meta, err := toJSON(in.Meta)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO orders (state, description, meta, created_at)
VALUES (?, ?, ?, ?)
`, models.OrderStateDraft, in.Description, meta, in.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, errors.Wrap(err, "insert order")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "last insert id")
	}
	return id, nil
}

// GetOrder returns nil without an error when the order does not exist.
func (s *Storage) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	orders, err := s.queryOrders(ctx, selectOrders+`WHERE o.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return orders[0], nil
}

// ListAvailableOrders returns new orders with a planned route that driverID has not declined.
func (s *Storage) ListAvailableOrders(ctx context.Context, driverID int64) ([]*models.Order, error) {
	return s.queryOrders(ctx, selectOrders+`
LEFT JOIN drivers_declined_orders d ON d.driver_id = ? AND d.order_id = o.id
WHERE o.state = ? AND p.order_id IS NOT NULL AND d.order_id IS NULL
ORDER BY o.id ASC
`, driverID, models.OrderStateNew)
}

func (s *Storage) ListDriverHistory(ctx context.Context, driverID int64) ([]*models.Order, error) {
	return s.queryOrders(ctx, selectOrders+`
WHERE o.driver_id = ? AND o.state IN (?, ?) AND p.order_id IS NOT NULL
ORDER BY o.id ASC
`, driverID, models.OrderStateDelivered, models.OrderStateCompleted)
}

// ListOrdersPage returns up to limit non-draft orders, newest first.
func (s *Storage) ListOrdersPage(ctx context.Context, limit int) ([]*models.Order, bool, error) {
	orders, err := s.queryOrders(ctx, selectOrders+`
WHERE o.state != ?
ORDER BY o.id DESC
LIMIT ?
`, models.OrderStateDraft, limit+1)
	if err != nil {
		return nil, false, err
	}
	if len(orders) > limit {
		return orders[:limit], true, nil
	}
	return orders, false, nil
}

func (s *Storage) ListOrdersByDrivers(ctx context.Context, driverIDs []int64) ([]*models.Order, error) {
	if len(driverIDs) == 0 {
		return []*models.Order{}, nil
	}
	ids, err := toJSON(driverIDs)
	if err != nil {
		return nil, err
	}
	return s.queryOrders(ctx, selectOrders+`
WHERE o.driver_id IN (SELECT value FROM json_each(?))
ORDER BY o.id ASC
`, ids)
}

// GetActiveOrder returns the driver's order that is not completed yet, if any.
func (s *Storage) GetActiveOrder(ctx context.Context, driverID int64) (*models.Order, error) {
	orders, err := s.queryOrders(ctx, selectOrders+`
WHERE o.driver_id = ? AND o.state != ?
ORDER BY o.id ASC
LIMIT 1
`, driverID, models.OrderStateCompleted)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return orders[0], nil
}

// TransitionOrder moves the order from one state to another. When driverID is
// set the order must also belong to that driver. It reports whether the row matched.
func (s *Storage) TransitionOrder(ctx context.Context, id int64, from, to models.OrderState, driverID *int64) (bool, error) {
	q := `UPDATE orders SET state = ? WHERE id = ? AND state = ?`
	args := []any{to, id, from}
	if driverID != nil {
		q += ` AND driver_id = ?`
		args = append(args, *driverID)
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, errors.Wrap(err, "transition order")
	}
	return affected(res)
}

func (s *Storage) AcceptOrder(ctx context.Context, id, driverID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE orders SET state = ?, driver_id = ?
WHERE id = ? AND state = ?
`, models.OrderStateAccepted, driverID, id, models.OrderStateNew)
	if err != nil {
		return false, errors.Wrap(err, "accept order")
	}
	return affected(res)
}

// ReleaseOrder hands an accepted order back to the pool. It applies only
// while driverID still holds the order in the accepted state.
func (s *Storage) ReleaseOrder(ctx context.Context, id, driverID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE orders SET state = ?, driver_id = NULL
WHERE id = ? AND state = ? AND driver_id = ?
`, models.OrderStateNew, id, models.OrderStateAccepted, driverID)
	if err != nil {
		return false, errors.Wrap(err, "release order")
	}
	return affected(res)
}

// FinalizeOrder moves a draft to new and stores planned as its planned route,
// taking the waypoints from the route. Both happen in one transaction and
// only while the order is still a draft.
func (s *Storage) FinalizeOrder(ctx context.Context, id int64, typ models.OrderType, planned *models.Route, meta models.OrderMeta) (bool, error) {
	if planned == nil || planned.OrderID != id || planned.Type != models.RouteTypePlanned {
		return false, errors.Errorf("order %d needs its own planned route", id)
	}
	wp, err := toJSON(planned.Meta.Waypoints)
	if err != nil {
		return false, err
	}
	m, err := toJSON(meta)
	if err != nil {
		return false, err
	}

	var finalized bool
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE orders SET type = ?, state = ?, waypoints = ?, meta = ?
WHERE id = ? AND state = ?
`, typ, models.OrderStateNew, wp, m, id, models.OrderStateDraft)
		if err != nil {
			return errors.Wrap(err, "finalize order")
		}
		if finalized, err = affected(res); err != nil || !finalized {
			return err
		}
		return upsertRoute(ctx, tx, planned)
	})
	if err != nil {
		return false, err
	}
	return finalized, nil
}

func (s *Storage) DeclineOrder(ctx context.Context, orderID, driverID int64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO drivers_declined_orders (driver_id, order_id)
VALUES (?, ?)
ON CONFLICT (driver_id, order_id) DO NOTHING
`, driverID, orderID)
	if err != nil {
		return errors.Wrap(err, "insert decline")
	}
	return nil
}

func (s *Storage) queryOrders(ctx context.Context, q string, args ...any) ([]*models.Order, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select orders")
	}
	defer rows.Close()

	out := make([]*models.Order, 0)
	for rows.Next() {
		var (
			o           models.Order
			typ         sql.NullString
			meta        sql.NullString
			waypoints   sql.NullString
			driverID    sql.NullInt64
			createdAt   string
			plannedMeta sql.NullString
			actualMeta  sql.NullString
		)
		if err := rows.Scan(
			&o.ID, &o.State, &typ, &o.Description, &meta, &waypoints, &driverID, &createdAt,
			&plannedMeta, &actualMeta,
		); err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		o.Type = models.OrderType(typ.String)
		if driverID.Valid {
			id := driverID.Int64
			o.DriverID = &id
		}
		if o.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, errors.Wrap(err, "parse created_at")
		}
		if err := fromJSON(meta, &o.Meta); err != nil {
			return nil, err
		}
		if err := fromJSON(waypoints, &o.Waypoints); err != nil {
			return nil, err
		}
		if o.PlannedRouteMeta, err = routeMeta(plannedMeta, models.RouteTypePlanned); err != nil {
			return nil, err
		}
		if o.ActualRouteMeta, err = routeMeta(actualMeta, models.RouteTypeActual); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate orders")
	}
	return out, nil
}

func routeMeta(raw sql.NullString, typ models.RouteType) (*models.RouteMeta, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	var m models.RouteMeta
	if err := fromJSON(raw, &m); err != nil {
		return nil, err
	}
	m.Type = typ
	return &m, nil
}
