package sqlitestore

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS drivers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  position TEXT NULL,
  state TEXT NOT NULL,
  avatar TEXT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS orders (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  state TEXT NOT NULL,
  type TEXT NULL,
  description TEXT NOT NULL DEFAULT '',
  meta TEXT NOT NULL,
  waypoints TEXT NULL,
  driver_id INTEGER NULL REFERENCES drivers(id),
  created_at TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_state ON orders(state)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_driver_id ON orders(driver_id)`,
		`
CREATE TABLE IF NOT EXISTS pickpoints (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  description TEXT NOT NULL,
  features TEXT NOT NULL,
  position TEXT NOT NULL,
  minX REAL NOT NULL,
  maxX REAL NOT NULL,
  minY REAL NOT NULL,
  maxY REAL NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_pickpoints_bbox ON pickpoints(minX, maxX, minY, maxY)`,
		`
CREATE TABLE IF NOT EXISTS routes (
  order_id INTEGER NOT NULL REFERENCES orders(id),
  type TEXT NOT NULL,
  points TEXT NOT NULL,
  meta TEXT NOT NULL,
  PRIMARY KEY (order_id, type)
)`,
		`
CREATE TABLE IF NOT EXISTS tracks (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts TEXT NOT NULL,
  driver_id INTEGER NOT NULL,
  order_id INTEGER NOT NULL,
  position TEXT NOT NULL,
  geohash TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_tracks_order_id ON tracks(order_id, id)`,
		`
CREATE TABLE IF NOT EXISTS drivers_declined_orders (
  driver_id INTEGER NOT NULL,
  order_id INTEGER NOT NULL,
  PRIMARY KEY (driver_id, order_id)
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
