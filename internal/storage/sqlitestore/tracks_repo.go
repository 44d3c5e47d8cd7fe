package sqlitestore

import (
	"context"
	"database/sql"
	"time"

	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/pkg/errors"
)

func (s *Storage) AppendTrack(ctx context.Context, t models.Track) (int64, error) {
	pos, err := toJSON(t.Position)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO tracks (ts, driver_id, order_id, position, geohash)
VALUES (?, ?, ?, ?, ?)
`, t.TS.UTC().Format(time.RFC3339Nano), t.DriverID, t.OrderID, pos, t.Geohash)
	if err != nil {
		return 0, errors.Wrap(err, "insert track")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "last insert id")
	}
	return id, nil
}

func (s *Storage) ListTracks(ctx context.Context, orderID int64) ([]*models.Track, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, ts, driver_id, order_id, position, geohash
FROM tracks
WHERE order_id = ?
ORDER BY id ASC
`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "select tracks")
	}
	defer rows.Close()

	out := make([]*models.Track, 0)
	for rows.Next() {
		var (
			t        models.Track
			ts       string
			position sql.NullString
		)
		if err := rows.Scan(&t.ID, &ts, &t.DriverID, &t.OrderID, &position, &t.Geohash); err != nil {
			return nil, errors.Wrap(err, "scan track")
		}
		if t.TS, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, errors.Wrap(err, "parse track ts")
		}
		if err := fromJSON(position, &t.Position); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate tracks")
	}
	return out, nil
}
