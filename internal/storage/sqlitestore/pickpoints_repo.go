package sqlitestore

import (
	"context"
	"database/sql"

	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

const selectPickpoints = `SELECT id, description, features, position FROM pickpoints `

type PickpointCreateInput struct {
	Description string
	Features    models.PickpointFeatures
	Position    orb.Point
}

// CreatePickpoint stores a pickpoint together with its bounding box, which for
// a single position collapses to the point itself.
func (s *Storage) CreatePickpoint(ctx context.Context, in PickpointCreateInput) (int64, error) {
	features, err := toJSON(in.Features)
	if err != nil {
		return 0, err
	}
	pos, err := toJSON(in.Position)
	if err != nil {
		return 0, err
	}
	x, y := in.Position.X(), in.Position.Y()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO pickpoints (description, features, position, minX, maxX, minY, maxY)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, in.Description, features, pos, x, x, y, y)
	if err != nil {
		return 0, errors.Wrap(err, "insert pickpoint")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "last insert id")
	}
	return id, nil
}

func (s *Storage) GetPickpoint(ctx context.Context, id int64) (*models.Pickpoint, error) {
	pps, err := s.queryPickpoints(ctx, selectPickpoints+`WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(pps) == 0 {
		return nil, nil
	}
	return pps[0], nil
}

func (s *Storage) ListPickpoints(ctx context.Context) ([]*models.Pickpoint, error) {
	return s.queryPickpoints(ctx, selectPickpoints+`ORDER BY id ASC`)
}

// ListPickpointsInBound is the range query over the precomputed bbox columns.
func (s *Storage) ListPickpointsInBound(ctx context.Context, b orb.Bound) ([]*models.Pickpoint, error) {
	return s.queryPickpoints(ctx, selectPickpoints+`
WHERE minX >= ? AND maxX <= ? AND minY >= ? AND maxY <= ?
ORDER BY id ASC
`, b.Min.X(), b.Max.X(), b.Min.Y(), b.Max.Y())
}

func (s *Storage) queryPickpoints(ctx context.Context, q string, args ...any) ([]*models.Pickpoint, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select pickpoints")
	}
	defer rows.Close()

	out := make([]*models.Pickpoint, 0)
	for rows.Next() {
		var (
			p        models.Pickpoint
			features sql.NullString
			position sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Description, &features, &position); err != nil {
			return nil, errors.Wrap(err, "scan pickpoint")
		}
		if err := fromJSON(features, &p.Features); err != nil {
			return nil, err
		}
		if err := fromJSON(position, &p.Position); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate pickpoints")
	}
	return out, nil
}
