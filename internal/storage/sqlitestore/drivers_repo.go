package sqlitestore

import (
	"context"
	"database/sql"

	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

const selectDrivers = `SELECT id, name, position, state, avatar FROM drivers `

func (s *Storage) CreateDriver(ctx context.Context, in models.DriverCreateInput) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO drivers (name, state, avatar) VALUES (?, ?, ?)
`, in.Name, in.State, in.Avatar)
	if err != nil {
		return 0, errors.Wrap(err, "insert driver")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "last insert id")
	}
	return id, nil
}

// GetDriver returns nil without an error when the driver does not exist.
func (s *Storage) GetDriver(ctx context.Context, id int64) (*models.Driver, error) {
	drivers, err := s.queryDrivers(ctx, selectDrivers+`WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(drivers) == 0 {
		return nil, nil
	}
	return drivers[0], nil
}

func (s *Storage) ListDriversPage(ctx context.Context, limit int) ([]*models.Driver, bool, error) {
	drivers, err := s.queryDrivers(ctx, selectDrivers+`ORDER BY id ASC LIMIT ?`, limit+1)
	if err != nil {
		return nil, false, err
	}
	if len(drivers) > limit {
		return drivers[:limit], true, nil
	}
	return drivers, false, nil
}

func (s *Storage) GetDriversByIDs(ctx context.Context, ids []int64) ([]*models.Driver, error) {
	if len(ids) == 0 {
		return []*models.Driver{}, nil
	}
	raw, err := toJSON(ids)
	if err != nil {
		return nil, err
	}
	return s.queryDrivers(ctx, selectDrivers+`WHERE id IN (SELECT value FROM json_each(?)) ORDER BY id ASC`, raw)
}

// UpdateDriverPosition reports false when no such driver exists.
func (s *Storage) UpdateDriverPosition(ctx context.Context, id int64, p orb.Point) (bool, error) {
	pos, err := toJSON(p)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE drivers SET position = ? WHERE id = ?`, pos, id)
	if err != nil {
		return false, errors.Wrap(err, "update driver position")
	}
	return affected(res)
}

func (s *Storage) queryDrivers(ctx context.Context, q string, args ...any) ([]*models.Driver, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select drivers")
	}
	defer rows.Close()

	out := make([]*models.Driver, 0)
	for rows.Next() {
		var (
			d        models.Driver
			position sql.NullString
			avatar   sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.Name, &position, &d.State, &avatar); err != nil {
			return nil, errors.Wrap(err, "scan driver")
		}
		if position.Valid {
			var p orb.Point
			if err := fromJSON(position, &p); err != nil {
				return nil, err
			}
			d.Position = &p
		}
		if avatar.Valid {
			a := avatar.String
			d.Avatar = &a
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate drivers")
	}
	return out, nil
}
