package orders

import (
	"context"

	"github.com/BearBump/DispatchBox/internal/errs"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/paulmach/orb"
)

func (s *Service) RegisterDriver(ctx context.Context, in models.DriverCreateInput) (*models.Driver, error) {
	if in.Name == "" {
		return nil, errs.Invalid("name is required")
	}
	switch in.State {
	case "":
		in.State = models.DriverStateWorking
	case models.DriverStateWorking, models.DriverStateIllness, models.DriverStateVacation, models.DriverStateWeekend:
	default:
		return nil, errs.Invalid("unknown driver state %q", in.State)
	}

	id, err := s.store.CreateDriver(ctx, in)
	if err != nil {
		return nil, err
	}
	return s.store.GetDriver(ctx, id)
}

// Driver returns nil when the driver is unknown.
func (s *Service) Driver(ctx context.Context, id int64) (*models.Driver, error) {
	return s.store.GetDriver(ctx, id)
}

func (s *Service) UpdatePosition(ctx context.Context, driverID int64, pos orb.Point) error {
	ok, err := s.store.UpdateDriverPosition(ctx, driverID, pos)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotFound("driver", driverID)
	}
	return nil
}

// BuildRoute is the driver's ad hoc navigation request; nothing is stored.
func (s *Service) BuildRoute(ctx context.Context, points []orb.Point) (*models.RouterResult, error) {
	return s.routes.Build(ctx, points, models.RouteModeDriving)
}
