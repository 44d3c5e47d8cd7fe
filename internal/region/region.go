// Package region holds the static service area: its bounds, the warehouses
// orders ship from and the generated pickpoint network.
package region

import (
	"context"
	"log/slog"

	"github.com/BearBump/DispatchBox/internal/geometry"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/BearBump/DispatchBox/internal/storage/sqlitestore"
	"github.com/mmcloughlin/geohash"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

const (
	DefaultWarehouses = 20
	DefaultPickpoints = 300

	// pickpoints never share a cell of this precision (about 150 m)
	spreadPrecision = 7
	spreadAttempts  = 10
)

var pickpointDescriptions = []string{
	"The pickpoint is located next to the ATM",
	"The pickpoint is located on the 1st floor of the shopping center",
	"The pickpoint is located in the post office",
}

type Region struct {
	BBox         orb.Bound `json:"bbox"`
	Zoom         int       `json:"zoom"`
	CurrencyRate float64   `json:"-"`
}

// Moscow is the region used when nothing is configured.
var Moscow = Region{
	BBox:         orb.Bound{Min: orb.Point{37.40, 55.62}, Max: orb.Point{37.80, 55.88}},
	Zoom:         11,
	CurrencyRate: 1,
}

func (r Region) Center() orb.Point {
	return r.BBox.Center()
}

// Settings is what GET /api/config returns.
type Settings struct {
	BBox   [2]orb.Point `json:"bbox"`
	Center orb.Point    `json:"center"`
	Zoom   int          `json:"zoom"`
}

func (r Region) Settings() Settings {
	return Settings{
		BBox:   [2]orb.Point{r.BBox.Min, r.BBox.Max},
		Center: r.Center(),
		Zoom:   r.Zoom,
	}
}

// Warehouses places n warehouses uniformly in the region, ids starting at 1.
func (r Region) Warehouses(n int, rnd func() float64) []models.Warehouse {
	out := make([]models.Warehouse, n)
	for i := range out {
		out[i] = models.Warehouse{ID: int64(i + 1), Position: geometry.RandomPointIn(r.BBox, rnd)}
	}
	return out
}

type PickpointWriter interface {
	CreatePickpoint(ctx context.Context, in sqlitestore.PickpointCreateInput) (int64, error)
}

// SeedPickpoints stores n pickpoints at random positions. A candidate that
// lands in an already occupied geohash cell is redrawn a few times.
func (r Region) SeedPickpoints(ctx context.Context, w PickpointWriter, n int, rnd func() float64) error {
	taken := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		var p orb.Point
		for attempt := 0; attempt < spreadAttempts; attempt++ {
			p = geometry.RandomPointIn(r.BBox, rnd)
			cell := geohash.EncodeWithPrecision(p.Lat(), p.Lon(), spreadPrecision)
			if _, ok := taken[cell]; !ok {
				taken[cell] = struct{}{}
				break
			}
		}

		_, err := w.CreatePickpoint(ctx, sqlitestore.PickpointCreateInput{
			Description: pickpointDescriptions[int(rnd()*float64(len(pickpointDescriptions)))%len(pickpointDescriptions)],
			Features: models.PickpointFeatures{
				Card:   rnd() > 0.5,
				Return: rnd() > 0.5,
			},
			Position: p,
		})
		if err != nil {
			return errors.Wrapf(err, "seed pickpoint %d", i)
		}
	}
	slog.Info("pickpoints seeded", "count", n)
	return nil
}
