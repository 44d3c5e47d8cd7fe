package region

import (
	"context"
	"math/rand"
	"testing"

	"github.com/BearBump/DispatchBox/internal/storage/sqlitestore"
	"github.com/mmcloughlin/geohash"
	"github.com/stretchr/testify/require"
)

type memPickpoints struct {
	items []sqlitestore.PickpointCreateInput
}

func (m *memPickpoints) CreatePickpoint(ctx context.Context, in sqlitestore.PickpointCreateInput) (int64, error) {
	m.items = append(m.items, in)
	return int64(len(m.items)), nil
}

func TestRegion_Settings(t *testing.T) {
	s := Moscow.Settings()
	require.Equal(t, Moscow.BBox.Min, s.BBox[0])
	require.Equal(t, Moscow.BBox.Max, s.BBox[1])
	require.InDelta(t, 37.60, s.Center[0], 1e-9)
	require.InDelta(t, 55.75, s.Center[1], 1e-9)
	require.Equal(t, 11, s.Zoom)
}

func TestRegion_Warehouses(t *testing.T) {
	ws := Moscow.Warehouses(DefaultWarehouses, rand.New(rand.NewSource(1)).Float64)
	require.Len(t, ws, DefaultWarehouses)
	for i, w := range ws {
		require.Equal(t, int64(i+1), w.ID)
		require.True(t, Moscow.BBox.Contains(w.Position))
	}
}

func TestRegion_SeedPickpoints(t *testing.T) {
	m := &memPickpoints{}
	err := Moscow.SeedPickpoints(context.Background(), m, DefaultPickpoints, rand.New(rand.NewSource(7)).Float64)
	require.NoError(t, err)
	require.Len(t, m.items, DefaultPickpoints)

	cells := map[string]struct{}{}
	for _, p := range m.items {
		require.True(t, Moscow.BBox.Contains(p.Position))
		require.Contains(t, pickpointDescriptions, p.Description)
		cells[geohash.EncodeWithPrecision(p.Position.Lat(), p.Position.Lon(), spreadPrecision)] = struct{}{}
	}
	// the region has thousands of cells, so redraws keep every pickpoint apart
	require.Len(t, cells, DefaultPickpoints)
}
