package fake

import (
	"context"
	"testing"

	"github.com/BearBump/DispatchBox/internal/geometry"
	"github.com/BearBump/DispatchBox/internal/integrations/geoapi"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

var testBound = orb.Bound{Min: orb.Point{37.5, 55.7}, Max: orb.Point{37.7, 55.8}}

func TestFakeClient_BuildRoute(t *testing.T) {
	c := New(testBound)
	wps := []orb.Point{{37.60, 55.75}, {37.61, 55.75}, {37.61, 55.76}}

	res, err := c.BuildRoute(context.Background(), wps, models.RouteModeDriving)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Greater(t, len(res.Points), len(wps))
	require.Equal(t, wps[0], res.Points[0])
	require.Equal(t, wps[2], res.Points[len(res.Points)-1])
	require.Greater(t, res.Distance, 0.0)
	require.Equal(t, models.RouteModeDriving, res.Mode)

	walk, err := c.BuildRoute(context.Background(), wps, models.RouteModeWalking)
	require.NoError(t, err)
	require.Equal(t, res.Distance, walk.Distance)
	require.Greater(t, walk.Duration, res.Duration)
}

func TestFakeClient_BuildRoute_SamePoint(t *testing.T) {
	c := New(testBound)
	p := orb.Point{37.6, 55.75}

	res, err := c.BuildRoute(context.Background(), []orb.Point{p, p}, models.RouteModeDriving)
	require.NoError(t, err)
	require.Len(t, res.Points, 3)
	require.Equal(t, 0.0, res.Distance)
}

func TestFakeClient_Geocode(t *testing.T) {
	c := New(testBound)
	ctx := context.Background()

	a, err := c.Geocode(ctx, geoapi.GeocodeQuery{Text: "Red square"})
	require.NoError(t, err)
	b, err := c.Geocode(ctx, geoapi.GeocodeQuery{Text: "Red square"})
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.True(t, testBound.Contains(a.Coordinates))

	p := orb.Point{37.61, 55.76}
	r, err := c.Geocode(ctx, geoapi.GeocodeQuery{Point: &p})
	require.NoError(t, err)
	require.Equal(t, p, r.Coordinates)
	require.NotEmpty(t, r.Name)

	none, err := c.Geocode(ctx, geoapi.GeocodeQuery{})
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestFakeClient_SuggestThenGeocodeURI(t *testing.T) {
	c := New(testBound)
	ctx := context.Background()

	items, err := c.Suggest(ctx, geoapi.SuggestQuery{Text: "Tver", Results: 3})
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Contains(t, items[0].Tags, "street")

	byURI, err := c.Geocode(ctx, geoapi.GeocodeQuery{URI: items[0].URI})
	require.NoError(t, err)
	byText, err := c.Geocode(ctx, geoapi.GeocodeQuery{Text: items[0].Title.Text})
	require.NoError(t, err)
	require.Equal(t, byText, byURI)

	empty, err := c.Suggest(ctx, geoapi.SuggestQuery{})
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestFakeClient_Isochrone(t *testing.T) {
	c := New(testBound)
	p := orb.Point{37.6, 55.75}

	mp, err := c.BuildIsochrone(context.Background(), p, 20*60, models.RouteModeWalking)
	require.NoError(t, err)
	require.True(t, geometry.Within(mp, p))
	// 20 minutes of walking is well under 2 km
	require.False(t, geometry.Within(mp, orb.Point{37.6, 55.77}))
}

func TestFakeClient_DistanceMatrix(t *testing.T) {
	c := New(testBound)
	origins := []orb.Point{{37.6, 55.75}, {37.7, 55.75}}
	dest := []orb.Point{{37.6, 55.76}}

	m, err := c.BuildDistanceMatrix(context.Background(), origins, dest, models.RouteModeDriving)
	require.NoError(t, err)
	require.Len(t, m.Rows, 2)

	near, ok := m.Cell(0, 0)
	require.True(t, ok)
	far, ok := m.Cell(1, 0)
	require.True(t, ok)
	require.Equal(t, geoapi.CellOK, near.Status)
	require.Less(t, near.Distance, far.Distance)

	_, ok = m.Cell(0, 1)
	require.False(t, ok)
}
