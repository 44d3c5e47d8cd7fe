// Package httpapi talks to the hosted geo HTTP APIs.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/DispatchBox/internal/integrations/geoapi"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// Endpoints holds the full URL of every API. IsochroneURL may contain a
// {{mode}} placeholder.
type Endpoints struct {
	RouteURL     string
	GeocodeURL   string
	SuggestURL   string
	IsochroneURL string
	MatrixURL    string
}

type Client struct {
	endpoints Endpoints
	apiKey    string
	language  string
	httpc     *http.Client
}

func New(endpoints Endpoints, apiKey, language string) *Client {
	if language == "" {
		language = "en_US"
	}
	return &Client{
		endpoints: endpoints,
		apiKey:    apiKey,
		language:  language,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// latLng renders points the way the routing and matrix APIs expect them.
func latLng(points []orb.Point) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = fmt.Sprintf("%s,%s", ftoa(p.Lat()), ftoa(p.Lon()))
	}
	return strings.Join(parts, "|")
}

func lngLat(p orb.Point) string {
	return ftoa(p.Lon()) + "," + ftoa(p.Lat())
}

func bbox(b orb.Bound) string {
	return lngLat(b.Min) + "~" + lngLat(b.Max)
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (c *Client) get(ctx context.Context, api, rawURL string, q url.Values, out any) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrapf(err, "parse %s url", api)
	}
	qq := u.Query()
	qq.Set("apikey", c.apiKey)
	for k, vs := range q {
		for _, v := range vs {
			qq.Add(k, v)
		}
	}
	u.RawQuery = qq.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s request", api)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s http %d", api, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s", api)
	}
	return nil
}

type routerResp struct {
	Route struct {
		Legs []struct {
			Steps []struct {
				Polyline struct {
					Points [][2]float64 `json:"points"`
				} `json:"polyline"`
				Duration float64 `json:"duration"`
				Length   float64 `json:"length"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"route"`
}

// BuildRoute interleaves each waypoint with the polyline of the leg that starts
// there. Leg points come as [lat, lng] and are flipped.
func (c *Client) BuildRoute(ctx context.Context, waypoints []orb.Point, mode models.RouteMode) (*models.RouterResult, error) {
	var r routerResp
	q := url.Values{}
	q.Set("mode", string(mode))
	q.Set("waypoints", latLng(waypoints))
	if err := c.get(ctx, "router", c.endpoints.RouteURL, q, &r); err != nil {
		return nil, err
	}

	var points []orb.Point
	var duration, distance float64
	for i, wp := range waypoints {
		points = append(points, wp)
		if i >= len(r.Route.Legs) {
			continue
		}
		for _, step := range r.Route.Legs[i].Steps {
			for _, p := range step.Polyline.Points {
				points = append(points, orb.Point{p[1], p[0]})
			}
			duration += step.Duration
			distance += step.Length
		}
	}
	if len(points) <= len(waypoints) {
		return nil, nil
	}

	return &models.RouterResult{
		Points:   points,
		Duration: math.Ceil(duration),
		Distance: math.Ceil(distance),
		Mode:     mode,
	}, nil
}

type geocodeResp struct {
	Response struct {
		GeoObjectCollection struct {
			FeatureMember []struct {
				GeoObject struct {
					Name  string `json:"name"`
					Point struct {
						Pos string `json:"pos"`
					} `json:"Point"`
				} `json:"GeoObject"`
			} `json:"featureMember"`
		} `json:"GeoObjectCollection"`
	} `json:"response"`
}

func (c *Client) Geocode(ctx context.Context, gq geoapi.GeocodeQuery) (*geoapi.GeocodeResult, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("results", "1")
	q.Set("lang", c.lang(gq.Language))
	switch {
	case gq.URI != "":
		q.Set("uri", gq.URI)
	case gq.Text != "":
		q.Set("geocode", gq.Text)
	case gq.Point != nil:
		q.Set("geocode", lngLat(*gq.Point))
	default:
		return nil, nil
	}
	if gq.BBox != nil {
		q.Set("rspn", "1")
		q.Set("bbox", bbox(*gq.BBox))
	}

	var r geocodeResp
	if err := c.get(ctx, "geocoder", c.endpoints.GeocodeURL, q, &r); err != nil {
		return nil, err
	}
	members := r.Response.GeoObjectCollection.FeatureMember
	if len(members) == 0 {
		return nil, nil
	}

	obj := members[0].GeoObject
	pos := strings.Fields(obj.Point.Pos)
	if len(pos) != 2 {
		return nil, fmt.Errorf("geocoder pos %q", obj.Point.Pos)
	}
	lng, err := strconv.ParseFloat(pos[0], 64)
	if err != nil {
		return nil, errors.Wrap(err, "geocoder pos lng")
	}
	lat, err := strconv.ParseFloat(pos[1], 64)
	if err != nil {
		return nil, errors.Wrap(err, "geocoder pos lat")
	}

	return &geoapi.GeocodeResult{Name: obj.Name, Coordinates: orb.Point{lng, lat}}, nil
}

func (c *Client) Suggest(ctx context.Context, sq geoapi.SuggestQuery) ([]geoapi.SuggestItem, error) {
	if sq.Text == "" {
		return []geoapi.SuggestItem{}, nil
	}

	q := url.Values{}
	q.Set("text", sq.Text)
	q.Set("lang", c.lang(sq.Language))
	q.Set("print_address", "1")
	q.Set("attrs", "uri")
	if sq.Results > 0 {
		q.Set("results", strconv.Itoa(sq.Results))
	}
	if sq.BBox != nil {
		q.Set("bbox", bbox(*sq.BBox))
	}

	var r struct {
		Results []geoapi.SuggestItem `json:"results"`
	}
	if err := c.get(ctx, "suggest", c.endpoints.SuggestURL, q, &r); err != nil {
		return nil, err
	}
	if r.Results == nil {
		r.Results = []geoapi.SuggestItem{}
	}
	return r.Results, nil
}

type isochroneResp struct {
	Hull struct {
		Geometry struct {
			Type        string           `json:"type"`
			Coordinates [][][][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"hull"`
}

func (c *Client) BuildIsochrone(ctx context.Context, p orb.Point, seconds int, mode models.RouteMode) (orb.MultiPolygon, error) {
	q := url.Values{}
	q.Set("ll", lngLat(p))
	q.Set("duration", strconv.Itoa(seconds))

	var r isochroneResp
	endpoint := strings.ReplaceAll(c.endpoints.IsochroneURL, "{{mode}}", string(mode))
	if err := c.get(ctx, "isochrone", endpoint, q, &r); err != nil {
		return nil, err
	}
	if len(r.Hull.Geometry.Coordinates) == 0 {
		return nil, nil
	}

	mp := make(orb.MultiPolygon, 0, len(r.Hull.Geometry.Coordinates))
	for _, poly := range r.Hull.Geometry.Coordinates {
		polygon := make(orb.Polygon, 0, len(poly))
		for _, ring := range poly {
			rr := make(orb.Ring, len(ring))
			for i, pt := range ring {
				rr[i] = orb.Point(pt)
			}
			polygon = append(polygon, rr)
		}
		mp = append(mp, polygon)
	}
	return mp, nil
}

type matrixResp struct {
	Rows []struct {
		Elements []struct {
			Status   string `json:"status"`
			Distance struct {
				Value float64 `json:"value"`
			} `json:"distance"`
			Duration struct {
				Value float64 `json:"value"`
			} `json:"duration"`
		} `json:"elements"`
	} `json:"rows"`
}

func (c *Client) BuildDistanceMatrix(ctx context.Context, origins, destinations []orb.Point, mode models.RouteMode) (*geoapi.Matrix, error) {
	q := url.Values{}
	q.Set("origins", latLng(origins))
	q.Set("destinations", latLng(destinations))
	q.Set("mode", string(mode))

	var r matrixResp
	if err := c.get(ctx, "distancematrix", c.endpoints.MatrixURL, q, &r); err != nil {
		return nil, err
	}

	m := &geoapi.Matrix{Rows: make([][]geoapi.MatrixCell, len(r.Rows))}
	for i, row := range r.Rows {
		cells := make([]geoapi.MatrixCell, len(row.Elements))
		for j, e := range row.Elements {
			cells[j] = geoapi.MatrixCell{Status: e.Status, Distance: e.Distance.Value, Duration: e.Duration.Value}
		}
		m.Rows[i] = cells
	}
	return m, nil
}

func (c *Client) lang(l string) string {
	if l != "" {
		return l
	}
	return c.language
}
