package geoapi

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/DispatchBox/internal/cache"
	"github.com/BearBump/DispatchBox/internal/errs"
	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/paulmach/orb"
)

type GuardOptions struct {
	GeocodeTTL time.Duration
	// PerMinute caps calls to each provider API; zero disables the limit.
	PerMinute int64
}

// Guarded wraps a Client with a geocode cache and a per-API rate limit.
// Cache failures are logged and never fail the call.
type Guarded struct {
	inner   Client
	cache   cache.BytesCache
	limiter cache.RateLimiter
	opts    GuardOptions
	now     func() time.Time
}

func NewGuarded(inner Client, c cache.BytesCache, l cache.RateLimiter, opts GuardOptions) *Guarded {
	if opts.GeocodeTTL <= 0 {
		opts.GeocodeTTL = 24 * time.Hour
	}
	return &Guarded{inner: inner, cache: c, limiter: l, opts: opts, now: time.Now}
}

func (g *Guarded) allow(ctx context.Context, api string) error {
	if g.limiter == nil || g.opts.PerMinute <= 0 {
		return nil
	}
	key := fmt.Sprintf("rl:geoapi:%s:%d", api, g.now().Unix()/60)
	ok, n, err := g.limiter.Allow(ctx, key, g.opts.PerMinute, time.Minute)
	if err != nil {
		slog.Warn("rate limiter failed", "api", api, "err", err)
		return nil
	}
	if !ok {
		slog.Warn("rate limit exceeded", "api", api, "count", n)
		return errs.Upstream("%s rate limit exceeded", api)
	}
	return nil
}

func geocodeKey(q GeocodeQuery) string {
	b, _ := json.Marshal(q)
	sum := sha1.Sum(b)
	return "geocode:" + hex.EncodeToString(sum[:])
}

func (g *Guarded) Geocode(ctx context.Context, q GeocodeQuery) (*GeocodeResult, error) {
	key := geocodeKey(q)
	if g.cache != nil {
		b, ok, err := g.cache.Get(ctx, key)
		if err != nil {
			slog.Warn("geocode cache get failed", "err", err)
		}
		if ok {
			var res GeocodeResult
			if err := json.Unmarshal(b, &res); err == nil {
				return &res, nil
			}
		}
	}

	if err := g.allow(ctx, "geocoder"); err != nil {
		return nil, err
	}
	res, err := g.inner.Geocode(ctx, q)
	if err != nil || res == nil {
		return res, err
	}

	if g.cache != nil {
		b, _ := json.Marshal(res)
		if err := g.cache.Set(ctx, key, b, g.opts.GeocodeTTL); err != nil {
			slog.Warn("geocode cache set failed", "err", err)
		}
	}
	return res, nil
}

func (g *Guarded) BuildRoute(ctx context.Context, waypoints []orb.Point, mode models.RouteMode) (*models.RouterResult, error) {
	if err := g.allow(ctx, "router"); err != nil {
		return nil, err
	}
	return g.inner.BuildRoute(ctx, waypoints, mode)
}

func (g *Guarded) Suggest(ctx context.Context, q SuggestQuery) ([]SuggestItem, error) {
	if err := g.allow(ctx, "suggest"); err != nil {
		return nil, err
	}
	return g.inner.Suggest(ctx, q)
}

func (g *Guarded) BuildIsochrone(ctx context.Context, p orb.Point, seconds int, mode models.RouteMode) (orb.MultiPolygon, error) {
	if err := g.allow(ctx, "isochrone"); err != nil {
		return nil, err
	}
	return g.inner.BuildIsochrone(ctx, p, seconds, mode)
}

func (g *Guarded) BuildDistanceMatrix(ctx context.Context, origins, destinations []orb.Point, mode models.RouteMode) (*Matrix, error) {
	if err := g.allow(ctx, "distancematrix"); err != nil {
		return nil, err
	}
	return g.inner.BuildDistanceMatrix(ctx, origins, destinations, mode)
}
