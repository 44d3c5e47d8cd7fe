package engine

import (
	"fmt"
	"time"

	"github.com/BearBump/DispatchBox/config"
	"github.com/BearBump/DispatchBox/internal/cache"
	"github.com/BearBump/DispatchBox/internal/cache/rediscache"
	"github.com/BearBump/DispatchBox/internal/integrations/geoapi"
	"github.com/BearBump/DispatchBox/internal/integrations/geoapi/fake"
	"github.com/BearBump/DispatchBox/internal/integrations/geoapi/httpapi"
	"github.com/BearBump/DispatchBox/internal/region"
	"github.com/paulmach/orb"
	"github.com/redis/go-redis/v9"
)

// RegionFromConfig falls back to Moscow for every unset field.
func RegionFromConfig(c config.RegionConfig) region.Region {
	r := region.Moscow
	if len(c.BBox) == 4 {
		r.BBox = orb.Bound{Min: orb.Point{c.BBox[0], c.BBox[1]}, Max: orb.Point{c.BBox[0], c.BBox[1]}}.
			Extend(orb.Point{c.BBox[2], c.BBox[3]})
	}
	if c.Zoom > 0 {
		r.Zoom = c.Zoom
	}
	if c.CurrencyRate > 0 {
		r.CurrencyRate = c.CurrencyRate
	}
	return r
}

// OptionsFromConfig maps the dispatch and region sections; providers and
// events are wired separately.
func OptionsFromConfig(cfg *config.Config) Options {
	pickpoints := cfg.Dispatch.Pickpoints
	if pickpoints == 0 {
		pickpoints = region.DefaultPickpoints
	}
	return Options{
		DSN:        cfg.Dispatch.DSN,
		Region:     RegionFromConfig(cfg.Region),
		Warehouses: cfg.Dispatch.Warehouses,
		Pickpoints: pickpoints,
		Seed:       cfg.Dispatch.Seed,
		Language:   cfg.Dispatch.Language,
		PageSize:   cfg.Dispatch.PageSize,
		Timeout:    time.Duration(cfg.Dispatch.RequestTimeoutMs) * time.Millisecond,
	}
}

// GeoFromConfig builds the provider stack. With redis configured the
// provider sits behind the geocode cache and the per-API rate limit.
// The returned func releases the redis connection.
func GeoFromConfig(cfg *config.Config, bound orb.Bound) (geoapi.Client, func()) {
	var inner geoapi.Client
	switch cfg.Geo.Provider {
	case "http":
		inner = httpapi.New(httpapi.Endpoints{
			RouteURL:     cfg.Geo.RouteURL,
			GeocodeURL:   cfg.Geo.GeocodeURL,
			SuggestURL:   cfg.Geo.SuggestURL,
			IsochroneURL: cfg.Geo.IsochroneURL,
			MatrixURL:    cfg.Geo.MatrixURL,
		}, cfg.Geo.APIKey, cfg.Dispatch.Language)
	default:
		inner = fake.New(bound)
	}

	opts := geoapi.GuardOptions{
		GeocodeTTL: time.Duration(cfg.Geo.GeocodeTTLSeconds) * time.Second,
		PerMinute:  cfg.Geo.RateLimitPerMinute,
	}
	if cfg.Redis.Host == "" {
		return geoapi.NewGuarded(inner, nil, nil, opts), func() {}
	}

	rc := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)})
	var (
		bc cache.BytesCache  = rediscache.NewWithClient(rc)
		rl cache.RateLimiter = rediscache.NewRateLimiterWithClient(rc)
	)
	return geoapi.NewGuarded(inner, bc, rl, opts), func() { _ = rc.Close() }
}
