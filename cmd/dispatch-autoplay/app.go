package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/DispatchBox/config"
	"github.com/BearBump/DispatchBox/internal/engine"
	"github.com/BearBump/DispatchBox/internal/services/autoplay"
	"github.com/pkg/errors"
)

type autoplayFactories struct {
	// newDoer returns the dispatcher the agents talk to and a func releasing it.
	newDoer      func(ctx context.Context, cfg *config.Config) (autoplay.Doer, func(), error)
	newPositions func(cfg *config.Config) autoplay.PositionSource
}

func defaultAutoplayFactories() autoplayFactories {
	return autoplayFactories{
		newDoer: func(ctx context.Context, cfg *config.Config) (autoplay.Doer, func(), error) {
			if cfg.Autoplay.TargetURL != "" {
				return autoplay.NewHTTPDoer(cfg.Autoplay.TargetURL), func() {}, nil
			}
			return inProcessDispatcher(ctx, cfg)
		},
		newPositions: func(cfg *config.Config) autoplay.PositionSource {
			return autoplay.NewRouteWalker(cfg.Autoplay.SpeedKmPerMin, time.Duration(cfg.Autoplay.DelayMs)*time.Millisecond)
		},
	}
}

// inProcessDispatcher starts an engine and serves its bus until ctx is done.
func inProcessDispatcher(ctx context.Context, cfg *config.Config) (autoplay.Doer, func(), error) {
	opts := engine.OptionsFromConfig(cfg)
	geo, closeGeo := engine.GeoFromConfig(cfg, opts.Region.BBox)
	opts.Geo = geo

	eng, err := engine.New(ctx, opts)
	if err != nil {
		closeGeo()
		return nil, nil, err
	}
	serveCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Serve(serveCtx)
	}()
	return eng.Bus, func() {
		cancel()
		<-done
		eng.Close()
		closeGeo()
	}, nil
}

func autoplayConfig(c config.AutoplayConfig) autoplay.Config {
	out := autoplay.DefaultConfig()
	if c.Drivers != nil {
		out.Drivers = *c.Drivers
	}
	if c.Orders != nil {
		out.Orders = *c.Orders
	}
	if c.OrderAgents > 0 {
		out.OrderAgents = c.OrderAgents
	}
	return out
}

type runOpts struct {
	swaggerPath string
	onListen    func(httpAddr string)
	// tune adjusts the simulator settings derived from cfg.
	tune func(*autoplay.Config)
}

func RunAutoplay(ctx context.Context, cfg *config.Config, f autoplayFactories, ro runOpts) error {
	doer, release, err := f.newDoer(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "start dispatcher")
	}
	defer release()

	simCfg := autoplayConfig(cfg.Autoplay)
	if ro.tune != nil {
		ro.tune(&simCfg)
	}
	sim := autoplay.New(doer, f.newPositions(cfg), simCfg)

	job := newStatsJob(sim)
	if err := job.Start(cfg.Autoplay.StatsSchedule); err != nil {
		return errors.Wrap(err, "schedule stats job")
	}
	defer job.Stop()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runAutoplayHTTPServer(ctx, autoplayHTTPOpts{
			httpAddr:    cfg.Autoplay.HTTPAddr,
			swaggerPath: ro.swaggerPath,
			onListen:    ro.onListen,
			sim:         sim,
			cfg:         simCfg,
		})
	}()

	simErr := make(chan error, 1)
	go func() { simErr <- sim.Run(ctx) }()

	select {
	case err := <-simErr:
		return err
	case err := <-httpErr:
		if ctx.Err() != nil {
			return <-simErr
		}
		slog.Error("autoplay http server stopped", "error", err)
		return err
	}
}
