package autoplay

import (
	"context"
	"math"
	"time"

	"github.com/BearBump/DispatchBox/internal/geometry"
	"github.com/paulmach/orb"
)

const minChunkMeters = 20

// PositionSource produces the positions a driver passes while following a
// route. emit is called once per position, in order.
type PositionSource interface {
	Follow(ctx context.Context, route []orb.Point, emit func(orb.Point) error) error
}

// RouteWalker moves along a route in equal chunks, one chunk per Delay.
type RouteWalker struct {
	// SpeedKmPerMin is the simulated speed; simulation time runs fast.
	SpeedKmPerMin float64
	Delay         time.Duration
}

func NewRouteWalker(speedKmPerMin float64, delay time.Duration) *RouteWalker {
	if speedKmPerMin <= 0 {
		speedKmPerMin = 25
	}
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}
	return &RouteWalker{SpeedKmPerMin: speedKmPerMin, Delay: delay}
}

// ChunkMeters is the distance covered per Delay, at least 20 m.
func (w *RouteWalker) ChunkMeters() float64 {
	ticksPerMinute := float64(time.Minute) / float64(w.Delay)
	return math.Max(math.Round(w.SpeedKmPerMin*1000/ticksPerMinute), minChunkMeters)
}

func (w *RouteWalker) Follow(ctx context.Context, route []orb.Point, emit func(orb.Point) error) error {
	switch len(route) {
	case 0:
		return nil
	case 1:
		return emit(route[0])
	}
	for _, p := range geometry.Chunk(route, w.ChunkMeters()) {
		if err := emit(p); err != nil {
			return err
		}
		if err := sleep(ctx, w.Delay); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
