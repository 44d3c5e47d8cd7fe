// Package autoplay simulates drivers and customers. The agents are pure API
// clients: everything they do goes through the dispatcher.
package autoplay

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/DispatchBox/internal/models"
	"github.com/BearBump/DispatchBox/internal/region"
	"github.com/pkg/errors"
)

// Rand is the randomness an agent needs. *rand.Rand implements it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

type Config struct {
	Drivers     bool
	Orders      bool
	OrderAgents int

	// Max random pause before each look at the available orders.
	DriverWait time.Duration
	// Max random pause after an accept and before each drive.
	SettleWait time.Duration
	// Max random pause before driving a route.
	DriveWait time.Duration
	// Max random pause before an order agent creates the next order.
	OrderWait    time.Duration
	PollInterval time.Duration
	// Orders younger than these are left to humans.
	AutoplayFreshness time.Duration
	ManualFreshness   time.Duration

	DeclineProbability float64
	// ReportEvery is how many chunks pass between position reports.
	ReportEvery int
}

func DefaultConfig() Config {
	return Config{
		Drivers:            true,
		Orders:             true,
		OrderAgents:        4,
		DriverWait:         5 * time.Second,
		SettleWait:         5 * time.Second,
		DriveWait:          2500 * time.Millisecond,
		OrderWait:          10 * time.Second,
		PollInterval:       2 * time.Second,
		AutoplayFreshness:  15 * time.Second,
		ManualFreshness:    60 * time.Second,
		DeclineProbability: 0.1,
		ReportEvery:        10,
	}
}

type driverProfile struct {
	name  string
	state models.DriverState
}

var driverProfiles = []driverProfile{
	{"Gerardus Mercator", models.DriverStateWorking},
	{"Claudius Ptolemy", models.DriverStateWorking},
	{"Leonhard Euler", models.DriverStateWorking},
	{"Emilio Estevise", models.DriverStateWeekend},
	{"Diogenes of Sinope", models.DriverStateVacation},
	{"Fabian Bellingshausen", models.DriverStateIllness},
}

type Simulator struct {
	doer      Doer
	positions PositionSource
	cfg       Config
	now       func() time.Time
	seed      int64

	startedAtUnixNano int64
	ordersCreated     atomic.Int64
	ordersCompleted   atomic.Int64
	accepts           atomic.Int64
	lostRaces         atomic.Int64
	declines          atomic.Int64
	deliveries        atomic.Int64
	reports           atomic.Int64
	errorsTotal       atomic.Int64
	lastErrorMu       sync.Mutex
	lastError         string
}

func New(d Doer, positions PositionSource, cfg Config) *Simulator {
	if cfg.ReportEvery <= 0 {
		cfg.ReportEvery = 10
	}
	return &Simulator{
		doer:              d,
		positions:         positions,
		cfg:               cfg,
		now:               time.Now,
		seed:              time.Now().UnixNano(),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

type Stats struct {
	StartedAt       time.Time `json:"startedAt"`
	OrdersCreated   int64     `json:"ordersCreated"`
	OrdersCompleted int64     `json:"ordersCompleted"`
	Accepts         int64     `json:"accepts"`
	LostRaces       int64     `json:"lostRaces"`
	Declines        int64     `json:"declines"`
	Deliveries      int64     `json:"deliveries"`
	Reports         int64     `json:"reports"`
	Errors          int64     `json:"errors"`
	LastError       string    `json:"lastError,omitempty"`
}

func (s *Simulator) Stats() Stats {
	st := Stats{
		StartedAt:       time.Unix(0, s.startedAtUnixNano).UTC(),
		OrdersCreated:   s.ordersCreated.Load(),
		OrdersCompleted: s.ordersCompleted.Load(),
		Accepts:         s.accepts.Load(),
		LostRaces:       s.lostRaces.Load(),
		Declines:        s.declines.Load(),
		Deliveries:      s.deliveries.Load(),
		Reports:         s.reports.Load(),
		Errors:          s.errorsTotal.Load(),
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Simulator) fail(agent string, err error) {
	s.errorsTotal.Add(1)
	s.lastErrorMu.Lock()
	s.lastError = err.Error()
	s.lastErrorMu.Unlock()
	slog.Warn("autoplay agent step failed", "agent", agent, "error", err.Error())
}

func (s *Simulator) rand(n int) Rand {
	return rand.New(rand.NewSource(s.seed + int64(n)))
}

// Run registers the drivers, starts the enabled agents and blocks until ctx
// is done. Agents never give up: a failed step is counted and retried.
func (s *Simulator) Run(ctx context.Context) error {
	var settings region.Settings
	if err := NewClient(s.doer, "manager:0").get(ctx, "/api/config", &settings); err != nil {
		return errors.Wrap(err, "load config")
	}

	drivers, err := s.registerDrivers(ctx, settings)
	if err != nil {
		return err
	}
	slog.Info("autoplay drivers registered", "count", len(drivers))

	var wg sync.WaitGroup
	if s.cfg.Drivers {
		for i, d := range drivers {
			if d.State != models.DriverStateWorking {
				continue
			}
			a := &driverAgent{sim: s, id: d.ID, client: NewClient(s.doer, fmt.Sprintf("driver:%d", d.ID)), rnd: s.rand(i)}
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.loop(ctx, fmt.Sprintf("driver-%d", a.id), 0, a.rnd, a.runOnce)
			}()
		}
	}
	if s.cfg.Orders {
		for i := 0; i < s.cfg.OrderAgents; i++ {
			a := &orderAgent{sim: s, client: NewClient(s.doer, fmt.Sprintf("client:%d", i+1)), rnd: s.rand(100 + i)}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				s.loop(ctx, fmt.Sprintf("customer-%d", i+1), s.cfg.OrderWait, a.rnd, a.runOnce)
			}(i)
		}
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (s *Simulator) loop(ctx context.Context, agent string, pause time.Duration, rnd Rand, step func(context.Context) error) {
	for {
		if err := sleep(ctx, randDuration(rnd, pause)); err != nil {
			return
		}
		if err := step(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.fail(agent, err)
			// a failing dispatcher should not be hammered
			if err := sleep(ctx, time.Second); err != nil {
				return
			}
		}
	}
}

func (s *Simulator) registerDrivers(ctx context.Context, settings region.Settings) ([]*models.Driver, error) {
	rnd := s.rand(-1)
	bound := regionBound(settings)
	// registration lives under the driver role; any driver identity may register
	registrar := NewClient(s.doer, "driver:0")

	out := make([]*models.Driver, 0, len(driverProfiles))
	for _, p := range driverProfiles {
		var d models.Driver
		if err := registrar.post(ctx, "/api/driver/self", map[string]any{"name": p.name, "state": p.state}, &d); err != nil {
			return nil, errors.Wrapf(err, "register driver %s", p.name)
		}
		pos := randomPoint(bound, rnd)
		if err := NewClient(s.doer, fmt.Sprintf("driver:%d", d.ID)).post(ctx, "/api/driver/track", map[string]any{"position": pos}, nil); err != nil {
			return nil, errors.Wrapf(err, "initial position of driver %d", d.ID)
		}
		out = append(out, &d)
	}
	return out, nil
}

func randDuration(rnd Rand, limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rnd.Float64() * float64(limit))
}
