package main

import (
	"log/slog"

	"github.com/BearBump/DispatchBox/internal/services/autoplay"
	"github.com/robfig/cron/v3"
)

const defaultStatsSchedule = "@every 30s"

// statsJob logs the simulator counters on a cron schedule.
type statsJob struct {
	sim  *autoplay.Simulator
	cron *cron.Cron
}

func newStatsJob(sim *autoplay.Simulator) *statsJob {
	return &statsJob{sim: sim, cron: cron.New()}
}

func (j *statsJob) Start(schedule string) error {
	if schedule == "" {
		schedule = defaultStatsSchedule
	}
	if _, err := j.cron.AddFunc(schedule, j.log); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

func (j *statsJob) log() {
	s := j.sim.Stats()
	slog.Info("autoplay stats",
		"orders_created", s.OrdersCreated,
		"orders_completed", s.OrdersCompleted,
		"accepts", s.Accepts,
		"lost_races", s.LostRaces,
		"declines", s.Declines,
		"deliveries", s.Deliveries,
		"reports", s.Reports,
		"errors", s.Errors,
	)
}

func (j *statsJob) Stop() {
	<-j.cron.Stop().Done()
}
