package models

import "github.com/paulmach/orb"

type DriverState string

const (
	DriverStateWorking  DriverState = "working"
	DriverStateIllness  DriverState = "illness"
	DriverStateVacation DriverState = "vacation"
	DriverStateWeekend  DriverState = "weekend"
)

type Driver struct {
	ID       int64       `json:"id"`
	Name     string      `json:"name"`
	Position *orb.Point  `json:"position"`
	State    DriverState `json:"state"`
	Avatar   *string     `json:"avatar,omitempty"`
}

type DriverCreateInput struct {
	Name   string
	State  DriverState
	Avatar *string
}
