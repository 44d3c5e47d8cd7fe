package models

import (
	"time"

	"github.com/paulmach/orb"
)

type PickpointFeatures struct {
	Card   bool `json:"card"`
	Return bool `json:"return"`
}

type Pickpoint struct {
	ID          int64             `json:"id"`
	Description string            `json:"description"`
	Features    PickpointFeatures `json:"features"`
	Position    orb.Point         `json:"position"`
}

type Warehouse struct {
	ID       int64     `json:"id"`
	Position orb.Point `json:"position"`
}

// Track is one row of the append-only position log.
type Track struct {
	ID       int64     `json:"id"`
	TS       time.Time `json:"ts"`
	DriverID int64     `json:"driver_id"`
	OrderID  int64     `json:"order_id"`
	Position orb.Point `json:"position"`
	Geohash  string    `json:"geohash"`
}
