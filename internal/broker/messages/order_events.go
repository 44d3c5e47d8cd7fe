package messages

import (
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

const (
	TopicOrderStateChanged = "dispatch.order.state_changed"
	TopicDriverPositions   = "dispatch.driver.positions"
)

type OrderStateChanged struct {
	EventID  string    `json:"event_id"`
	OrderID  int64     `json:"order_id"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	DriverID *int64    `json:"driver_id,omitempty"`
	At       time.Time `json:"at"`
}

func NewOrderStateChanged(orderID int64, from, to string, driverID *int64, at time.Time) OrderStateChanged {
	return OrderStateChanged{
		EventID:  uuid.NewString(),
		OrderID:  orderID,
		From:     from,
		To:       to,
		DriverID: driverID,
		At:       at.UTC(),
	}
}

// DriverPositionReported is a position report arriving from outside the
// process; it is applied exactly like POST /api/driver/orders/:id/track.
type DriverPositionReported struct {
	DriverID int64     `json:"driver_id"`
	OrderID  int64     `json:"order_id"`
	Position orb.Point `json:"position"`
	At       time.Time `json:"at"`
}
