package models

import (
	"encoding/json"
	"time"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

type OrderState string

const (
	OrderStateDraft      OrderState = "draft"
	OrderStateNew        OrderState = "new"
	OrderStateAccepted   OrderState = "accepted"
	OrderStateDelivering OrderState = "delivering"
	OrderStateDelivered  OrderState = "delivered"
	OrderStateCompleted  OrderState = "completed"
)

// OrderStates lists the lifecycle in its only valid order.
var OrderStates = []OrderState{
	OrderStateDraft, OrderStateNew, OrderStateAccepted,
	OrderStateDelivering, OrderStateDelivered, OrderStateCompleted,
}

// Next returns the state that directly follows s.
func (s OrderState) Next() (OrderState, bool) {
	for i, st := range OrderStates {
		if st == s && i+1 < len(OrderStates) {
			return OrderStates[i+1], true
		}
	}
	return "", false
}

type OrderType string

const (
	OrderTypeDelivery  OrderType = "delivery"
	OrderTypePickpoint OrderType = "pickpoint"
	OrderTypeAddress   OrderType = "address"
)

func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeDelivery, OrderTypePickpoint, OrderTypeAddress:
		return true
	}
	return false
}

type DeliveryType string

const (
	DeliveryTypeUsual   DeliveryType = "usual"
	DeliveryTypeExpress DeliveryType = "express"
	DeliveryTypeDay     DeliveryType = "day"
)

type Waypoint struct {
	Coordinates orb.Point `json:"coordinates"`
	Description string    `json:"description"`
}

type Product struct {
	Image       string  `json:"image,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

type Order struct {
	ID          int64      `json:"id"`
	State       OrderState `json:"state"`
	Type        OrderType  `json:"type,omitempty"`
	Description string     `json:"description"`
	Meta        OrderMeta  `json:"meta"`
	Waypoints   []Waypoint `json:"waypoints"`
	DriverID    *int64     `json:"driver_id"`
	CreatedAt   time.Time  `json:"created_at"`

	PlannedRouteMeta *RouteMeta `json:"plannedRouteMeta"`
	ActualRouteMeta  *RouteMeta `json:"actualRouteMeta"`
}

// OwnedBy reports whether the order is assigned to driverID.
func (o *Order) OwnedBy(driverID int64) bool {
	return o.DriverID != nil && *o.DriverID == driverID
}

// Fulfillment is the type-specific part of an order's metadata.
// Exactly one variant exists per OrderType.
type Fulfillment interface {
	Kind() OrderType
}

type DeliveryFulfillment struct{}

type PickpointFulfillment struct {
	WarehouseID int64
	PickpointID int64
}

type AddressFulfillment struct {
	WarehouseID int64
	Destination orb.Point
}

func (DeliveryFulfillment) Kind() OrderType  { return OrderTypeDelivery }
func (PickpointFulfillment) Kind() OrderType { return OrderTypePickpoint }
func (AddressFulfillment) Kind() OrderType   { return OrderTypeAddress }

type OrderMeta struct {
	Products     []Product
	TotalAmount  float64
	Autoplay     bool
	Surge        *float64
	DeliveryType DeliveryType
	Fulfillment  Fulfillment
}

type orderMetaJSON struct {
	Products     []Product    `json:"products"`
	TotalAmount  float64      `json:"totalAmount"`
	Autoplay     bool         `json:"autoplay,omitempty"`
	Surge        *float64     `json:"surge,omitempty"`
	DeliveryType DeliveryType `json:"deliveryType,omitempty"`

	Fulfillment OrderType  `json:"fulfillment,omitempty"`
	Warehouse   *int64     `json:"warehouse,omitempty"`
	Pickpoint   *int64     `json:"pickpoint,omitempty"`
	Destination *orb.Point `json:"destination,omitempty"`
}

func (m OrderMeta) MarshalJSON() ([]byte, error) {
	out := orderMetaJSON{
		Products:     m.Products,
		TotalAmount:  m.TotalAmount,
		Autoplay:     m.Autoplay,
		Surge:        m.Surge,
		DeliveryType: m.DeliveryType,
	}
	if out.Products == nil {
		out.Products = []Product{}
	}
	switch f := m.Fulfillment.(type) {
	case DeliveryFulfillment:
		out.Fulfillment = f.Kind()
	case PickpointFulfillment:
		out.Fulfillment = f.Kind()
		out.Warehouse = &f.WarehouseID
		out.Pickpoint = &f.PickpointID
	case AddressFulfillment:
		out.Fulfillment = f.Kind()
		out.Warehouse = &f.WarehouseID
		out.Destination = &f.Destination
	}
	return json.Marshal(out)
}

func (m *OrderMeta) UnmarshalJSON(b []byte) error {
	var in orderMetaJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return errors.Wrap(err, "decode order meta")
	}
	*m = OrderMeta{
		Products:     in.Products,
		TotalAmount:  in.TotalAmount,
		Autoplay:     in.Autoplay,
		Surge:        in.Surge,
		DeliveryType: in.DeliveryType,
	}
	switch in.Fulfillment {
	case "":
	case OrderTypeDelivery:
		m.Fulfillment = DeliveryFulfillment{}
	case OrderTypePickpoint:
		if in.Warehouse == nil || in.Pickpoint == nil {
			return errors.New("pickpoint fulfillment requires warehouse and pickpoint")
		}
		m.Fulfillment = PickpointFulfillment{WarehouseID: *in.Warehouse, PickpointID: *in.Pickpoint}
	case OrderTypeAddress:
		if in.Warehouse == nil || in.Destination == nil {
			return errors.New("address fulfillment requires warehouse and destination")
		}
		m.Fulfillment = AddressFulfillment{WarehouseID: *in.Warehouse, Destination: *in.Destination}
	default:
		return errors.Errorf("unknown fulfillment %q", in.Fulfillment)
	}
	return nil
}
