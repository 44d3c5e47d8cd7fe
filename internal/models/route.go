package models

import "github.com/paulmach/orb"

type RouteType string

const (
	RouteTypeDriving   RouteType = "driving"
	RouteTypeWalking   RouteType = "walking"
	RouteTypePlanned   RouteType = "planned"
	RouteTypeArrival   RouteType = "arrival"
	RouteTypeActual    RouteType = "actual"
	RouteTypeRemaining RouteType = "remaining"
)

func (t RouteType) Valid() bool {
	switch t {
	case RouteTypeDriving, RouteTypeWalking, RouteTypePlanned,
		RouteTypeArrival, RouteTypeActual, RouteTypeRemaining:
		return true
	}
	return false
}

// Candidate reports whether t is one of the routes offered before finalization.
func (t RouteType) Candidate() bool {
	return t == RouteTypeDriving || t == RouteTypeWalking
}

type RouteMode string

const (
	RouteModeDriving RouteMode = "driving"
	RouteModeWalking RouteMode = "walking"
)

type RouteMeta struct {
	Type      RouteType  `json:"type"`
	UpdatedAt string     `json:"updatedAt"`
	Price     float64    `json:"price"`
	Duration  float64    `json:"duration"`
	Distance  float64    `json:"distance"`
	Waypoints []Waypoint `json:"waypoints"`
	Mode      RouteMode  `json:"mode"`
}

type Route struct {
	Type    RouteType   `json:"type"`
	OrderID int64       `json:"order_id"`
	Meta    RouteMeta   `json:"meta"`
	Points  []orb.Point `json:"points"`
}

// Clone returns a deep copy, so splicing never aliases stored slices.
func (r *Route) Clone() *Route {
	out := *r
	out.Points = append([]orb.Point{}, r.Points...)
	out.Meta.Waypoints = append([]Waypoint{}, r.Meta.Waypoints...)
	return &out
}

// RouterResult is what a routing provider returns for a waypoint sequence.
type RouterResult struct {
	Points   []orb.Point `json:"points"`
	Duration float64     `json:"duration"`
	Distance float64     `json:"distance"`
	Mode     RouteMode   `json:"mode"`
}
