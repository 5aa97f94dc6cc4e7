// Package model holds the external-facing value types shared by every
// component of the routing engine: stops, trips, routes, shapes,
// footpaths and the journeys a query returns.
package model

// Seconds is a count of seconds since the start of the service day.
// Values may exceed 86400 to encode post-midnight service; the engine
// never wraps at 86400, only a presentation layer may.
type Seconds int64

// LatLon is a geographic coordinate in decimal degrees.
type LatLon struct {
	Lat float64
	Lon float64
}

// Stop is a boarding location with fixed coordinates and a list of
// directional walking edges to nearby stops.
type Stop struct {
	ID        string
	Name      string
	Coord     LatLon
	Footpaths []Footpath
}

// Footpath is a directional walk edge from the owning stop to
// Neighbor, taking Duration seconds. The builder emits the reverse
// edge on the neighbor separately so footpaths end up symmetric.
type Footpath struct {
	Neighbor string
	Duration Seconds
}

// Trip is a single scheduled vehicle run through an ordered stop
// list. ArrivalTime, DepartureTime and Stop are parallel slices
// indexed by stop-position: ArrivalTime[p] <= DepartureTime[p]
// (dwell) and DepartureTime[p] <= ArrivalTime[p+1] (monotone).
type Trip struct {
	ID            string
	RouteID       string
	ShapeID       string
	Stop          []string
	ArrivalTime   []Seconds
	DepartureTime []Seconds
}

// Route is a routing-route: a maximal set of trips sharing an
// identical stop sequence (not the feed's marketing "route"). TripIDs
// is sorted by DepartureTime[0] ascending.
type Route struct {
	ID        string
	Name      string
	AgencyID  string
	StopSeq   []string
	TripIDs   []string
}

// Shape is an ordered polyline describing a vehicle's on-street
// geometry.
type Shape struct {
	ID     string
	Points []LatLon
}

// Leg is either a LegTransit or a LegWalk segment of a Journey.
type Leg struct {
	Type string // "transit" or "walk"

	// Common fields.
	FromStopID string
	ToStopID   string
	Departure  Seconds
	Arrival    Seconds

	// Transit-only fields, zero value otherwise.
	TripID    string
	RouteID   string
	RouteName string
	AgencyID  string
	ShapeID   string
	Shape     []LatLon // populated only when shape slicing was requested
}

const (
	LegTypeTransit = "transit"
	LegTypeWalk    = "walk"
)

// Journey is a complete, Pareto-optimal itinerary from one query.
type Journey struct {
	Arrival      Seconds
	NumTransfers int
	Legs         []Leg
}

// Departure returns the departure time of the journey's first leg.
func (j Journey) Departure() Seconds {
	if len(j.Legs) == 0 {
		return 0
	}
	return j.Legs[0].Departure
}
