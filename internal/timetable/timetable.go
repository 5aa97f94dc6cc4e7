// Package timetable holds the Timetable Store (component A): the
// immutable, contiguous representation of stops, trips, routes,
// shapes and footpaths, plus the derived indices the RAPTOR engine
// needs to run a query without any further lookups.
//
// A Store is built once from a feed snapshot and is never mutated
// afterwards. A new snapshot is adopted by building a fresh Store and
// atomically swapping a holder's pointer to it (see Swap below); there
// is no in-place mutation of any entity while queries are in flight.
package timetable

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/antigravity/transitraptor/internal/footpath"
	"github.com/antigravity/transitraptor/internal/model"
)

// RoutePosition names the (route, position) pair a stop appears at.
// A stop that appears at multiple positions of the same route (a
// loop route) gets one entry per appearance.
type RoutePosition struct {
	RouteID  string
	Position int
}

// Store is the frozen, read-only timetable. All fields are populated
// once by Build and never mutated again.
type Store struct {
	stops  map[string]model.Stop
	trips  map[string]model.Trip
	routes map[string]model.Route
	shapes map[string][]model.LatLon

	// stopRoutes maps a stop id to every (route, position) at which
	// it is served.
	stopRoutes map[string][]RoutePosition

	// routeDepartures[routeID][pos] is the dense, ascending column of
	// departure times used to binary-search the earliest boardable
	// trip. It is parallel to routes[routeID].TripIDs.
	routeDepartures map[string][][]model.Seconds

	// stopCoords is a flat, index-aligned list used by NearestStops.
	stopCoords []footpath.StopCoord
}

// Stop returns the stop with the given id and whether it exists.
func (s *Store) Stop(id string) (model.Stop, bool) {
	st, ok := s.stops[id]
	return st, ok
}

// Trip returns the trip with the given id and whether it exists.
func (s *Store) Trip(id string) (model.Trip, bool) {
	t, ok := s.trips[id]
	return t, ok
}

// Route returns the routing-route with the given id and whether it
// exists.
func (s *Store) Route(id string) (model.Route, bool) {
	r, ok := s.routes[id]
	return r, ok
}

// Shape returns the ordered polyline for a shape id, if any.
func (s *Store) Shape(id string) ([]model.LatLon, bool) {
	pts, ok := s.shapes[id]
	return pts, ok
}

// RoutesServing returns every (route, position) at which stopID is
// served.
func (s *Store) RoutesServing(stopID string) []RoutePosition {
	return s.stopRoutes[stopID]
}

// DeparturesAt returns the dense, ascending departure-time column for
// a route at the given stop position, parallel to the route's
// TripIDs.
func (s *Store) DeparturesAt(routeID string, pos int) []model.Seconds {
	cols := s.routeDepartures[routeID]
	if pos < 0 || pos >= len(cols) {
		return nil
	}
	return cols[pos]
}

// NumStops reports how many stops the store holds, mostly useful for
// sizing per-query scratch arrays.
func (s *Store) NumStops() int {
	return len(s.stops)
}

// StopIDs returns every stop id known to the store, in no particular
// order.
func (s *Store) StopIDs() []string {
	ids := make([]string, 0, len(s.stops))
	for id := range s.stops {
		ids = append(ids, id)
	}
	return ids
}

// NearestStops returns stops within the store ordered by distance
// from (lat, lon), nearest first. If limit > 0, at most limit results
// are returned. This is a supplemented feature (SPEC_FULL.md section
// 4): it reuses the same haversine distance the footpath builder
// uses, rather than a second spatial structure.
func (s *Store) NearestStops(lat, lon float64, limit int) []model.Stop {
	type scored struct {
		stop model.Stop
		dist float64
	}

	results := make([]scored, 0, len(s.stopCoords))
	for _, c := range s.stopCoords {
		d := footpath.Haversine(lat, lon, c.Lat, c.Lon)
		st := s.stops[c.ID]
		results = append(results, scored{stop: st, dist: d})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })

	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}

	out := make([]model.Stop, len(results))
	for i, r := range results {
		out[i] = r.stop
	}
	return out
}

// Build assembles a frozen Store from already-parsed entities. Stops
// are expected to already carry their footpaths (see footpath.Build),
// trips to already satisfy the parallel-array invariants from
// spec.md section 3, and routes to already satisfy the no-overtaking
// invariant (split upstream in the feed loader, per spec.md section
// 9). Build performs a final verification pass of the no-overtaking
// invariant and returns an error if it is violated, since an
// undetected violation would silently break the engine's
// binary-search-on-column optimisation.
func Build(stops []model.Stop, trips []model.Trip, routes []model.Route, shapes []model.Shape) (*Store, error) {
	store := &Store{
		stops:           make(map[string]model.Stop, len(stops)),
		trips:           make(map[string]model.Trip, len(trips)),
		routes:          make(map[string]model.Route, len(routes)),
		shapes:          make(map[string][]model.LatLon, len(shapes)),
		stopRoutes:      make(map[string][]RoutePosition),
		routeDepartures: make(map[string][][]model.Seconds, len(routes)),
		stopCoords:      make([]footpath.StopCoord, 0, len(stops)),
	}

	for _, st := range stops {
		store.stops[st.ID] = st
		store.stopCoords = append(store.stopCoords, footpath.StopCoord{ID: st.ID, Lat: st.Coord.Lat, Lon: st.Coord.Lon})
	}
	for _, t := range trips {
		store.trips[t.ID] = t
	}
	for _, sh := range shapes {
		store.shapes[sh.ID] = sh.Points
	}

	for _, r := range routes {
		if err := verifyNoOvertaking(r, store.trips); err != nil {
			return nil, fmt.Errorf("route %s: %w", r.ID, err)
		}

		store.routes[r.ID] = r

		for pos, stopID := range r.StopSeq {
			store.stopRoutes[stopID] = append(store.stopRoutes[stopID], RoutePosition{RouteID: r.ID, Position: pos})
		}

		columns := make([][]model.Seconds, len(r.StopSeq))
		for pos := range r.StopSeq {
			col := make([]model.Seconds, len(r.TripIDs))
			for i, tripID := range r.TripIDs {
				trip := store.trips[tripID]
				if pos >= len(trip.DepartureTime) {
					return nil, fmt.Errorf("route %s: trip %s shorter than route stop sequence", r.ID, tripID)
				}
				col[i] = trip.DepartureTime[pos]
			}
			columns[pos] = col
		}
		store.routeDepartures[r.ID] = columns
	}

	return store, nil
}

// verifyNoOvertaking checks spec.md section 3's invariant: for any
// two trips i < j in the route and any position p,
// departure_i[p] <= departure_j[p] and arrival_i[p] <= arrival_j[p].
// Route.TripIDs is expected to already be sorted by departure_time[0]
// ascending.
func verifyNoOvertaking(r model.Route, trips map[string]model.Trip) error {
	for p := range r.StopSeq {
		prevDep := model.Seconds(math.MinInt64)
		prevArr := model.Seconds(math.MinInt64)
		for _, tripID := range r.TripIDs {
			t, ok := trips[tripID]
			if !ok {
				return fmt.Errorf("unknown trip id %s", tripID)
			}
			if p >= len(t.DepartureTime) || p >= len(t.ArrivalTime) {
				return fmt.Errorf("trip %s missing stop position %d", tripID, p)
			}
			if t.DepartureTime[p] < prevDep || t.ArrivalTime[p] < prevArr {
				return fmt.Errorf("no-overtaking invariant violated at position %d by trip %s", p, tripID)
			}
			prevDep = t.DepartureTime[p]
			prevArr = t.ArrivalTime[p]
		}
	}
	return nil
}

// Holder lets a long-lived router swap to a new Store atomically, as
// required by spec.md sections 3 and 5: "A store replacement is
// achieved by constructing a new instance and atomically swapping the
// router's reference." Old instances remain valid for any query still
// referencing them; there is no in-place mutation.
type Holder struct {
	ptr atomic.Pointer[Store]
}

func NewHolder(initial *Store) *Holder {
	h := &Holder{}
	h.ptr.Store(initial)
	return h
}

// Load returns the currently active Store.
func (h *Holder) Load() *Store {
	return h.ptr.Load()
}

// Swap atomically replaces the active Store with next.
func (h *Holder) Swap(next *Store) {
	h.ptr.Store(next)
}
