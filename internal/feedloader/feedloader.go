// Package feedloader assembles the Timetable Store's raw entities
// (component B) from one or more GTFS-shaped feed zips. Grounded on
// tidbyt-gtfs's parse package: zip traversal (parse.go), the
// CSV-struct-tag row shapes (stops.go, routes.go, trips.go), and the
// H:M:S time parser (stop_times.go) — generalized so every table, not
// only stop_times, skips rows with missing ids, unknown references or
// bad times with a diagnostic rather than aborting the whole feed
// (spec.md section 4.1's failure contract). A cell that cannot be
// decoded into its row field's type (see readTable) still fails the
// whole table.
package feedloader

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/spkg/bom"

	"github.com/antigravity/transitraptor/internal/diagnostics"
	"github.com/antigravity/transitraptor/internal/model"
)

func init() {
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})
}

// Config holds the optional peripheral filtering from spec.md section
// 4.1 item 7.
type Config struct {
	// FilterEnabled, when true, drops trips whose departure_time[0]
	// falls outside [FilterLo, FilterHi].
	FilterEnabled bool
	FilterLo      model.Seconds
	FilterHi      model.Seconds
}

type stopRow struct {
	ID   string  `csv:"stop_id"`
	Name string  `csv:"stop_name"`
	Lat  float64 `csv:"stop_lat"`
	Lon  float64 `csv:"stop_lon"`
}

type routeRow struct {
	ID        string `csv:"route_id"`
	AgencyID  string `csv:"agency_id"`
	ShortName string `csv:"route_short_name"`
	LongName  string `csv:"route_long_name"`
}

type tripRow struct {
	RouteID string `csv:"route_id"`
	TripID  string `csv:"trip_id"`
	ShapeID string `csv:"shape_id"`
}

type stopTimeRow struct {
	TripID        string `csv:"trip_id"`
	StopID        string `csv:"stop_id"`
	StopSequence  int    `csv:"stop_sequence"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
}

type shapeRow struct {
	ShapeID  string  `csv:"shape_id"`
	Lat      float64 `csv:"shape_pt_lat"`
	Lon      float64 `csv:"shape_pt_lon"`
	Sequence int     `csv:"shape_pt_sequence"`
}

// LoadFeed parses one feed's zip bytes, namespacing every identifier
// with operator (spec.md section 4.1 item 1). Missing required files
// skip the whole feed (nil results, nil error) rather than failing
// the overall load, per spec.md section 4.1's failure contract.
func LoadFeed(operator string, zipData []byte, cfg Config, diag *diagnostics.Collector) ([]model.Stop, []model.Trip, []model.Route, []model.Shape, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return nil, nil, nil, nil, errors.Wrapf(err, "opening feed %s", operator)
	}

	files := map[string]*zip.File{}
	for _, f := range zr.File {
		name := f.Name
		if idx := strings.LastIndex(name, "/"); idx >= 0 {
			name = name[idx+1:]
		}
		files[name] = f
	}

	for _, required := range []string{"stops.txt", "routes.txt", "trips.txt", "stop_times.txt"} {
		if files[required] == nil {
			diag.Addf(required, 0, "feed %s is missing this file, skipping feed", operator)
			return nil, nil, nil, nil, nil
		}
	}

	stopRows, err := readTable[stopRow](files["stops.txt"])
	if err != nil {
		return nil, nil, nil, nil, errors.Wrapf(err, "feed %s: stops.txt", operator)
	}
	routeRows, err := readTable[routeRow](files["routes.txt"])
	if err != nil {
		return nil, nil, nil, nil, errors.Wrapf(err, "feed %s: routes.txt", operator)
	}
	tripRows, err := readTable[tripRow](files["trips.txt"])
	if err != nil {
		return nil, nil, nil, nil, errors.Wrapf(err, "feed %s: trips.txt", operator)
	}
	stopTimeRows, err := readTable[stopTimeRow](files["stop_times.txt"])
	if err != nil {
		return nil, nil, nil, nil, errors.Wrapf(err, "feed %s: stop_times.txt", operator)
	}
	var shapeRows []*shapeRow
	if files["shapes.txt"] != nil {
		shapeRows, err = readTable[shapeRow](files["shapes.txt"])
		if err != nil {
			return nil, nil, nil, nil, errors.Wrapf(err, "feed %s: shapes.txt", operator)
		}
	}

	stops, stopIDs := buildStops(operator, stopRows, diag)
	feedRoutes := buildFeedRoutes(operator, routeRows, diag)
	tripMeta := buildTripMeta(operator, tripRows, feedRoutes, diag)
	shapes := buildShapes(operator, shapeRows, diag)

	trips := assembleTrips(operator, stopTimeRows, tripMeta, stopIDs, diag)
	if cfg.FilterEnabled {
		trips = filterByWindow(trips, cfg.FilterLo, cfg.FilterHi)
	}

	routes := deriveRoutes(trips, tripMeta, feedRoutes)

	return stops, trips, routes, shapes, nil
}

// readTable unmarshals a zip member into row structs using gocsv's
// lazy, BOM-tolerant reader. Any gocsv error aborts the table: a bad
// header or truncated file, and also a single cell gocsv cannot convert
// to its field's type (for example a non-numeric stop_lat or
// stop_sequence). Other row-level problems (empty ids, unknown
// references, unparseable times) are handled afterwards by the builder
// functions below, which skip-and-diagnose instead of failing the table.
func readTable[T any](f *zip.File) ([]*T, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var rows []*T
	if err := gocsv.Unmarshal(rc, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func namespaced(operator, id string) string {
	return operator + ":" + id
}

func buildStops(operator string, rows []*stopRow, diag *diagnostics.Collector) ([]model.Stop, map[string]bool) {
	stops := make([]model.Stop, 0, len(rows))
	ids := make(map[string]bool, len(rows))

	for i, r := range rows {
		if r.ID == "" {
			diag.Addf("stops.txt", i, "empty stop_id, skipping row")
			continue
		}
		if r.Lat == 0 && r.Lon == 0 {
			diag.Addf("stops.txt", i, "stop %s has zero lat/lon, skipping row", r.ID)
			continue
		}
		id := namespaced(operator, r.ID)
		if ids[id] {
			diag.Addf("stops.txt", i, "repeated stop_id %s, skipping row", r.ID)
			continue
		}
		ids[id] = true
		stops = append(stops, model.Stop{
			ID:    id,
			Name:  r.Name,
			Coord: model.LatLon{Lat: r.Lat, Lon: r.Lon},
		})
	}

	return stops, ids
}

type feedRoute struct {
	AgencyID  string
	Name      string
}

func buildFeedRoutes(operator string, rows []*routeRow, diag *diagnostics.Collector) map[string]feedRoute {
	out := make(map[string]feedRoute, len(rows))
	for i, r := range rows {
		if r.ID == "" {
			diag.Addf("routes.txt", i, "empty route_id, skipping row")
			continue
		}
		name := r.ShortName
		if name == "" {
			name = r.LongName
		}
		out[namespaced(operator, r.ID)] = feedRoute{AgencyID: r.AgencyID, Name: name}
	}
	return out
}

type tripMetaEntry struct {
	RouteID string
	ShapeID string
}

func buildTripMeta(operator string, rows []*tripRow, feedRoutes map[string]feedRoute, diag *diagnostics.Collector) map[string]tripMetaEntry {
	out := make(map[string]tripMetaEntry, len(rows))
	for i, r := range rows {
		if r.TripID == "" {
			diag.Addf("trips.txt", i, "empty trip_id, skipping row")
			continue
		}
		routeID := namespaced(operator, r.RouteID)
		if _, ok := feedRoutes[routeID]; !ok {
			diag.Addf("trips.txt", i, "trip %s references unknown route_id %s, skipping row", r.TripID, r.RouteID)
			continue
		}
		shapeID := ""
		if r.ShapeID != "" {
			shapeID = namespaced(operator, r.ShapeID)
		}
		out[namespaced(operator, r.TripID)] = tripMetaEntry{RouteID: routeID, ShapeID: shapeID}
	}
	return out
}

func buildShapes(operator string, rows []*shapeRow, diag *diagnostics.Collector) []model.Shape {
	if len(rows) == 0 {
		return nil
	}

	type point struct {
		seq int
		pt  model.LatLon
	}
	byShape := make(map[string][]point)

	for i, r := range rows {
		if r.ShapeID == "" {
			diag.Addf("shapes.txt", i, "empty shape_id, skipping row")
			continue
		}
		id := namespaced(operator, r.ShapeID)
		byShape[id] = append(byShape[id], point{seq: r.Sequence, pt: model.LatLon{Lat: r.Lat, Lon: r.Lon}})
	}

	shapes := make([]model.Shape, 0, len(byShape))
	for id, pts := range byShape {
		sort.Slice(pts, func(i, j int) bool { return pts[i].seq < pts[j].seq })
		points := make([]model.LatLon, len(pts))
		for i, p := range pts {
			points[i] = p.pt
		}
		shapes = append(shapes, model.Shape{ID: id, Points: points})
	}
	sort.Slice(shapes, func(i, j int) bool { return shapes[i].ID < shapes[j].ID })
	return shapes
}

// assembleTrips groups stop_times rows by trip, sorts each group by
// stop_sequence, and converts the result into the three parallel
// arrays a Trip carries (spec.md section 4.1 items 2-3).
func assembleTrips(operator string, rows []*stopTimeRow, tripMeta map[string]tripMetaEntry, stopIDs map[string]bool, diag *diagnostics.Collector) []model.Trip {
	type row struct {
		seq       int
		stopID    string
		arrival   model.Seconds
		departure model.Seconds
	}
	byTrip := make(map[string][]row)

	for i, r := range rows {
		tripID := namespaced(operator, r.TripID)
		if _, ok := tripMeta[tripID]; !ok {
			diag.Addf("stop_times.txt", i, "stop_time references unknown trip_id %s, skipping row", r.TripID)
			continue
		}
		stopID := namespaced(operator, r.StopID)
		if !stopIDs[stopID] {
			diag.Addf("stop_times.txt", i, "stop_time references unknown stop_id %s, skipping row", r.StopID)
			continue
		}

		arrival, err := parseGTFSTime(r.ArrivalTime)
		if err != nil {
			diag.Addf("stop_times.txt", i, "bad arrival_time %q for trip %s: %v, skipping row", r.ArrivalTime, r.TripID, err)
			continue
		}
		departure, err := parseGTFSTime(r.DepartureTime)
		if err != nil {
			diag.Addf("stop_times.txt", i, "bad departure_time %q for trip %s: %v, skipping row", r.DepartureTime, r.TripID, err)
			continue
		}

		byTrip[tripID] = append(byTrip[tripID], row{seq: r.StopSequence, stopID: stopID, arrival: arrival, departure: departure})
	}

	trips := make([]model.Trip, 0, len(byTrip))
	for tripID, rs := range byTrip {
		sort.Slice(rs, func(i, j int) bool { return rs[i].seq < rs[j].seq })

		dup := false
		for i := 1; i < len(rs); i++ {
			if rs[i].seq == rs[i-1].seq {
				diag.Addf("stop_times.txt", 0, "duplicate stop_sequence %d for trip %s, skipping trip", rs[i].seq, tripID)
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		if len(rs) < 2 {
			diag.Addf("stop_times.txt", 0, "trip %s has fewer than 2 usable stop_times, skipping trip", tripID)
			continue
		}

		monotone := true
		for i, r := range rs {
			if r.arrival > r.departure {
				diag.Addf("stop_times.txt", 0, "trip %s: arrival after departure at stop_sequence %d, skipping trip", tripID, r.seq)
				monotone = false
				break
			}
			if i > 0 && rs[i-1].departure > r.arrival {
				diag.Addf("stop_times.txt", 0, "trip %s: non-monotone times between stop_sequence %d and %d, skipping trip", tripID, rs[i-1].seq, r.seq)
				monotone = false
				break
			}
		}
		if !monotone {
			continue
		}

		meta := tripMeta[tripID]
		trip := model.Trip{
			ID:            tripID,
			RouteID:       meta.RouteID,
			ShapeID:       meta.ShapeID,
			Stop:          make([]string, len(rs)),
			ArrivalTime:   make([]model.Seconds, len(rs)),
			DepartureTime: make([]model.Seconds, len(rs)),
		}
		for i, r := range rs {
			trip.Stop[i] = r.stopID
			trip.ArrivalTime[i] = r.arrival
			trip.DepartureTime[i] = r.departure
		}
		trips = append(trips, trip)
	}

	sort.Slice(trips, func(i, j int) bool { return trips[i].ID < trips[j].ID })
	return trips
}

func filterByWindow(trips []model.Trip, lo, hi model.Seconds) []model.Trip {
	out := trips[:0:0]
	for _, t := range trips {
		if len(t.DepartureTime) == 0 {
			continue
		}
		d := t.DepartureTime[0]
		if d < lo || d > hi {
			continue
		}
		out = append(out, t)
	}
	return out
}

// deriveRoutes clusters trips by (feed-route-id, stop-sequence tuple)
// into routing-routes, then splits each cluster into the minimum
// number of no-overtaking-safe sub-routes (spec.md section 4.1 item 4
// and section 9's auto-split note).
func deriveRoutes(trips []model.Trip, tripMeta map[string]tripMetaEntry, feedRoutes map[string]feedRoute) []model.Route {
	type cluster struct {
		routeID string
		stopSeq []string
		trips   []model.Trip
	}
	clusters := make(map[string]*cluster)
	var order []string

	for _, t := range trips {
		meta := tripMeta[t.ID]
		key := meta.RouteID + "|" + strings.Join(t.Stop, ",")
		c, ok := clusters[key]
		if !ok {
			c = &cluster{routeID: meta.RouteID, stopSeq: t.Stop}
			clusters[key] = c
			order = append(order, key)
		}
		c.trips = append(c.trips, t)
	}

	var routes []model.Route
	for _, key := range order {
		c := clusters[key]
		sort.Slice(c.trips, func(i, j int) bool { return c.trips[i].DepartureTime[0] < c.trips[j].DepartureTime[0] })

		chains := splitNoOvertaking(c.trips)
		meta := feedRoutes[c.routeID]

		for i, chain := range chains {
			id := key
			if len(chains) > 1 {
				id = fmt.Sprintf("%s#%d", key, i)
			}
			tripIDs := make([]string, len(chain))
			for j, t := range chain {
				tripIDs[j] = t.ID
			}
			routes = append(routes, model.Route{
				ID:       id,
				Name:     meta.Name,
				AgencyID: meta.AgencyID,
				StopSeq:  c.stopSeq,
				TripIDs:  tripIDs,
			})
		}
	}

	return routes
}

// splitNoOvertaking greedily assigns departure-sorted trips to the
// fewest chains such that within each chain, departure and arrival
// times are non-decreasing at every stop position — the invariant the
// engine's binary-search-on-column optimisation depends on.
func splitNoOvertaking(sortedTrips []model.Trip) [][]model.Trip {
	var chains [][]model.Trip

	for _, t := range sortedTrips {
		placed := false
		for i := range chains {
			last := chains[i][len(chains[i])-1]
			if fitsAfter(last, t) {
				chains[i] = append(chains[i], t)
				placed = true
				break
			}
		}
		if !placed {
			chains = append(chains, []model.Trip{t})
		}
	}

	return chains
}

func fitsAfter(prev, next model.Trip) bool {
	n := len(prev.DepartureTime)
	if len(next.DepartureTime) < n {
		n = len(next.DepartureTime)
	}
	for p := 0; p < n; p++ {
		if next.DepartureTime[p] < prev.DepartureTime[p] || next.ArrivalTime[p] < prev.ArrivalTime[p] {
			return false
		}
	}
	return true
}

// parseGTFSTime converts GTFS's colon-separated H:M:S (hours may
// exceed 23 to encode post-midnight service) into seconds since
// service-day start. Grounded on tidbyt-gtfs's parseStopTimeTime,
// adapted to return an integer offset rather than a zero-padded
// string since the engine keeps time as model.Seconds throughout.
func parseGTFSTime(s string) (model.Seconds, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("expected H:M:S, found %d parts in %q", len(parts), s)
	}

	hms := [3]int{}
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("non-integer component %q in %q", part, s)
		}
		hms[i] = v
	}

	if hms[0] < 0 {
		return 0, fmt.Errorf("negative hour in %q", s)
	}
	if hms[1] < 0 || hms[1] > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if hms[2] < 0 || hms[2] > 59 {
		return 0, fmt.Errorf("invalid second in %q", s)
	}

	return model.Seconds(hms[0]*3600 + hms[1]*60 + hms[2]), nil
}
