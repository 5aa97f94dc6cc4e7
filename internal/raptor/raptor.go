// Package raptor implements the RAPTOR Engine (component D): a
// single-query, round-based multi-criteria shortest-path search over
// a frozen timetable.Store, with early A* pruning and flat-array
// parent-pointer path reconstruction (spec.md section 4.4, design
// note in section 9).
package raptor

import (
	"context"
	"sort"

	"github.com/antigravity/transitraptor/internal/footpath"
	"github.com/antigravity/transitraptor/internal/model"
	"github.com/antigravity/transitraptor/internal/shapeslice"
	"github.com/antigravity/transitraptor/internal/timetable"
)

// inf stands in for +infinity for an earliest-arrival time. Using
// 1<<61 (about MaxInt64/4) rather than MaxInt64 leaves headroom for additions
// (e.g. adding a footpath duration) without overflow.
const inf = model.Seconds(1 << 61)

// Config holds the engine's tunables (spec.md section 6).
type Config struct {
	// MaxRounds is K, the transfer bound. Spec default is 8;
	// unusually deep networks may need to raise this to 30.
	MaxRounds int
	// TransferBufferSeconds is the minimum dwell enforced between an
	// arrival (on foot or by vehicle) and a subsequent boarding,
	// applied only when boarding in round k > 1.
	TransferBufferSeconds model.Seconds
	// AstarMaxSpeedMPS is the upper speed cap used for the optional
	// admissible lower-bound pruning. Zero disables pruning.
	AstarMaxSpeedMPS float64
}

func DefaultConfig() Config {
	return Config{
		MaxRounds:             8,
		TransferBufferSeconds: 120,
		AstarMaxSpeedMPS:      36,
	}
}

// Engine answers single-query journey searches against one frozen
// Store. It holds no mutable state of its own between queries: every
// call to Query allocates fresh, worker-local scratch arrays, so one
// Engine can be shared (read-only) across goroutines.
type Engine struct {
	store     *timetable.Store
	cfg       Config
	stopIndex map[string]int
	stopIDs   []string
}

func NewEngine(store *timetable.Store, cfg Config) *Engine {
	ids := store.StopIDs()
	idx := make(map[string]int, len(ids))
	for i, id := range ids {
		idx[id] = i
	}
	return &Engine{store: store, cfg: cfg, stopIndex: idx, stopIDs: ids}
}

type parentKind int8

const (
	parentNone parentKind = iota
	parentTransit
	parentWalk
)

// parentRecord is the tagged-variant predecessor used for path
// reconstruction: {transit(trip, board_stop, board_time) |
// walk(from_stop, depart_time)}.
type parentRecord struct {
	kind       parentKind
	fromStop   int
	tripID     string
	boardTime  model.Seconds
	arriveTime model.Seconds
}

type markedStop struct {
	idx          int
	walkEligible bool
}

// QueryOption adjusts optional query behavior. Shape slicing is the
// only one today: it costs an extra polyline scan per transit leg, so
// it stays off unless a caller asks for it.
type QueryOption func(*queryOptions)

type queryOptions struct {
	includeShapes bool
}

// WithShapes makes reconstruct attach each transit leg's on-street
// polyline (model.Leg.Shape), sliced between its boarding and
// alighting stops via internal/shapeslice.
func WithShapes() QueryOption {
	return func(o *queryOptions) { o.includeShapes = true }
}

// Query runs a single earliest-departure search from source to target
// starting no earlier than depart, returning the Pareto-optimal set on
// (arrival_time, num_transfers). Unknown stop ids yield an empty,
// error-free result, per spec.md section 6/7.
func (e *Engine) Query(source, target string, depart model.Seconds, opts ...QueryOption) ([]model.Journey, error) {
	return e.QueryContext(context.Background(), source, target, depart, opts...)
}

// QueryContext is Query with an optional wall-clock cancellation
// check between rounds (spec.md section 5). A cancelled context
// yields whatever Pareto-sound labels were accumulated before
// cancellation, not an error.
func (e *Engine) QueryContext(ctx context.Context, source, target string, depart model.Seconds, opts ...QueryOption) ([]model.Journey, error) {
	var qo queryOptions
	for _, opt := range opts {
		opt(&qo)
	}

	sourceIdx, ok := e.stopIndex[source]
	if !ok {
		return nil, nil
	}
	targetIdx, ok := e.stopIndex[target]
	if !ok {
		return nil, nil
	}

	n := len(e.stopIDs)
	K := e.cfg.MaxRounds
	if K <= 0 {
		K = DefaultConfig().MaxRounds
	}

	arrival := make([][]model.Seconds, K+1)
	parent := make([][]parentRecord, K+1)
	for k := 0; k <= K; k++ {
		row := make([]model.Seconds, n)
		for i := range row {
			row[i] = inf
		}
		arrival[k] = row
		parent[k] = make([]parentRecord, n)
	}

	bestArrival := make([]model.Seconds, n)
	for i := range bestArrival {
		bestArrival[i] = inf
	}

	arrival[0][sourceIdx] = depart
	bestArrival[sourceIdx] = depart

	currentM := []markedStop{{idx: sourceIdx, walkEligible: true}}

	targetCoord, hasTargetCoord := e.coordOf(targetIdx)

	for k := 1; k <= K && len(currentM) > 0; k++ {
		select {
		case <-ctx.Done():
			goto reconstructAll
		default:
		}

		routesToScan := e.collectRoutes(currentM, arrival[k-1], bestArrival, targetIdx, targetCoord, hasTargetCoord)

		transitArrived := make(map[int]bool)
		e.scanRoutes(k, routesToScan, arrival, bestArrival, parent, targetIdx, transitArrived)

		relaxSet := make([]int, 0, len(transitArrived)+1)
		relaxArrival := make(map[int]model.Seconds, len(transitArrived)+1)
		for idx := range transitArrived {
			relaxSet = append(relaxSet, idx)
			relaxArrival[idx] = arrival[k][idx]
		}
		if k == 1 {
			// The stops marked at round 1 were "newly added to M" by
			// initialization, not by a prior round, so they are
			// eligible for the same footpath relaxation a
			// transit-arrived stop gets. This is what lets a
			// walk-only journey (zero transit legs) surface as a
			// round-1, zero-transfer result (see SPEC_FULL.md
			// section 5).
			if _, already := relaxArrival[sourceIdx]; !already {
				relaxSet = append(relaxSet, sourceIdx)
				relaxArrival[sourceIdx] = arrival[0][sourceIdx]
			}
		}

		walkArrived := make(map[int]bool)
		e.relaxFootpaths(k, relaxSet, relaxArrival, arrival, bestArrival, parent, targetIdx, walkArrived)

		nextM := make([]markedStop, 0, len(transitArrived)+len(walkArrived))
		for idx := range transitArrived {
			nextM = append(nextM, markedStop{idx: idx, walkEligible: true})
		}
		for idx := range walkArrived {
			if transitArrived[idx] {
				continue
			}
			nextM = append(nextM, markedStop{idx: idx, walkEligible: false})
		}
		currentM = nextM
	}

reconstructAll:
	type label struct {
		round   int
		arrival model.Seconds
	}
	var labels []label
	for k := 1; k <= K; k++ {
		if arrival[k][targetIdx] < inf {
			labels = append(labels, label{round: k, arrival: arrival[k][targetIdx]})
		}
	}

	cands := make([]candidate, 0, len(labels))
	for _, l := range labels {
		cands = append(cands, candidate{round: l.round, arrival: l.arrival, transfers: l.round - 1})
	}

	frontier := paretoFrontier(cands)

	journeys := make([]model.Journey, 0, len(frontier))
	for _, c := range frontier {
		legs := e.reconstruct(parent, c.round, targetIdx, sourceIdx, qo.includeShapes)
		if legs == nil {
			continue
		}
		journeys = append(journeys, model.Journey{
			Arrival:      c.arrival,
			NumTransfers: c.transfers,
			Legs:         legs,
		})
	}

	sort.Slice(journeys, func(i, j int) bool {
		if journeys[i].Arrival != journeys[j].Arrival {
			return journeys[i].Arrival < journeys[j].Arrival
		}
		return journeys[i].NumTransfers < journeys[j].NumTransfers
	})

	return journeys, nil
}

func (e *Engine) coordOf(idx int) (model.LatLon, bool) {
	stop, ok := e.store.Stop(e.stopIDs[idx])
	if !ok {
		return model.LatLon{}, false
	}
	return stop.Coord, true
}

// collectRoutes is Step 1: for each marked stop, record the smallest
// boarding position per route, skipping stops an admissible A* lower
// bound proves cannot improve the best known target arrival.
func (e *Engine) collectRoutes(
	marked []markedStop,
	prevArrival []model.Seconds,
	bestArrival []model.Seconds,
	targetIdx int,
	targetCoord model.LatLon,
	hasTargetCoord bool,
) map[string]int {
	routesToScan := make(map[string]int)

	for _, ms := range marked {
		if e.cfg.AstarMaxSpeedMPS > 0 && hasTargetCoord && bestArrival[targetIdx] < inf {
			coord, ok := e.coordOf(ms.idx)
			if ok {
				dist := footpath.Haversine(coord.Lat, coord.Lon, targetCoord.Lat, targetCoord.Lon)
				lowerBound := model.Seconds(dist / e.cfg.AstarMaxSpeedMPS)
				if prevArrival[ms.idx]+lowerBound >= bestArrival[targetIdx] {
					continue
				}
			}
		}

		stopID := e.stopIDs[ms.idx]
		for _, rp := range e.store.RoutesServing(stopID) {
			if cur, ok := routesToScan[rp.RouteID]; !ok || rp.Position < cur {
				routesToScan[rp.RouteID] = rp.Position
			}
		}
	}

	return routesToScan
}

// scanRoutes is Step 2: sweep each collected route forward from its
// start position, maintaining the earliest boardable trip and
// relaxing arrivals it improves.
func (e *Engine) scanRoutes(
	k int,
	routesToScan map[string]int,
	arrival [][]model.Seconds,
	bestArrival []model.Seconds,
	parent [][]parentRecord,
	targetIdx int,
	transitArrived map[int]bool,
) {
	for routeID, startPos := range routesToScan {
		route, ok := e.store.Route(routeID)
		if !ok {
			continue
		}

		var currentTripID string
		currentTripIdx := -1
		boardingStopIdx := -1
		boardingTime := inf

		for pos := startPos; pos < len(route.StopSeq); pos++ {
			stopIdx, ok := e.stopIndex[route.StopSeq[pos]]
			if !ok {
				continue
			}

			if currentTripID != "" {
				trip, ok := e.store.Trip(currentTripID)
				if ok && pos < len(trip.ArrivalTime) {
					a := trip.ArrivalTime[pos]
					if a < minSeconds(bestArrival[stopIdx], bestArrival[targetIdx]) {
						arrival[k][stopIdx] = a
						bestArrival[stopIdx] = a
						transitArrived[stopIdx] = true
						parent[k][stopIdx] = parentRecord{
							kind:       parentTransit,
							fromStop:   boardingStopIdx,
							tripID:     currentTripID,
							boardTime:  boardingTime,
							arriveTime: a,
						}
					}
				}
			}

			prev := arrival[k-1][stopIdx]
			if prev < inf {
				minDep := prev
				if k > 1 {
					minDep += e.cfg.TransferBufferSeconds
				}

				col := e.store.DeparturesAt(routeID, pos)
				i := sort.Search(len(col), func(i int) bool { return col[i] >= minDep })
				if i < len(col) {
					depTime := col[i]
					// Trips are ordered with no overtaking, so a lower
					// index is an earlier trip at every position.
					if currentTripIdx < 0 || i < currentTripIdx {
						currentTripIdx = i
						currentTripID = route.TripIDs[i]
						boardingStopIdx = stopIdx
						boardingTime = depTime
					}
				}
			}
		}
	}
}

// relaxFootpaths is Step 3: for each eligible stop, walk its
// footpaths once. A stop only ever appears here if it was reached via
// transit this round (or is the source at round 1) — a stop reached
// via a footpath is never itself relaxed again, which is what keeps
// consecutive walk legs from ever being produced.
func (e *Engine) relaxFootpaths(
	k int,
	relaxSet []int,
	relaxArrival map[int]model.Seconds,
	arrival [][]model.Seconds,
	bestArrival []model.Seconds,
	parent [][]parentRecord,
	targetIdx int,
	walkArrived map[int]bool,
) {
	for _, sIdx := range relaxSet {
		stop, ok := e.store.Stop(e.stopIDs[sIdx])
		if !ok {
			continue
		}
		base := relaxArrival[sIdx]

		for _, fp := range stop.Footpaths {
			toIdx, ok := e.stopIndex[fp.Neighbor]
			if !ok {
				continue
			}
			a := base + fp.Duration
			if a < minSeconds(bestArrival[toIdx], bestArrival[targetIdx]) {
				arrival[k][toIdx] = a
				bestArrival[toIdx] = a
				walkArrived[toIdx] = true
				parent[k][toIdx] = parentRecord{
					kind:       parentWalk,
					fromStop:   sIdx,
					boardTime:  base,
					arriveTime: a,
				}
			}
		}
	}
}

// reconstruct walks parent pointers from target back to source for
// the label at round k, emitting legs in travel order (spec.md
// section 4.4.3). When includeShapes is set, each transit leg's
// on-street polyline is sliced from its trip's shape between the
// boarding and alighting stop coordinates (SPEC_FULL.md section 4).
func (e *Engine) reconstruct(parent [][]parentRecord, k, targetIdx, sourceIdx int, includeShapes bool) []model.Leg {
	var legs []model.Leg

	curIdx := targetIdx
	curRound := k
	for curIdx != sourceIdx {
		if curRound < 0 {
			return nil
		}
		rec := parent[curRound][curIdx]

		switch rec.kind {
		case parentTransit:
			trip, ok := e.store.Trip(rec.tripID)
			if !ok {
				return nil
			}
			route, _ := e.store.Route(trip.RouteID)
			leg := model.Leg{
				Type:       model.LegTypeTransit,
				FromStopID: e.stopIDs[rec.fromStop],
				ToStopID:   e.stopIDs[curIdx],
				Departure:  rec.boardTime,
				Arrival:    rec.arriveTime,
				TripID:     rec.tripID,
				RouteID:    trip.RouteID,
				RouteName:  route.Name,
				AgencyID:   route.AgencyID,
				ShapeID:    trip.ShapeID,
			}
			if includeShapes && trip.ShapeID != "" {
				if pts, ok := e.store.Shape(trip.ShapeID); ok {
					fromCoord, fromOK := e.coordOf(rec.fromStop)
					toCoord, toOK := e.coordOf(curIdx)
					if fromOK && toOK {
						leg.Shape = shapeslice.Slice(pts, fromCoord, toCoord)
					}
				}
			}
			legs = append(legs, leg)
			curIdx = rec.fromStop
			curRound--
		case parentWalk:
			legs = append(legs, model.Leg{
				Type:       model.LegTypeWalk,
				FromStopID: e.stopIDs[rec.fromStop],
				ToStopID:   e.stopIDs[curIdx],
				Departure:  rec.boardTime,
				Arrival:    rec.arriveTime,
			})
			curIdx = rec.fromStop
		default:
			return nil
		}
	}

	for i, j := 0, len(legs)-1; i < j; i, j = i+1, j-1 {
		legs[i], legs[j] = legs[j], legs[i]
	}
	return legs
}

func minSeconds(a, b model.Seconds) model.Seconds {
	if a < b {
		return a
	}
	return b
}

type candidate struct {
	round     int
	arrival   model.Seconds
	transfers int
}

// paretoFrontier filters to the non-dominated set on
// (arrival ascending, transfers ascending): spec.md section 4.4.3 /
// section 8 testable property 3.
func paretoFrontier(cands []candidate) []candidate {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].arrival != cands[j].arrival {
			return cands[i].arrival < cands[j].arrival
		}
		return cands[i].transfers < cands[j].transfers
	})

	var frontier []candidate
	bestTransfers := 1 << 30
	for _, c := range cands {
		if c.transfers < bestTransfers {
			frontier = append(frontier, c)
			bestTransfers = c.transfers
		}
	}
	return frontier
}
