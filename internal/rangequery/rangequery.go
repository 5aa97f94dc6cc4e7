// Package rangequery implements the Range Query Driver (component E):
// candidate-instant generation, parallel dispatch across a goroutine
// worker pool, and deduplicated, sorted union of the resulting
// journeys (spec.md section 4.5).
package rangequery

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/antigravity/transitraptor/internal/model"
	"github.com/antigravity/transitraptor/internal/raptor"
	"github.com/antigravity/transitraptor/internal/timetable"
)

// Config holds the tunables from spec.md section 6.
type Config struct {
	// MaxCandidates is N_MAX: candidate departure instants beyond
	// this are stride-sampled down, keeping chronological order.
	MaxCandidates int
	// Workers sizes the fixed goroutine pool queries are dispatched
	// across. Defaults to runtime.NumCPU().
	Workers int
	// IncludeAdjacentDays additionally searches the previous and next
	// 86400s-offset windows for candidate instants, grounded on
	// raptor_engine.py's query_range three-window sampling. Off by
	// default so behaviour matches spec.md section 4.5 exactly.
	IncludeAdjacentDays bool
}

func DefaultConfig() Config {
	return Config{
		MaxCandidates: 100,
		Workers:       runtime.NumCPU(),
	}
}

// Driver answers range queries against one frozen Store, using an
// Engine to run each individual candidate-instant query.
type Driver struct {
	store  *timetable.Store
	engine *raptor.Engine
	cfg    Config
	logger *slog.Logger
}

func NewDriver(store *timetable.Store, engine *raptor.Engine, cfg Config, logger *slog.Logger) *Driver {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultConfig().MaxCandidates
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{store: store, engine: engine, cfg: cfg, logger: logger.With("component", "rangequery")}
}

type window struct {
	lo, hi model.Seconds
}

// RangeQuery returns every journey whose first leg departs within
// [start, start+window], deduplicated and sorted by departure time
// ascending (spec.md section 4.5).
func (d *Driver) RangeQuery(ctx context.Context, source, target string, start, windowSeconds model.Seconds) ([]model.Journey, error) {
	if _, ok := d.store.Stop(source); !ok {
		return nil, nil
	}
	if _, ok := d.store.Stop(target); !ok {
		return nil, nil
	}

	windows := d.searchWindows(start, windowSeconds)

	candidates := d.collectCandidates(source, windows)
	if len(candidates) == 0 {
		candidates = []model.Seconds{start}
	}
	candidates = d.dedupSorted(candidates)

	if len(candidates) > d.cfg.MaxCandidates {
		dropped := len(candidates) - d.cfg.MaxCandidates
		candidates = strideSample(candidates, d.cfg.MaxCandidates)
		d.logger.Warn("range query stride-sampled candidates",
			"dropped", dropped, "kept", len(candidates), "source", source, "target", target)
	}

	perCandidate := d.dispatch(ctx, source, target, candidates)

	return d.unionAndSort(perCandidate, windows), nil
}

func (d *Driver) searchWindows(start, windowSeconds model.Seconds) []window {
	windows := []window{{lo: start, hi: start + windowSeconds}}
	if d.cfg.IncludeAdjacentDays {
		const day = model.Seconds(86400)
		windows = append(windows,
			window{lo: start + day, hi: start + day + windowSeconds},
			window{lo: start - day, hi: start - day + windowSeconds},
		)
	}
	return windows
}

// collectCandidates gathers unique boarding-event times across (a)
// trips departing the source stop and (b) trips departing any stop
// reachable from source by a single footpath of duration w, eligible
// only from w seconds after a window opens (spec.md section 4.5 step
// 1). Grounded on raptor_engine.py's query_range/find_opps.
func (d *Driver) collectCandidates(source string, windows []window) []model.Seconds {
	var out []model.Seconds

	out = append(out, d.departuresFrom(source, windows, 0)...)

	stop, ok := d.store.Stop(source)
	if ok {
		for _, fp := range stop.Footpaths {
			out = append(out, d.departuresFrom(fp.Neighbor, windows, fp.Duration)...)
		}
	}

	return out
}

func (d *Driver) departuresFrom(stopID string, windows []window, walkOffset model.Seconds) []model.Seconds {
	var out []model.Seconds
	for _, rp := range d.store.RoutesServing(stopID) {
		route, ok := d.store.Route(rp.RouteID)
		if !ok {
			continue
		}
		for _, tripID := range route.TripIDs {
			trip, ok := d.store.Trip(tripID)
			if !ok || rp.Position >= len(trip.DepartureTime) {
				continue
			}
			dep := trip.DepartureTime[rp.Position]
			if inShiftedWindow(dep, windows, walkOffset) {
				out = append(out, dep)
			}
		}
	}
	return out
}

func inShiftedWindow(t model.Seconds, windows []window, shift model.Seconds) bool {
	for _, w := range windows {
		if t >= w.lo+shift && t <= w.hi {
			return true
		}
	}
	return false
}

func inAnyWindow(t model.Seconds, windows []window) bool {
	return inShiftedWindow(t, windows, 0)
}

func (d *Driver) dedupSorted(candidates []model.Seconds) []model.Seconds {
	seen := make(map[model.Seconds]bool, len(candidates))
	out := make([]model.Seconds, 0, len(candidates))
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// strideSample keeps n entries from a chronologically sorted slice,
// evenly spaced, preserving order (raptor_engine.py's
// `unique_start_times[::step][:100]`).
func strideSample(sorted []model.Seconds, n int) []model.Seconds {
	if n <= 0 || len(sorted) <= n {
		return sorted
	}
	step := len(sorted) / n
	if step < 1 {
		step = 1
	}
	out := make([]model.Seconds, 0, n)
	for i := 0; i < len(sorted) && len(out) < n; i += step {
		out = append(out, sorted[i])
	}
	return out
}

// dispatch submits one engine query per candidate instant to a fixed
// pool of worker goroutines, all reading the same frozen Store.
func (d *Driver) dispatch(ctx context.Context, source, target string, candidates []model.Seconds) [][]model.Journey {
	type job struct {
		index int
		depart model.Seconds
	}

	results := make([][]model.Journey, len(candidates))
	jobs := make(chan job)

	var wg sync.WaitGroup
	for w := 0; w < d.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				journeys, err := d.engine.QueryContext(ctx, source, target, j.depart)
				if err != nil {
					d.logger.Error("worker query failed", "error", err, "source", source, "target", target, "depart", j.depart)
					continue
				}
				results[j.index] = journeys
			}
		}()
	}

	for i, c := range candidates {
		jobs <- job{index: i, depart: c}
	}
	close(jobs)
	wg.Wait()

	return results
}

// unionAndSort merges every worker's results, drops journeys whose
// first leg falls outside every search window, deduplicates by
// signature and sorts by departure time ascending (spec.md section
// 4.5 steps 3-4).
func (d *Driver) unionAndSort(perCandidate [][]model.Journey, windows []window) []model.Journey {
	seen := make(map[string]bool)
	var out []model.Journey

	for _, journeys := range perCandidate {
		for _, j := range journeys {
			if len(j.Legs) == 0 {
				continue
			}
			dep := j.Legs[0].Departure
			if !inAnyWindow(dep, windows) {
				continue
			}

			sig := journeySignature(j)
			if seen[sig] {
				continue
			}
			seen[sig] = true
			out = append(out, j)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Departure() != out[j].Departure() {
			return out[i].Departure() < out[j].Departure()
		}
		return out[i].Arrival < out[j].Arrival
	})

	return out
}

// journeySignature is (first_leg_departure, arrival_time,
// tuple-of-leg-trip-ids-with-"walk"-in-walk-slots), per spec.md
// section 4.5 step 3.
func journeySignature(j model.Journey) string {
	parts := make([]string, len(j.Legs))
	for i, leg := range j.Legs {
		if leg.Type == model.LegTypeWalk {
			parts[i] = "walk"
		} else {
			parts[i] = leg.TripID
		}
	}
	return fmt.Sprintf("%d|%d|%s", j.Departure(), j.Arrival, strings.Join(parts, ","))
}
