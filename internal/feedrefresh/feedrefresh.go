// Package feedrefresh rebuilds a timetable.Store from one or more GTFS
// feed sources and atomically swaps it into a timetable.Holder, on a
// cron schedule. Grounded on the retrieval pack's use of
// github.com/robfig/cron/v3 for scheduled GTFS refresh jobs and on
// spec.md section 3's "Lifecycle" (rebuild-and-swap, no in-place
// mutation) and section 9's note that synthetic/carpool route
// injection is achieved the same way, by rebuilding and swapping.
package feedrefresh

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/antigravity/transitraptor/internal/diagnostics"
	"github.com/antigravity/transitraptor/internal/feedloader"
	"github.com/antigravity/transitraptor/internal/footpath"
	"github.com/antigravity/transitraptor/internal/model"
	"github.com/antigravity/transitraptor/internal/timetable"
)

// Fetcher is the subset of feedsource.Source this package depends on,
// kept as an interface so tests can substitute an in-memory fixture
// instead of an HTTP round trip.
type Fetcher interface {
	Operator() string
	Fetch(ctx context.Context) ([]byte, error)
}

// Invalidator is satisfied by rangequery/cache.Cache. A refresher
// without a cache simply leaves it nil.
type Invalidator interface {
	InvalidateAll(ctx context.Context) error
}

// Config holds the tunables a Refresher needs beyond its sources.
type Config struct {
	Schedule   string // standard 5-field cron expression
	FeedLoader feedloader.Config
	Footpath   footpath.Config
}

// Refresher periodically re-downloads every configured feed, rebuilds
// a single merged Store, and swaps it into holder.
type Refresher struct {
	holder  *timetable.Holder
	sources []Fetcher
	cfg     Config
	cache   Invalidator
	logger  *slog.Logger

	cron *cron.Cron
}

func New(holder *timetable.Holder, sources []Fetcher, cfg Config, cache Invalidator, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{holder: holder, sources: sources, cfg: cfg, cache: cache, logger: logger}
}

// Start registers the refresh job on the configured cron schedule and
// starts the scheduler's own goroutine. Call Stop to drain it.
func (r *Refresher) Start(ctx context.Context) error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(r.cfg.Schedule, func() {
		r.refreshOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("feedrefresh: schedule %q: %w", r.cfg.Schedule, err)
	}
	r.cron.Start()
	return nil
}

// Stop blocks until any in-flight refresh completes, then stops the
// scheduler.
func (r *Refresher) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

func (r *Refresher) refreshOnce(ctx context.Context) {
	next, diag, err := BuildStore(ctx, r.sources, r.cfg.FeedLoader, r.cfg.Footpath)
	if err != nil {
		r.logger.Error("feed refresh failed, keeping previous store", "error", err)
		return
	}
	for _, d := range diag.Items() {
		r.logger.Warn("feed refresh diagnostic", "file", d.File, "row", d.Row, "reason", d.Reason)
	}

	r.holder.Swap(next)
	r.logger.Info("feed refresh swapped store", "stops", next.NumStops())

	if r.cache != nil {
		if err := r.cache.InvalidateAll(ctx); err != nil {
			r.logger.Warn("feed refresh: range cache invalidation failed", "error", err)
		}
	}
}

// BuildStore downloads every source, parses it, merges the results
// across operators, computes footpaths over the merged stop set, and
// assembles a frozen Store. It is exported so cmd/transitraptor can
// reuse it for the initial (non-scheduled) load.
func BuildStore(ctx context.Context, sources []Fetcher, loaderCfg feedloader.Config, fpCfg footpath.Config) (*timetable.Store, *diagnostics.Collector, error) {
	diag := diagnostics.NewCollector()

	var allStops []model.Stop
	var allTrips []model.Trip
	var allRoutes []model.Route
	var allShapes []model.Shape

	for _, src := range sources {
		data, err := src.Fetch(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("feedrefresh: fetch %s: %w", src.Operator(), err)
		}

		stops, trips, routes, shapes, err := feedloader.LoadFeed(src.Operator(), data, loaderCfg, diag)
		if err != nil {
			return nil, nil, fmt.Errorf("feedrefresh: load %s: %w", src.Operator(), err)
		}
		allStops = append(allStops, stops...)
		allTrips = append(allTrips, trips...)
		allRoutes = append(allRoutes, routes...)
		allShapes = append(allShapes, shapes...)
	}

	allStops = applyFootpaths(allStops, fpCfg)

	store, err := timetable.Build(allStops, allTrips, allRoutes, allShapes)
	if err != nil {
		return nil, nil, fmt.Errorf("feedrefresh: assemble store: %w", err)
	}
	return store, diag, nil
}

// applyFootpaths computes walking edges over the merged stop set (so
// that a rider can walk between stops of two different operators) and
// attaches them to each stop, matching footpath.Build's directional,
// per-stop edge list.
func applyFootpaths(stops []model.Stop, cfg footpath.Config) []model.Stop {
	coords := make([]footpath.StopCoord, len(stops))
	for i, s := range stops {
		coords[i] = footpath.StopCoord{ID: s.ID, Lat: s.Coord.Lat, Lon: s.Coord.Lon}
	}

	edges := footpath.Build(coords, cfg)
	byStop := make(map[string][]model.Footpath, len(stops))
	for _, e := range edges {
		byStop[e.From] = append(byStop[e.From], model.Footpath{Neighbor: e.To, Duration: model.Seconds(e.Duration)})
	}

	out := make([]model.Stop, len(stops))
	for i, s := range stops {
		s.Footpaths = byStop[s.ID]
		out[i] = s
	}
	return out
}
