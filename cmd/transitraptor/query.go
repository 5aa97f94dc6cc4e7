package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/antigravity/transitraptor/internal/config"
	"github.com/antigravity/transitraptor/internal/feedloader"
	"github.com/antigravity/transitraptor/internal/feedrefresh"
	"github.com/antigravity/transitraptor/internal/feedsource"
	"github.com/antigravity/transitraptor/internal/footpath"
	"github.com/antigravity/transitraptor/internal/model"
	"github.com/antigravity/transitraptor/internal/raptor"
)

// queryCmd is a one-off CLI lookup: fetch+parse every configured feed
// once, run a single RAPTOR query, print the resulting journeys, and
// exit. Grounded on tidbyt-gtfs's departuresCmd (cobra.ExactArgs,
// RunE loads a feed then runs one query against it and prints to
// stdout).
var queryCmd = &cobra.Command{
	Use:   "query <source_stop> <target_stop> <depart_seconds>",
	Short: "Run a single journey query against the configured feeds",
	Args:  cobra.ExactArgs(3),
	RunE:  query,
}

func query(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if len(cfg.FeedSources) == 0 {
		return fmt.Errorf("no feed sources configured (set FEED_SOURCES)")
	}

	depart, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("parsing depart_seconds: %w", err)
	}

	sources := make([]feedrefresh.Fetcher, 0, len(cfg.FeedSources))
	for _, fs := range cfg.FeedSources {
		src, err := feedsource.New(fs.Operator, fs.URL)
		if err != nil {
			return fmt.Errorf("building feed source %s: %w", fs.Operator, err)
		}
		sources = append(sources, src)
	}

	ctx := context.Background()
	store, diag, err := feedrefresh.BuildStore(ctx, sources, feedloader.Config{}, footpath.Config{
		RadiusMeters: cfg.FootpathRadiusM,
		WalkSpeedMPS: cfg.WalkSpeedMPS,
	})
	if err != nil {
		return fmt.Errorf("building store: %w", err)
	}
	for _, d := range diag.Items() {
		fmt.Printf("diagnostic: %s row %d: %s\n", d.File, d.Row, d.Reason)
	}

	engine := raptor.NewEngine(store, raptor.Config{
		MaxRounds:             cfg.MaxRounds,
		TransferBufferSeconds: model.Seconds(cfg.TransferBufferSeconds),
		AstarMaxSpeedMPS:      cfg.AstarMaxSpeedMPS,
	})

	journeys, err := engine.QueryContext(ctx, args[0], args[1], model.Seconds(depart))
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if len(journeys) == 0 {
		fmt.Println("no journeys found")
		return nil
	}

	for i, j := range journeys {
		fmt.Printf("journey %d: depart %d arrive %d, %d leg(s), %d transfer(s)\n",
			i, j.Departure(), j.Arrival, len(j.Legs), j.NumTransfers)
		for _, leg := range j.Legs {
			fmt.Printf("  %s -> %s  [%s] dep %d arr %d\n",
				leg.FromStopID, leg.ToStopID, leg.Type, leg.Departure, leg.Arrival)
		}
	}
	return nil
}
