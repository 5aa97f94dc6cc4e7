package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/antigravity/transitraptor/internal/config"
	"github.com/antigravity/transitraptor/internal/feedloader"
	"github.com/antigravity/transitraptor/internal/feedrefresh"
	"github.com/antigravity/transitraptor/internal/feedsource"
	"github.com/antigravity/transitraptor/internal/footpath"
	"github.com/antigravity/transitraptor/internal/httpapi"
	"github.com/antigravity/transitraptor/internal/model"
	"github.com/antigravity/transitraptor/internal/rangequery"
	"github.com/antigravity/transitraptor/internal/rangequery/cache"
	"github.com/antigravity/transitraptor/internal/raptor"
	"github.com/antigravity/transitraptor/internal/timetable"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP journey-planning service",
	RunE:  serve,
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if len(cfg.FeedSources) == 0 {
		return errors.New("no feed sources configured (set FEED_SOURCES)")
	}

	loaderCfg := feedloader.Config{}
	fpCfg := footpath.Config{RadiusMeters: cfg.FootpathRadiusM, WalkSpeedMPS: cfg.WalkSpeedMPS}

	sources, err := buildFetchers(cfg.FeedSources)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("loading initial feed snapshot", "operators", len(sources))
	store, diag, err := feedrefresh.BuildStore(ctx, sources, loaderCfg, fpCfg)
	if err != nil {
		return fmt.Errorf("building initial store: %w", err)
	}
	for _, d := range diag.Items() {
		logger.Warn("feed load diagnostic", "file", d.File, "row", d.Row, "reason", d.Reason)
	}
	holder := timetable.NewHolder(store)

	var resultCache *cache.Cache
	if cfg.RedisEnabled {
		resultCache, err = cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RangeCacheTTL, logger)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer resultCache.Close()
	}

	if cfg.FeedRefreshCron != "" {
		refresher := feedrefresh.New(holder, sources, feedrefresh.Config{
			Schedule:   cfg.FeedRefreshCron,
			FeedLoader: loaderCfg,
			Footpath:   fpCfg,
		}, refreshInvalidator(resultCache), logger)
		if err := refresher.Start(ctx); err != nil {
			return fmt.Errorf("starting feed refresh scheduler: %w", err)
		}
		defer refresher.Stop()
	}

	raptorCfg := raptor.Config{
		MaxRounds:             cfg.MaxRounds,
		TransferBufferSeconds: model.Seconds(cfg.TransferBufferSeconds),
		AstarMaxSpeedMPS:      cfg.AstarMaxSpeedMPS,
	}
	rangeCfg := rangequery.Config{
		MaxCandidates:       cfg.RangeCandidatesMax,
		Workers:             cfg.RangeQueryWorkers,
		IncludeAdjacentDays: cfg.IncludeAdjacentDays,
	}
	if rangeCfg.Workers <= 0 {
		rangeCfg = rangequery.DefaultConfig()
		rangeCfg.MaxCandidates = cfg.RangeCandidatesMax
		rangeCfg.IncludeAdjacentDays = cfg.IncludeAdjacentDays
	}

	server := httpapi.NewServer(holder, raptorCfg, rangeCfg, resultCache, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		logger.Info("shutting down http server")
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.HTTPAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func buildFetchers(sources []config.FeedSource) ([]feedrefresh.Fetcher, error) {
	out := make([]feedrefresh.Fetcher, 0, len(sources))
	for _, fs := range sources {
		src, err := feedsource.New(fs.Operator, fs.URL)
		if err != nil {
			return nil, fmt.Errorf("building feed source %s: %w", fs.Operator, err)
		}
		out = append(out, src)
	}
	return out, nil
}

// refreshInvalidator adapts a possibly-nil *cache.Cache to
// feedrefresh.Invalidator: a nil interface value, not a nil pointer in
// an interface, so feedrefresh's own `if r.cache != nil` check works
// when caching is disabled.
func refreshInvalidator(c *cache.Cache) feedrefresh.Invalidator {
	if c == nil {
		return nil
	}
	return c
}

