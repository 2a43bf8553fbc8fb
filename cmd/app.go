package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/config"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/dataset"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/fetcher"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/logger"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/mapview"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/metrics"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/query"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/stats"
)

// app holds the process-wide Earth Engine session and everything built on it.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	client  *fetcher.Client
	ref     *dataset.Reference
	catalog *dataset.Catalog
	builder *query.Builder
	stats   *stats.Aggregator
	view    *mapview.View
}

// bootstrap loads configuration, authenticates once and loads the county
// catalog. Any failure here is fatal.
func bootstrap(ctx context.Context) (*app, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, verbose)
	m := metrics.New()

	client, err := fetcher.Connect(ctx, cfg.EarthEngine, log, m.ObserveEarthEngine)
	if err != nil {
		return nil, err
	}

	ref := dataset.NewReference(cfg.Dataset)
	catalog, err := dataset.LoadCatalog(ctx, client, ref)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("loading county catalog: %w", err)
	}
	log.Info("county catalog loaded", "country", ref.Country(), "counties", len(catalog.Counties()))

	builder := query.NewBuilder(ref, catalog)
	view, err := mapview.NewView(client, ref, cfg.Map, mapview.Options{
		MapIDTTL:  cfg.Cache.MapIDTTL,
		TileCache: cfg.Cache.TileSize,
		Logger:    log,
		Observe:   m.ObserveCache,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("creating map view: %w", err)
	}

	return &app{
		cfg:     cfg,
		logger:  log,
		metrics: m,
		client:  client,
		ref:     ref,
		catalog: catalog,
		builder: builder,
		stats: stats.NewAggregator(client, builder, catalog, stats.Options{
			CacheSize: cfg.Cache.StatsSize,
			CacheTTL:  cfg.Cache.StatsTTL,
			Logger:    log,
			Observe:   m.ObserveCache,
		}),
		view: view,
	}, nil
}

func (a *app) Close() {
	a.client.Close()
}
