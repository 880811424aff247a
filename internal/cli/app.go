package cli

import (
	"context"
	"fmt"

	"eve-arbitrage/internal/config"
	"eve-arbitrage/internal/engine"
	"eve-arbitrage/internal/esi"
	"eve-arbitrage/internal/logger"
	"eve-arbitrage/internal/market"
	"eve-arbitrage/internal/metrics"
	"eve-arbitrage/internal/pipeline"
	"eve-arbitrage/internal/sde"
	"eve-arbitrage/internal/store"
	"eve-arbitrage/internal/transport"
)

// app holds the wired components shared by serve and run.
type app struct {
	cfg     *config.Config
	catalog *sde.Data
	store   store.Store
	esi     *esi.Client
	metrics *metrics.Collector
	runner  *pipeline.Runner
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	return cfg, nil
}

// newApp loads the catalog, opens the store and wires the pipeline.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	catalog, err := sde.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Success("STORE", fmt.Sprintf("Using %s store (history %d)", driverName(cfg.Store.Driver), cfg.Store.History))

	regions := make(map[int64]int32, len(catalog.Locations))
	for id, loc := range catalog.Locations {
		regions[id] = loc.RegionID
	}
	client := esi.NewClient(esi.Options{
		BaseURL:   cfg.ESI.BaseURL,
		UserAgent: cfg.ESI.UserAgent,
		Timeout:   cfg.ESI.Timeout,
		Regions:   regions,
	})

	collector := metrics.New()
	ac := cfg.Aggregator
	limits := market.NewSharedLimits(ac.MaxConcurrency, ac.RatePerSecond, ac.Burst)
	agg := market.NewAggregator(client, limits.Sem, limits.Limiter, market.Options{
		Retry: market.RetryPolicy{
			MaxRetries:  ac.MaxRetries,
			BackoffBase: ac.BackoffBase,
			BackoffMax:  ac.BackoffMax,
		},
		FetchTimeout:   ac.FetchTimeout,
		SnapshotMaxAge: ac.SnapshotMaxAge,
		Metrics:        collector,
	})
	eng := engine.New(catalog, transport.NewModel(catalog), engine.ParamsFromConfig(cfg.Engine))
	runner := pipeline.NewRunner(catalog, agg, eng, st, pipeline.Options{
		Locations: cfg.Market.Locations,
		Items:     cfg.Market.Items,
		Metrics:   collector,
	})

	return &app{cfg: cfg, catalog: catalog, store: st, esi: client, metrics: collector, runner: runner}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("STORE", fmt.Sprintf("Close: %v", err))
	}
}

func driverName(d string) string {
	if d == "" {
		return "sqlite"
	}
	return d
}
