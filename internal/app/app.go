// Package app wires a Config into the stores, data source and Backtester
// shared by the stockbt binaries.
package app

import (
	"fmt"
	"log/slog"

	"stockbt/internal/config"
	"stockbt/internal/gather"
	"stockbt/internal/gather/us"
	"stockbt/internal/gather/yahoo"
	"stockbt/internal/store"
	"stockbt/internal/strategy"
	"stockbt/internal/strategy/builtins"
	"stockbt/internal/util"
)

// App holds the long-lived dependencies of a running binary.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Bars       *store.ParquetStore
	Results    *store.SQLiteStore
	Source     *gather.Cached
	Backtester *strategy.Backtester
}

// New validates cfg and opens everything a backtest needs.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	src, err := NewSource(cfg, bars, logger)
	if err != nil {
		return nil, err
	}
	cached := gather.NewCached(src, bars, cfg.Data.CacheTTL, logger)

	results, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("opening result store: %w", err)
	}

	bt := strategy.NewBacktester(cached, results, builtins.Registry(), cfg.Backtest, logger)
	logger.Info("backtester ready",
		"provider", src.Name(),
		"dataDir", cfg.Storage.DataDir,
		"sqlite", cfg.Storage.SQLitePath,
	)
	return &App{
		Config:     cfg,
		Logger:     logger,
		Bars:       bars,
		Results:    results,
		Source:     cached,
		Backtester: bt,
	}, nil
}

// Close releases the result store.
func (a *App) Close() error {
	return a.Results.Close()
}

// NewSource builds the uncached provider named by cfg.Data.Provider. The
// parquet provider reads bars already on disk and never goes to the network.
func NewSource(cfg *config.Config, bars *store.ParquetStore, logger *slog.Logger) (gather.Source, error) {
	limiter := util.NewRateLimiter(cfg.Data.RateLimitPerMin)
	switch cfg.Data.Provider {
	case config.ProviderYahoo:
		return yahoo.New(yahoo.Options{
			BaseURL: cfg.Data.YahooURL,
			Retries: cfg.Data.Retries,
			Limiter: limiter,
			Logger:  logger,
		}), nil
	case config.ProviderAlpaca:
		return us.NewAlpacaSource(us.AlpacaOptions{
			APIKey:    cfg.Alpaca.APIKey,
			APISecret: cfg.Alpaca.APISecret,
			BaseURL:   cfg.Alpaca.BaseURL,
			DataURL:   cfg.Alpaca.DataURL,
			Feed:      cfg.Alpaca.Feed,
			Limiter:   limiter,
			Retries:   cfg.Data.Retries,
			Logger:    logger,
		}), nil
	case config.ProviderParquet:
		return gather.NewDiskSource(bars), nil
	default:
		return nil, fmt.Errorf("%w: unknown data provider %q", config.ErrInvalid, cfg.Data.Provider)
	}
}
