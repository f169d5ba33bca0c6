// Package us provides the Alpaca market-data source for US equities.
package us

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stockbt/internal/domain"
	"stockbt/internal/gather"
	"stockbt/internal/util"
)

// Compile-time interface check.
var _ gather.Source = (*AlpacaSource)(nil)

// AlpacaSource loads split- and dividend-adjusted daily bars from the Alpaca
// market-data API and company names from the trading API's asset endpoint.
type AlpacaSource struct {
	data    *marketdata.Client
	trading *alpaca.Client
	feed    string
	limiter *util.RateLimiter
	retries int
	log     *slog.Logger
}

// AlpacaOptions holds credentials and endpoints for NewAlpacaSource.
type AlpacaOptions struct {
	APIKey    string
	APISecret string
	BaseURL   string // trading API, used for asset lookups
	DataURL   string // market-data API
	Feed      string // "iex" or "sip"
	Limiter   *util.RateLimiter
	Retries   int
	Logger    *slog.Logger
}

// NewAlpacaSource creates an AlpacaSource.
func NewAlpacaSource(opts AlpacaOptions) *AlpacaSource {
	dataOpts := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.DataURL != "" {
		dataOpts.BaseURL = opts.DataURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	feed := opts.Feed
	if feed == "" {
		feed = "iex"
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = 3
	}

	return &AlpacaSource{
		data: marketdata.NewClient(dataOpts),
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.BaseURL,
		}),
		feed:    feed,
		limiter: opts.Limiter,
		retries: retries,
		log:     logger.With("component", "alpaca"),
	}
}

// Name returns the source identifier.
func (s *AlpacaSource) Name() string { return "alpaca" }

// Bars fetches daily bars for symbol in [start, end].
func (s *AlpacaSource) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	symbol = gather.NormalizeSymbol(symbol)

	var raw []marketdata.Bar
	err := util.Retry(ctx, s.retries, time.Second, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		bars, err := s.data.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame:  marketdata.OneDay,
			Start:      start,
			End:        end.AddDate(0, 0, 1),
			Adjustment: marketdata.All,
			Feed:       marketdata.Feed(s.feed),
		})
		if err != nil {
			return err
		}
		raw = bars
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	bars := gather.Within(toBars(symbol, raw), start, end)
	if len(bars) == 0 {
		return nil, gather.NoData(symbol)
	}
	s.log.Debug("fetched bars", "symbol", symbol, "count", len(bars))
	return bars, nil
}

// CompanyName returns the asset name, or the symbol when the asset has none.
func (s *AlpacaSource) CompanyName(ctx context.Context, symbol string) (string, error) {
	symbol = gather.NormalizeSymbol(symbol)
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	asset, err := s.trading.GetAsset(symbol)
	if err != nil {
		return "", fmt.Errorf("GetAsset %s: %w", symbol, err)
	}
	if name := strings.TrimSpace(asset.Name); name != "" {
		return name, nil
	}
	return symbol, nil
}

// toBars converts Alpaca bars, dating each at midnight UTC of its session.
func toBars(symbol string, raw []marketdata.Bar) []domain.Bar {
	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Symbol:     symbol,
			Timestamp:  util.TruncateDay(ab.Timestamp),
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		})
	}
	return bars
}
