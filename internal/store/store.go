// Package store defines storage interfaces for cached price bars and saved
// backtest runs, with Parquet and SQLite implementations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"stockbt/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars under the given market.
	WriteBars(ctx context.Context, market domain.Market, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market domain.Market, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market domain.Market) ([]string, error)
}

// RunRecord is a saved backtest. Trades and Equity are only populated by
// GetRun; ListRuns returns summaries.
type RunRecord struct {
	ID          string               `json:"id"`
	Symbol      string               `json:"symbol"`
	CompanyName string               `json:"company_name"`
	Strategy    string               `json:"strategy"`
	Start       time.Time            `json:"start"`
	End         time.Time            `json:"end"`
	InitialCash float64              `json:"initial_cash"`
	FinalEquity float64              `json:"final_equity"`
	ReturnPct   float64              `json:"return_pct"`
	NumTrades   int                  `json:"num_trades"`
	Request     json.RawMessage      `json:"request,omitempty"`
	Stats       json.RawMessage      `json:"stats,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	Trades      []domain.Trade       `json:"trades,omitempty"`
	Equity      []domain.EquityPoint `json:"equity,omitempty"`
}

// ResultStore persists backtest runs.
type ResultStore interface {
	// SaveRun inserts a run with its trades and equity curve.
	SaveRun(ctx context.Context, run *RunRecord) error

	// GetRun retrieves a run by ID, or ErrNotFound.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// DeleteRun removes a run, or returns ErrNotFound.
	DeleteRun(ctx context.Context, id string) error
}
