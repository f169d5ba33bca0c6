// Package httpapi exposes the backtester over a JSON REST API.
package httpapi

import (
	"math"
	"time"

	"stockbt/internal/domain"
	"stockbt/internal/store"
	"stockbt/internal/strategy"
	"stockbt/internal/util"
)

// CompareRequest runs several strategies over one symbol and range.
type CompareRequest struct {
	Request    strategy.Request `json:"request"`
	Strategies []string         `json:"strategies"`
}

// CompareResponse holds one result per requested strategy, in order.
type CompareResponse struct {
	Results []*strategy.Result `json:"results"`
}

// RunSummary is one row of the run history.
type RunSummary struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	CompanyName string    `json:"company_name"`
	Strategy    string    `json:"strategy"`
	Start       string    `json:"start"`
	End         string    `json:"end"`
	InitialCash float64   `json:"initial_cash"`
	FinalEquity float64   `json:"final_equity"`
	ReturnPct   *float64  `json:"return_pct"` // null when undefined
	NumTrades   int       `json:"num_trades"`
	CreatedAt   time.Time `json:"created_at"`
}

// HistoryResponse lists recent runs, newest first.
type HistoryResponse struct {
	Runs []RunSummary `json:"runs"`
}

// BarsResponse carries daily bars for a symbol.
type BarsResponse struct {
	Symbol string       `json:"symbol"`
	Start  string       `json:"start"`
	End    string       `json:"end"`
	Bars   []domain.Bar `json:"bars"`
}

// CompanyResponse carries a symbol's display name.
type CompanyResponse struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// StrategiesResponse lists the strategies that can be run.
type StrategiesResponse struct {
	Strategies []strategy.Info `json:"strategies"`
}

// ToSummary converts a stored run to its history row.
func ToSummary(r store.RunRecord) RunSummary {
	s := RunSummary{
		ID:          r.ID,
		Symbol:      r.Symbol,
		CompanyName: r.CompanyName,
		Strategy:    r.Strategy,
		Start:       r.Start.Format(util.DateLayout),
		End:         r.End.Format(util.DateLayout),
		InitialCash: r.InitialCash,
		FinalEquity: r.FinalEquity,
		NumTrades:   r.NumTrades,
		CreatedAt:   r.CreatedAt,
	}
	if !math.IsNaN(r.ReturnPct) && !math.IsInf(r.ReturnPct, 0) {
		v := r.ReturnPct
		s.ReturnPct = &v
	}
	return s
}
