// Package domain defines the core types shared across the backtesting
// packages: price bars, orders, positions, closed trades, and equity points.
package domain

import "time"

// Market identifies the exchange family a symbol trades on. It only affects
// where cached bars are stored.
type Market string

const (
	MarketUS Market = "us"
	MarketJP Market = "jp"
)

// MarketForSymbol infers the market from a ticker suffix ("7974.T" → jp).
func MarketForSymbol(symbol string) Market {
	n := len(symbol)
	if n > 2 && symbol[n-2:] == ".T" {
		return MarketJP
	}
	return MarketUS
}

// Bar is a single OHLCV candle.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	TradeCount int64     `json:"trade_count,omitempty"`
	VWAP       float64   `json:"vwap,omitempty"`
}

// SignalType is what a strategy asks for at the close of a bar.
type SignalType string

const (
	SignalTypeHold SignalType = "hold"
	SignalTypeBuy  SignalType = "buy"
	SignalTypeSell SignalType = "sell"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitSignal       ExitReason = "signal"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitEndOfData    ExitReason = "end_of_data"
)

// Order is a market order filled by the simulated broker at Price.
type Order struct {
	ID     string
	Symbol string
	Side   Side
	Qty    float64
	Price  float64
	Bar    int
	Time   time.Time
	Reason ExitReason // set on sell orders only
}

// Position is the single open long position of a backtest.
type Position struct {
	Symbol     string
	Qty        float64
	EntryPrice float64
	EntryTime  time.Time
	EntryBar   int
	EntryFee   float64
}

// IsOpen reports whether the position holds any shares.
func (p Position) IsOpen() bool { return p.Qty > 0 }

// AccountInfo is a snapshot of the simulated account.
type AccountInfo struct {
	Cash   float64
	Equity float64
}

// Trade is a closed round trip.
type Trade struct {
	Symbol     string     `json:"symbol"`
	Size       float64    `json:"size"`
	EntryBar   int        `json:"entry_bar"`
	ExitBar    int        `json:"exit_bar"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   time.Time  `json:"exit_time"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	PnL        float64    `json:"pnl"`
	ReturnPct  float64    `json:"return_pct"`
	Commission float64    `json:"commission"`
	ExitReason ExitReason `json:"exit_reason"`
}

// Duration is the calendar time the trade was held.
func (t Trade) Duration() time.Duration { return t.ExitTime.Sub(t.EntryTime) }

// EquityPoint is the account value at a bar close.
type EquityPoint struct {
	Time        time.Time `json:"time"`
	Equity      float64   `json:"equity"`
	DrawdownPct float64   `json:"drawdown_pct"`
}

// Closes extracts the close prices of bars.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
