package builtins

import (
	"context"
	"fmt"

	"stockbt/internal/domain"
	"stockbt/internal/indicator"
	"stockbt/internal/strategy"
)

var _ strategy.Strategy = (*RSI)(nil)

// RSI buys when the relative strength index drops under the oversold level
// and sells when it rises over the overbought level.
type RSI struct {
	period     int
	overbought float64
	oversold   float64

	rsi []float64
}

// NewRSI creates an RSI strategy.
func NewRSI(period int, overbought, oversold float64) *RSI {
	return &RSI{period: period, overbought: overbought, oversold: oversold}
}

// RSIFactory describes rsi for the registry.
func RSIFactory() strategy.Factory {
	return strategy.Factory{
		Name:        "rsi",
		Label:       "RSI",
		Description: "Buy when RSI is below the oversold level, sell when it is above the overbought level.",
		Params: []strategy.ParamSpec{
			{Name: "period", Label: "RSI period", Min: 5, Max: 30, Default: 14, Step: 1, Integer: true},
			{Name: "overbought", Label: "Overbought", Min: 50, Max: 90, Default: 70, Step: 1, Integer: true},
			{Name: "oversold", Label: "Oversold", Min: 10, Max: 50, Default: 30, Step: 1, Integer: true},
		},
		Check: strategy.Less("oversold", "overbought"),
		New: func(p strategy.Params) strategy.Strategy {
			return NewRSI(p.Int("period"), p["overbought"], p["oversold"])
		},
	}
}

// Name returns "rsi".
func (s *RSI) Name() string { return "rsi" }

// Init computes the RSI series.
func (s *RSI) Init(_ context.Context, bars []domain.Bar) error {
	if s.period <= 0 {
		return fmt.Errorf("rsi: period must be positive, got %d", s.period)
	}
	s.rsi = indicator.RSI(domain.Closes(bars), s.period)
	return nil
}

// OnBar compares RSI at bar i with the thresholds.
func (s *RSI) OnBar(_ context.Context, i int) (domain.SignalType, error) {
	v := indicator.Last(s.rsi, i)
	return signalAt(v < s.oversold, v > s.overbought), nil
}

// Indicators returns RSI for an oscillator panel with both threshold lines.
func (s *RSI) Indicators() []strategy.Series {
	return []strategy.Series{{
		Name:   fmt.Sprintf("RSI(%d)", s.period),
		Panel:  strategy.PanelOscillator,
		Values: s.rsi,
		Levels: []float64{s.overbought, s.oversold},
	}}
}
