package builtins

import (
	"context"
	"fmt"

	"stockbt/internal/domain"
	"stockbt/internal/indicator"
	"stockbt/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It generates
// a buy signal when the short-period SMA crosses above the long-period SMA,
// and a sell signal when it crosses below.
type SMACross struct {
	shortPeriod int
	longPeriod  int

	fast, slow []float64
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods.
func NewSMACross(short, long int) *SMACross {
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
	}
}

// SMACrossFactory describes sma-cross for the registry.
func SMACrossFactory() strategy.Factory {
	return strategy.Factory{
		Name:        "sma-cross",
		Label:       "Moving Average Crossover",
		Description: "Buy when the fast SMA crosses above the slow SMA, sell when it crosses back below.",
		Aliases:     []string{"移動平均線クロスオーバー", "ma-cross", "sma"},
		Params: []strategy.ParamSpec{
			{Name: "fast", Label: "Fast period", Min: 5, Max: 50, Default: 10, Step: 1, Integer: true},
			{Name: "slow", Label: "Slow period", Min: 20, Max: 100, Default: 30, Step: 1, Integer: true},
		},
		Check: strategy.Less("fast", "slow"),
		New: func(p strategy.Params) strategy.Strategy {
			return NewSMACross(p.Int("fast"), p.Int("slow"))
		},
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Init computes both moving averages over the closes.
func (s *SMACross) Init(_ context.Context, bars []domain.Bar) error {
	if s.shortPeriod <= 0 || s.longPeriod <= 0 {
		return fmt.Errorf("sma-cross: periods must be positive, got %d/%d", s.shortPeriod, s.longPeriod)
	}
	closes := domain.Closes(bars)
	s.fast = indicator.SMA(closes, s.shortPeriod)
	s.slow = indicator.SMA(closes, s.longPeriod)
	return nil
}

// OnBar detects a crossover at bar i.
func (s *SMACross) OnBar(_ context.Context, i int) (domain.SignalType, error) {
	return signalAt(
		indicator.Crossover(s.fast, s.slow, i),
		indicator.Crossover(s.slow, s.fast, i),
	), nil
}

// Indicators returns both averages for the price panel.
func (s *SMACross) Indicators() []strategy.Series {
	return []strategy.Series{
		{Name: fmt.Sprintf("SMA(%d)", s.shortPeriod), Panel: strategy.PanelPrice, Values: s.fast},
		{Name: fmt.Sprintf("SMA(%d)", s.longPeriod), Panel: strategy.PanelPrice, Values: s.slow},
	}
}
