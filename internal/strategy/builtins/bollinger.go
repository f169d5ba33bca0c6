package builtins

import (
	"context"
	"fmt"

	"stockbt/internal/domain"
	"stockbt/internal/indicator"
	"stockbt/internal/strategy"
)

var _ strategy.Strategy = (*Bollinger)(nil)

// Bollinger buys a close under the lower band and sells a close over the
// upper band.
type Bollinger struct {
	period int
	stdDev float64

	closes               []float64
	middle, upper, lower []float64
}

// NewBollinger creates a Bollinger Band strategy.
func NewBollinger(period int, stdDev float64) *Bollinger {
	return &Bollinger{period: period, stdDev: stdDev}
}

// BollingerFactory describes bollinger for the registry.
func BollingerFactory() strategy.Factory {
	return strategy.Factory{
		Name:        "bollinger",
		Label:       "Bollinger Bands",
		Description: "Buy when the close falls below the lower band, sell when it rises above the upper band.",
		Aliases:     []string{"ボリンジャーバンド", "bb"},
		Params: []strategy.ParamSpec{
			{Name: "period", Label: "Period", Min: 10, Max: 50, Default: 20, Step: 1, Integer: true},
			{Name: "std_dev", Label: "Standard deviations", Min: 1, Max: 3, Default: 2, Step: 0.1},
		},
		New: func(p strategy.Params) strategy.Strategy {
			return NewBollinger(p.Int("period"), p["std_dev"])
		},
	}
}

// Name returns "bollinger".
func (s *Bollinger) Name() string { return "bollinger" }

// Init computes the three bands.
func (s *Bollinger) Init(_ context.Context, bars []domain.Bar) error {
	if s.period <= 1 {
		return fmt.Errorf("bollinger: period must be above 1, got %d", s.period)
	}
	s.closes = domain.Closes(bars)
	s.middle, s.upper, s.lower = indicator.Bollinger(s.closes, s.period, s.stdDev)
	return nil
}

// OnBar compares the close of bar i with the bands.
func (s *Bollinger) OnBar(_ context.Context, i int) (domain.SignalType, error) {
	c := indicator.Last(s.closes, i)
	lo, up := indicator.Last(s.lower, i), indicator.Last(s.upper, i)
	if !valid(c, lo, up) {
		return domain.SignalTypeHold, nil
	}
	return signalAt(c < lo, c > up), nil
}

// Indicators returns the bands for the price panel.
func (s *Bollinger) Indicators() []strategy.Series {
	return []strategy.Series{
		{Name: fmt.Sprintf("BB upper(%d, %.1f)", s.period, s.stdDev), Panel: strategy.PanelPrice, Values: s.upper},
		{Name: fmt.Sprintf("BB middle(%d)", s.period), Panel: strategy.PanelPrice, Values: s.middle},
		{Name: fmt.Sprintf("BB lower(%d, %.1f)", s.period, s.stdDev), Panel: strategy.PanelPrice, Values: s.lower},
	}
}
