package builtins

import (
	"context"
	"fmt"

	"github.com/evdnx/goti"

	"stockbt/internal/domain"
	"stockbt/internal/strategy"
)

var _ strategy.Strategy = (*HMATrend)(nil)

// HMATrend follows Hull moving average crossovers reported by the goti
// indicator suite. The suite is fed one bar at a time so that the signal at
// bar i only sees bars up to i.
type HMATrend struct {
	warmup  int
	signals []domain.SignalType
}

// NewHMATrend creates an HMATrend that ignores the first warmup bars.
func NewHMATrend(warmup int) *HMATrend {
	return &HMATrend{warmup: warmup}
}

// HMATrendFactory describes hma-trend for the registry.
func HMATrendFactory() strategy.Factory {
	return strategy.Factory{
		Name:        "hma-trend",
		Label:       "HMA Trend",
		Description: "Buy on a bullish Hull moving average crossover, sell on a bearish one.",
		Aliases:     []string{"hma"},
		Params: []strategy.ParamSpec{
			{Name: "warmup", Label: "Warm-up bars", Min: 1, Max: 100, Default: 10, Step: 1, Integer: true},
		},
		New: func(p strategy.Params) strategy.Strategy {
			return NewHMATrend(p.Int("warmup"))
		},
	}
}

// Name returns "hma-trend".
func (s *HMATrend) Name() string { return "hma-trend" }

// Init replays bars through a fresh indicator suite and records the signal
// seen after each one.
func (s *HMATrend) Init(ctx context.Context, bars []domain.Bar) error {
	suite, err := goti.NewIndicatorSuiteWithConfig(goti.DefaultConfig())
	if err != nil {
		return fmt.Errorf("hma-trend: indicator suite: %w", err)
	}

	s.signals = make([]domain.SignalType, len(bars))
	for i, b := range bars {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.signals[i] = domain.SignalTypeHold
		if err := suite.Add(b.High, b.Low, b.Close, float64(b.Volume)); err != nil {
			// Rejected bars (e.g. high below low) leave the suite untouched.
			continue
		}
		if i < s.warmup {
			continue
		}
		bull, _ := suite.GetHMA().IsBullishCrossover()
		bear, _ := suite.GetHMA().IsBearishCrossover()
		s.signals[i] = signalAt(bull, bear)
	}
	return nil
}

// OnBar returns the signal recorded for bar i.
func (s *HMATrend) OnBar(_ context.Context, i int) (domain.SignalType, error) {
	if i < 0 || i >= len(s.signals) {
		return domain.SignalTypeHold, nil
	}
	return s.signals[i], nil
}

// Indicators returns nothing; the suite does not expose the HMA line.
func (s *HMATrend) Indicators() []strategy.Series { return nil }
