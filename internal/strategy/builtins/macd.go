package builtins

import (
	"context"
	"fmt"

	"stockbt/internal/domain"
	"stockbt/internal/indicator"
	"stockbt/internal/strategy"
)

var _ strategy.Strategy = (*MACD)(nil)

// MACD trades crossovers of the MACD line and its signal line.
type MACD struct {
	fast, slow, signal int

	macd, sig []float64
}

// NewMACD creates a MACD strategy from the three EMA spans.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{fast: fast, slow: slow, signal: signal}
}

// MACDFactory describes macd for the registry.
func MACDFactory() strategy.Factory {
	return strategy.Factory{
		Name:        "macd",
		Label:       "MACD",
		Description: "Buy when MACD crosses above its signal line, sell when it crosses below.",
		Params: []strategy.ParamSpec{
			{Name: "fast", Label: "Fast EMA", Min: 5, Max: 20, Default: 12, Step: 1, Integer: true},
			{Name: "slow", Label: "Slow EMA", Min: 20, Max: 40, Default: 26, Step: 1, Integer: true},
			{Name: "signal", Label: "Signal EMA", Min: 5, Max: 15, Default: 9, Step: 1, Integer: true},
		},
		Check: strategy.Less("fast", "slow"),
		New: func(p strategy.Params) strategy.Strategy {
			return NewMACD(p.Int("fast"), p.Int("slow"), p.Int("signal"))
		},
	}
}

// Name returns "macd".
func (s *MACD) Name() string { return "macd" }

// Init computes the MACD and signal lines.
func (s *MACD) Init(_ context.Context, bars []domain.Bar) error {
	if s.fast <= 0 || s.slow <= 0 || s.signal <= 0 {
		return fmt.Errorf("macd: spans must be positive, got %d/%d/%d", s.fast, s.slow, s.signal)
	}
	s.macd, s.sig = indicator.MACD(domain.Closes(bars), s.fast, s.slow, s.signal)
	return nil
}

// OnBar detects a MACD/signal crossover at bar i.
func (s *MACD) OnBar(_ context.Context, i int) (domain.SignalType, error) {
	return signalAt(
		indicator.Crossover(s.macd, s.sig, i),
		indicator.Crossover(s.sig, s.macd, i),
	), nil
}

// Indicators returns both lines for an oscillator panel.
func (s *MACD) Indicators() []strategy.Series {
	return []strategy.Series{
		{Name: fmt.Sprintf("MACD(%d,%d)", s.fast, s.slow), Panel: strategy.PanelOscillator, Values: s.macd, Levels: []float64{0}},
		{Name: fmt.Sprintf("Signal(%d)", s.signal), Panel: strategy.PanelOscillator, Values: s.sig},
	}
}
