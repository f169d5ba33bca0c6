// Package builtins provides the strategy implementations that ship with
// stockbt and a registry preloaded with them.
package builtins

import (
	"math"

	"stockbt/internal/domain"
	"stockbt/internal/strategy"
)

// Register adds every builtin strategy to r.
func Register(r *strategy.Registry) {
	r.Register(SMACrossFactory())
	r.Register(RSIFactory())
	r.Register(MACDFactory())
	r.Register(BollingerFactory())
	r.Register(HMATrendFactory())
}

// Registry returns a new registry holding the builtin strategies.
func Registry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}

// signalAt maps buy/sell conditions to a signal. NaN comparisons are false,
// so warm-up bars always hold.
func signalAt(buy, sell bool) domain.SignalType {
	switch {
	case buy:
		return domain.SignalTypeBuy
	case sell:
		return domain.SignalTypeSell
	default:
		return domain.SignalTypeHold
	}
}

func valid(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}
