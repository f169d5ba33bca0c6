package engine

import (
	"errors"
	"fmt"
	"math"

	"stockbt/internal/domain"
)

// ErrInvalidRisk is wrapped by every RiskRules validation failure.
var ErrInvalidRisk = errors.New("invalid risk rules")

// Accepted ranges for the percentage rules. Zero always disables a rule.
const (
	MaxStopLossPct     = 20
	MaxTakeProfitPct   = 50
	MaxTrailingStopPct = 20
)

// RiskRules are the per-run risk settings, all in percent.
type RiskRules struct {
	StopLossPct     float64 `json:"stop_loss_pct"`
	TakeProfitPct   float64 `json:"take_profit_pct"`
	TrailingStopPct float64 `json:"trailing_stop_pct"`
	PositionSizePct float64 `json:"position_size_pct"`
}

// Validate checks each rule against its range.
func (r RiskRules) Validate() error {
	if err := checkPct("stop_loss_pct", r.StopLossPct, MaxStopLossPct); err != nil {
		return err
	}
	if err := checkPct("take_profit_pct", r.TakeProfitPct, MaxTakeProfitPct); err != nil {
		return err
	}
	if err := checkPct("trailing_stop_pct", r.TrailingStopPct, MaxTrailingStopPct); err != nil {
		return err
	}
	if r.PositionSizePct < 1 || r.PositionSizePct > 100 || math.IsNaN(r.PositionSizePct) {
		return fmt.Errorf("%w: position_size_pct (%v) must be between 1 and 100", ErrInvalidRisk, r.PositionSizePct)
	}
	return nil
}

func checkPct(name string, v, max float64) error {
	if v == 0 {
		return nil
	}
	if math.IsNaN(v) || v < 1 || v > max {
		return fmt.Errorf("%w: %s (%v) must be 0 or between 1 and %v", ErrInvalidRisk, name, v, max)
	}
	return nil
}

// RiskManager turns RiskRules into order sizes and exit prices.
type RiskManager struct {
	rules RiskRules
}

// NewRiskManager validates rules and returns a RiskManager enforcing them.
func NewRiskManager(rules RiskRules) (*RiskManager, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &RiskManager{rules: rules}, nil
}

// Rules returns the configured rules.
func (rm *RiskManager) Rules() RiskRules { return rm.rules }

// Levels returns the stop-loss and take-profit prices for a position
// entered at ref. A disabled rule yields 0.
func (rm *RiskManager) Levels(ref float64) (stop, take float64) {
	if rm.rules.StopLossPct > 0 {
		stop = ref * (1 - rm.rules.StopLossPct/100)
	}
	if rm.rules.TakeProfitPct > 0 {
		take = ref * (1 + rm.rules.TakeProfitPct/100)
	}
	return stop, take
}

// TrailingStop returns the trailing stop price for the highest price seen
// since entry, or 0 when the rule is disabled. Because peak only rises, the
// stop only ratchets upward.
func (rm *RiskManager) TrailingStop(peak float64) float64 {
	if rm.rules.TrailingStopPct <= 0 {
		return 0
	}
	return peak * (1 - rm.rules.TrailingStopPct/100)
}

// Size returns the whole number of shares that PositionSizePct of cash buys
// at price once commission is paid.
func (rm *RiskManager) Size(cash, price, commission float64) float64 {
	if price <= 0 || cash <= 0 {
		return 0
	}
	budget := cash * rm.rules.PositionSizePct / 100
	return math.Floor(budget / (price * (1 + commission)))
}

// Exit describes a triggered risk exit.
type Exit struct {
	Price  float64
	Reason domain.ExitReason
}

// CheckExit tests bar's range against the exit levels of an open position.
// ref is the price the stop-loss and take-profit levels are measured from and
// peak is the highest price seen before this bar. Stop-type exits win over
// take profit when both fall inside the bar. A bar that opens beyond a level
// fills at the open.
func (rm *RiskManager) CheckExit(bar domain.Bar, ref, peak float64) (Exit, bool) {
	stop, take := rm.Levels(ref)
	reason := domain.ExitStopLoss
	if trail := rm.TrailingStop(peak); trail > stop {
		stop = trail
		reason = domain.ExitTrailingStop
	}

	if stop > 0 && bar.Low <= stop {
		return Exit{Price: math.Min(bar.Open, stop), Reason: reason}, true
	}
	if take > 0 && bar.High >= take {
		return Exit{Price: math.Max(bar.Open, take), Reason: domain.ExitTakeProfit}, true
	}
	return Exit{}, false
}
