package main

import (
	"flag"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"stockbt/internal/strategy"
	"stockbt/internal/util"
)

// paramFlag collects repeatable -param name=value pairs.
type paramFlag strategy.Params

func (p paramFlag) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat(p[k], 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (p paramFlag) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("want name=value, got %q", s)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("param %s: %w", name, err)
	}
	p[name] = v
	return nil
}

// dateFlag parses YYYY-MM-DD. The zero value means "use the default range".
type dateFlag struct{ t *time.Time }

func (d dateFlag) String() string {
	if d.t == nil || d.t.IsZero() {
		return ""
	}
	return d.t.Format(util.DateLayout)
}

func (d dateFlag) Set(s string) error {
	t, err := util.ParseDate(s)
	if err != nil {
		return fmt.Errorf("want YYYY-MM-DD, got %q", s)
	}
	*d.t = t
	return nil
}

// requestFlags registers the backtest request flags on fs and returns a
// function building the Request once fs has been parsed.
func requestFlags(fs *flag.FlagSet) func() strategy.Request {
	var req strategy.Request
	params := paramFlag{}
	var commission *float64

	fs.StringVar(&req.Symbol, "symbol", "", "ticker symbol, e.g. AAPL (required)")
	fs.Var(dateFlag{&req.Start}, "start", "first day, YYYY-MM-DD (default: one lookback before end)")
	fs.Var(dateFlag{&req.End}, "end", "last day, YYYY-MM-DD (default: today)")
	fs.StringVar(&req.Strategy, "strategy", "sma-cross", "strategy name, see the strategies command")
	fs.Var(params, "param", "strategy parameter name=value (repeatable)")
	fs.Float64Var(&req.Risk.StopLossPct, "stop-loss", 0, "stop loss in percent below entry, 0 disables")
	fs.Float64Var(&req.Risk.TakeProfitPct, "take-profit", 0, "take profit in percent above entry, 0 disables")
	fs.Float64Var(&req.Risk.TrailingStopPct, "trailing-stop", 0, "trailing stop in percent below the high since entry, 0 disables")
	fs.Float64Var(&req.Risk.PositionSizePct, "position-size", 0, "percent of cash per entry (default from config)")
	fs.Float64Var(&req.InitialCash, "cash", 0, "initial cash (default from config)")
	fs.Func("commission", "commission as a fraction of trade value, e.g. 0.002 (default from config)", func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		commission = &v
		return nil
	})

	return func() strategy.Request {
		out := req
		if len(params) > 0 {
			out.Params = strategy.Params(params).Clone()
		}
		out.Commission = commission
		return out
	}
}
