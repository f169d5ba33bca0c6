// Package dashboard computes the performance statistics of a finished
// backtest and renders them for terminals.
package dashboard

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"stockbt/internal/domain"
	"stockbt/internal/util"
)

// Float is a float64 that encodes NaN and infinities as JSON null and decodes
// null back to NaN.
type Float float64

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Float) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Stats summarises a backtest. Percentages are in percent, durations in
// calendar days. Metrics that are undefined for the run are NaN.
type Stats struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationDays    Float     `json:"duration_days"`
	ExposureTimePct Float     `json:"exposure_time_pct"`
	EquityFinal     Float     `json:"equity_final"`
	EquityPeak      Float     `json:"equity_peak"`
	Commissions     Float     `json:"commissions"`
	ReturnPct       Float     `json:"return_pct"`
	BuyHoldPct      Float     `json:"buy_hold_return_pct"`
	ReturnAnnPct    Float     `json:"return_ann_pct"`
	VolatilityAnn   Float     `json:"volatility_ann_pct"`
	Sharpe          Float     `json:"sharpe"`
	Sortino         Float     `json:"sortino"`
	Calmar          Float     `json:"calmar"`
	MaxDrawdownPct  Float     `json:"max_drawdown_pct"`
	AvgDrawdownPct  Float     `json:"avg_drawdown_pct"`
	MaxDrawdownDays Float     `json:"max_drawdown_days"`
	AvgDrawdownDays Float     `json:"avg_drawdown_days"`
	NumTrades       int       `json:"num_trades"`
	WinRatePct      Float     `json:"win_rate_pct"`
	BestTradePct    Float     `json:"best_trade_pct"`
	WorstTradePct   Float     `json:"worst_trade_pct"`
	AvgTradePct     Float     `json:"avg_trade_pct"`
	MaxTradeDays    Float     `json:"max_trade_days"`
	AvgTradeDays    Float     `json:"avg_trade_days"`
	ProfitFactor    Float     `json:"profit_factor"`
	ExpectancyPct   Float     `json:"expectancy_pct"`
	SQN             Float     `json:"sqn"`
}

var nan = math.NaN()

// ComputeStats derives Stats from a run's bars, equity curve and closed
// trades. equity must hold one point per bar.
func ComputeStats(bars []domain.Bar, equity []domain.EquityPoint, trades []domain.Trade, initialCash float64) Stats {
	s := Stats{NumTrades: len(trades)}
	if len(bars) == 0 || len(equity) == 0 {
		for _, f := range s.floats() {
			*f = Float(nan)
		}
		return s
	}

	s.Start = bars[0].Timestamp
	s.End = bars[len(bars)-1].Timestamp
	s.DurationDays = Float(days(s.End.Sub(s.Start)))

	eq := make([]float64, len(equity))
	peak := 0.0
	for i, p := range equity {
		eq[i] = p.Equity
		peak = math.Max(peak, p.Equity)
	}
	final := eq[len(eq)-1]
	s.EquityFinal = Float(final)
	s.EquityPeak = Float(peak)
	s.ReturnPct = Float((final - initialCash) / initialCash * 100)

	first, last := bars[0].Close, bars[len(bars)-1].Close
	s.BuyHoldPct = Float((last - first) / first * 100)

	s.ExposureTimePct = Float(exposure(len(bars), trades))

	// Annualised figures from bar-to-bar equity returns; the first bar counts
	// as a zero return.
	rets := pctChange(eq)
	gmean := geometricMean(append([]float64{nan}, rets...))
	annRet := math.Pow(1+gmean, util.TradingDaysPerYear) - 1
	s.ReturnAnnPct = Float(annRet * 100)
	annVol := math.Sqrt(math.Pow(variance(rets)+math.Pow(1+gmean, 2), util.TradingDaysPerYear) -
		math.Pow(1+gmean, 2*util.TradingDaysPerYear))
	s.VolatilityAnn = Float(annVol * 100)
	s.Sharpe = Float(ratio(annRet, annVol))
	s.Sortino = Float(ratio(annRet, downsideDeviation(rets)*math.Sqrt(util.TradingDaysPerYear)))

	dd := drawdowns(eq)
	maxDD := 0.0
	for _, v := range dd {
		maxDD = math.Max(maxDD, v)
	}
	s.MaxDrawdownPct = Float(-maxDD * 100)
	s.Calmar = Float(ratio(annRet, maxDD))

	periods := drawdownPeriods(dd, equity)
	if len(periods) == 0 {
		s.AvgDrawdownPct, s.MaxDrawdownDays, s.AvgDrawdownDays = Float(nan), Float(nan), Float(nan)
	} else {
		var sumDepth, sumDays, maxDays float64
		for _, p := range periods {
			sumDepth += p.depth
			sumDays += p.days
			maxDays = math.Max(maxDays, p.days)
		}
		n := float64(len(periods))
		s.AvgDrawdownPct = Float(-sumDepth / n * 100)
		s.MaxDrawdownDays = Float(maxDays)
		s.AvgDrawdownDays = Float(sumDays / n)
	}

	s.tradeStats(trades)
	return s
}

func (s *Stats) tradeStats(trades []domain.Trade) {
	var commissions float64
	for _, t := range trades {
		commissions += t.Commission
	}
	s.Commissions = Float(commissions)

	if len(trades) == 0 {
		for _, f := range []*Float{
			&s.WinRatePct, &s.BestTradePct, &s.WorstTradePct, &s.AvgTradePct,
			&s.MaxTradeDays, &s.AvgTradeDays, &s.ProfitFactor, &s.ExpectancyPct, &s.SQN,
		} {
			*f = Float(nan)
		}
		return
	}

	n := float64(len(trades))
	rets := make([]float64, len(trades))
	pnls := make([]float64, len(trades))
	var wins, gross, loss, sumRet, sumDays, maxDays float64
	best, worst := math.Inf(-1), math.Inf(1)
	for i, t := range trades {
		r := t.ReturnPct / 100
		rets[i] = r
		pnls[i] = t.PnL
		if t.PnL > 0 {
			wins++
		}
		if r > 0 {
			gross += r
		} else {
			loss -= r
		}
		sumRet += r
		best = math.Max(best, r)
		worst = math.Min(worst, r)
		d := days(t.Duration())
		sumDays += d
		maxDays = math.Max(maxDays, d)
	}

	s.WinRatePct = Float(wins / n * 100)
	s.BestTradePct = Float(best * 100)
	s.WorstTradePct = Float(worst * 100)
	s.AvgTradePct = Float(geometricMean(rets) * 100)
	s.MaxTradeDays = Float(maxDays)
	s.AvgTradeDays = Float(sumDays / n)
	s.ProfitFactor = Float(ratio(gross, loss))
	s.ExpectancyPct = Float(sumRet / n * 100)
	s.SQN = Float(math.Sqrt(n) * mean(pnls) / math.Sqrt(variance(pnls)))
}

// floats lists every Float field, for bulk initialisation.
func (s *Stats) floats() []*Float {
	return []*Float{
		&s.DurationDays, &s.ExposureTimePct, &s.EquityFinal, &s.EquityPeak, &s.Commissions,
		&s.ReturnPct, &s.BuyHoldPct, &s.ReturnAnnPct, &s.VolatilityAnn,
		&s.Sharpe, &s.Sortino, &s.Calmar,
		&s.MaxDrawdownPct, &s.AvgDrawdownPct, &s.MaxDrawdownDays, &s.AvgDrawdownDays,
		&s.WinRatePct, &s.BestTradePct, &s.WorstTradePct, &s.AvgTradePct,
		&s.MaxTradeDays, &s.AvgTradeDays, &s.ProfitFactor, &s.ExpectancyPct, &s.SQN,
	}
}

// exposure is the percentage of bars during which a position was held,
// counting entry and exit bars.
func exposure(nbars int, trades []domain.Trade) float64 {
	held := make([]bool, nbars)
	for _, t := range trades {
		for i := max(t.EntryBar, 0); i <= t.ExitBar && i < nbars; i++ {
			held[i] = true
		}
	}
	n := 0
	for _, h := range held {
		if h {
			n++
		}
	}
	return float64(n) / float64(nbars) * 100
}

// drawdowns returns 1 - equity/peak for every point, as fractions.
func drawdowns(eq []float64) []float64 {
	out := make([]float64, len(eq))
	peak := math.Inf(-1)
	for i, v := range eq {
		peak = math.Max(peak, v)
		if peak > 0 {
			out[i] = 1 - v/peak
		}
	}
	return out
}

type ddPeriod struct {
	depth float64
	days  float64
}

// drawdownPeriods splits the curve at every new equity high (and at the last
// point). Each gap of more than one bar is a drawdown period whose depth is
// the deepest drawdown inside it and whose length runs from the previous high
// to the recovery, or to the end of data.
func drawdownPeriods(dd []float64, equity []domain.EquityPoint) []ddPeriod {
	var marks []int
	for i, v := range dd {
		if v <= 0 {
			marks = append(marks, i)
		}
	}
	if len(marks) == 0 || marks[len(marks)-1] != len(dd)-1 {
		marks = append(marks, len(dd)-1)
	}

	var out []ddPeriod
	for k := 1; k < len(marks); k++ {
		prev, cur := marks[k-1], marks[k]
		if cur <= prev+1 {
			continue
		}
		depth := 0.0
		for _, v := range dd[prev : cur+1] {
			depth = math.Max(depth, v)
		}
		out = append(out, ddPeriod{
			depth: depth,
			days:  days(equity[cur].Time.Sub(equity[prev].Time)),
		})
	}
	return out
}

func pctChange(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, 0, len(x)-1)
	for i := 1; i < len(x); i++ {
		out = append(out, x[i]/x[i-1]-1)
	}
	return out
}

// geometricMean is the mean compounded return of rets, counting undefined
// returns as zero. It is 0 for no returns or when any period lost
// everything.
func geometricMean(rets []float64) float64 {
	if len(rets) == 0 {
		return 0
	}
	sumLog := 0.0
	for _, r := range rets {
		if math.IsNaN(r) {
			continue
		}
		if 1+r <= 0 {
			return 0
		}
		sumLog += math.Log(1 + r)
	}
	return math.Exp(sumLog/float64(len(rets))) - 1
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return nan
	}
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

// variance is the sample variance (ddof=1).
func variance(x []float64) float64 {
	if len(x) < 2 {
		return nan
	}
	m := mean(x)
	ss := 0.0
	for _, v := range x {
		ss += (v - m) * (v - m)
	}
	return ss / float64(len(x)-1)
}

func downsideDeviation(rets []float64) float64 {
	if len(rets) == 0 {
		return nan
	}
	ss := 0.0
	for _, r := range rets {
		if r < 0 {
			ss += r * r
		}
	}
	return math.Sqrt(ss / float64(len(rets)))
}

// ratio divides a by b, returning NaN for a zero or undefined denominator.
func ratio(a, b float64) float64 {
	if b == 0 || math.IsNaN(b) {
		return nan
	}
	return a / b
}

func days(d time.Duration) float64 { return d.Hours() / 24 }

// Row is one labelled, formatted statistic.
type Row struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Rows returns the statistics as display rows in a fixed order.
func (s Stats) Rows() []Row {
	return []Row{
		{"Start", FormatDate(s.Start)},
		{"End", FormatDate(s.End)},
		{"Duration", FormatDays(s.DurationDays)},
		{"Exposure Time [%]", FormatNum(s.ExposureTimePct)},
		{"Equity Final [$]", Money(float64(s.EquityFinal))},
		{"Equity Peak [$]", Money(float64(s.EquityPeak))},
		{"Commissions [$]", Money(float64(s.Commissions))},
		{"Return [%]", FormatNum(s.ReturnPct)},
		{"Buy & Hold Return [%]", FormatNum(s.BuyHoldPct)},
		{"Return (Ann.) [%]", FormatNum(s.ReturnAnnPct)},
		{"Volatility (Ann.) [%]", FormatNum(s.VolatilityAnn)},
		{"Sharpe Ratio", FormatNum(s.Sharpe)},
		{"Sortino Ratio", FormatNum(s.Sortino)},
		{"Calmar Ratio", FormatNum(s.Calmar)},
		{"Max. Drawdown [%]", FormatNum(s.MaxDrawdownPct)},
		{"Avg. Drawdown [%]", FormatNum(s.AvgDrawdownPct)},
		{"Max. Drawdown Duration", FormatDays(s.MaxDrawdownDays)},
		{"Avg. Drawdown Duration", FormatDays(s.AvgDrawdownDays)},
		{"# Trades", FormatInt(s.NumTrades)},
		{"Win Rate [%]", FormatNum(s.WinRatePct)},
		{"Best Trade [%]", FormatNum(s.BestTradePct)},
		{"Worst Trade [%]", FormatNum(s.WorstTradePct)},
		{"Avg. Trade [%]", FormatNum(s.AvgTradePct)},
		{"Max. Trade Duration", FormatDays(s.MaxTradeDays)},
		{"Avg. Trade Duration", FormatDays(s.AvgTradeDays)},
		{"Profit Factor", FormatNum(s.ProfitFactor)},
		{"Expectancy [%]", FormatNum(s.ExpectancyPct)},
		{"SQN", FormatNum(s.SQN)},
	}
}
