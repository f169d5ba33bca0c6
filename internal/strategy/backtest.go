package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"stockbt/internal/broker"
	"stockbt/internal/config"
	"stockbt/internal/dashboard"
	"stockbt/internal/domain"
	"stockbt/internal/engine"
	"stockbt/internal/gather"
	"stockbt/internal/metrics"
	"stockbt/internal/store"
	"stockbt/internal/util"
)

// ErrInvalidRequest is wrapped by every Request validation failure.
var ErrInvalidRequest = errors.New("invalid backtest request")

// Request describes one backtest run. Zero fields are filled from the
// configured defaults by Normalize.
type Request struct {
	Symbol      string
	Start       time.Time
	End         time.Time
	Strategy    string
	Params      Params
	Risk        engine.RiskRules
	InitialCash float64
	// Commission is a fraction of each fill's notional. Nil means the
	// configured default; zero means commission-free.
	Commission *float64
}

// requestJSON is the wire form of Request, with dates as YYYY-MM-DD.
type requestJSON struct {
	Symbol      string           `json:"symbol"`
	Start       string           `json:"start,omitempty"`
	End         string           `json:"end,omitempty"`
	Strategy    string           `json:"strategy"`
	Params      Params           `json:"params,omitempty"`
	Risk        engine.RiskRules `json:"risk"`
	InitialCash float64          `json:"initial_cash,omitempty"`
	Commission  *float64         `json:"commission,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(requestJSON{
		Symbol:      r.Symbol,
		Start:       formatDate(r.Start),
		End:         formatDate(r.End),
		Strategy:    r.Strategy,
		Params:      r.Params,
		Risk:        r.Risk,
		InitialCash: r.InitialCash,
		Commission:  r.Commission,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Dates may be YYYY-MM-DD or
// RFC 3339.
func (r *Request) UnmarshalJSON(b []byte) error {
	var w requestJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	start, err := parseDate("start", w.Start)
	if err != nil {
		return err
	}
	end, err := parseDate("end", w.End)
	if err != nil {
		return err
	}
	*r = Request{
		Symbol:      w.Symbol,
		Start:       start,
		End:         end,
		Strategy:    w.Strategy,
		Params:      w.Params,
		Risk:        w.Risk,
		InitialCash: w.InitialCash,
		Commission:  w.Commission,
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(util.DateLayout)
}

func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := util.ParseDate(s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q is not a date", ErrInvalidRequest, field, s)
	}
	return util.TruncateDay(t), nil
}

// Normalize trims and upper-cases the symbol, truncates dates to days and
// fills unset fields from defaults.
func (r *Request) Normalize(defaults config.BacktestConfig) {
	r.Symbol = gather.NormalizeSymbol(r.Symbol)
	r.Strategy = strings.TrimSpace(r.Strategy)

	switch {
	case r.Start.IsZero() && r.End.IsZero():
		r.Start, r.End = util.DefaultRange(defaults.LookbackDays)
	case r.End.IsZero():
		r.End = util.Today()
	case r.Start.IsZero():
		r.Start = r.End.AddDate(0, 0, -defaults.LookbackDays)
	}
	r.Start = util.TruncateDay(r.Start)
	r.End = util.TruncateDay(r.End)

	if r.InitialCash == 0 {
		r.InitialCash = defaults.InitialCash
	}
	if r.Commission == nil {
		c := defaults.Commission
		r.Commission = &c
	}
	if r.Risk.PositionSizePct == 0 {
		r.Risk.PositionSizePct = defaults.PositionSizePct
	}
}

// Validate checks a normalized request.
func (r Request) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	if r.Strategy == "" {
		return fmt.Errorf("%w: strategy is required", ErrInvalidRequest)
	}
	if r.Start.After(r.End) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidRequest, formatDate(r.Start), formatDate(r.End))
	}
	if r.End.After(util.Today()) {
		return fmt.Errorf("%w: end %s is in the future", ErrInvalidRequest, formatDate(r.End))
	}
	if r.InitialCash < config.MinInitialCash || r.InitialCash > config.MaxInitialCash {
		return fmt.Errorf("%w: initial_cash (%.0f) must be between %d and %d",
			ErrInvalidRequest, r.InitialCash, config.MinInitialCash, config.MaxInitialCash)
	}
	if r.Commission == nil || math.IsNaN(*r.Commission) || *r.Commission < 0 || *r.Commission >= 0.1 {
		return fmt.Errorf("%w: commission must be in [0, 0.1)", ErrInvalidRequest)
	}
	return r.Risk.Validate()
}

// Result is a finished backtest.
type Result struct {
	ID          string               `json:"id"`
	Request     Request              `json:"request"`
	CompanyName string               `json:"company_name"`
	Bars        []domain.Bar         `json:"bars,omitempty"`
	Trades      []domain.Trade       `json:"trades"`
	Equity      []domain.EquityPoint `json:"equity"`
	Stats       dashboard.Stats      `json:"stats"`
	Indicators  []Series             `json:"indicators,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// Report returns the data RenderReport prints for r.
func (r *Result) Report() dashboard.Report {
	return dashboard.Report{
		ID:          r.ID,
		Symbol:      r.Request.Symbol,
		CompanyName: r.CompanyName,
		Strategy:    r.Request.Strategy,
		Params:      r.Request.Params,
		InitialCash: r.Request.InitialCash,
		Stats:       r.Stats,
		Trades:      r.Trades,
	}
}

// Record converts r into the form saved by a ResultStore.
func (r *Result) Record() (*store.RunRecord, error) {
	req, err := json.Marshal(r.Request)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	stats, err := json.Marshal(r.Stats)
	if err != nil {
		return nil, fmt.Errorf("encode stats: %w", err)
	}
	return &store.RunRecord{
		ID:          r.ID,
		Symbol:      r.Request.Symbol,
		CompanyName: r.CompanyName,
		Strategy:    r.Request.Strategy,
		Start:       r.Request.Start,
		End:         r.Request.End,
		InitialCash: r.Request.InitialCash,
		FinalEquity: float64(r.Stats.EquityFinal),
		ReturnPct:   float64(r.Stats.ReturnPct),
		NumTrades:   len(r.Trades),
		Request:     req,
		Stats:       stats,
		CreatedAt:   r.CreatedAt,
		Trades:      r.Trades,
		Equity:      r.Equity,
	}, nil
}

// Backtester replays historical bar data through a strategy and computes
// performance metrics.
type Backtester struct {
	source   gather.Source
	results  store.ResultStore
	registry *Registry
	defaults config.BacktestConfig
	logger   *slog.Logger
}

// NewBacktester creates a Backtester that loads bars from source and looks up
// strategies in registry. results may be nil, in which case runs are not
// saved.
func NewBacktester(source gather.Source, results store.ResultStore, registry *Registry,
	defaults config.BacktestConfig, logger *slog.Logger) *Backtester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backtester{
		source:   source,
		results:  results,
		registry: registry,
		defaults: defaults,
		logger:   logger.With("component", "backtester"),
	}
}

// Registry returns the strategies the backtester can run.
func (bt *Backtester) Registry() *Registry { return bt.registry }

// Defaults returns the values applied to unset request fields.
func (bt *Backtester) Defaults() config.BacktestConfig { return bt.defaults }

// Source returns the market-data source.
func (bt *Backtester) Source() gather.Source { return bt.source }

// Prepare normalizes and validates req and resolves its strategy, so that
// bad input is rejected before any data is fetched.
func (bt *Backtester) Prepare(req Request) (Request, error) {
	req.Normalize(bt.defaults)
	if err := req.Validate(); err != nil {
		return req, err
	}
	name, params, err := bt.registry.Resolve(req.Strategy, req.Params)
	if err != nil {
		return req, err
	}
	req.Strategy = name
	req.Params = params
	return req, nil
}

// Run executes a single backtest and saves it when a ResultStore is set.
func (bt *Backtester) Run(ctx context.Context, req Request) (*Result, error) {
	req, err := bt.Prepare(req)
	if err != nil {
		return nil, err
	}
	bars, company, err := bt.load(ctx, req)
	if err != nil {
		return nil, err
	}
	res, err := bt.execute(ctx, req, bars, company)
	if err != nil {
		return nil, err
	}
	if err := bt.save(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Compare runs several strategies over the same bars concurrently. The
// strategy named in req uses req.Params; the others use their defaults.
// Results are returned in the order of names.
func (bt *Backtester) Compare(ctx context.Context, req Request, names []string) ([]*Result, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no strategies to compare", ErrInvalidRequest)
	}
	if req.Strategy == "" {
		req.Strategy = names[0]
	}
	base, err := bt.Prepare(req)
	if err != nil {
		return nil, err
	}

	reqs := make([]Request, len(names))
	for i, name := range names {
		r := base
		r.Strategy = name
		r.Params = nil
		if f, ok := bt.registry.Get(name); ok && f.Name == base.Strategy {
			r.Params = base.Params
		}
		if reqs[i], err = bt.Prepare(r); err != nil {
			return nil, err
		}
	}

	bars, company, err := bt.load(ctx, base)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i := range reqs {
		g.Go(func() error {
			res, err := bt.execute(gctx, reqs[i], bars, company)
			if err != nil {
				return fmt.Errorf("%s: %w", reqs[i].Strategy, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, res := range results {
		if err := bt.save(ctx, res); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Load rebuilds a saved run, refetching its bars and indicators for charts.
func (bt *Backtester) Load(ctx context.Context, id string) (*Result, error) {
	if bt.results == nil {
		return nil, fmt.Errorf("run %s: %w", id, store.ErrNotFound)
	}
	rec, err := bt.results.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	res := &Result{
		ID:          rec.ID,
		CompanyName: rec.CompanyName,
		Trades:      rec.Trades,
		Equity:      rec.Equity,
		CreatedAt:   rec.CreatedAt,
	}
	if err := json.Unmarshal(rec.Request, &res.Request); err != nil {
		return nil, fmt.Errorf("decode request of run %s: %w", id, err)
	}
	if err := json.Unmarshal(rec.Stats, &res.Stats); err != nil {
		return nil, fmt.Errorf("decode stats of run %s: %w", id, err)
	}

	bars, err := bt.source.Bars(ctx, res.Request.Symbol, res.Request.Start, res.Request.End)
	if err != nil {
		bt.logger.Warn("bars unavailable for saved run", "id", id, "error", err)
		return res, nil
	}
	res.Bars = bars
	if strat, _, err := bt.registry.New(res.Request.Strategy, res.Request.Params); err == nil {
		if err := strat.Init(ctx, bars); err == nil {
			res.Indicators = strat.Indicators()
		}
	}
	return res, nil
}

// History lists recent saved runs, newest first.
func (bt *Backtester) History(ctx context.Context, limit int) ([]store.RunRecord, error) {
	if bt.results == nil {
		return nil, nil
	}
	return bt.results.ListRuns(ctx, limit)
}

// Delete removes a saved run.
func (bt *Backtester) Delete(ctx context.Context, id string) error {
	if bt.results == nil {
		return fmt.Errorf("run %s: %w", id, store.ErrNotFound)
	}
	return bt.results.DeleteRun(ctx, id)
}

// load fetches bars and the company name. A failed name lookup falls back
// to the symbol.
func (bt *Backtester) load(ctx context.Context, req Request) ([]domain.Bar, string, error) {
	bars, err := bt.source.Bars(ctx, req.Symbol, req.Start, req.End)
	if err != nil {
		return nil, "", err
	}
	if len(bars) == 0 {
		return nil, "", gather.NoData(req.Symbol)
	}

	company, err := bt.source.CompanyName(ctx, req.Symbol)
	if err != nil || company == "" {
		if err != nil {
			bt.logger.Warn("company name lookup failed", "symbol", req.Symbol, "error", err)
		}
		company = req.Symbol
	}
	return bars, company, nil
}

// execute replays bars through the request's strategy on a fresh simulator.
func (bt *Backtester) execute(ctx context.Context, req Request, bars []domain.Bar, company string) (res *Result, err error) {
	started := time.Now()
	defer func() {
		final := 0.0
		if res != nil {
			final = float64(res.Stats.EquityFinal)
		}
		metrics.ObserveBacktest(req.Strategy, err, time.Since(started), final)
	}()

	strat, _, err := bt.registry.New(req.Strategy, req.Params)
	if err != nil {
		return nil, err
	}
	if err := strat.Init(ctx, bars); err != nil {
		return nil, fmt.Errorf("init %s: %w", req.Strategy, err)
	}
	risk, err := engine.NewRiskManager(req.Risk)
	if err != nil {
		return nil, err
	}

	commission := *req.Commission
	sim := broker.NewSimulator(req.InitialCash, commission)
	eng := engine.NewEngine(sim, risk, req.Symbol, commission, bt.logger)
	for i, bar := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		signal, err := strat.OnBar(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("%s at bar %d: %w", req.Strategy, i, err)
		}
		if err := eng.OnBar(ctx, i, bar, signal); err != nil {
			return nil, err
		}
	}
	if err := eng.Finish(ctx, bars[len(bars)-1]); err != nil {
		return nil, err
	}

	trades := eng.Trades()
	equity := eng.Equity()
	res = &Result{
		ID:          uuid.NewString(),
		Request:     req,
		CompanyName: company,
		Bars:        bars,
		Trades:      trades,
		Equity:      equity,
		Stats:       dashboard.ComputeStats(bars, equity, trades, req.InitialCash),
		Indicators:  strat.Indicators(),
		CreatedAt:   time.Now().UTC(),
	}
	bt.logger.Info("backtest complete",
		"symbol", req.Symbol,
		"strategy", req.Strategy,
		"bars", len(bars),
		"trades", len(trades),
		"return_pct", float64(res.Stats.ReturnPct),
		"elapsed", time.Since(started),
	)
	return res, nil
}

func (bt *Backtester) save(ctx context.Context, res *Result) error {
	if bt.results == nil {
		return nil
	}
	rec, err := res.Record()
	if err != nil {
		return err
	}
	if err := bt.results.SaveRun(ctx, rec); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}
