// Package engine replays a bar series through the simulated broker, turning
// strategy signals into fills and enforcing the run's risk rules.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"stockbt/internal/broker"
	"stockbt/internal/domain"
)

// Engine executes one symbol's signals against a broker.
//
// Signals are taken at a bar's close and filled at the next bar's open.
// Stop-loss and take-profit levels are measured from the close of the signal
// bar. Only one position is held at a time.
type Engine struct {
	broker     broker.Broker
	risk       *RiskManager
	symbol     string
	commission float64
	logger     *slog.Logger

	pending   *domain.Side
	ref       float64
	peak      float64
	maxEquity float64
	equity    []domain.EquityPoint
	lastBar   int
}

// NewEngine creates an Engine trading symbol through b under risk.
func NewEngine(b broker.Broker, risk *RiskManager, symbol string, commission float64, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		broker:     b,
		risk:       risk,
		symbol:     symbol,
		commission: commission,
		logger:     logger.With("component", "engine", "symbol", symbol),
		lastBar:    -1,
	}
}

// OnBar advances the simulation by one bar: it fills the order queued on the
// previous bar at this bar's open, checks risk exits against the bar's range,
// records equity at the close, and queues an order for signal.
func (e *Engine) OnBar(ctx context.Context, i int, bar domain.Bar, signal domain.SignalType) error {
	if i <= e.lastBar {
		return fmt.Errorf("bar %d replayed after bar %d", i, e.lastBar)
	}
	e.lastBar = i

	if err := e.fillPending(ctx, i, bar); err != nil {
		return err
	}

	if _, ok := e.broker.Position(e.symbol); ok {
		if ex, hit := e.risk.CheckExit(bar, e.ref, e.peak); hit {
			if err := e.close(ctx, i, bar, ex.Price, ex.Reason); err != nil {
				return err
			}
		} else if bar.High > e.peak {
			e.peak = bar.High
		}
	}

	e.recordEquity(bar)

	_, long := e.broker.Position(e.symbol)
	switch {
	case signal == domain.SignalTypeBuy && !long:
		side := domain.SideBuy
		e.pending = &side
		e.ref = bar.Close
	case signal == domain.SignalTypeSell && long:
		side := domain.SideSell
		e.pending = &side
	}
	return nil
}

func (e *Engine) fillPending(ctx context.Context, i int, bar domain.Bar) error {
	if e.pending == nil {
		return nil
	}
	side := *e.pending
	e.pending = nil

	if side == domain.SideSell {
		return e.close(ctx, i, bar, bar.Open, domain.ExitSignal)
	}

	cash := e.broker.Account(bar.Open).Cash
	qty := e.risk.Size(cash, bar.Open, e.commission)
	if qty < 1 {
		e.logger.Debug("buy skipped, cannot afford one share", "bar", i, "price", bar.Open, "cash", cash)
		return nil
	}
	order := &domain.Order{
		Symbol: e.symbol,
		Side:   domain.SideBuy,
		Qty:    qty,
		Price:  bar.Open,
		Bar:    i,
		Time:   bar.Timestamp,
	}
	if _, err := e.broker.SubmitOrder(ctx, order); err != nil {
		if errors.Is(err, broker.ErrInsufficientCash) {
			e.logger.Debug("buy skipped", "bar", i, "error", err)
			return nil
		}
		return fmt.Errorf("bar %d: %w", i, err)
	}
	e.peak = bar.Open
	e.logger.Debug("entry", "bar", i, "qty", qty, "price", bar.Open)
	return nil
}

func (e *Engine) close(ctx context.Context, i int, bar domain.Bar, price float64, reason domain.ExitReason) error {
	order := &domain.Order{
		Symbol: e.symbol,
		Side:   domain.SideSell,
		Price:  price,
		Bar:    i,
		Time:   bar.Timestamp,
		Reason: reason,
	}
	if _, err := e.broker.SubmitOrder(ctx, order); err != nil {
		return fmt.Errorf("bar %d: %w", i, err)
	}
	e.peak = 0
	e.logger.Debug("exit", "bar", i, "price", price, "reason", reason)
	return nil
}

func (e *Engine) recordEquity(bar domain.Bar) {
	eq := e.broker.Account(bar.Close).Equity
	if eq > e.maxEquity {
		e.maxEquity = eq
	}
	dd := 0.0
	if e.maxEquity > 0 {
		dd = (eq/e.maxEquity - 1) * 100
	}
	e.equity = append(e.equity, domain.EquityPoint{Time: bar.Timestamp, Equity: eq, DrawdownPct: dd})
}

// Finish closes any open position at bar's close with reason end_of_data and
// restates the final equity point after the exit commission. Orders still
// pending are dropped since there is no next open to fill them.
func (e *Engine) Finish(ctx context.Context, bar domain.Bar) error {
	e.pending = nil
	if _, ok := e.broker.Position(e.symbol); !ok {
		return nil
	}
	if err := e.close(ctx, e.lastBar, bar, bar.Close, domain.ExitEndOfData); err != nil {
		return err
	}
	if n := len(e.equity); n > 0 {
		e.equity = e.equity[:n-1]
		e.maxEquity = 0
		for _, p := range e.equity {
			e.maxEquity = math.Max(e.maxEquity, p.Equity)
		}
		e.recordEquity(bar)
	}
	return nil
}

// Equity returns the equity curve, one point per processed bar.
func (e *Engine) Equity() []domain.EquityPoint {
	out := make([]domain.EquityPoint, len(e.equity))
	copy(out, e.equity)
	return out
}

// Trades returns the closed trades.
func (e *Engine) Trades() []domain.Trade {
	return e.broker.Trades()
}
