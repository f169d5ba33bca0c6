package broker

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"stockbt/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*Simulator)(nil)

// Simulator implements the Broker interface for backtesting. It fills every
// order at the price carried on the order, charges commission on the fill's
// notional, and holds at most one long position per symbol.
type Simulator struct {
	cash       float64
	commission float64
	positions  map[string]*domain.Position
	trades     []domain.Trade
	orders     []domain.Order
}

// NewSimulator creates a Simulator funded with cash. commission is a fraction
// of notional (0.002 = 0.2%).
func NewSimulator(cash, commission float64) *Simulator {
	return &Simulator{
		cash:       cash,
		commission: commission,
		positions:  make(map[string]*domain.Position),
	}
}

// Name returns "simulator".
func (s *Simulator) Name() string {
	return "simulator"
}

// Cash returns the uninvested cash balance.
func (s *Simulator) Cash() float64 { return s.cash }

// Commission returns the commission rate.
func (s *Simulator) Commission() float64 { return s.commission }

// Fee returns the commission charged for filling qty at price.
func (s *Simulator) Fee(qty, price float64) float64 {
	return qty * price * s.commission
}

// SubmitOrder fills the order immediately. Buys open a position and are
// rejected with ErrInsufficientCash when cash cannot cover notional plus fee.
// Sells close the whole position regardless of order.Qty and record a Trade.
func (s *Simulator) SubmitOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	if order.Price <= 0 || math.IsNaN(order.Price) {
		return nil, fmt.Errorf("order %s: invalid fill price %v", order.Symbol, order.Price)
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}

	switch order.Side {
	case domain.SideBuy:
		if err := s.buy(order); err != nil {
			return nil, err
		}
	case domain.SideSell:
		if err := s.sell(order); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("order %s: unknown side %q", order.Symbol, order.Side)
	}

	s.orders = append(s.orders, *order)
	return order, nil
}

func (s *Simulator) buy(order *domain.Order) error {
	if p, ok := s.positions[order.Symbol]; ok && p.IsOpen() {
		return fmt.Errorf("buy %s: position already open", order.Symbol)
	}
	if order.Qty <= 0 {
		return fmt.Errorf("buy %s: quantity must be positive", order.Symbol)
	}
	fee := s.Fee(order.Qty, order.Price)
	cost := order.Qty*order.Price + fee
	if cost > s.cash {
		return fmt.Errorf("buy %.0f %s at %.2f costs %.2f, cash %.2f: %w",
			order.Qty, order.Symbol, order.Price, cost, s.cash, ErrInsufficientCash)
	}
	s.cash -= cost
	s.positions[order.Symbol] = &domain.Position{
		Symbol:     order.Symbol,
		Qty:        order.Qty,
		EntryPrice: order.Price,
		EntryTime:  order.Time,
		EntryBar:   order.Bar,
		EntryFee:   fee,
	}
	return nil
}

func (s *Simulator) sell(order *domain.Order) error {
	p, ok := s.positions[order.Symbol]
	if !ok || !p.IsOpen() {
		return fmt.Errorf("sell %s: %w", order.Symbol, ErrNoPosition)
	}
	order.Qty = p.Qty
	fee := s.Fee(p.Qty, order.Price)
	s.cash += p.Qty*order.Price - fee

	pnl := (order.Price-p.EntryPrice)*p.Qty - p.EntryFee - fee
	basis := p.EntryPrice*p.Qty + p.EntryFee
	reason := order.Reason
	if reason == "" {
		reason = domain.ExitSignal
	}
	s.trades = append(s.trades, domain.Trade{
		Symbol:     p.Symbol,
		Size:       p.Qty,
		EntryBar:   p.EntryBar,
		ExitBar:    order.Bar,
		EntryTime:  p.EntryTime,
		ExitTime:   order.Time,
		EntryPrice: p.EntryPrice,
		ExitPrice:  order.Price,
		PnL:        pnl,
		ReturnPct:  pnl / basis * 100,
		Commission: p.EntryFee + fee,
		ExitReason: reason,
	})
	delete(s.positions, order.Symbol)
	return nil
}

// Position returns the open position for symbol.
func (s *Simulator) Position(symbol string) (domain.Position, bool) {
	p, ok := s.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Account returns cash plus every open position marked at price. Backtests
// trade one symbol, so a single mark is enough.
func (s *Simulator) Account(price float64) domain.AccountInfo {
	equity := s.cash
	for _, p := range s.positions {
		equity += p.Qty * price
	}
	return domain.AccountInfo{Cash: s.cash, Equity: equity}
}

// Trades returns a copy of the closed trades.
func (s *Simulator) Trades() []domain.Trade {
	out := make([]domain.Trade, len(s.trades))
	copy(out, s.trades)
	return out
}

// Orders returns a copy of every filled order.
func (s *Simulator) Orders() []domain.Order {
	out := make([]domain.Order, len(s.orders))
	copy(out, s.orders)
	return out
}
