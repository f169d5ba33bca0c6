package broker

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"stockbt/internal/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestSimulatorName(t *testing.T) {
	b := NewSimulator(100000, 0)
	if got := b.Name(); got != "simulator" {
		t.Errorf("Simulator.Name() = %q, want %q", got, "simulator")
	}
}

func TestSimulatorRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewSimulator(10000, 0.01)
	t0 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	buy := &domain.Order{Symbol: "AAPL", Side: domain.SideBuy, Qty: 10, Price: 100, Bar: 1, Time: t0}
	if _, err := s.SubmitOrder(ctx, buy); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if buy.ID == "" {
		t.Error("SubmitOrder should assign an order ID")
	}
	// 10*100 + 1% fee = 1010.
	if !almostEqual(s.Cash(), 8990) {
		t.Errorf("Cash after buy = %v, want 8990", s.Cash())
	}
	if acct := s.Account(110); !almostEqual(acct.Equity, 8990+1100) {
		t.Errorf("Equity at 110 = %v, want %v", acct.Equity, 8990+1100)
	}

	sell := &domain.Order{Symbol: "AAPL", Side: domain.SideSell, Price: 120, Bar: 5, Time: t0.AddDate(0, 0, 4),
		Reason: domain.ExitTakeProfit}
	if _, err := s.SubmitOrder(ctx, sell); err != nil {
		t.Fatalf("sell: %v", err)
	}
	if sell.Qty != 10 {
		t.Errorf("sell Qty = %v, want whole position 10", sell.Qty)
	}
	// 1200 - 12 fee.
	if !almostEqual(s.Cash(), 8990+1188) {
		t.Errorf("Cash after sell = %v, want %v", s.Cash(), 8990+1188)
	}
	if _, open := s.Position("AAPL"); open {
		t.Error("position should be closed after sell")
	}

	trades := s.Trades()
	if len(trades) != 1 {
		t.Fatalf("len(Trades) = %d, want 1", len(trades))
	}
	tr := trades[0]
	if !almostEqual(tr.PnL, 178) {
		t.Errorf("PnL = %v, want 178", tr.PnL)
	}
	if !almostEqual(tr.Commission, 22) {
		t.Errorf("Commission = %v, want 22", tr.Commission)
	}
	if !almostEqual(tr.ReturnPct, 178.0/1010*100) {
		t.Errorf("ReturnPct = %v, want %v", tr.ReturnPct, 178.0/1010*100)
	}
	if tr.ExitReason != domain.ExitTakeProfit || tr.EntryBar != 1 || tr.ExitBar != 5 {
		t.Errorf("trade = %+v, want take_profit from bar 1 to 5", tr)
	}
	if len(s.Orders()) != 2 {
		t.Errorf("len(Orders) = %d, want 2", len(s.Orders()))
	}
}

func TestSimulatorRejects(t *testing.T) {
	ctx := context.Background()
	s := NewSimulator(1000, 0)

	_, err := s.SubmitOrder(ctx, &domain.Order{Symbol: "X", Side: domain.SideBuy, Qty: 11, Price: 100})
	if !errors.Is(err, ErrInsufficientCash) {
		t.Errorf("oversized buy error = %v, want ErrInsufficientCash", err)
	}
	if s.Cash() != 1000 {
		t.Errorf("Cash after rejected buy = %v, want 1000", s.Cash())
	}

	_, err = s.SubmitOrder(ctx, &domain.Order{Symbol: "X", Side: domain.SideSell, Price: 100})
	if !errors.Is(err, ErrNoPosition) {
		t.Errorf("sell while flat error = %v, want ErrNoPosition", err)
	}

	if _, err := s.SubmitOrder(ctx, &domain.Order{Symbol: "X", Side: domain.SideBuy, Qty: 5, Price: 100}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := s.SubmitOrder(ctx, &domain.Order{Symbol: "X", Side: domain.SideBuy, Qty: 1, Price: 100}); err == nil {
		t.Error("second buy while long should fail")
	}
	if _, err := s.SubmitOrder(ctx, &domain.Order{Symbol: "X", Side: domain.SideBuy, Qty: 1, Price: math.NaN()}); err == nil {
		t.Error("NaN price should be rejected")
	}
}
