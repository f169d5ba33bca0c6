package domain

import (
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}

	pos := Position{}
	if pos.IsOpen() {
		t.Error("zero-value Position should not be open")
	}
	pos.Qty = 10
	if !pos.IsOpen() {
		t.Error("Position with Qty 10 should be open")
	}

	if SignalTypeBuy != "buy" || SignalTypeSell != "sell" || SignalTypeHold != "hold" {
		t.Error("SignalType constants have unexpected values")
	}
	if MarketUS != "us" || MarketJP != "jp" {
		t.Error("Market constants have unexpected values")
	}
}

func TestTradeDuration(t *testing.T) {
	entry := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	tr := Trade{EntryTime: entry, ExitTime: entry.AddDate(0, 0, 3)}
	if got := tr.Duration(); got != 72*time.Hour {
		t.Errorf("Duration() = %v, want %v", got, 72*time.Hour)
	}
}

func TestMarketForSymbol(t *testing.T) {
	cases := map[string]Market{
		"7974.T": MarketJP,
		"AAPL":   MarketUS,
		"T":      MarketUS,
	}
	for sym, want := range cases {
		if got := MarketForSymbol(sym); got != want {
			t.Errorf("MarketForSymbol(%q) = %q, want %q", sym, got, want)
		}
	}
}

func TestCloses(t *testing.T) {
	bars := []Bar{{Close: 1}, {Close: 2}, {Close: 3}}
	got := Closes(bars)
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("Closes() = %v, want [1 2 3]", got)
	}
}
