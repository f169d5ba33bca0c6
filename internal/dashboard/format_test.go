package dashboard

import (
	"math"
	"strings"
	"testing"
)

func TestFormatInt(t *testing.T) {
	cases := map[int]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		1234567:  "1,234,567",
		-1234567: "-1,234,567",
	}
	for n, want := range cases {
		if got := FormatInt(n); got != want {
			t.Errorf("FormatInt(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestMoney(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{1234567.891, "1,234,567.89"},
		{-1234.5, "-1,234.50"},
		{0, "0.00"},
		{100000, "100,000.00"},
		{math.NaN(), "-"},
	}
	for _, c := range cases {
		if got := Money(c.in); got != c.want {
			t.Errorf("Money(%v) = %q, want %q", c.in, got, c.want)
		}
	}
	if got := RoundMoney(10.126); got != 10.13 {
		t.Errorf("RoundMoney(10.126) = %v, want 10.13", got)
	}
}

func TestFormatPct(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{3.14, "+3.1%"},
		{-1.04, "-1.0%"},
		{-150, "-150%"},
		{math.NaN(), "-"},
	}
	for _, c := range cases {
		if got := FormatPct(c.in); got != c.want {
			t.Errorf("FormatPct(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFormatDaysAndNum(t *testing.T) {
	if got := FormatDays(1); got != "1 day" {
		t.Errorf("FormatDays(1) = %q, want %q", got, "1 day")
	}
	if got := FormatDays(2.4); got != "2 days" {
		t.Errorf("FormatDays(2.4) = %q, want %q", got, "2 days")
	}
	if got := FormatDays(Float(math.NaN())); got != "-" {
		t.Errorf("FormatDays(NaN) = %q, want %q", got, "-")
	}
	if got := FormatNum(Float(math.Inf(1))); got != "-" {
		t.Errorf("FormatNum(+Inf) = %q, want %q", got, "-")
	}
}

func TestRenderReport(t *testing.T) {
	bars, equity, trades := fixture()
	r := Report{
		ID:          "run-1",
		Symbol:      "TEST",
		CompanyName: "Test Corp",
		Strategy:    "sma-cross",
		Params:      map[string]float64{"slow": 30, "fast": 10},
		InitialCash: 10000,
		Stats:       ComputeStats(bars, equity, trades, 10000),
		Trades:      trades,
	}
	out := RenderReport(r)
	for _, want := range []string{"Test Corp (TEST)", "(fast=10, slow=30)", "Sharpe Ratio", "Return [%]", "100.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}

	r.Trades = nil
	if out := RenderReport(r); !strings.Contains(out, "no trades") {
		t.Errorf("report without trades missing %q:\n%s", "no trades", out)
	}
}
