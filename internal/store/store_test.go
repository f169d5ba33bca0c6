package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"stockbt/internal/domain"
)

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	// Test barPath produces the expected layout.
	bp := ps.barPath("aapl", domain.MarketUS, 2024)

	wantBarPath := filepath.Join("/data", "us", "daily", "AAPL", "2024.parquet")
	if bp != wantBarPath {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", bp, wantBarPath)
	}

	cp := ps.coveragePath("7974.T", domain.MarketJP)
	if !strings.HasSuffix(cp, filepath.Join("jp", "daily", "7974.T", "coverage.parquet")) {
		t.Errorf("coveragePath = %s, want .../jp/daily/7974.T/coverage.parquet", cp)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{
			Symbol:     "AAPL",
			Timestamp:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Open:       185.0,
			High:       186.5,
			Low:        184.0,
			Close:      185.5,
			Volume:     50000000,
			TradeCount: 500000,
			VWAP:       185.25,
		},
		{
			Symbol:     "AAPL",
			Timestamp:  time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			Open:       185.5,
			High:       187.0,
			Low:        185.0,
			Close:      186.0,
			Volume:     45000000,
			TradeCount: 450000,
			VWAP:       185.75,
		},
	}

	// Write bars.
	if err := ps.WriteBars(ctx, domain.MarketUS, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	// Read them back.
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "AAPL", domain.MarketUS, start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Close != 185.5 {
		t.Errorf("first bar Close = %v, want 185.5", got[0].Close)
	}
	if got[1].Close != 186.0 {
		t.Errorf("second bar Close = %v, want 186.0", got[1].Close)
	}
	if !got[0].Timestamp.Equal(bars[0].Timestamp) || got[0].Timestamp.Location() != time.UTC {
		t.Errorf("first bar Timestamp = %v, want %v in UTC", got[0].Timestamp, bars[0].Timestamp)
	}

	// A narrower range filters by timestamp.
	got, err = ps.ReadBars(ctx, "AAPL", domain.MarketUS, bars[1].Timestamp, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("ReadBars from Jan 3 returned %d bars, want 1", len(got))
	}
}

func TestParquetStoreReadMissing(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	got, err := ps.ReadBars(context.Background(), "NONE", domain.MarketUS,
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars on missing symbol: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadBars returned %d bars, want 0", len(got))
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	// Write initial bar.
	bars1 := []domain.Bar{
		{
			Symbol:    "MSFT",
			Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Open:      400.0, High: 405.0, Low: 399.0, Close: 403.0,
			Volume: 30000000, TradeCount: 300000, VWAP: 402.0,
		},
	}
	if err := ps.WriteBars(ctx, domain.MarketUS, bars1); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}

	// Write another bar for same symbol+year plus a restated first bar.
	bars2 := []domain.Bar{
		{
			Symbol:    "MSFT",
			Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Open:      400.0, High: 405.0, Low: 399.0, Close: 404.0,
		},
		{
			Symbol:    "MSFT",
			Timestamp: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
			Open:      403.0, High: 410.0, Low: 402.0, Close: 408.0,
			Volume: 35000000, TradeCount: 350000, VWAP: 406.0,
		},
	}
	if err := ps.WriteBars(ctx, domain.MarketUS, bars2); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "MSFT", domain.MarketUS, start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars after merge, want 2", len(got))
	}
	if got[0].Close != 404.0 {
		t.Errorf("merged first bar Close = %v, want 404 (newest write wins)", got[0].Close)
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	// Write bars for two symbols.
	bars := []domain.Bar{
		{Symbol: "AAPL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 185.0, High: 186.0, Low: 184.0, Close: 185.5, Volume: 50000000},
		{Symbol: "GOOGL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 140.0, High: 141.0, Low: 139.0, Close: 140.5, Volume: 20000000},
	}
	if err := ps.WriteBars(ctx, domain.MarketUS, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	symbols, err := ps.ListSymbols(ctx, domain.MarketUS)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 {
		t.Fatalf("ListSymbols returned %d symbols, want 2", len(symbols))
	}
	if symbols[0] != "AAPL" || symbols[1] != "GOOGL" {
		t.Errorf("ListSymbols = %v, want [AAPL GOOGL]", symbols)
	}

	if symbols, _ := ps.ListSymbols(ctx, domain.MarketJP); len(symbols) != 0 {
		t.Errorf("ListSymbols(jp) = %v, want none", symbols)
	}
}

func TestParquetStoreCoverage(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	c := Coverage{
		Start:     time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		FetchedAt: time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC),
		Provider:  "yahoo",
	}
	if err := ps.AddCoverage("AAPL", domain.MarketUS, c); err != nil {
		t.Fatalf("AddCoverage: %v", err)
	}
	got, err := ps.Coverages("AAPL", domain.MarketUS)
	if err != nil {
		t.Fatalf("Coverages: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Coverages returned %d entries, want 1", len(got))
	}
	if !got[0].Start.Equal(c.Start) || !got[0].End.Equal(c.End) || got[0].Provider != "yahoo" {
		t.Errorf("Coverages()[0] = %+v, want %+v", got[0], c)
	}

	none, err := ps.Coverages("MSFT", domain.MarketUS)
	if err != nil || len(none) != 0 {
		t.Errorf("Coverages(MSFT) = %v, %v; want empty, nil", none, err)
	}
}

func TestParquetStoreConcurrentWrites(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	// Eight writers each add a disjoint 30-day slice of the same year file,
	// plus one coverage record.
	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, 2*writers)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			var bars []domain.Bar
			for d := 0; d < 30; d++ {
				ts := start.AddDate(0, 0, w*30+d)
				bars = append(bars, domain.Bar{Symbol: "AAPL", Timestamp: ts, Close: float64(w*30 + d)})
			}
			if err := ps.WriteBars(ctx, domain.MarketUS, bars); err != nil {
				errs <- err
				return
			}
			errs <- ps.AddCoverage("AAPL", domain.MarketUS, Coverage{
				Start: bars[0].Timestamp, End: bars[len(bars)-1].Timestamp, FetchedAt: time.Now(), Provider: fmt.Sprint(w),
			})
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent write: %v", err)
		}
	}

	got, err := ps.ReadBars(ctx, "AAPL", domain.MarketUS, start, start.AddDate(0, 0, writers*30))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != writers*30 {
		t.Errorf("ReadBars returned %d bars, want %d", len(got), writers*30)
	}
	covs, err := ps.Coverages("AAPL", domain.MarketUS)
	if err != nil {
		t.Fatalf("Coverages: %v", err)
	}
	if len(covs) != writers {
		t.Errorf("Coverages returned %d entries, want %d", len(covs), writers)
	}

	// No temp files are left behind.
	entries, err := os.ReadDir(filepath.Dir(ps.barPath("AAPL", domain.MarketUS, 2023)))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestParquetStoreWriteUnreadableFile(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	path := ps.barPath("AAPL", domain.MarketUS, 2023)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte("not parquet"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	bar := domain.Bar{Symbol: "AAPL", Timestamp: time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), Close: 1}
	if err := ps.WriteBars(context.Background(), domain.MarketUS, []domain.Bar{bar}); err == nil {
		t.Fatal("WriteBars over a corrupt file = nil, want error")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "not parquet" {
		t.Error("corrupt file was overwritten instead of reported")
	}

	covPath := ps.coveragePath("AAPL", domain.MarketUS)
	if err := os.WriteFile(covPath, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := ps.AddCoverage("AAPL", domain.MarketUS, Coverage{Start: bar.Timestamp, End: bar.Timestamp}); err == nil {
		t.Error("AddCoverage over a corrupt file = nil, want error")
	}
}

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sub", "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q) returned error: %v", dbPath, err)
	}
	t.Cleanup(func() {
		if cerr := s.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	})
	return s
}

func TestSQLiteStoreOpen(t *testing.T) {
	store := newTestSQLite(t)

	// Verify the store is usable by pinging the database.
	if err := store.db.Ping(); err != nil {
		t.Fatalf("db.Ping() returned error: %v", err)
	}
}

func sampleRun(created time.Time) *RunRecord {
	t0 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	return &RunRecord{
		Symbol:      "AAPL",
		CompanyName: "Apple Inc.",
		Strategy:    "sma-cross",
		Start:       t0,
		End:         t0.AddDate(0, 1, 0),
		InitialCash: 100000,
		FinalEquity: 101000,
		ReturnPct:   1,
		NumTrades:   1,
		Request:     json.RawMessage(`{"symbol":"AAPL"}`),
		Stats:       json.RawMessage(`{"Return [%]":1}`),
		CreatedAt:   created,
		Trades: []domain.Trade{{
			Symbol: "AAPL", Size: 10, EntryBar: 1, ExitBar: 5,
			EntryTime: t0.AddDate(0, 0, 1), ExitTime: t0.AddDate(0, 0, 5),
			EntryPrice: 100, ExitPrice: 200, PnL: 1000, ReturnPct: 100, Commission: 0,
			ExitReason: domain.ExitTakeProfit,
		}},
		Equity: []domain.EquityPoint{
			{Time: t0, Equity: 100000},
			{Time: t0.AddDate(0, 0, 1), Equity: 99000, DrawdownPct: -1},
			{Time: t0.AddDate(0, 0, 2), Equity: 101000},
		},
	}
}

func TestSQLiteStoreRunLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run := sampleRun(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if run.ID == "" {
		t.Fatal("SaveRun should assign an ID")
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Symbol != "AAPL" || got.CompanyName != "Apple Inc." || got.Strategy != "sma-cross" {
		t.Errorf("GetRun = %+v", got)
	}
	if !got.Start.Equal(run.Start) || !got.CreatedAt.Equal(run.CreatedAt) {
		t.Errorf("times = %v/%v, want %v/%v", got.Start, got.CreatedAt, run.Start, run.CreatedAt)
	}
	if string(got.Stats) != `{"Return [%]":1}` {
		t.Errorf("Stats = %s", got.Stats)
	}
	if len(got.Trades) != 1 || got.Trades[0].ExitReason != domain.ExitTakeProfit || got.Trades[0].PnL != 1000 {
		t.Errorf("Trades = %+v", got.Trades)
	}
	if len(got.Equity) != 3 || got.Equity[1].DrawdownPct != -1 {
		t.Errorf("Equity = %+v", got.Equity)
	}

	if err := s.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := s.GetRun(ctx, run.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun after delete = %v, want ErrNotFound", err)
	}
	if err := s.DeleteRun(ctx, run.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteRun = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStoreListRuns(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := sampleRun(base.Add(time.Duration(i) * time.Hour))
		run.Strategy = []string{"rsi", "macd", "bollinger"}[i]
		if i == 2 {
			run.ReturnPct = math.NaN()
		}
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun(%d): %v", i, err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns returned %d runs, want 2", len(runs))
	}
	if runs[0].Strategy != "bollinger" || runs[1].Strategy != "macd" {
		t.Errorf("ListRuns order = %s, %s; want bollinger, macd", runs[0].Strategy, runs[1].Strategy)
	}
	if !math.IsNaN(runs[0].ReturnPct) {
		t.Errorf("NaN ReturnPct round-tripped as %v", runs[0].ReturnPct)
	}
	if len(runs[0].Trades) != 0 {
		t.Error("ListRuns should not load trades")
	}
}
