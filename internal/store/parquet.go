package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"stockbt/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk. Updates to
// one symbol's files are serialized, and each file is replaced atomically so
// readers never see a partial write.
type ParquetStore struct {
	DataDir string

	locks sync.Map // symbol dir -> *sync.Mutex
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// CoverageRecord notes that [Start, End] was fetched from a provider at
// FetchedAt, so gaps inside the range are real (weekends, holidays).
type CoverageRecord struct {
	Start     int64  `parquet:"start,timestamp(millisecond)"`
	End       int64  `parquet:"end,timestamp(millisecond)"`
	FetchedAt int64  `parquet:"fetched_at,timestamp(millisecond)"`
	Provider  string `parquet:"provider"`
}

// Coverage is a fetched date range.
type Coverage struct {
	Start     time.Time
	End       time.Time
	FetchedAt time.Time
	Provider  string
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bars to Parquet files grouped by symbol and year, merging
// with what is already on disk. Each symbol+year combination produces a
// separate file at:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, market domain.Market, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: strings.ToUpper(b.Symbol), year: b.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:     k.symbol,
			Timestamp:  b.Timestamp.UnixMilli(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			TradeCount: b.TradeCount,
			VWAP:       b.VWAP,
		})
	}

	for k, records := range groups {
		if err := s.mergeBars(k.symbol, market, k.year, records); err != nil {
			return err
		}
	}
	return nil
}

func (s *ParquetStore) mergeBars(symbol string, market domain.Market, year int, records []BarRecord) error {
	path := s.barPath(symbol, market, year)
	unlock := s.lock(symbol, market)
	defer unlock()

	existing, err := readExisting[BarRecord](path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := writeParquetFile(path, mergeBarRecords(existing, records)); err != nil {
		return fmt.Errorf("writing bars for %s/%d: %w", symbol, year, err)
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol and time
// range, sorted by timestamp.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, market domain.Market, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		path := s.barPath(symbol, market, year)

		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:     r.Symbol,
				Timestamp:  ts,
				Open:       r.Open,
				High:       r.High,
				Low:        r.Low,
				Close:      r.Close,
				Volume:     r.Volume,
				TradeCount: r.TradeCount,
				VWAP:       r.VWAP,
			})
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market domain.Market) ([]string, error) {
	dir := filepath.Join(s.DataDir, string(market), "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// Coverage
// ---------------------------------------------------------------------------

// AddCoverage records that [c.Start, c.End] was fetched for symbol.
func (s *ParquetStore) AddCoverage(symbol string, market domain.Market, c Coverage) error {
	path := s.coveragePath(symbol, market)
	unlock := s.lock(symbol, market)
	defer unlock()

	existing, err := readExisting[CoverageRecord](path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	existing = append(existing, CoverageRecord{
		Start:     c.Start.UnixMilli(),
		End:       c.End.UnixMilli(),
		FetchedAt: c.FetchedAt.UnixMilli(),
		Provider:  c.Provider,
	})
	return writeParquetFile(path, existing)
}

// Coverages returns every recorded fetch range for symbol.
func (s *ParquetStore) Coverages(symbol string, market domain.Market) ([]Coverage, error) {
	records, err := readParquetFile[CoverageRecord](s.coveragePath(symbol, market))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Coverage, len(records))
	for i, r := range records {
		out[i] = Coverage{
			Start:     time.UnixMilli(r.Start).UTC(),
			End:       time.UnixMilli(r.End).UTC(),
			FetchedAt: time.UnixMilli(r.FetchedAt).UTC(),
			Provider:  r.Provider,
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol string, market domain.Market, year int) string {
	return filepath.Join(s.DataDir, string(market), "daily", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// coveragePath returns the sidecar file listing fetched ranges.
// Layout: <dataDir>/<market>/daily/<SYMBOL>/coverage.parquet
func (s *ParquetStore) coveragePath(symbol string, market domain.Market) string {
	return filepath.Join(s.DataDir, string(market), "daily", strings.ToUpper(symbol), "coverage.parquet")
}

// lock takes the write lock for symbol's directory and returns its release.
func (s *ParquetStore) lock(symbol string, market domain.Market) func() {
	dir := filepath.Dir(s.coveragePath(symbol, market))
	m, _ := s.locks.LoadOrStore(dir, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

// writeParquetFile writes records to a temp file in the same directory and
// renames it over path.
func writeParquetFile[T any](path string, records []T) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".tmp-*.parquet")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := parquet.Write(f, records); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// readExisting is readParquetFile where a missing file is empty.
func readExisting[T any](path string) ([]T, error) {
	rows, err := readParquetFile[T](path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return rows, err
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by timestamp, preferring new
// records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
