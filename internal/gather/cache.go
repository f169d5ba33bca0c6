package gather

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"stockbt/internal/domain"
	"stockbt/internal/metrics"
	"stockbt/internal/store"
	"stockbt/internal/util"
)

// Compile-time interface check.
var _ Source = (*Cached)(nil)

type barKey struct {
	symbol     string
	start, end time.Time
}

type barEntry struct {
	bars    []domain.Bar
	fetched time.Time
}

type nameEntry struct {
	name    string
	fetched time.Time
}

// Cached wraps a Source with a TTL memory cache and, when a ParquetStore is
// given, a disk cache. Disk data is only trusted for ranges that had already
// closed when they were fetched, so a fetch that included today is refreshed
// once the memory entry expires.
type Cached struct {
	src  Source
	disk *store.ParquetStore
	ttl  time.Duration
	now  func() time.Time
	log  *slog.Logger

	mu    sync.Mutex
	bars  map[barKey]barEntry
	names map[string]nameEntry
}

// NewCached creates a Cached source. disk may be nil.
func NewCached(src Source, disk *store.ParquetStore, ttl time.Duration, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{
		src:   src,
		disk:  disk,
		ttl:   ttl,
		now:   time.Now,
		log:   logger.With("component", "cache", "provider", src.Name()),
		bars:  make(map[barKey]barEntry),
		names: make(map[string]nameEntry),
	}
}

// Name returns the wrapped provider's name.
func (c *Cached) Name() string { return c.src.Name() }

// Bars serves from memory, then disk, then the provider.
func (c *Cached) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	symbol = NormalizeSymbol(symbol)
	key := barKey{symbol: symbol, start: start, end: end}

	c.mu.Lock()
	if e, ok := c.bars[key]; ok && c.fresh(e.fetched) {
		c.mu.Unlock()
		metrics.CacheLookups.WithLabelValues("memory").Inc()
		return copyBars(e.bars), nil
	}
	c.mu.Unlock()

	if bars := c.fromDisk(ctx, symbol, start, end); len(bars) > 0 {
		metrics.CacheLookups.WithLabelValues("disk").Inc()
		c.remember(key, bars)
		return copyBars(bars), nil
	}

	metrics.CacheLookups.WithLabelValues("miss").Inc()
	bars, err := c.src.Bars(ctx, symbol, start, end)
	metrics.ObserveFetch(c.src.Name(), err)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, NoData(symbol)
	}
	c.toDisk(ctx, symbol, start, end, bars)
	c.remember(key, bars)
	return copyBars(bars), nil
}

// CompanyName caches names for the TTL. Failures are not cached.
func (c *Cached) CompanyName(ctx context.Context, symbol string) (string, error) {
	symbol = NormalizeSymbol(symbol)

	c.mu.Lock()
	if e, ok := c.names[symbol]; ok && c.fresh(e.fetched) {
		c.mu.Unlock()
		return e.name, nil
	}
	c.mu.Unlock()

	name, err := c.src.CompanyName(ctx, symbol)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.names[symbol] = nameEntry{name: name, fetched: c.now()}
	c.mu.Unlock()
	return name, nil
}

// Purge drops every memory entry.
func (c *Cached) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bars = make(map[barKey]barEntry)
	c.names = make(map[string]nameEntry)
}

func (c *Cached) fresh(fetched time.Time) bool {
	return c.ttl > 0 && c.now().Sub(fetched) < c.ttl
}

func (c *Cached) remember(key barKey, bars []domain.Bar) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.bars[key] = barEntry{bars: copyBars(bars), fetched: c.now()}
	c.mu.Unlock()
}

func (c *Cached) fromDisk(ctx context.Context, symbol string, start, end time.Time) []domain.Bar {
	if c.disk == nil {
		return nil
	}
	market := domain.MarketForSymbol(symbol)
	covs, err := c.disk.Coverages(symbol, market)
	if err != nil {
		c.log.Warn("reading coverage failed", "symbol", symbol, "error", err)
		return nil
	}
	want := DateRange{Start: start, End: end}
	covered := false
	for _, cv := range covs {
		closed := end.Before(util.TruncateDay(cv.FetchedAt))
		if closed && (DateRange{Start: cv.Start, End: cv.End}).Contains(want) {
			covered = true
			break
		}
	}
	if !covered {
		return nil
	}
	bars, err := c.disk.ReadBars(ctx, symbol, market, start, end)
	if err != nil {
		c.log.Warn("reading cached bars failed", "symbol", symbol, "error", err)
		return nil
	}
	return bars
}

func (c *Cached) toDisk(ctx context.Context, symbol string, start, end time.Time, bars []domain.Bar) {
	if c.disk == nil {
		return
	}
	market := domain.MarketForSymbol(symbol)
	if err := c.disk.WriteBars(ctx, market, bars); err != nil {
		c.log.Warn("writing bars to disk failed", "symbol", symbol, "error", err)
		return
	}
	cov := store.Coverage{Start: start, End: end, FetchedAt: c.now().UTC(), Provider: c.src.Name()}
	if err := c.disk.AddCoverage(symbol, market, cov); err != nil {
		c.log.Warn("writing coverage failed", "symbol", symbol, "error", err)
	}
}

func copyBars(bars []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, len(bars))
	copy(out, bars)
	return out
}
