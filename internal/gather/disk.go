package gather

import (
	"context"
	"time"

	"stockbt/internal/domain"
	"stockbt/internal/store"
)

var _ Source = (*DiskSource)(nil)

// DiskSource serves bars already cached in a BarStore, for offline runs.
type DiskSource struct {
	store store.BarStore
}

// NewDiskSource creates a DiskSource over s.
func NewDiskSource(s store.BarStore) *DiskSource {
	return &DiskSource{store: s}
}

// Name returns "parquet".
func (d *DiskSource) Name() string { return "parquet" }

// Bars reads bars from the store.
func (d *DiskSource) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	symbol = NormalizeSymbol(symbol)
	bars, err := d.store.ReadBars(ctx, symbol, domain.MarketForSymbol(symbol), start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, NoData(symbol)
	}
	return bars, nil
}

// CompanyName returns the symbol; the store keeps no reference data.
func (d *DiskSource) CompanyName(_ context.Context, symbol string) (string, error) {
	return NormalizeSymbol(symbol), nil
}
