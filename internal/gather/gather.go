// Package gather loads daily price bars and company names from market-data
// providers, with an in-memory and on-disk cache in front of them.
package gather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockbt/internal/domain"
)

// ErrNoData is returned when a provider has no bars for the requested range.
var ErrNoData = errors.New("no data found")

// NoData wraps ErrNoData with the symbol, matching the message users see.
func NoData(symbol string) error {
	return fmt.Errorf("%w for %s", ErrNoData, symbol)
}

// Source is a market-data provider.
type Source interface {
	// Name returns the provider identifier (e.g. "yahoo").
	Name() string

	// Bars returns daily bars for symbol with timestamps in [start, end],
	// oldest first. An empty result is reported as ErrNoData.
	Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// CompanyName returns the display name of symbol.
	CompanyName(ctx context.Context, symbol string) (string, error)
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether r covers all of o.
func (r DateRange) Contains(o DateRange) bool {
	return !r.Start.After(o.Start) && !r.End.Before(o.End)
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Within returns the bars whose timestamps fall in [start, end].
func Within(bars []domain.Bar, start, end time.Time) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}
