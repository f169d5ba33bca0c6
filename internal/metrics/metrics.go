// Package metrics holds the Prometheus collectors shared by the backtester,
// the data sources and the HTTP server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	BacktestsRun = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockbt_backtests_total",
			Help: "Total number of backtests run (by strategy and status).",
		},
		[]string{"strategy", "status"},
	)

	BacktestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stockbt_backtest_duration_seconds",
			Help:    "Wall time of one strategy replay and its statistics, excluding data loading.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	LastEquity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stockbt_last_equity",
			Help: "Final equity of the most recent backtest per strategy.",
		},
		[]string{"strategy"},
	)

	DataFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockbt_data_fetches_total",
			Help: "Market data requests sent to a provider (by provider and outcome).",
		},
		[]string{"provider", "outcome"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockbt_cache_lookups_total",
			Help: "Bar cache lookups (by tier: memory, disk, miss).",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(BacktestsRun, BacktestDuration, LastEquity, DataFetches, CacheLookups)
}

// ObserveBacktest records the outcome of one backtest.
func ObserveBacktest(strategy string, err error, elapsed time.Duration, finalEquity float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	BacktestsRun.WithLabelValues(strategy, status).Inc()
	BacktestDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	if err == nil {
		LastEquity.WithLabelValues(strategy).Set(finalEquity)
	}
}

// ObserveFetch records one provider request.
func ObserveFetch(provider string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	DataFetches.WithLabelValues(provider, outcome).Inc()
}
