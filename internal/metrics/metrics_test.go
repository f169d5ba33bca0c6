package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveBacktest(t *testing.T) {
	before := testutil.ToFloat64(BacktestsRun.WithLabelValues("metrics-test", "ok"))
	ObserveBacktest("metrics-test", nil, 10*time.Millisecond, 123456)

	if got := testutil.ToFloat64(BacktestsRun.WithLabelValues("metrics-test", "ok")); got != before+1 {
		t.Errorf("ok counter = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(LastEquity.WithLabelValues("metrics-test")); got != 123456 {
		t.Errorf("LastEquity = %v, want 123456", got)
	}

	ObserveBacktest("metrics-test", errors.New("boom"), time.Millisecond, 0)
	if got := testutil.ToFloat64(BacktestsRun.WithLabelValues("metrics-test", "error")); got != 1 {
		t.Errorf("error counter = %v, want 1", got)
	}
	// A failed run leaves the gauge alone.
	if got := testutil.ToFloat64(LastEquity.WithLabelValues("metrics-test")); got != 123456 {
		t.Errorf("LastEquity after failure = %v, want 123456", got)
	}
}

func TestObserveFetch(t *testing.T) {
	ObserveFetch("metrics-test", nil)
	ObserveFetch("metrics-test", errors.New("down"))
	ObserveFetch("metrics-test", errors.New("down"))

	if got := testutil.ToFloat64(DataFetches.WithLabelValues("metrics-test", "ok")); got != 1 {
		t.Errorf("ok fetches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(DataFetches.WithLabelValues("metrics-test", "error")); got != 2 {
		t.Errorf("error fetches = %v, want 2", got)
	}
}

func TestBacktestDurationHelp(t *testing.T) {
	ch := make(chan *prometheus.Desc, 1)
	BacktestDuration.Describe(ch)
	desc := (<-ch).String()
	if !strings.Contains(desc, "excluding data loading") {
		t.Errorf("BacktestDuration desc = %s, want help noting data loading is excluded", desc)
	}
}
