package stockbt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stockbt/internal/httpapi"
	"stockbt/internal/strategy"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8080/")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
	if got := c.ChartURL("abc"); got != "http://localhost:8080/api/backtests/abc/chart" {
		t.Errorf("ChartURL = %q", got)
	}
}

func TestRunBacktest(t *testing.T) {
	var got strategy.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/backtests" {
			t.Errorf("request = %s %s, want POST /api/backtests", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"run-1","request":{"symbol":"AAPL","strategy":"rsi","risk":{}},
			"company_name":"Apple Inc.","trades":[],"equity":[],"stats":{"return_pct":1.5,"sharpe":null}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	res, err := c.RunBacktest(context.Background(), strategy.Request{
		Symbol:   "AAPL",
		Start:    time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC),
		Strategy: "rsi",
	})
	if err != nil {
		t.Fatalf("RunBacktest() error: %v", err)
	}
	if res.ID != "run-1" || res.CompanyName != "Apple Inc." || float64(res.Stats.ReturnPct) != 1.5 {
		t.Errorf("result = %+v", res)
	}
	if !got.Start.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) || got.Symbol != "AAPL" {
		t.Errorf("server saw request %+v", got)
	}
}

func TestListBacktestsAndBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/backtests":
			if r.URL.Query().Get("limit") != "3" {
				t.Errorf("limit = %q, want 3", r.URL.Query().Get("limit"))
			}
			json.NewEncoder(w).Encode(httpapi.HistoryResponse{Runs: []httpapi.RunSummary{{ID: "a"}, {ID: "b"}}})
		case "/api/bars/AAPL":
			if r.URL.Query().Get("start") != "2024-01-02" || r.URL.Query().Get("end") != "" {
				t.Errorf("query = %q, want start only", r.URL.RawQuery)
			}
			w.Write([]byte(`{"symbol":"AAPL","bars":[{"symbol":"AAPL","timestamp":"2024-01-02T00:00:00Z","close":185.6}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	runs, err := c.ListBacktests(context.Background(), 3)
	if err != nil {
		t.Fatalf("ListBacktests() error: %v", err)
	}
	if len(runs) != 2 || runs[1].ID != "b" {
		t.Errorf("runs = %+v", runs)
	}

	bars, err := c.GetBars(context.Background(), "AAPL", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), time.Time{})
	if err != nil {
		t.Fatalf("GetBars() error: %v", err)
	}
	if len(bars) != 1 || bars[0].Close != 185.6 {
		t.Errorf("bars = %+v", bars)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"run x: not found"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetBacktest(context.Background(), "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("GetBacktest() error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Message != "run x: not found" {
		t.Errorf("APIError = %+v", apiErr)
	}
}
