// Package stockbt is a Go client for the stockbt-server HTTP API.
package stockbt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stockbt/internal/domain"
	"stockbt/internal/httpapi"
	"stockbt/internal/strategy"
	"stockbt/internal/util"
)

// Client provides a Go SDK for interacting with the stockbt-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new stockbt API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stockbt api: %d %s", e.Status, e.Message)
}

// ListStrategies returns the strategies the server can run.
func (c *Client) ListStrategies(ctx context.Context) ([]strategy.Info, error) {
	var out httpapi.StrategiesResponse
	if err := c.do(ctx, http.MethodGet, "/api/strategies", nil, &out); err != nil {
		return nil, err
	}
	return out.Strategies, nil
}

// RunBacktest runs one backtest on the server.
func (c *Client) RunBacktest(ctx context.Context, req strategy.Request) (*strategy.Result, error) {
	var out strategy.Result
	if err := c.do(ctx, http.MethodPost, "/api/backtests", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Compare runs several strategies over the same request.
func (c *Client) Compare(ctx context.Context, req strategy.Request, strategies []string) ([]*strategy.Result, error) {
	var out httpapi.CompareResponse
	body := httpapi.CompareRequest{Request: req, Strategies: strategies}
	if err := c.do(ctx, http.MethodPost, "/api/backtests/compare", body, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// GetBacktest retrieves a saved run.
func (c *Client) GetBacktest(ctx context.Context, id string) (*strategy.Result, error) {
	var out strategy.Result
	if err := c.do(ctx, http.MethodGet, "/api/backtests/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBacktests returns up to limit recent runs, newest first.
func (c *Client) ListBacktests(ctx context.Context, limit int) ([]httpapi.RunSummary, error) {
	path := "/api/backtests"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out httpapi.HistoryResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

// DeleteBacktest removes a saved run.
func (c *Client) DeleteBacktest(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/backtests/"+url.PathEscape(id), nil, nil)
}

// GetBars retrieves daily bars for a symbol in [start, end]. Zero times
// leave the bound to the server's default range.
func (c *Client) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	q := url.Values{}
	if !start.IsZero() {
		q.Set("start", start.Format(util.DateLayout))
	}
	if !end.IsZero() {
		q.Set("end", end.Format(util.DateLayout))
	}
	path := "/api/bars/" + url.PathEscape(symbol)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out httpapi.BarsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Bars, nil
}

// CompanyName returns the display name of symbol.
func (c *Client) CompanyName(ctx context.Context, symbol string) (string, error) {
	var out httpapi.CompanyResponse
	if err := c.do(ctx, http.MethodGet, "/api/company/"+url.PathEscape(symbol), nil, &out); err != nil {
		return "", err
	}
	return out.Name, nil
}

// ChartURL is the address of the HTML chart page of a saved run.
func (c *Client) ChartURL(id string) string {
	return c.baseURL + "/api/backtests/" + url.PathEscape(id) + "/chart"
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
