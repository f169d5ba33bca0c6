// Package yahoo fetches daily bars and company names from the Yahoo Finance
// chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stockbt/internal/domain"
	"stockbt/internal/gather"
	"stockbt/internal/util"
)

// DefaultBaseURL is the public Yahoo Finance query host.
const DefaultBaseURL = "https://query1.finance.yahoo.com"

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) stockbt/1.0"

var _ gather.Source = (*Source)(nil)

// Options configure a Source. Zero values pick sensible defaults.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Retries    int
	RetryDelay time.Duration
	Limiter    *util.RateLimiter
	Logger     *slog.Logger
}

// Source implements gather.Source against /v8/finance/chart. Prices are
// adjusted for splits and dividends using the adjclose series.
type Source struct {
	baseURL    string
	client     *http.Client
	retries    int
	retryDelay time.Duration
	limiter    *util.RateLimiter
	log        *slog.Logger
}

// New creates a Yahoo Source.
func New(opts Options) *Source {
	s := &Source{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		client:     opts.HTTPClient,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		limiter:    opts.Limiter,
		log:        opts.Logger,
	}
	if s.baseURL == "" {
		s.baseURL = DefaultBaseURL
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 30 * time.Second}
	}
	if s.retries <= 0 {
		s.retries = 3
	}
	if s.retryDelay <= 0 {
		s.retryDelay = 500 * time.Millisecond
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "yahoo")
	return s
}

// Name returns "yahoo".
func (s *Source) Name() string { return "yahoo" }

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		Currency  string `json:"currency"`
		LongName  string `json:"longName"`
		ShortName string `json:"shortName"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// ---------------------------------------------------------------------------
// gather.Source
// ---------------------------------------------------------------------------

// Bars fetches daily bars with timestamps in [start, end].
func (s *Source) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	symbol = gather.NormalizeSymbol(symbol)
	q := url.Values{}
	q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	// period2 is exclusive; include the whole end day.
	q.Set("period2", strconv.FormatInt(end.AddDate(0, 0, 1).Unix(), 10))
	q.Set("interval", "1d")
	q.Set("events", "div,splits")
	q.Set("includeAdjustedClose", "true")

	res, err := s.chart(ctx, symbol, q)
	if err != nil {
		return nil, err
	}
	bars := toBars(symbol, res)
	bars = gather.Within(bars, start, end)
	if len(bars) == 0 {
		return nil, gather.NoData(symbol)
	}
	s.log.Debug("fetched bars", "symbol", symbol, "count", len(bars))
	return bars, nil
}

// CompanyName returns meta.longName, falling back to shortName and then to
// the symbol itself.
func (s *Source) CompanyName(ctx context.Context, symbol string) (string, error) {
	symbol = gather.NormalizeSymbol(symbol)
	q := url.Values{}
	q.Set("range", "5d")
	q.Set("interval", "1d")

	res, err := s.chart(ctx, symbol, q)
	if err != nil {
		return "", err
	}
	switch {
	case res.Meta.LongName != "":
		return res.Meta.LongName, nil
	case res.Meta.ShortName != "":
		return res.Meta.ShortName, nil
	default:
		return symbol, nil
	}
}

// chart performs one chart request with rate limiting and retries. Client
// errors other than 429 are not retried.
func (s *Source) chart(ctx context.Context, symbol string, q url.Values) (*chartResult, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", s.baseURL, url.PathEscape(symbol), q.Encode())

	var res *chartResult
	err := util.Retry(ctx, s.retries, s.retryDelay, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		r, err := s.get(ctx, symbol, u)
		if err != nil {
			s.log.Debug("chart request failed", "symbol", symbol, "error", err)
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Source) get(ctx context.Context, symbol, u string) (*chartResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, util.Permanent(err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, err
	}

	var cr chartResponse
	decodeErr := json.Unmarshal(body, &cr)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("yahoo %s: HTTP %d", symbol, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, util.Permanent(gather.NoData(symbol))
	case resp.StatusCode >= 400:
		if decodeErr == nil && cr.Chart.Error != nil {
			return nil, util.Permanent(fmt.Errorf("yahoo %s: %s: %s", symbol, cr.Chart.Error.Code, cr.Chart.Error.Description))
		}
		return nil, util.Permanent(fmt.Errorf("yahoo %s: HTTP %d", symbol, resp.StatusCode))
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("decoding yahoo response for %s: %w", symbol, decodeErr)
	}
	if cr.Chart.Error != nil {
		if strings.EqualFold(cr.Chart.Error.Code, "Not Found") {
			return nil, util.Permanent(gather.NoData(symbol))
		}
		return nil, util.Permanent(fmt.Errorf("yahoo %s: %s: %s", symbol, cr.Chart.Error.Code, cr.Chart.Error.Description))
	}
	if len(cr.Chart.Result) == 0 {
		return nil, util.Permanent(gather.NoData(symbol))
	}
	return &cr.Chart.Result[0], nil
}

// toBars converts a chart result into bars dated at midnight UTC of the
// exchange-local trading day. Rows with a missing price are dropped.
func toBars(symbol string, res *chartResult) []domain.Bar {
	if len(res.Indicators.Quote) == 0 {
		return nil
	}
	q := res.Indicators.Quote[0]
	var adj []*float64
	if len(res.Indicators.AdjClose) > 0 {
		adj = res.Indicators.AdjClose[0].AdjClose
	}

	bars := make([]domain.Bar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		o, h, l, c := at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i)
		if o == nil || h == nil || l == nil || c == nil || *c == 0 {
			continue
		}
		factor := 1.0
		if a := at(adj, i); a != nil {
			factor = *a / *c
		}
		var vol int64
		if v := at(q.Volume, i); v != nil {
			vol = int64(*v)
		}
		day := util.TruncateDay(time.Unix(ts+res.Meta.GMTOffset, 0).UTC())
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: day,
			Open:      *o * factor,
			High:      *h * factor,
			Low:       *l * factor,
			Close:     *c * factor,
			Volume:    vol,
		})
	}
	return dedupeDays(bars)
}

// dedupeDays keeps the last bar of each day; Yahoo sometimes appends a live
// row for the current session.
func dedupeDays(bars []domain.Bar) []domain.Bar {
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(b.Timestamp) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

func at(xs []*float64, i int) *float64 {
	if i < 0 || i >= len(xs) {
		return nil
	}
	return xs[i]
}
