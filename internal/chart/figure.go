// Package chart builds plotly.js figures for backtest results and renders
// them to standalone HTML pages or PNG images.
package chart

import (
	"fmt"
	"math"
	"time"

	"stockbt/internal/strategy"
	"stockbt/internal/util"
)

// PriceHeight and EquityHeight are the default figure heights in pixels.
const (
	PriceHeight  = 800
	EquityHeight = 400
)

// Figure is a plotly figure: traces plus layout, marshalled as-is into
// Plotly.newPlot.
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// Trace is one plotly trace. Only the fields used by stockbt are modelled.
type Trace struct {
	Type   string     `json:"type"`
	Name   string     `json:"name,omitempty"`
	Mode   string     `json:"mode,omitempty"`
	X      []string   `json:"x"`
	Y      []*float64 `json:"y,omitempty"`
	Open   []float64  `json:"open,omitempty"`
	High   []float64  `json:"high,omitempty"`
	Low    []float64  `json:"low,omitempty"`
	Close  []float64  `json:"close,omitempty"`
	XAxis  string     `json:"xaxis,omitempty"`
	YAxis  string     `json:"yaxis,omitempty"`
	Line   *Line      `json:"line,omitempty"`
	Marker *Marker    `json:"marker,omitempty"`
}

// Line styles a line trace or shape.
type Line struct {
	Color string  `json:"color,omitempty"`
	Width float64 `json:"width,omitempty"`
	Dash  string  `json:"dash,omitempty"`
}

// Marker styles scatter markers.
type Marker struct {
	Symbol string `json:"symbol"`
	Size   int    `json:"size"`
	Color  string `json:"color"`
}

// Axis is a plotly axis.
type Axis struct {
	Title       string      `json:"title,omitempty"`
	Domain      []float64   `json:"domain,omitempty"`
	Anchor      string      `json:"anchor,omitempty"`
	Matches     string      `json:"matches,omitempty"`
	RangeSlider *RangeSlide `json:"rangeslider,omitempty"`
}

// RangeSlide toggles the x-axis range slider.
type RangeSlide struct {
	Visible bool `json:"visible"`
}

// Shape is a layout shape, used for horizontal threshold lines.
type Shape struct {
	Type string  `json:"type"`
	XRef string  `json:"xref"`
	YRef string  `json:"yref"`
	X0   float64 `json:"x0"`
	X1   float64 `json:"x1"`
	Y0   float64 `json:"y0"`
	Y1   float64 `json:"y1"`
	Line Line    `json:"line"`
}

// Layout is the plotly layout.
type Layout struct {
	Title      string  `json:"title,omitempty"`
	Height     int     `json:"height,omitempty"`
	ShowLegend bool    `json:"showlegend"`
	XAxis      Axis    `json:"xaxis"`
	YAxis      Axis    `json:"yaxis"`
	XAxis2     *Axis   `json:"xaxis2,omitempty"`
	YAxis2     *Axis   `json:"yaxis2,omitempty"`
	Shapes     []Shape `json:"shapes,omitempty"`
}

var (
	overlayColors = []string{"blue", "red", "green", "orange", "purple"}
	levelColors   = []string{"red", "green"}
)

// PriceFigure draws candlesticks with the strategy's indicators, buy markers
// at entries and sell markers at exits. Oscillators get a subplot below the
// price panel with their threshold levels as dashed lines.
func PriceFigure(r *strategy.Result) Figure {
	x := dates(r)
	fig := Figure{
		Layout: Layout{
			Title:      fmt.Sprintf("%s (%s) · %s", r.CompanyName, r.Request.Symbol, r.Request.Strategy),
			Height:     PriceHeight,
			ShowLegend: true,
			XAxis:      Axis{Title: "Date", RangeSlider: &RangeSlide{Visible: false}},
			YAxis:      Axis{Title: "Price"},
		},
	}

	candles := Trace{Type: "candlestick", Name: "Price", X: x}
	for _, b := range r.Bars {
		candles.Open = append(candles.Open, b.Open)
		candles.High = append(candles.High, b.High)
		candles.Low = append(candles.Low, b.Low)
		candles.Close = append(candles.Close, b.Close)
	}
	fig.Data = append(fig.Data, candles)

	hasOsc := false
	var priceN, oscN int
	for _, s := range r.Indicators {
		t := Trace{Type: "scatter", Mode: "lines", Name: s.Name, X: x, Y: nullable(s.Values)}
		if s.Panel == strategy.PanelOscillator {
			hasOsc = true
			t.XAxis, t.YAxis = "x2", "y2"
			t.Line = &Line{Color: overlayColors[oscN%len(overlayColors)], Width: 1.5}
			oscN++
			for i, lvl := range s.Levels {
				fig.Layout.Shapes = append(fig.Layout.Shapes, Shape{
					Type: "line", XRef: "paper", YRef: "y2",
					X0: 0, X1: 1, Y0: lvl, Y1: lvl,
					Line: Line{Color: levelColors[i%len(levelColors)], Dash: "dash", Width: 1},
				})
			}
		} else {
			t.Line = &Line{Color: overlayColors[priceN%len(overlayColors)], Width: 1.5}
			priceN++
		}
		fig.Data = append(fig.Data, t)
	}
	if hasOsc {
		fig.Layout.YAxis.Domain = []float64{0.32, 1}
		fig.Layout.XAxis.Anchor = "y"
		fig.Layout.XAxis2 = &Axis{Anchor: "y2", Matches: "x", Title: "Date"}
		fig.Layout.YAxis2 = &Axis{Domain: []float64{0, 0.26}}
		fig.Layout.XAxis.Title = ""
	}

	if len(r.Trades) > 0 {
		buys := Trace{Type: "scatter", Mode: "markers", Name: "Buy",
			Marker: &Marker{Symbol: "triangle-up", Size: 10, Color: "green"}}
		sells := Trace{Type: "scatter", Mode: "markers", Name: "Sell",
			Marker: &Marker{Symbol: "triangle-down", Size: 10, Color: "red"}}
		for _, t := range r.Trades {
			buys.X = append(buys.X, day(t.EntryTime))
			buys.Y = append(buys.Y, ptr(t.EntryPrice))
			sells.X = append(sells.X, day(t.ExitTime))
			sells.Y = append(sells.Y, ptr(t.ExitPrice))
		}
		fig.Data = append(fig.Data, buys, sells)
	}
	return fig
}

// EquityFigure draws the equity curve.
func EquityFigure(r *strategy.Result) Figure {
	t := Trace{Type: "scatter", Mode: "lines", Name: "Equity", Line: &Line{Color: "blue", Width: 1.5}}
	for _, p := range r.Equity {
		t.X = append(t.X, day(p.Time))
		t.Y = append(t.Y, ptr(p.Equity))
	}
	return Figure{
		Data: []Trace{t},
		Layout: Layout{
			Title:      "Equity Curve",
			Height:     EquityHeight,
			ShowLegend: true,
			XAxis:      Axis{Title: "Date"},
			YAxis:      Axis{Title: "Equity"},
		},
	}
}

func dates(r *strategy.Result) []string {
	out := make([]string, len(r.Bars))
	for i, b := range r.Bars {
		out[i] = day(b.Timestamp)
	}
	return out
}

func day(t time.Time) string { return t.Format(util.DateLayout) }

func ptr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// nullable maps NaN warm-up values to JSON null so plotly leaves gaps.
func nullable(vs []float64) []*float64 {
	out := make([]*float64, len(vs))
	for i, v := range vs {
		out[i] = ptr(v)
	}
	return out
}
