package dashboard

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"stockbt/internal/domain"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4")).Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	gainStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
)

// Report is everything RenderReport prints for one run.
type Report struct {
	ID          string
	Symbol      string
	CompanyName string
	Strategy    string
	Params      map[string]float64
	InitialCash float64
	Stats       Stats
	Trades      []domain.Trade
}

// RenderReport renders r as a styled terminal report: a title line, the
// headline metrics, the full statistics table and the trade list.
func RenderReport(r Report) string {
	var b strings.Builder

	title := r.Symbol
	if r.CompanyName != "" && r.CompanyName != r.Symbol {
		title = fmt.Sprintf("%s (%s)", r.CompanyName, r.Symbol)
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%s %s  %s → %s  cash %s",
		r.Strategy, formatParams(r.Params), FormatDate(r.Stats.Start), FormatDate(r.Stats.End), Money(r.InitialCash))))
	if r.ID != "" {
		b.WriteString(dimStyle.Render("  id " + r.ID))
	}
	b.WriteString("\n\n")

	headline := lipgloss.JoinHorizontal(lipgloss.Top,
		metricBox("Return", r.Stats.ReturnPct),
		metricBox("Buy & Hold", r.Stats.BuyHoldPct),
		metricBox("Max Drawdown", r.Stats.MaxDrawdownPct),
		metricBox("Win Rate", r.Stats.WinRatePct),
	)
	b.WriteString(headline)
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Statistics"))
	b.WriteString("\n")
	rows := r.Stats.Rows()
	width := 0
	for _, row := range rows {
		width = max(width, lipgloss.Width(row.Label))
	}
	for _, row := range rows {
		pad := strings.Repeat(" ", width-lipgloss.Width(row.Label))
		b.WriteString("  " + labelStyle.Render(row.Label) + pad + "  " + valueStyle.Render(row.Value) + "\n")
	}
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Trades"))
	b.WriteString("\n")
	if len(r.Trades) == 0 {
		b.WriteString(dimStyle.Render("  no trades"))
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %-10s %-10s %8s %10s %10s %12s %8s  %s",
		"entry", "exit", "size", "entry px", "exit px", "pnl", "return", "reason")))
	b.WriteString("\n")
	for _, t := range r.Trades {
		line := fmt.Sprintf("  %-10s %-10s %8s %10s %10s %12s %8s  %s",
			FormatDate(t.EntryTime), FormatDate(t.ExitTime), FormatInt(int(t.Size)),
			FormatPrice(t.EntryPrice), FormatPrice(t.ExitPrice), Money(t.PnL), FormatPct(t.ReturnPct), t.ExitReason)
		b.WriteString(pnlStyle(t.PnL).Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func metricBox(label string, v Float) string {
	value := "-"
	style := valueStyle
	if f := float64(v); !math.IsNaN(f) {
		value = fmt.Sprintf("%.2f%%", f)
		if label != "Win Rate" {
			style = pnlStyle(f)
		}
	}
	return boxStyle.Render(labelStyle.Render(label) + "\n" + style.Bold(true).Render(value))
}

func pnlStyle(v float64) lipgloss.Style {
	switch {
	case v > 0:
		return gainStyle
	case v < 0:
		return lossStyle
	default:
		return valueStyle
	}
}

// formatParams renders params as "k=v" pairs in key order.
func formatParams(p map[string]float64) string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, p[k])
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// FormatHistoryLine is a one-line summary of a saved run for listings.
func FormatHistoryLine(id, symbol, strategy string, start, end time.Time, returnPct float64, trades int, created time.Time) string {
	ret := FormatPct(returnPct)
	return fmt.Sprintf("%-36s  %-8s %-12s %s→%s %8s %4d trades  %s",
		id, symbol, strategy, FormatDate(start), FormatDate(end), pnlStyle(returnPct).Render(ret), trades,
		dimStyle.Render(created.Local().Format("2006-01-02 15:04")))
}
