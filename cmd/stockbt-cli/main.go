package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	"stockbt/internal/app"
	"stockbt/internal/chart"
	"stockbt/internal/config"
	"stockbt/internal/dashboard"
	"stockbt/internal/strategy"
	"stockbt/internal/util"
	"stockbt/pkg/stockbt"
)

const version = "0.1.0"

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	nameStyle   = lipgloss.NewStyle().Bold(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: stockbt-cli <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version      Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  strategies   List strategies and their parameters\n")
	fmt.Fprintf(os.Stderr, "  run          Backtest one strategy on a symbol\n")
	fmt.Fprintf(os.Stderr, "  compare      Backtest several strategies on the same data\n")
	fmt.Fprintf(os.Stderr, "  show         Print a saved run\n")
	fmt.Fprintf(os.Stderr, "  history      List saved runs, newest first\n")
	fmt.Fprintf(os.Stderr, "  delete       Delete a saved run\n")
	fmt.Fprintf(os.Stderr, "  fetch        Download bars into the local cache\n")
	fmt.Fprintf(os.Stderr, "\nRun 'stockbt-cli <command> -h' for command options.\n")
	fmt.Fprintf(os.Stderr, "Set STOCKBT_SERVER to run commands against a stockbt-server.\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "version":
		fmt.Printf("stockbt-cli %s\n", version)
	case "strategies":
		err = cmdStrategies(ctx, args)
	case "run":
		err = cmdRun(ctx, args)
	case "compare":
		err = cmdCompare(ctx, args)
	case "show":
		err = cmdShow(ctx, args)
	case "history":
		err = cmdHistory(ctx, args)
	case "delete":
		err = cmdDelete(ctx, args)
	case "fetch":
		err = cmdFetch(ctx, args)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, errStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Setup
// ---------------------------------------------------------------------------

// env holds what every command needs after flag parsing.
type env struct {
	cfg     *config.Config
	backend backend
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	server := fs.String("server", os.Getenv("STOCKBT_SERVER"), "stockbt-server base URL; empty runs in-process")
	return fs, server
}

func open(server string) (*env, error) {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if server != "" {
		return &env{cfg: cfg, backend: &remoteBackend{client: stockbt.NewClient(server)}}, nil
	}

	// Logs go to stderr so reports on stdout stay clean.
	level := cfg.Logging.Level
	if level == "info" {
		level = "warn"
	}
	logger := util.NewLoggerTo(os.Stderr, level, "text")
	util.SetDefault(logger)

	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, backend: &localBackend{app: a}}, nil
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func cmdStrategies(ctx context.Context, args []string) error {
	fs, server := newFlagSet("strategies")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := open(*server)
	if err != nil {
		return err
	}
	defer e.backend.Close()

	infos, err := e.backend.Strategies(ctx)
	if err != nil {
		return err
	}
	for _, info := range infos {
		fmt.Printf("%s  %s\n", nameStyle.Render(info.Name), info.Label)
		if info.Description != "" {
			fmt.Printf("    %s\n", info.Description)
		}
		for _, p := range info.Params {
			fmt.Printf("    -param %s=%v  %s [%v..%v]\n", p.Name, p.Default, p.Label, p.Min, p.Max)
		}
	}
	return nil
}

func cmdRun(ctx context.Context, args []string) error {
	fs, server := newFlagSet("run")
	build := requestFlags(fs)
	chartPath := fs.String("chart", "", "write the price and equity chart to this .html or .png file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req := build()
	if req.Symbol == "" {
		return errors.New("-symbol is required")
	}

	e, err := open(*server)
	if err != nil {
		return err
	}
	defer e.backend.Close()

	res, err := e.backend.Run(ctx, req)
	if err != nil {
		return err
	}
	fmt.Println(dashboard.RenderReport(res.Report()))
	if *chartPath != "" {
		return writeChart(ctx, e.cfg, *chartPath, res)
	}
	return nil
}

func cmdCompare(ctx context.Context, args []string) error {
	fs, server := newFlagSet("compare")
	build := requestFlags(fs)
	names := fs.String("strategies", "", "comma-separated strategy names (default: all)")
	chartPath := fs.String("chart", "", "write the charts of every run to this .html or .png file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req := build()
	if req.Symbol == "" {
		return errors.New("-symbol is required")
	}

	e, err := open(*server)
	if err != nil {
		return err
	}
	defer e.backend.Close()

	var list []string
	for _, n := range strings.Split(*names, ",") {
		if n = strings.TrimSpace(n); n != "" {
			list = append(list, n)
		}
	}
	if len(list) == 0 {
		infos, err := e.backend.Strategies(ctx)
		if err != nil {
			return err
		}
		for _, info := range infos {
			list = append(list, info.Name)
		}
	}

	results, err := e.backend.Compare(ctx, req, list)
	if err != nil {
		return err
	}
	for _, res := range results {
		fmt.Println(dashboard.RenderReport(res.Report()))
	}
	fmt.Println(compareTable(results))
	if *chartPath != "" {
		return writeChart(ctx, e.cfg, *chartPath, results...)
	}
	return nil
}

func cmdShow(ctx context.Context, args []string) error {
	fs, server := newFlagSet("show")
	chartPath := fs.String("chart", "", "write the chart to this .html or .png file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: stockbt-cli show [options] RUN_ID")
	}

	e, err := open(*server)
	if err != nil {
		return err
	}
	defer e.backend.Close()

	res, err := e.backend.Get(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Println(dashboard.RenderReport(res.Report()))
	if *chartPath != "" {
		return writeChart(ctx, e.cfg, *chartPath, res)
	}
	return nil
}

func cmdHistory(ctx context.Context, args []string) error {
	fs, server := newFlagSet("history")
	limit := fs.Int("limit", 20, "number of runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := open(*server)
	if err != nil {
		return err
	}
	defer e.backend.Close()

	runs, err := e.backend.History(ctx, *limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no saved runs")
		return nil
	}
	for _, r := range runs {
		start, _ := util.ParseDate(r.Start)
		end, _ := util.ParseDate(r.End)
		ret := math.NaN()
		if r.ReturnPct != nil {
			ret = *r.ReturnPct
		}
		fmt.Println(dashboard.FormatHistoryLine(r.ID, r.Symbol, r.Strategy, start, end, ret, r.NumTrades, r.CreatedAt))
	}
	return nil
}

func cmdDelete(ctx context.Context, args []string) error {
	fs, server := newFlagSet("delete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("usage: stockbt-cli delete [options] RUN_ID...")
	}
	e, err := open(*server)
	if err != nil {
		return err
	}
	defer e.backend.Close()

	for _, id := range fs.Args() {
		if err := e.backend.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", id)
	}
	return nil
}

func cmdFetch(ctx context.Context, args []string) error {
	fs, server := newFlagSet("fetch")
	var start, end time.Time
	fs.Var(dateFlag{&start}, "start", "first day, YYYY-MM-DD (default: one lookback before end)")
	fs.Var(dateFlag{&end}, "end", "last day, YYYY-MM-DD (default: today)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("usage: stockbt-cli fetch [options] SYMBOL...")
	}
	e, err := open(*server)
	if err != nil {
		return err
	}
	defer e.backend.Close()

	for _, sym := range fs.Args() {
		bars, err := e.backend.Bars(ctx, sym, start, end)
		if err != nil {
			fmt.Fprintln(os.Stderr, errStyle.Render(fmt.Sprintf("%s: %v", sym, err)))
			continue
		}
		name, err := e.backend.Company(ctx, sym)
		if err != nil {
			name = sym
		}
		first, last := bars[0].Timestamp, bars[len(bars)-1].Timestamp
		fmt.Printf("%-8s %-32s %5d bars  %s→%s  last close %s\n",
			strings.ToUpper(sym), name, len(bars),
			dashboard.FormatDate(first), dashboard.FormatDate(last),
			dashboard.FormatPrice(bars[len(bars)-1].Close))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

func compareTable(results []*strategy.Result) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-12s %10s %10s %8s %10s %7s %9s",
		"Strategy", "Return", "B&H", "Sharpe", "Max DD", "Trades", "Win rate")))
	b.WriteByte('\n')
	for _, r := range results {
		s := r.Stats
		fmt.Fprintf(&b, "%-12s %10s %10s %8s %10s %7d %9s\n",
			r.Request.Strategy,
			dashboard.FormatPct(float64(s.ReturnPct)),
			dashboard.FormatPct(float64(s.BuyHoldPct)),
			dashboard.FormatNum(s.Sharpe),
			dashboard.FormatPct(float64(s.MaxDrawdownPct)),
			s.NumTrades,
			dashboard.FormatNum(s.WinRatePct))
	}
	return b.String()
}

// writeChart writes an HTML page, or a PNG screenshot of it when path ends
// in .png. The first result contributes its price chart; every result
// contributes an equity curve.
func writeChart(ctx context.Context, cfg *config.Config, path string, results ...*strategy.Result) error {
	if len(results) == 0 {
		return nil
	}
	first := results[0]
	figures := []chart.Figure{chart.PriceFigure(first)}
	for _, r := range results {
		figures = append(figures, chart.EquityFigure(r))
	}
	title := fmt.Sprintf("%s (%s)", first.CompanyName, first.Request.Symbol)

	page, err := chart.HTML(title, figures...)
	if err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}
	out := page
	if strings.EqualFold(filepath.Ext(path), ".png") {
		out, err = chart.RenderPNG(ctx, page, chart.RenderOptions{
			ChromePath: cfg.Chart.ChromePath,
			Width:      cfg.Chart.Width,
			Height:     cfg.Chart.Height,
		})
		if err != nil {
			return fmt.Errorf("rendering png: %w", err)
		}
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "chart written to %s\n", path)
	return nil
}
