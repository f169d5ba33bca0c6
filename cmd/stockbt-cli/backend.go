package main

import (
	"context"
	"time"

	"stockbt/internal/app"
	"stockbt/internal/domain"
	"stockbt/internal/gather"
	"stockbt/internal/httpapi"
	"stockbt/internal/strategy"
	"stockbt/internal/util"
	"stockbt/pkg/stockbt"
)

// backend runs commands either in-process or against a stockbt-server.
type backend interface {
	Strategies(ctx context.Context) ([]strategy.Info, error)
	Run(ctx context.Context, req strategy.Request) (*strategy.Result, error)
	Compare(ctx context.Context, req strategy.Request, names []string) ([]*strategy.Result, error)
	Get(ctx context.Context, id string) (*strategy.Result, error)
	History(ctx context.Context, limit int) ([]httpapi.RunSummary, error)
	Delete(ctx context.Context, id string) error
	Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
	Company(ctx context.Context, symbol string) (string, error)
	Close() error
}

type localBackend struct {
	app *app.App
}

func (l *localBackend) bt() *strategy.Backtester { return l.app.Backtester }

func (l *localBackend) Strategies(context.Context) ([]strategy.Info, error) {
	return l.bt().Registry().Infos(), nil
}

func (l *localBackend) Run(ctx context.Context, req strategy.Request) (*strategy.Result, error) {
	return l.bt().Run(ctx, req)
}

func (l *localBackend) Compare(ctx context.Context, req strategy.Request, names []string) ([]*strategy.Result, error) {
	return l.bt().Compare(ctx, req, names)
}

func (l *localBackend) Get(ctx context.Context, id string) (*strategy.Result, error) {
	return l.bt().Load(ctx, id)
}

func (l *localBackend) History(ctx context.Context, limit int) ([]httpapi.RunSummary, error) {
	runs, err := l.bt().History(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]httpapi.RunSummary, len(runs))
	for i, r := range runs {
		out[i] = httpapi.ToSummary(r)
	}
	return out, nil
}

func (l *localBackend) Delete(ctx context.Context, id string) error {
	return l.bt().Delete(ctx, id)
}

func (l *localBackend) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	defStart, defEnd := util.DefaultRange(l.bt().Defaults().LookbackDays)
	if start.IsZero() {
		start = defStart
	}
	if end.IsZero() {
		end = defEnd
	}
	return l.bt().Source().Bars(ctx, gather.NormalizeSymbol(symbol), start, end)
}

func (l *localBackend) Company(ctx context.Context, symbol string) (string, error) {
	return l.bt().Source().CompanyName(ctx, gather.NormalizeSymbol(symbol))
}

func (l *localBackend) Close() error { return l.app.Close() }

type remoteBackend struct {
	client *stockbt.Client
}

func (r *remoteBackend) Strategies(ctx context.Context) ([]strategy.Info, error) {
	return r.client.ListStrategies(ctx)
}

func (r *remoteBackend) Run(ctx context.Context, req strategy.Request) (*strategy.Result, error) {
	return r.client.RunBacktest(ctx, req)
}

func (r *remoteBackend) Compare(ctx context.Context, req strategy.Request, names []string) ([]*strategy.Result, error) {
	return r.client.Compare(ctx, req, names)
}

func (r *remoteBackend) Get(ctx context.Context, id string) (*strategy.Result, error) {
	return r.client.GetBacktest(ctx, id)
}

func (r *remoteBackend) History(ctx context.Context, limit int) ([]httpapi.RunSummary, error) {
	return r.client.ListBacktests(ctx, limit)
}

func (r *remoteBackend) Delete(ctx context.Context, id string) error {
	return r.client.DeleteBacktest(ctx, id)
}

func (r *remoteBackend) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	return r.client.GetBars(ctx, symbol, start, end)
}

func (r *remoteBackend) Company(ctx context.Context, symbol string) (string, error) {
	return r.client.CompanyName(ctx, symbol)
}

func (r *remoteBackend) Close() error { return nil }
