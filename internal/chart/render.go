package chart

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
)

// RenderOptions controls headless Chrome rendering.
type RenderOptions struct {
	ChromePath string
	Width      int
	Height     int
	Timeout    time.Duration
}

// RenderPNG loads page in headless Chrome, waits for the first figure to
// draw and returns a full-page screenshot.
func RenderPNG(ctx context.Context, page []byte, opts RenderOptions) ([]byte, error) {
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 720
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	dir, err := os.MkdirTemp("", "stockbt-chart-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "chart.html")
	if err := os.WriteFile(path, page, 0o644); err != nil {
		return nil, err
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.NoSandbox,
	)
	if opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromePath))
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var png []byte
	err = chromedp.Run(browserCtx,
		emulation.SetDeviceMetricsOverride(int64(opts.Width), int64(opts.Height), 1, false),
		chromedp.Navigate("file://"+path),
		chromedp.WaitVisible("#fig-0 .main-svg", chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return png, nil
}
