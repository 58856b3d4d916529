// File: internal/browser/driver.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/karacadev/portalkeeper/internal/config"
)

// Driver owns the single Chrome process shared by every account session.
// The process is launched lazily on the first call to Start, which makes it
// safe to construct the driver before knowing whether any logins will run.
type Driver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc

	initOnce sync.Once
	initErr  error
	started  atomic.Bool
}

// NewDriver creates a driver. The browser is not launched until Start.
func NewDriver(cfg config.BrowserConfig, logger *zap.Logger) *Driver {
	return &Driver{
		cfg:    cfg,
		logger: logger.Named("browser"),
	}
}

// execOptions translates the browser config into chromedp allocator options.
func (d *Driver) execOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(d.cfg.WindowW, d.cfg.WindowH),
	)
	if d.cfg.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if d.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(d.cfg.ExecPath))
	}

	for _, arg := range d.cfg.Args {
		if !strings.Contains(arg, "=") {
			opts = append(opts, chromedp.Flag(strings.TrimPrefix(arg, "--"), true))
			continue
		}
		parts := strings.SplitN(arg, "=", 2)
		opts = append(opts, chromedp.Flag(strings.TrimPrefix(parts[0], "--"), parts[1]))
	}
	return opts
}

// Start launches the Chrome process exactly once. Subsequent calls return
// the outcome of the first launch.
func (d *Driver) Start(ctx context.Context) error {
	d.initOnce.Do(func() {
		d.logger.Info("Launching browser process...")

		// The allocator must outlive the caller's context: sessions created
		// later share this browser.
		d.allocCtx, d.allocCancel = chromedp.NewExecAllocator(context.Background(), d.execOptions()...)
		d.browserCtx, d.browserStop = chromedp.NewContext(d.allocCtx)

		// Run with the caller's deadline so a hung launch does not block
		// forever, but keep the long-lived contexts detached from it.
		launchCtx, cancel := CombineContext(d.browserCtx, ctx)
		defer cancel()

		if err := chromedp.Run(launchCtx); err != nil {
			d.browserStop()
			d.allocCancel()
			d.initErr = fmt.Errorf("failed to launch browser: %w", err)
			return
		}
		d.started.Store(true)
		d.logger.Info("Browser process launched.")
	})
	return d.initErr
}

// Started reports whether the browser process was launched successfully.
// Safe to call concurrently with Start.
func (d *Driver) Started() bool {
	return d.started.Load()
}

// Stop tears down the Chrome process. Sessions must be closed first; any
// still-open browsing context dies with the process.
func (d *Driver) Stop() {
	if d.browserStop != nil {
		d.browserStop()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	d.logger.Info("Browser process stopped.")
}
