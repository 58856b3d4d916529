// File: internal/browser/page.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Page wraps a single tab. Every operation combines the caller's deadline
// with the tab's lifetime, so a closed session cancels in-flight work and a
// slow target cannot hold a health pass hostage.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads the URL and waits for the document body, bounded by timeout.
func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// WaitVisible blocks until the selector is visible or the timeout elapses.
func (p *Page) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.run(waitCtx, chromedp.WaitVisible(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("selector %q not visible: %w", sel, err)
	}
	return nil
}

// Fill clears the field and types the value into it.
func (p *Page) Fill(ctx context.Context, sel, value string) error {
	if err := p.run(ctx,
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to fill %q: %w", sel, err)
	}
	return nil
}

// Click clicks the first element matching the selector.
func (p *Page) Click(ctx context.Context, sel string) error {
	if err := p.run(ctx, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to click %q: %w", sel, err)
	}
	return nil
}

// Evaluate runs the JavaScript expression and unmarshals the result into out.
// Pass nil to discard the result.
func (p *Page) Evaluate(ctx context.Context, js string, out any) error {
	if err := p.run(ctx, chromedp.Evaluate(js, out)); err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

// Screenshot captures the full page as PNG and writes it to path, creating
// parent directories as needed.
func (p *Page) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	p.logger.Debug("Screenshot captured.", zap.String("path", path))
	return nil
}
