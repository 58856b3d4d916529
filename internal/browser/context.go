// File: internal/browser/context.go
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BrowsingContext is an isolated (incognito) browser context. Each account
// login attempt gets a fresh one, so cookie jars never bleed between
// accounts or between retries.
type BrowsingContext struct {
	id        string
	bctxID    cdp.BrowserContextID
	driver    *Driver
	logger    *zap.Logger
	pages     []*Page
	mu        sync.Mutex
	isClosed  bool
}

// NewBrowsingContext creates an isolated browser context inside the shared
// Chrome process. Start must have succeeded first.
func (d *Driver) NewBrowsingContext(ctx context.Context) (*BrowsingContext, error) {
	if err := d.Start(ctx); err != nil {
		return nil, err
	}

	var bctxID cdp.BrowserContextID
	runCtx, cancel := CombineContext(d.browserCtx, ctx)
	defer cancel()

	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(c context.Context) error {
		id, err := target.CreateBrowserContext().WithDisposeOnDetach(true).Do(c)
		if err != nil {
			return err
		}
		bctxID = id
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create isolated browser context: %w", err)
	}

	bc := &BrowsingContext{
		id:     uuid.NewString(),
		bctxID: bctxID,
		driver: d,
		logger: d.logger.With(zap.String("context_id", string(bctxID))),
	}
	bc.logger.Debug("Isolated browsing context created.")
	return bc, nil
}

// ID returns the unique identifier for this browsing context.
func (bc *BrowsingContext) ID() string {
	return bc.id
}

// NewPage opens a blank tab inside this browsing context.
func (bc *BrowsingContext) NewPage(ctx context.Context) (*Page, error) {
	bc.mu.Lock()
	if bc.isClosed {
		bc.mu.Unlock()
		return nil, fmt.Errorf("browsing context %s is closed", bc.bctxID)
	}
	bc.mu.Unlock()

	var targetID target.ID
	runCtx, cancel := CombineContext(bc.driver.browserCtx, ctx)
	defer cancel()

	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(c context.Context) error {
		id, err := target.CreateTarget("about:blank").
			WithBrowserContextID(bc.bctxID).
			Do(c)
		if err != nil {
			return err
		}
		targetID = id
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create page target: %w", err)
	}

	pageCtx, pageCancel := chromedp.NewContext(bc.driver.browserCtx, chromedp.WithTargetID(targetID))
	// Attach to the new target.
	if err := chromedp.Run(pageCtx); err != nil {
		pageCancel()
		return nil, fmt.Errorf("failed to attach to page target: %w", err)
	}

	p := &Page{
		ctx:    pageCtx,
		cancel: pageCancel,
		logger: bc.logger,
	}

	bc.mu.Lock()
	bc.pages = append(bc.pages, p)
	bc.mu.Unlock()
	return p, nil
}

// Close detaches every tab and disposes the incognito context. It is
// idempotent; the second and later calls are no-ops.
func (bc *BrowsingContext) Close(ctx context.Context) error {
	bc.mu.Lock()
	if bc.isClosed {
		bc.mu.Unlock()
		return nil
	}
	bc.isClosed = true
	pages := bc.pages
	bc.pages = nil
	bc.mu.Unlock()

	for _, p := range pages {
		p.cancel()
	}

	runCtx, cancel := CombineContext(bc.driver.browserCtx, ctx)
	defer cancel()

	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(c context.Context) error {
		return target.DisposeBrowserContext(bc.bctxID).Do(c)
	}))
	if err != nil {
		return fmt.Errorf("failed to dispose browser context: %w", err)
	}
	bc.logger.Debug("Browsing context disposed.")
	return nil
}
