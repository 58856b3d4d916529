// File: internal/orchestrator/driver.go
package orchestrator

import (
	"context"

	"github.com/karacadev/portalkeeper/internal/browser"
	"github.com/karacadev/portalkeeper/internal/platform"
)

// browserDriver is the slice of the browser layer the login workflow needs.
// Keeping it an interface lets the retry loop be exercised without a running
// Chrome process.
type browserDriver interface {
	Start(ctx context.Context) error
	OpenContext(ctx context.Context) (browsingContext, error)
	Started() bool
	Stop()
}

// browsingContext is one isolated cookie jar and the tabs opened inside it.
type browsingContext interface {
	NewPage(ctx context.Context) (platform.Page, error)
	Close(ctx context.Context) error
}

// chromeDriver adapts the concrete chromedp driver to browserDriver.
type chromeDriver struct {
	*browser.Driver
}

func (d chromeDriver) OpenContext(ctx context.Context) (browsingContext, error) {
	bc, err := d.NewBrowsingContext(ctx)
	if err != nil {
		return nil, err
	}
	return chromeContext{bc}, nil
}

// chromeContext narrows the concrete browsing context's pages to the
// platform-facing tab interface.
type chromeContext struct {
	*browser.BrowsingContext
}

func (c chromeContext) NewPage(ctx context.Context) (platform.Page, error) {
	p, err := c.BrowsingContext.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}
