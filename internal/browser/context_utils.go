// File: internal/browser/context_utils.go
package browser

import (
	"context"
)

// CombineContext creates a new context derived from ctx1 (the context
// carrying the CDP connection info) that is canceled when either ctx1 or
// ctx2 (the operational deadline) is canceled. It inherits values from
// ctx1, which is what chromedp needs to route commands to the right target.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)

	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
