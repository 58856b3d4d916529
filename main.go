// ./main.go
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/karacadev/portalkeeper/cmd"
)

// main is the entry point for the portalkeeper application.
func main() {
	// Commands receive a context canceled on SIGINT/SIGTERM so shutdown is
	// graceful everywhere.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.ExecuteContext(ctx)
}
