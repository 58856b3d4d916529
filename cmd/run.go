// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/karacadev/portalkeeper/internal/browser"
	"github.com/karacadev/portalkeeper/internal/observability"
	"github.com/karacadev/portalkeeper/internal/orchestrator"
	"github.com/karacadev/portalkeeper/internal/platform"
	"github.com/karacadev/portalkeeper/internal/store"
)

// newRunCmd creates the `run` command: log every waiting account in and
// keep the sessions alive until interrupted.
func newRunCmd() *cobra.Command {
	var oneShot bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Logs in all waiting accounts and keeps their sessions healthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Context from main.go; canceled on SIGINT/SIGTERM.
			ctx := cmd.Context()
			logger := observability.GetLogger()

			st, pool, err := openStore(ctx, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			driver := browser.NewDriver(cfg.Browser, logger)
			portal := platform.NewPortal(cfg.Portal, logger)
			classroom := platform.NewClassroom(cfg.Classroom, logger)

			svc := orchestrator.New(cfg, st, bus, driver, portal, classroom, logger)
			if err := svc.Initialize(ctx); err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
				defer cancel()
				if err := svc.Close(closeCtx); err != nil {
					logger.Error("Shutdown did not complete cleanly.", zap.Error(err))
				}
			}()

			accounts, err := st.ListWaiting(ctx)
			if err != nil {
				return fmt.Errorf("failed to list waiting accounts: %w", err)
			}
			if err := svc.RunAll(ctx, accounts); err != nil {
				return err
			}

			if oneShot {
				logger.Info("One-shot run complete.")
				return nil
			}

			logger.Info("All batches dispatched; monitoring sessions. Press Ctrl+C to stop.",
				zap.Int("active_sessions", svc.ActiveSessionCount()))
			<-ctx.Done()
			logger.Info("Shutdown signal received.")
			return nil
		},
	}

	runCmd.Flags().BoolVar(&oneShot, "one-shot", false, "log accounts in, then exit without monitoring")
	return runCmd
}

// openStore connects the PostgreSQL pool, verifies it and ensures the schema
// exists. The caller owns the returned pool.
func openStore(ctx context.Context, logger *zap.Logger) (*store.Postgres, *pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Store.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid store DSN: %w", err)
	}
	if cfg.Store.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Store.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	st, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return st, pool, nil
}
