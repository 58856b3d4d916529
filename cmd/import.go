// File: cmd/import.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/karacadev/portalkeeper/internal/observability"
	"github.com/karacadev/portalkeeper/internal/store"
)

// newImportCmd creates the `import` command: bulk-load accounts from a CSV
// file of username,password rows.
func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Imports accounts from a CSV file (username,password per row)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open CSV file: %w", err)
			}
			defer f.Close()

			st, pool, err := openStore(ctx, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := store.ImportCSV(ctx, st, f, logger)
			if err != nil {
				return err
			}

			logger.Info("Import complete.", zap.Int("accounts", n), zap.String("file", args[0]))
			return nil
		},
	}
}
