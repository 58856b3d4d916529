// File: cmd/sessions.go
package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/karacadev/portalkeeper/internal/observability"
)

// newSessionsCmd creates the `sessions` command: a read-only view of the
// accounts currently holding open sessions, with optional per-account daily
// totals.
func newSessionsCmd() *cobra.Command {
	var statsFor string

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Shows accounts with open sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			st, pool, err := openStore(ctx, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			if statsFor != "" {
				stats, err := st.DailyStats(ctx, statsFor, time.Now())
				if err != nil {
					return err
				}
				fmt.Printf("%s today: %d minutes across sessions, %d still active\n",
					statsFor, stats.TotalDuration, stats.ActiveSessions)
				return nil
			}

			accounts, err := st.ListOpen(ctx)
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				fmt.Println("No open sessions.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "USERNAME\tSTATUS\tSINCE\tMESSAGE")
			for _, a := range accounts {
				since := "-"
				if a.LoginTime != nil {
					since = a.LoginTime.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Username, a.Status, since, a.Message)
			}
			return w.Flush()
		},
	}

	sessionsCmd.Flags().StringVar(&statsFor, "stats", "", "print today's session totals for one account")
	return sessionsCmd
}
