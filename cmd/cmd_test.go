// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// findCommand locates a registered subcommand by its Use line.
func findCommand(t *testing.T, use string) *cobra.Command {
	t.Helper()
	for _, cmd := range rootCmd.Commands() {
		if cmd.Use == use {
			return cmd
		}
	}
	t.Fatalf("subcommand %q is not registered on the root command", use)
	return nil
}

func TestSubcommandsAreRegistered(t *testing.T) {
	findCommand(t, "run")
	findCommand(t, "import <file.csv>")
	findCommand(t, "sessions")
}

func TestRootCmd_ConfigFlag(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag, "the --config flag must be available to every subcommand")
	assert.Equal(t, "c", flag.Shorthand)
}

func TestRootCmd_VersionFlag(t *testing.T) {
	// Cobra handles --version before PersistentPreRunE, so this never loads
	// config or touches the database.
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()
	rootCmd.SetArgs([]string{"--version"})

	err := rootCmd.ExecuteContext(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out.String(), Version)
}

func TestRunCmd_OneShotFlag(t *testing.T) {
	runCmd := findCommand(t, "run")

	flag := runCmd.Flags().Lookup("one-shot")
	require.NotNil(t, flag, "run must support --one-shot")
	assert.Equal(t, "false", flag.DefValue, "monitoring is the default mode")
}

func TestSessionsCmd_StatsFlag(t *testing.T) {
	sessionsCmd := findCommand(t, "sessions")

	flag := sessionsCmd.Flags().Lookup("stats")
	require.NotNil(t, flag, "sessions must support --stats")
	assert.Empty(t, flag.DefValue)
}

func TestImportCmd_RequiresExactlyOneFile(t *testing.T) {
	importCmd := findCommand(t, "import <file.csv>")
	require.NotNil(t, importCmd.Args)

	assert.Error(t, importCmd.Args(importCmd, nil))
	assert.Error(t, importCmd.Args(importCmd, []string{"a.csv", "b.csv"}))
	assert.NoError(t, importCmd.Args(importCmd, []string{"a.csv"}))
}
