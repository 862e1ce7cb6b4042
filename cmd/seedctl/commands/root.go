// Package commands implements the seedctl command-line surface. Every
// command is non-interactive and exits with a stable code: 0 on success,
// 1 on failure, 2 when another run holds the host lock, 3 on invalid
// invocation. The menu command layers an interactive chooser over the
// same operations.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seedctl/seedctl/pkg/engine"
)

// Exit codes of every seedctl invocation.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitLockBusy = 2
	ExitUsage    = 3
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// usageError marks invalid-invocation failures so main can map them to
// ExitUsage.
type usageError struct {
	err error
}

func (u *usageError) Error() string { return u.err.Error() }
func (u *usageError) Unwrap() error { return u.err }

func usageErr(err error) error {
	return &usageError{err: err}
}

// noArgs is cobra.NoArgs with the failure marked as an invalid
// invocation.
func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return usageErr(err)
	}
	return nil
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var u *usageError
	if errors.As(err, &u) {
		return ExitUsage
	}
	if engine.IsLockContention(err) {
		return ExitLockBusy
	}
	// cobra reports unknown subcommands as plain errors; they are
	// invalid invocations all the same.
	if strings.HasPrefix(err.Error(), "unknown command ") {
		return ExitUsage
	}
	return ExitFailure
}

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "seedctl",
		Short: "seedctl - BitTorrent daemon installer and manager",
		Long: `seedctl converges a host toward a desired BitTorrent daemon
deployment: build dependencies, the daemon itself built from source, a
service unit for the detected init system, a dedicated service account,
initialized runtime settings, RPC credentials, and kernel network tuning.

Every operation is idempotent: re-running against a converged host is a
no-op, and re-running after a partial failure resumes where it stopped.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Flag parse failures are invalid invocations, not runtime failures.
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageErr(err)
	})

	// Add subcommands
	rootCmd.AddCommand(newInstallCommand(version))
	rootCmd.AddCommand(newUninstallCommand(version))
	rootCmd.AddCommand(newStatusCommand(version))
	rootCmd.AddCommand(newBackupCommand(version))
	rootCmd.AddCommand(newOptimizeCommand(version))
	rootCmd.AddCommand(newMenuCommand(version))

	return rootCmd
}
