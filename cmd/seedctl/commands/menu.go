package commands

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seedctl/seedctl/pkg/telemetry"
)

func newMenuCommand(version string) *cobra.Command {
	var metricsListen string

	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Interactive operation chooser",
		Long: `Present a numbered menu of the non-interactive operations and run
the chosen one. The menu loops until quit; each selection runs exactly
the same code path as its direct command.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			scanner := bufio.NewScanner(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()

			if metricsListen != "" {
				mcfg := telemetry.DefaultConfig(version).Metrics
				mcfg.ListenAddress = metricsListen
				m := telemetry.NewMetrics(mcfg)
				sharedMetrics = m
				go func() {
					if err := m.Serve(); err != nil {
						fmt.Fprintln(errOut, "metrics endpoint:", err)
					}
				}()
			}

			entries := []struct {
				label string
				make  func() *cobra.Command
			}{
				{"install", func() *cobra.Command { return newInstallCommand(version) }},
				{"status", func() *cobra.Command { return newStatusCommand(version) }},
				{"optimize", func() *cobra.Command { return newOptimizeCommand(version) }},
				{"backup", func() *cobra.Command { return newBackupCommand(version) }},
				{"uninstall", func() *cobra.Command { return newUninstallCommand(version) }},
			}

			for {
				fmt.Fprintln(out)
				for i, e := range entries {
					fmt.Fprintf(out, "  %d) %s\n", i+1, e.label)
				}
				fmt.Fprintln(out, "  q) quit")
				fmt.Fprint(out, "> ")

				if !scanner.Scan() {
					return scanner.Err()
				}
				choice := strings.TrimSpace(scanner.Text())
				if choice == "q" || choice == "quit" {
					return nil
				}

				idx := -1
				for i := range entries {
					if choice == fmt.Sprint(i+1) || choice == entries[i].label {
						idx = i
						break
					}
				}
				if idx < 0 {
					fmt.Fprintln(out, "unrecognized choice:", choice)
					continue
				}

				if err := runSelection(ctx, entries[idx].make()); err != nil {
					// The menu keeps going; surface the failure and loop.
					fmt.Fprintln(errOut, "error:", err)
				}
			}
		},
	}

	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "",
		"serve prometheus metrics on this address for the session")

	return cmd
}

// runSelection executes a freshly built subcommand. The selection
// carries no arguments of its own; without an explicit empty argument
// list cobra would re-parse the process arguments, which still name the
// menu command.
func runSelection(ctx context.Context, sub *cobra.Command) error {
	sub.SetArgs([]string{})
	return sub.ExecuteContext(ctx)
}
