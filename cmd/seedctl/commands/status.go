package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seedctl/seedctl/pkg/engine"
	"github.com/seedctl/seedctl/pkg/probe"
	"github.com/seedctl/seedctl/pkg/stores"
)

// statusReport is the JSON form of the status view.
type statusReport struct {
	Facts   *engine.EnvironmentFacts `json:"facts"`
	Marker  *stores.Marker           `json:"marker,omitempty"`
	LastRun *engine.ConvergenceRun   `json:"last_run,omitempty"`
}

func newStatusCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the managed state of this host",
		Long: `Probe the host and report the current environment facts alongside
the install marker and the most recent convergence run. The probe is
read-only; status never changes host state and takes no lock.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, version)
			if err != nil {
				return err
			}
			defer a.close()

			facts := a.prober.Snapshot(ctx)

			marker, err := a.marker.Load()
			if err != nil {
				return err
			}
			lastRun, err := a.store.LastRun(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(statusReport{Facts: facts, Marker: marker, LastRun: lastRun})
			}

			fmt.Printf("os family:        %s\n", facts.OSFamily)
			fmt.Printf("init system:      %s\n", facts.InitSystem)
			if facts.InstalledVersion != "" {
				fmt.Printf("daemon version:   %s\n", facts.InstalledVersion)
			} else {
				fmt.Printf("daemon version:   not installed\n")
			}
			fmt.Printf("daemon running:   %t\n", facts.Running)
			fmt.Printf("service enabled:  %t\n", facts.ServiceInstalled)
			fmt.Printf("account present:  %t\n", facts.AccountExists)
			fmt.Printf("config present:   %t\n", facts.ConfigInitialized)
			fmt.Printf("tuning applied:   %t\n", facts.TuningApplied)
			fmt.Printf("tools:            %s\n", probe.DescribeTools(facts))

			if marker != nil {
				fmt.Printf("\nmanaged: yes (version %s, converged %s)\n",
					marker.Version, marker.ConvergedAt.Format("2006-01-02 15:04:05"))
			} else {
				fmt.Printf("\nmanaged: no\n")
			}

			if lastRun != nil {
				s := lastRun.Summary()
				fmt.Printf("last run: %s at %s (%d applied, %d satisfied, %d skipped, %d failed)\n",
					lastRun.Outcome,
					lastRun.StartedAt.Format("2006-01-02 15:04:05"),
					s.Succeeded, s.AlreadySatisfied, s.Skipped, s.Failed)
			} else {
				fmt.Printf("last run: none recorded\n")
			}

			return nil
		},
	}

	return cmd
}
