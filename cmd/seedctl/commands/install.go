package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/seedctl/seedctl/pkg/engine"
	"github.com/seedctl/seedctl/pkg/stores"
)

func newInstallCommand(version string) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Converge the host to the desired daemon deployment",
		Long: `Probe the host, compute the set of unsatisfied installation steps,
and apply them in dependency order under the host lock.

A converged host yields an empty plan and exits immediately. A partial
failure leaves completed steps in place; re-running resumes from the
first unsatisfied step.`,
		Example: `  # Converge with the built-in defaults
  seedctl install

  # Converge against a site configuration
  seedctl install --config /etc/seedctl/seedctl.yaml

  # Show the plan without applying it
  seedctl install --dry-run`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, version)
			if err != nil {
				return err
			}
			defer a.close()

			facts := a.prober.Snapshot(ctx)
			if err := a.buildEngine(facts); err != nil {
				return err
			}

			desired := a.cfg.DesiredState()
			plan, err := a.engine.Plan(facts, desired)
			if err != nil {
				return err
			}

			if plan.Empty() {
				fmt.Println("host is already converged, nothing to do")
			}

			if dryRun {
				for _, name := range plan.Actions {
					fmt.Println("  would apply:", name)
				}
				return nil
			}

			run, err := a.engine.Apply(ctx, plan)
			if err != nil {
				return err
			}

			a.printSummary(run)

			switch run.Outcome {
			case engine.OutcomeConverged, engine.OutcomeNoop:
				if err := a.marker.Save(stores.Marker{
					Version:    markerVersion(a.prober.Snapshot(ctx), desired),
					ConfigHash: a.cfg.Hash(),
				}); err != nil {
					log.Warn().Err(err).Msg("converged but failed to write install marker")
				}
				return nil
			default:
				return fmt.Errorf("convergence run ended with outcome %s", run.Outcome)
			}
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan without applying it")

	return cmd
}

// markerVersion prefers the version observed on the host: the desired
// version may be the "latest" placeholder rather than a real one.
func markerVersion(facts *engine.EnvironmentFacts, desired engine.DesiredState) string {
	if facts != nil && facts.InstalledVersion != "" {
		return facts.InstalledVersion
	}
	return desired.Version
}
