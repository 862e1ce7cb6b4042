package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seedctl/seedctl/pkg/lockfile"
	"github.com/seedctl/seedctl/pkg/system"
)

func newUninstallCommand(version string) *cobra.Command {
	var keepTuning bool

	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the managed daemon deployment",
		Long: `Stop the daemon, disable and remove its service descriptor, remove
the network tuning drop-in, and clear the install marker.

The daemon's settings and downloads are left in place; only what seedctl
itself established is removed. Uninstalling an unmanaged host is a
no-op.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, version)
			if err != nil {
				return err
			}
			defer a.close()

			handle, err := lockfile.New(a.cfg.Paths.LockFile, a.log).Acquire(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = handle.Release() }()

			facts := a.prober.Snapshot(ctx)
			control := system.NewInitServiceController(
				a.cfg.Daemon.Service, a.cfg.Daemon.Process, facts.InitSystem, a.runner, a.log)

			if facts.Running {
				if err := control.Stop(ctx); err != nil {
					return fmt.Errorf("failed to stop daemon: %w", err)
				}
				fmt.Println("stopped", a.cfg.Daemon.Service)
			}

			if facts.ServiceInstalled {
				if err := a.svc.Uninstall(ctx, facts.InitSystem); err != nil {
					return err
				}
				fmt.Println("removed service descriptor")
			}

			if !keepTuning {
				if err := a.sysctl.Remove(ctx); err != nil {
					return err
				}
			}

			if err := a.marker.Clear(); err != nil {
				return err
			}

			fmt.Println("uninstall complete")
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepTuning, "keep-tuning", false, "leave the network tuning drop-in in place")

	return cmd
}
