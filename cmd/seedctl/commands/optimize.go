package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seedctl/seedctl/pkg/lockfile"
)

func newOptimizeCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Apply kernel network tuning for the daemon",
		Long: `Write the configured sysctl parameters to the tuning drop-in and
reload them. A drop-in that already matches the configured values is
left untouched. The previous drop-in, if any, is backed up alongside.`,
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

			if a.sysctl.Matches() {
				fmt.Println("network tuning already applied")
				return nil
			}

			if err := a.sysctl.Apply(ctx); err != nil {
				return err
			}
			fmt.Println("network tuning applied")
			return nil
		},
	}

	return cmd
}
