package commands

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newBackupCommand(version string) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the daemon settings and seedctl state",
		Long: `Write a timestamped tar.gz archive containing the daemon settings
file, the run history database, and the install marker. Files that do
not exist yet are skipped, so backup works on a partially converged
host.`,
		Example: `  # Back up into the configured backup directory
  seedctl backup

  # Back up somewhere else
  seedctl backup --out /mnt/backups`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, version)
			if err != nil {
				return err
			}
			defer a.close()

			dir := outDir
			if dir == "" {
				dir = a.cfg.Paths.BackupDir
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create backup directory: %w", err)
			}

			name := fmt.Sprintf("seedctl-backup-%s.tar.gz", time.Now().Format("20060102T150405"))
			path := filepath.Join(dir, name)

			sources := []string{
				a.cfg.Daemon.Settings,
				a.cfg.Paths.Database,
				a.cfg.Paths.Marker,
			}

			archived, err := writeArchive(path, sources)
			if err != nil {
				return err
			}
			if archived == 0 {
				_ = os.Remove(path)
				fmt.Println("nothing to back up yet")
				return nil
			}

			fmt.Printf("wrote %s (%d files)\n", path, archived)
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "backup output directory (default: configured backup dir)")

	return cmd
}

// writeArchive tars the existing sources into a gzip archive at path and
// returns how many files were included.
func writeArchive(path string, sources []string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	archived := 0
	for _, src := range sources {
		info, err := os.Stat(src)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return archived, fmt.Errorf("failed to stat %s: %w", src, err)
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return archived, fmt.Errorf("failed to build header for %s: %w", src, err)
		}
		// Store the full path, rooted, so restores are unambiguous.
		hdr.Name = strings.TrimPrefix(filepath.ToSlash(src), "/")

		if err := tw.WriteHeader(hdr); err != nil {
			return archived, fmt.Errorf("failed to write header for %s: %w", src, err)
		}

		in, err := os.Open(src)
		if err != nil {
			return archived, fmt.Errorf("failed to open %s: %w", src, err)
		}
		_, err = io.Copy(tw, in)
		in.Close()
		if err != nil {
			return archived, fmt.Errorf("failed to archive %s: %w", src, err)
		}
		archived++
	}

	if err := tw.Close(); err != nil {
		return archived, fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return archived, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return archived, nil
}
