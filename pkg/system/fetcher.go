package system

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// MinArtifactBytes is the minimum plausible size of a source tarball.
// Anything smaller is an error page or a truncated download and is
// treated as corrupt.
const MinArtifactBytes int64 = 1 << 20

// BuildStep is one command of the build recipe, run inside the extracted
// source directory.
type BuildStep struct {
	Name string
	Args []string
}

// FetcherConfig configures the source artifact fetcher.
type FetcherConfig struct {
	// Mirrors are URL templates tried in order; "{version}" is replaced
	// with the target version. First success wins.
	Mirrors []string

	// WorkDir is where tarballs are downloaded and extracted.
	WorkDir string

	// InstallPath is the path of the installed daemon binary after a
	// successful build.
	InstallPath string

	// BuildRecipe is the command sequence that configures, compiles and
	// installs the extracted source.
	BuildRecipe []BuildStep

	// MinBytes overrides MinArtifactBytes when positive.
	MinBytes int64

	// RequestTimeout bounds a single download attempt.
	RequestTimeout time.Duration
}

// SourceFetcher downloads and builds the daemon from an ordered mirror
// list.
type SourceFetcher struct {
	cfg    FetcherConfig
	client *http.Client
	runner Runner
	log    zerolog.Logger
}

// NewSourceFetcher creates a fetcher over the given mirror configuration.
func NewSourceFetcher(cfg FetcherConfig, runner Runner, log zerolog.Logger) *SourceFetcher {
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = MinArtifactBytes
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Minute
	}
	return &SourceFetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		runner: runner,
		log:    log.With().Str("component", "fetcher").Logger(),
	}
}

// FetchAndBuild downloads the source for version from the first mirror
// that serves a plausible artifact, extracts it, and runs the build
// recipe. The attempt count is bounded by the mirror list.
func (f *SourceFetcher) FetchAndBuild(ctx context.Context, version string) (string, error) {
	if len(f.cfg.Mirrors) == 0 {
		return "", fmt.Errorf("no source mirrors configured")
	}

	var lastErr error
	for _, mirror := range f.cfg.Mirrors {
		url := strings.ReplaceAll(mirror, "{version}", version)

		tarball, err := f.download(ctx, url)
		if err != nil {
			f.log.Warn().Err(err).Str("url", url).Msg("mirror failed, trying next")
			lastErr = err
			continue
		}

		path, err := f.build(ctx, tarball)
		if err != nil {
			f.log.Warn().Err(err).Str("url", url).Msg("build from mirror artifact failed")
			lastErr = err
			continue
		}

		return path, nil
	}

	return "", fmt.Errorf("all %d mirrors failed: %w", len(f.cfg.Mirrors), lastErr)
}

// download fetches the artifact to the work directory and verifies it
// clears the minimum size threshold.
func (f *SourceFetcher) download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := os.MkdirAll(f.cfg.WorkDir, 0o755); err != nil {
		return "", err
	}

	dest := filepath.Join(f.cfg.WorkDir, filepath.Base(req.URL.Path))
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}

	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return "", err
	}

	if n < f.cfg.MinBytes {
		os.Remove(dest)
		return "", fmt.Errorf("artifact is %d bytes, below the %d byte minimum, treating as corrupt", n, f.cfg.MinBytes)
	}

	f.log.Info().Str("url", url).Int64("bytes", n).Msg("downloaded source artifact")
	return dest, nil
}

// build extracts the tarball and runs the configured recipe inside the
// extracted directory.
func (f *SourceFetcher) build(ctx context.Context, tarball string) (string, error) {
	srcDir := filepath.Base(tarball)
	for _, ext := range []string{".gz", ".xz", ".bz2", ".tar"} {
		srcDir = strings.TrimSuffix(srcDir, ext)
	}
	extractDir := filepath.Join(f.cfg.WorkDir, srcDir)

	if _, err := f.runner.Run(ctx, "tar", "-xf", tarball, "-C", f.cfg.WorkDir); err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", tarball, err)
	}

	for _, step := range f.cfg.BuildRecipe {
		args := make([]string, 0, len(step.Args))
		for _, a := range step.Args {
			args = append(args, strings.ReplaceAll(a, "{srcdir}", extractDir))
		}
		f.log.Info().Str("step", step.Name).Msg("running build step")
		if _, err := f.runner.Run(ctx, step.Name, args...); err != nil {
			return "", fmt.Errorf("build step %s failed: %w", step.Name, err)
		}
	}

	if _, err := os.Stat(f.cfg.InstallPath); err != nil {
		return "", fmt.Errorf("build completed but %s is missing: %w", f.cfg.InstallPath, err)
	}

	return f.cfg.InstallPath, nil
}
