package system

import (
	"context"

	"github.com/seedctl/seedctl/pkg/engine"
)

// Tool names a host capability the installer may need, together with the
// binary that proves its presence and the package that provides it for
// the selected package manager.
type Tool struct {
	Tag     engine.ToolTag
	Binary  string
	Package string
}

// PackageInstaller installs missing OS packages. Implementations are
// idempotent: tools already present are never reinstalled.
type PackageInstaller interface {
	// Kind returns the capability tag of the underlying package manager.
	Kind() engine.ToolTag

	// EnsureTools installs the packages backing any tool whose binary is
	// not already on PATH.
	EnsureTools(ctx context.Context, tools []Tool) error
}

// ArtifactFetcher downloads, verifies, extracts and builds the daemon
// from source.
type ArtifactFetcher interface {
	// FetchAndBuild tries each configured mirror in order and returns
	// the installed binary path on first success. Artifacts under the
	// minimum size threshold are treated as corrupt and the next mirror
	// is tried.
	FetchAndBuild(ctx context.Context, version string) (string, error)
}

// ServiceInstaller writes and enables the service descriptor variant for
// the detected init system.
type ServiceInstaller interface {
	Install(ctx context.Context, initSystem engine.InitSystem, binaryPath string) error
	Uninstall(ctx context.Context, initSystem engine.InitSystem) error
}

// ServiceController starts and stops the daemon through the detected init
// system.
type ServiceController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsActive(ctx context.Context) bool
}

// AccountManager manages the daemon's system service account.
type AccountManager interface {
	Exists(ctx context.Context, name string) bool
	Create(ctx context.Context, name, home string) error
}

// CredentialStore rewrites the persisted RPC credential, preserving all
// other settings. Writes are refused while the daemon runs: a running
// daemon overwrites the settings file at its own shutdown, discarding the
// edit.
type CredentialStore interface {
	SetPassword(ctx context.Context, plaintext string) error
}

// SysctlTuner applies kernel network tuning parameters. The parameter
// values are domain facts passed as configuration, not computed.
type SysctlTuner interface {
	// Matches reports whether the persisted drop-in already holds the
	// configured values.
	Matches() bool
	Apply(ctx context.Context) error
	Remove(ctx context.Context) error
}

// RuntimeConfigurator seeds the daemon's settings file with the required
// fields when absent.
type RuntimeConfigurator interface {
	Initialized() bool
	Initialize(ctx context.Context) error
}
