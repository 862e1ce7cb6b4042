// Package actions defines the installer's action catalog: the named,
// idempotent steps the convergence engine plans and applies. Each action
// declares what state it establishes through its precondition and what
// it changes through its effect; the host-facing work is delegated to
// the system collaborators.
package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/seedctl/seedctl/pkg/engine"
	"github.com/seedctl/seedctl/pkg/system"
)

// Action names in registration order. Registration order is also the
// tie-break order the planner uses, so this sequence is the canonical
// fresh-install order.
const (
	InstallDepsAction       = "install-deps"
	FetchAndBuildAction     = "fetch-and-build"
	CreateAccountAction     = "create-service-account"
	InstallServiceAction    = "install-service-unit"
	InitRuntimeConfigAction = "initialize-runtime-config"
	SetCredentialAction     = "set-credential"
	NetworkTuningAction     = "apply-network-tuning"
)

// DefaultPasswordLength is the generated credential length when the
// desired state asks for a random credential.
const DefaultPasswordLength = 16

// Deps carries the host collaborators and domain parameters the catalog
// closes over.
type Deps struct {
	Packages   system.PackageInstaller
	Fetcher    system.ArtifactFetcher
	Services   system.ServiceInstaller
	Control    system.ServiceController
	Accounts   system.AccountManager
	Credential system.CredentialStore
	Sysctl     system.SysctlTuner
	Runtime    system.RuntimeConfigurator

	// BuildTools are the capability tools the build requires on this
	// host, with the packages that provide them.
	BuildTools []system.Tool

	// BinaryPath is where the built daemon binary is installed.
	BinaryPath string

	// Account is the daemon's service account name.
	Account string

	// AccountHome is the service account's home directory.
	AccountHome string

	// PasswordLength overrides DefaultPasswordLength when positive.
	PasswordLength int
}

// NewRegistry builds the full action catalog. stop-daemon is registered
// first so a stop bracket always precedes the actions it protects in the
// tie-break order.
func NewRegistry(d Deps) (*engine.Registry, error) {
	reg := engine.NewRegistry()

	specs := []engine.ActionSpec{
		stopDaemon(d),
		installDeps(d),
		fetchAndBuild(d),
		createServiceAccount(d),
		installServiceUnit(d),
		initializeRuntimeConfig(d),
		setCredential(d),
		applyNetworkTuning(d),
		startDaemon(d),
	}

	for _, spec := range specs {
		if err := reg.Register(spec); err != nil {
			return nil, err
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// stopDaemon's precondition is deliberately blind to the desired state:
// "satisfied" means the daemon is stopped, so the executor's re-check
// works identically whether the stop was requested or injected as a
// bracket. The planner gates natural inclusion on the desired state.
func stopDaemon(d Deps) engine.ActionSpec {
	return engine.ActionSpec{
		Name: engine.StopDaemonAction,
		Precondition: func(facts *engine.EnvironmentFacts, _ engine.DesiredState) bool {
			return !facts.Running
		},
		Apply: func(ctx context.Context, _ *engine.EnvironmentFacts, _ engine.DesiredState) error {
			return d.Control.Stop(ctx)
		},
		Effect: func(facts *engine.EnvironmentFacts, _ engine.DesiredState) {
			facts.Running = false
		},
		Timeout:    time.Minute,
		Idempotent: true,
	}
}

func installDeps(d Deps) engine.ActionSpec {
	return engine.ActionSpec{
		Name: InstallDepsAction,
		Precondition: func(facts *engine.EnvironmentFacts, _ engine.DesiredState) bool {
			for _, tool := range d.BuildTools {
				if !facts.HasTool(tool.Tag) {
					return false
				}
			}
			return true
		},
		Apply: func(ctx context.Context, _ *engine.EnvironmentFacts, _ engine.DesiredState) error {
			return d.Packages.EnsureTools(ctx, d.BuildTools)
		},
		Effect: func(facts *engine.EnvironmentFacts, _ engine.DesiredState) {
			for _, tool := range d.BuildTools {
				facts.Tools[tool.Tag] = true
			}
		},
		Retries:    1,
		Timeout:    10 * time.Minute,
		Idempotent: true,
	}
}

// fetchAndBuild is satisfied when the installed version matches the
// desired one. "latest" matches any installed version: re-resolving the
// newest upstream release on every run would make a converged host
// un-converged overnight.
func fetchAndBuild(d Deps) engine.ActionSpec {
	return engine.ActionSpec{
		Name:      FetchAndBuildAction,
		DependsOn: []string{InstallDepsAction},
		Precondition: func(facts *engine.EnvironmentFacts, desired engine.DesiredState) bool {
			if desired.Version == "latest" {
				return facts.InstalledVersion != ""
			}
			return facts.InstalledVersion == desired.Version
		},
		Apply: func(ctx context.Context, _ *engine.EnvironmentFacts, desired engine.DesiredState) error {
			_, err := d.Fetcher.FetchAndBuild(ctx, desired.Version)
			return err
		},
		Effect: func(facts *engine.EnvironmentFacts, desired engine.DesiredState) {
			facts.InstalledVersion = desired.Version
		},
		Retries:    1,
		Timeout:    30 * time.Minute,
		Idempotent: true,
	}
}

func createServiceAccount(d Deps) engine.ActionSpec {
	return engine.ActionSpec{
		Name: CreateAccountAction,
		Precondition: func(facts *engine.EnvironmentFacts, _ engine.DesiredState) bool {
			return facts.AccountExists
		},
		Apply: func(ctx context.Context, _ *engine.EnvironmentFacts, _ engine.DesiredState) error {
			return d.Accounts.Create(ctx, d.Account, d.AccountHome)
		},
		Effect: func(facts *engine.EnvironmentFacts, _ engine.DesiredState) {
			facts.AccountExists = true
		},
		Timeout:    time.Minute,
		Idempotent: true,
	}
}

func installServiceUnit(d Deps) engine.ActionSpec {
	return engine.ActionSpec{
		Name:      InstallServiceAction,
		DependsOn: []string{FetchAndBuildAction, CreateAccountAction},
		Precondition: func(facts *engine.EnvironmentFacts, _ engine.DesiredState) bool {
			return facts.ServiceInstalled
		},
		Apply: func(ctx context.Context, facts *engine.EnvironmentFacts, _ engine.DesiredState) error {
			return d.Services.Install(ctx, facts.InitSystem, d.BinaryPath)
		},
		Effect: func(facts *engine.EnvironmentFacts, _ engine.DesiredState) {
			facts.ServiceInstalled = true
		},
		Timeout:    time.Minute,
		Idempotent: true,
	}
}

func initializeRuntimeConfig(d Deps) engine.ActionSpec {
	return engine.ActionSpec{
		Name:      InitRuntimeConfigAction,
		DependsOn: []string{CreateAccountAction},
		Precondition: func(facts *engine.EnvironmentFacts, _ engine.DesiredState) bool {
			return facts.ConfigInitialized
		},
		Apply: func(ctx context.Context, _ *engine.EnvironmentFacts, _ engine.DesiredState) error {
			return d.Runtime.Initialize(ctx)
		},
		Effect: func(facts *engine.EnvironmentFacts, _ engine.DesiredState) {
			facts.ConfigInitialized = true
		},
		Timeout:    time.Minute,
		Idempotent: true,
	}
}

// setCredential rewrites the persisted RPC credential. The settings file
// must exist first, and the daemon must be stopped: a running daemon
// rewrites its settings file at shutdown, silently discarding the edit.
func setCredential(d Deps) engine.ActionSpec {
	return engine.ActionSpec{
		Name:      SetCredentialAction,
		DependsOn: []string{InitRuntimeConfigAction, engine.StopDaemonAction},
		Precondition: func(_ *engine.EnvironmentFacts, desired engine.DesiredState) bool {
			return desired.Credential.Mode == engine.CredentialUnchanged
		},
		Apply: func(ctx context.Context, _ *engine.EnvironmentFacts, desired engine.DesiredState) error {
			plaintext := desired.Credential.Secret
			if desired.Credential.Mode == engine.CredentialGenerate {
				length := d.PasswordLength
				if length <= 0 {
					length = DefaultPasswordLength
				}
				var err error
				plaintext, err = system.GeneratePassword(length)
				if err != nil {
					return fmt.Errorf("failed to generate credential: %w", err)
				}
			}
			return d.Credential.SetPassword(ctx, plaintext)
		},
		RequiresStopped: true,
		Timeout:         time.Minute,
		Idempotent:      true,
	}
}

func applyNetworkTuning(d Deps) engine.ActionSpec {
	return engine.ActionSpec{
		Name: NetworkTuningAction,
		Precondition: func(facts *engine.EnvironmentFacts, _ engine.DesiredState) bool {
			return facts.TuningApplied
		},
		Apply: func(ctx context.Context, _ *engine.EnvironmentFacts, _ engine.DesiredState) error {
			return d.Sysctl.Apply(ctx)
		},
		Effect: func(facts *engine.EnvironmentFacts, _ engine.DesiredState) {
			facts.TuningApplied = true
		},
		Timeout:    time.Minute,
		Idempotent: true,
	}
}

// startDaemon is satisfied when the daemon already runs or was never
// wanted running. It orders after the service unit and credential steps
// when those share a plan, so the daemon starts against its final
// configuration.
func startDaemon(d Deps) engine.ActionSpec {
	return engine.ActionSpec{
		Name:      engine.StartDaemonAction,
		DependsOn: []string{InstallServiceAction, SetCredentialAction},
		Precondition: func(facts *engine.EnvironmentFacts, desired engine.DesiredState) bool {
			return facts.Running || !desired.Running
		},
		Apply: func(ctx context.Context, _ *engine.EnvironmentFacts, _ engine.DesiredState) error {
			return d.Control.Start(ctx)
		},
		Effect: func(facts *engine.EnvironmentFacts, _ engine.DesiredState) {
			facts.Running = true
		},
		Retries:    1,
		Timeout:    time.Minute,
		Idempotent: true,
	}
}
