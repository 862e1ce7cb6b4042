package system

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/seedctl/seedctl/pkg/engine"
)

// managerSpec describes one package manager variant: how to detect it and
// how to install a package non-interactively.
type managerSpec struct {
	tag        engine.ToolTag
	binary     string
	refresh    []string
	installArg []string
}

// managerPriority is the fixed probing order used when the OS family is
// unknown: the first manager whose binary is present wins.
var managerPriority = []managerSpec{
	{tag: engine.ToolApt, binary: "apt-get", refresh: []string{"update"}, installArg: []string{"install", "-y"}},
	{tag: engine.ToolDnf, binary: "dnf", installArg: []string{"install", "-y"}},
	{tag: engine.ToolYum, binary: "yum", installArg: []string{"install", "-y"}},
	{tag: engine.ToolPacman, binary: "pacman", refresh: []string{"-Sy"}, installArg: []string{"-S", "--noconfirm"}},
	{tag: engine.ToolZypper, binary: "zypper", installArg: []string{"install", "-y"}},
	{tag: engine.ToolApk, binary: "apk", refresh: []string{"update"}, installArg: []string{"add"}},
}

// familyManagers maps each known OS family to its native manager tag.
var familyManagers = map[engine.OSFamily]engine.ToolTag{
	engine.OSFamilyDebian: engine.ToolApt,
	engine.OSFamilyRHEL:   engine.ToolDnf,
	engine.OSFamilyArch:   engine.ToolPacman,
	engine.OSFamilySuse:   engine.ToolZypper,
	engine.OSFamilyAlpine: engine.ToolApk,
}

// HostPackageInstaller implements PackageInstaller over the host's
// native package manager.
type HostPackageInstaller struct {
	runner    Runner
	mgr       managerSpec
	refreshed bool
	log       zerolog.Logger
}

// SelectPackageInstaller picks the package manager variant for the
// detected OS family. An unknown family falls back to probing each known
// manager in the fixed priority order apt, dnf, yum, pacman, zypper, apk.
func SelectPackageInstaller(facts *engine.EnvironmentFacts, runner Runner, log zerolog.Logger) (*HostPackageInstaller, error) {
	if tag, ok := familyManagers[facts.OSFamily]; ok {
		for _, mgr := range managerPriority {
			if mgr.tag != tag {
				continue
			}
			// An RHEL host without dnf still carries yum.
			if _, err := runner.LookPath(mgr.binary); err == nil {
				return newHostPackageInstaller(runner, mgr, log), nil
			}
		}
	}

	for _, mgr := range managerPriority {
		if facts.HasTool(mgr.tag) {
			return newHostPackageInstaller(runner, mgr, log), nil
		}
		if _, err := runner.LookPath(mgr.binary); err == nil {
			return newHostPackageInstaller(runner, mgr, log), nil
		}
	}

	return nil, fmt.Errorf("no supported package manager found on this host")
}

func newHostPackageInstaller(runner Runner, mgr managerSpec, log zerolog.Logger) *HostPackageInstaller {
	return &HostPackageInstaller{
		runner: runner,
		mgr:    mgr,
		log:    log.With().Str("component", "pkginstall").Str("manager", mgr.binary).Logger(),
	}
}

// Kind returns the capability tag of the selected package manager.
func (p *HostPackageInstaller) Kind() engine.ToolTag {
	return p.mgr.tag
}

// EnsureTools installs the packages backing any tool whose binary is not
// already present. Tools with an empty package name are probe-only and
// never installed.
func (p *HostPackageInstaller) EnsureTools(ctx context.Context, tools []Tool) error {
	missing := make([]string, 0, len(tools))
	for _, tool := range tools {
		if _, err := p.runner.LookPath(tool.Binary); err == nil {
			continue
		}
		if tool.Package == "" {
			p.log.Debug().Str("tool", tool.Binary).Msg("missing tool has no package mapping, skipping")
			continue
		}
		missing = append(missing, tool.Package)
	}

	if len(missing) == 0 {
		return nil
	}

	if len(p.mgr.refresh) > 0 && !p.refreshed {
		if _, err := p.runner.Run(ctx, p.mgr.binary, p.mgr.refresh...); err != nil {
			return fmt.Errorf("failed to refresh package index: %w", err)
		}
		p.refreshed = true
	}

	p.log.Info().Strs("packages", missing).Msg("installing missing packages")
	args := append(append([]string{}, p.mgr.installArg...), missing...)
	if _, err := p.runner.Run(ctx, p.mgr.binary, args...); err != nil {
		return fmt.Errorf("failed to install packages: %w", err)
	}

	return nil
}
