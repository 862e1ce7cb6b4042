// Package probe inspects the host and reports environment facts: OS
// family, init system, installed daemon version, running state, and the
// set of available capability tools. All queries are read-only; a missing
// tool or unrecognized identifier is a fact, never an error.
package probe

import (
	"context"
	"encoding/json"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seedctl/seedctl/pkg/engine"
	"github.com/seedctl/seedctl/pkg/system"
)

// versionPattern extracts a dotted version from daemon --version output.
var versionPattern = regexp.MustCompile(`(\d+\.\d+(?:\.\d+)?)`)

// toolBinaries maps each capability tag to the binary that proves it.
var toolBinaries = map[engine.ToolTag]string{
	engine.ToolApt:          "apt-get",
	engine.ToolDnf:          "dnf",
	engine.ToolYum:          "yum",
	engine.ToolPacman:       "pacman",
	engine.ToolZypper:       "zypper",
	engine.ToolApk:          "apk",
	engine.ToolJq:           "jq",
	engine.ToolOpenSSL:      "openssl",
	engine.ToolCheckinstall: "checkinstall",
	engine.ToolBuildChain:   "make",
}

// Config tells the prober what to look for.
type Config struct {
	// DaemonBinary is the daemon executable name.
	DaemonBinary string

	// ProcessName is the daemon process name for liveness checks.
	ProcessName string

	// ServiceName is the init-system service name.
	ServiceName string

	// ServiceAccount is the daemon's system account.
	ServiceAccount string

	// SettingsPath is the daemon's runtime settings file.
	SettingsPath string

	// SysctlMatcher reports whether network tuning is already applied.
	// Nil means tuning is not managed and reported as applied.
	SysctlMatcher interface{ Matches() bool }

	// Root prefixes absolute detection paths, for tests. Empty means /.
	Root string
}

// Prober collects an EnvironmentFacts snapshot.
type Prober struct {
	cfg    Config
	runner system.Runner
	log    zerolog.Logger
}

// New creates a prober.
func New(cfg Config, runner system.Runner, log zerolog.Logger) *Prober {
	return &Prober{
		cfg:    cfg,
		runner: runner,
		log:    log.With().Str("component", "probe").Logger(),
	}
}

// Snapshot captures the host environment. It is side-effect-free and
// never fails: inconclusive detection degrades to unknown facts that
// downstream logic handles explicitly.
func (p *Prober) Snapshot(ctx context.Context) *engine.EnvironmentFacts {
	facts := &engine.EnvironmentFacts{
		OSFamily:    p.osFamily(),
		InitSystem:  p.initSystem(),
		Tools:       p.tools(),
		CollectedAt: time.Now(),
	}

	facts.InstalledVersion = p.installedVersion(ctx)
	facts.Running = p.running(ctx, facts.InitSystem)
	facts.ServiceInstalled = p.serviceInstalled(ctx, facts.InitSystem)
	facts.AccountExists = p.accountExists()
	facts.ConfigInitialized = p.configInitialized()
	facts.TuningApplied = p.cfg.SysctlMatcher == nil || p.cfg.SysctlMatcher.Matches()

	p.log.Debug().
		Str("os_family", string(facts.OSFamily)).
		Str("init_system", string(facts.InitSystem)).
		Str("installed_version", facts.InstalledVersion).
		Bool("running", facts.Running).
		Msg("captured environment snapshot")

	return facts
}

func (p *Prober) path(elem ...string) string {
	return filepath.Join(append([]string{p.cfg.Root, "/"}, elem...)...)
}

func (p *Prober) osFamily() engine.OSFamily {
	for _, candidate := range []string{"etc/os-release", "usr/lib/os-release"} {
		data, err := os.ReadFile(p.path(candidate))
		if err != nil {
			continue
		}
		return ParseOSRelease(string(data))
	}
	return engine.OSFamilyUnknown
}

// initSystem detects the service manager. systemd is checked first via
// its runtime directory, then OpenRC markers, then the SysV init
// directory.
func (p *Prober) initSystem() engine.InitSystem {
	if info, err := os.Stat(p.path("run/systemd/system")); err == nil && info.IsDir() {
		return engine.InitSystemd
	}
	if _, err := os.Stat(p.path("run/openrc")); err == nil {
		return engine.InitOpenRC
	}
	if _, err := p.runner.LookPath("openrc"); err == nil {
		return engine.InitOpenRC
	}
	if info, err := os.Stat(p.path("etc/init.d")); err == nil && info.IsDir() {
		return engine.InitSysV
	}
	return engine.InitUnknown
}

func (p *Prober) tools() map[engine.ToolTag]bool {
	tools := make(map[engine.ToolTag]bool, len(toolBinaries))
	for tag, binary := range toolBinaries {
		_, err := p.runner.LookPath(binary)
		tools[tag] = err == nil
	}
	return tools
}

func (p *Prober) installedVersion(ctx context.Context) string {
	if _, err := p.runner.LookPath(p.cfg.DaemonBinary); err != nil {
		return ""
	}
	out, err := p.runner.Run(ctx, p.cfg.DaemonBinary, "--version")
	if err != nil && out == "" {
		// Some daemons print the version and exit non-zero.
		return ""
	}
	if m := versionPattern.FindString(out); m != "" {
		return m
	}
	return ""
}

func (p *Prober) running(ctx context.Context, initSystem engine.InitSystem) bool {
	switch initSystem {
	case engine.InitSystemd:
		out, err := p.runner.Run(ctx, "systemctl", "is-active", p.cfg.ServiceName)
		if err == nil && out == "active" {
			return true
		}
	case engine.InitOpenRC:
		if _, err := p.runner.Run(ctx, "rc-service", p.cfg.ServiceName, "status"); err == nil {
			return true
		}
	}
	// Fall back to the process table; also covers daemons started by
	// hand outside the init system.
	_, err := p.runner.Run(ctx, "pgrep", "-x", p.cfg.ProcessName)
	return err == nil
}

func (p *Prober) serviceInstalled(ctx context.Context, initSystem engine.InitSystem) bool {
	switch initSystem {
	case engine.InitSystemd:
		out, err := p.runner.Run(ctx, "systemctl", "is-enabled", p.cfg.ServiceName)
		if err != nil {
			return false
		}
		return out == "enabled" || out == "static"
	case engine.InitOpenRC, engine.InitSysV:
		_, err := os.Stat(p.path("etc/init.d", p.cfg.ServiceName))
		return err == nil
	default:
		return false
	}
}

func (p *Prober) accountExists() bool {
	if p.cfg.ServiceAccount == "" {
		return false
	}
	_, err := user.Lookup(p.cfg.ServiceAccount)
	return err == nil
}

func (p *Prober) configInitialized() bool {
	data, err := os.ReadFile(p.cfg.SettingsPath)
	if err != nil {
		return false
	}
	var settings map[string]any
	return json.Unmarshal(data, &settings) == nil
}

// DescribeTools renders the observed tool set as a sorted summary line
// for the status view.
func DescribeTools(facts *engine.EnvironmentFacts) string {
	present := make([]string, 0, len(facts.Tools))
	for tag, ok := range facts.Tools {
		if ok {
			present = append(present, string(tag))
		}
	}
	if len(present) == 0 {
		return "none"
	}
	// Map iteration order is random; sort for stable output.
	sort.Strings(present)
	return strings.Join(present, ", ")
}
