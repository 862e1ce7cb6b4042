package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/seedctl/seedctl/pkg/actions"
	"github.com/seedctl/seedctl/pkg/config"
	"github.com/seedctl/seedctl/pkg/engine"
	"github.com/seedctl/seedctl/pkg/lockfile"
	"github.com/seedctl/seedctl/pkg/probe"
	"github.com/seedctl/seedctl/pkg/stores"
	"github.com/seedctl/seedctl/pkg/system"
	"github.com/seedctl/seedctl/pkg/telemetry"
)

// sharedMetrics, when set, replaces the per-invocation registry so one
// scrape endpoint observes every selection of a menu session.
var sharedMetrics *telemetry.Metrics

// app holds the wired collaborators one command invocation uses. Wiring
// happens once per invocation; every command sees the same construction
// path.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	runner  system.Runner
	prober  *probe.Prober
	control *system.InitServiceController
	sysctl  *system.SysctlDropIn
	svc     *system.UnitServiceInstaller
	store   *stores.SQLiteStore
	marker  *stores.MarkerFile
	engine  *engine.Engine
	metrics *telemetry.Metrics
}

// newApp loads configuration and wires the full object graph. The probe
// snapshot is deferred to the individual command: wiring must not touch
// host state.
func newApp(ctx context.Context, version string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, usageErr(err)
	}

	tcfg := telemetry.DefaultConfig(version)
	if verbose {
		tcfg.Logging.Level = "debug"
	}
	log, err := telemetry.NewLogger(tcfg.Logging)
	if err != nil {
		return nil, err
	}

	runner := system.NewExecRunner()

	sysctl := system.NewSysctlDropIn(cfg.Paths.SysctlDropIn, cfg.Tuning, runner, log)

	prober := probe.New(probe.Config{
		DaemonBinary:   cfg.Daemon.Binary,
		ProcessName:    cfg.Daemon.Process,
		ServiceName:    cfg.Daemon.Service,
		ServiceAccount: cfg.Daemon.Account,
		SettingsPath:   cfg.Daemon.Settings,
		SysctlMatcher:  sysctl,
	}, runner, log)

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Paths.Database})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		log:    log,
		runner: runner,
		prober: prober,
		sysctl: sysctl,
		store:  store,
		marker: stores.NewMarkerFile(cfg.Paths.Marker),
	}
	if sharedMetrics != nil {
		a.metrics = sharedMetrics
	} else {
		a.metrics = telemetry.NewMetrics(tcfg.Metrics)
	}
	a.svc = system.NewUnitServiceInstaller(system.ServiceConfig{
		Service:     cfg.Daemon.Service,
		Description: cfg.Daemon.Description,
		User:        cfg.Daemon.Account,
		Args:        cfg.Daemon.Args,
	}, runner, log)

	return a, nil
}

// buildEngine finishes wiring against a probe snapshot: the package
// installer variant depends on the detected OS family.
func (a *app) buildEngine(facts *engine.EnvironmentFacts) error {
	pkgs, err := system.SelectPackageInstaller(facts, a.runner, a.log)
	if err != nil {
		return err
	}

	a.control = system.NewInitServiceController(
		a.cfg.Daemon.Service, a.cfg.Daemon.Process, facts.InitSystem, a.runner, a.log)

	steps := make([]system.BuildStep, 0, len(a.cfg.Build.Steps))
	for _, s := range a.cfg.Build.Steps {
		steps = append(steps, system.BuildStep{Name: s.Cmd, Args: s.Args})
	}
	fetcher := system.NewSourceFetcher(system.FetcherConfig{
		Mirrors:     a.cfg.Build.Mirrors,
		WorkDir:     a.cfg.Build.WorkDir,
		InstallPath: a.cfg.Build.InstallPath,
		BuildRecipe: steps,
		MinBytes:    a.cfg.Build.MinArtifactBytes,
	}, a.runner, a.log)

	registry, err := actions.NewRegistry(actions.Deps{
		Packages:       pkgs,
		Fetcher:        fetcher,
		Services:       a.svc,
		Control:        a.control,
		Accounts:       system.NewSystemAccountManager(a.runner, a.log),
		Credential:     system.NewSettingsCredentialStore(a.cfg.Daemon.Settings, a.control, a.log),
		Sysctl:         a.sysctl,
		Runtime:        system.NewSettingsInitializer(a.cfg.Daemon.Settings, a.cfg.Settings, a.cfg.Daemon.Account, a.runner, a.log),
		BuildTools:     a.cfg.BuildToolsFor(facts.OSFamily),
		BinaryPath:     a.cfg.Build.InstallPath,
		Account:        a.cfg.Daemon.Account,
		AccountHome:    a.cfg.Daemon.AccountHome,
		PasswordLength: a.cfg.Desired.Credential.Length,
	})
	if err != nil {
		return err
	}

	locker := lockfile.New(a.cfg.Paths.LockFile, a.log)
	eng, err := engine.New(registry, locker, a.store, a.metrics, a.log)
	if err != nil {
		return err
	}
	a.engine = eng
	return nil
}

// close releases resources held by the invocation.
func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close run database")
		}
	}
}

// printSummary renders the per-action results of a run.
func (a *app) printSummary(run *engine.ConvergenceRun) {
	for _, res := range run.Results {
		line := fmt.Sprintf("  %-28s %s", res.Name, res.Status)
		if res.Reason != "" {
			line += " (" + res.Reason + ")"
		}
		fmt.Println(line)
	}
	s := run.Summary()
	fmt.Printf("outcome: %s (%d applied, %d satisfied, %d skipped, %d failed)\n",
		run.Outcome, s.Succeeded, s.AlreadySatisfied, s.Skipped, s.Failed)
}
