package system

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/seedctl/seedctl/pkg/engine"
)

const systemdUnitTemplate = `[Unit]
Description={{.Description}}
After=network.target

[Service]
Type=simple
User={{.User}}
ExecStart={{.BinaryPath}} {{.Args}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

const openrcScriptTemplate = `#!/sbin/openrc-run

name="{{.Service}}"
description="{{.Description}}"
command="{{.BinaryPath}}"
command_args="{{.Args}}"
command_user="{{.User}}"
command_background=true
pidfile="/run/{{.Service}}.pid"

depend() {
	need net
}
`

const sysvScriptTemplate = `#!/bin/sh
### BEGIN INIT INFO
# Provides:          {{.Service}}
# Required-Start:    $network $remote_fs
# Required-Stop:     $network $remote_fs
# Default-Start:     2 3 4 5
# Default-Stop:      0 1 6
# Short-Description: {{.Description}}
### END INIT INFO

DAEMON={{.BinaryPath}}
DAEMON_ARGS="{{.Args}}"
USER={{.User}}
NAME={{.Service}}
PIDFILE=/var/run/$NAME.pid

case "$1" in
  start)
	start-stop-daemon --start --quiet --background --make-pidfile \
		--pidfile $PIDFILE --chuid $USER --exec $DAEMON -- $DAEMON_ARGS
	;;
  stop)
	start-stop-daemon --stop --quiet --pidfile $PIDFILE
	rm -f $PIDFILE
	;;
  restart)
	$0 stop
	$0 start
	;;
  status)
	start-stop-daemon --status --pidfile $PIDFILE
	;;
  *)
	echo "Usage: $NAME {start|stop|restart|status}" >&2
	exit 3
	;;
esac
`

// ServiceConfig describes the daemon service to install.
type ServiceConfig struct {
	// Service is the init-system service name.
	Service string

	// Description is the human-readable unit description.
	Description string

	// User is the service account the daemon runs as.
	User string

	// Args are the daemon's command-line arguments.
	Args string

	// SystemdDir, InitDir override the descriptor directories, mainly
	// for tests. Defaults: /etc/systemd/system, /etc/init.d.
	SystemdDir string
	InitDir    string
}

// UnitServiceInstaller writes and enables the service descriptor variant
// for the detected init system, backing up any existing descriptor first.
type UnitServiceInstaller struct {
	cfg    ServiceConfig
	runner Runner
	log    zerolog.Logger
}

// NewUnitServiceInstaller creates a service installer.
func NewUnitServiceInstaller(cfg ServiceConfig, runner Runner, log zerolog.Logger) *UnitServiceInstaller {
	if cfg.SystemdDir == "" {
		cfg.SystemdDir = "/etc/systemd/system"
	}
	if cfg.InitDir == "" {
		cfg.InitDir = "/etc/init.d"
	}
	return &UnitServiceInstaller{
		cfg:    cfg,
		runner: runner,
		log:    log.With().Str("component", "svcinstall").Logger(),
	}
}

// DescriptorPath returns where the descriptor lives for the given init
// system.
func (s *UnitServiceInstaller) DescriptorPath(initSystem engine.InitSystem) string {
	switch initSystem {
	case engine.InitSystemd:
		return filepath.Join(s.cfg.SystemdDir, s.cfg.Service+".service")
	default:
		return filepath.Join(s.cfg.InitDir, s.cfg.Service)
	}
}

// Install renders the descriptor for the detected init system, writes it
// with a backup of any previous version, and enables the service.
func (s *UnitServiceInstaller) Install(ctx context.Context, initSystem engine.InitSystem, binaryPath string) error {
	var (
		tmplText string
		mode     os.FileMode
	)
	switch initSystem {
	case engine.InitSystemd:
		tmplText, mode = systemdUnitTemplate, 0o644
	case engine.InitOpenRC:
		tmplText, mode = openrcScriptTemplate, 0o755
	case engine.InitSysV:
		tmplText, mode = sysvScriptTemplate, 0o755
	default:
		return fmt.Errorf("cannot install a service descriptor for init system %q", initSystem)
	}

	tmpl, err := template.New("service").Parse(tmplText)
	if err != nil {
		return fmt.Errorf("invalid service template: %w", err)
	}

	var buf bytes.Buffer
	data := struct {
		Service     string
		Description string
		User        string
		Args        string
		BinaryPath  string
	}{s.cfg.Service, s.cfg.Description, s.cfg.User, s.cfg.Args, binaryPath}
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render service descriptor: %w", err)
	}

	path := s.DescriptorPath(initSystem)
	if err := backupFile(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), mode); err != nil {
		return fmt.Errorf("failed to write service descriptor: %w", err)
	}
	s.log.Info().Str("path", path).Str("init", string(initSystem)).Msg("wrote service descriptor")

	return s.enable(ctx, initSystem)
}

// Uninstall disables the service and removes its descriptor.
func (s *UnitServiceInstaller) Uninstall(ctx context.Context, initSystem engine.InitSystem) error {
	switch initSystem {
	case engine.InitSystemd:
		_, _ = s.runner.Run(ctx, "systemctl", "disable", s.cfg.Service)
	case engine.InitOpenRC:
		_, _ = s.runner.Run(ctx, "rc-update", "del", s.cfg.Service, "default")
	case engine.InitSysV:
		_, _ = s.runner.Run(ctx, "update-rc.d", "-f", s.cfg.Service, "remove")
	}

	path := s.DescriptorPath(initSystem)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove service descriptor: %w", err)
	}

	if initSystem == engine.InitSystemd {
		_, _ = s.runner.Run(ctx, "systemctl", "daemon-reload")
	}
	return nil
}

func (s *UnitServiceInstaller) enable(ctx context.Context, initSystem engine.InitSystem) error {
	switch initSystem {
	case engine.InitSystemd:
		if _, err := s.runner.Run(ctx, "systemctl", "daemon-reload"); err != nil {
			return err
		}
		if _, err := s.runner.Run(ctx, "systemctl", "enable", s.cfg.Service); err != nil {
			return fmt.Errorf("failed to enable service: %w", err)
		}
	case engine.InitOpenRC:
		if _, err := s.runner.Run(ctx, "rc-update", "add", s.cfg.Service, "default"); err != nil {
			return fmt.Errorf("failed to enable service: %w", err)
		}
	case engine.InitSysV:
		if _, err := s.runner.Run(ctx, "update-rc.d", s.cfg.Service, "defaults"); err != nil {
			return fmt.Errorf("failed to enable service: %w", err)
		}
	}
	return nil
}

// backupFile copies an existing file aside before it is overwritten, so
// a failed convergence leaves a manual recovery path.
func backupFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s for backup: %w", path, err)
	}

	backup := fmt.Sprintf("%s.bak.%s", path, time.Now().Format("20060102T150405"))
	if err := os.WriteFile(backup, data, 0o600); err != nil {
		return fmt.Errorf("failed to back up %s: %w", path, err)
	}
	return nil
}
