package system

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/seedctl/seedctl/pkg/engine"
)

func testServiceInstaller(t *testing.T) (*UnitServiceInstaller, *recordingRunner, string) {
	t.Helper()
	dir := t.TempDir()
	runner := &recordingRunner{}
	inst := NewUnitServiceInstaller(ServiceConfig{
		Service:     "transmission-daemon",
		Description: "Transmission BitTorrent Daemon",
		User:        "transmission",
		Args:        "--foreground",
		SystemdDir:  filepath.Join(dir, "systemd"),
		InitDir:     filepath.Join(dir, "init.d"),
	}, runner, zerolog.Nop())
	os.MkdirAll(filepath.Join(dir, "systemd"), 0o755)
	os.MkdirAll(filepath.Join(dir, "init.d"), 0o755)
	return inst, runner, dir
}

func TestInstallSystemdUnit(t *testing.T) {
	inst, runner, dir := testServiceInstaller(t)

	err := inst.Install(context.Background(), engine.InitSystemd, "/usr/local/bin/transmission-daemon")
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	unit, err := os.ReadFile(filepath.Join(dir, "systemd", "transmission-daemon.service"))
	if err != nil {
		t.Fatalf("unit file missing: %v", err)
	}
	content := string(unit)
	for _, want := range []string{
		"Description=Transmission BitTorrent Daemon",
		"User=transmission",
		"ExecStart=/usr/local/bin/transmission-daemon --foreground",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("unit missing %q:\n%s", want, content)
		}
	}

	var reloaded, enabled bool
	for _, cmd := range runner.commands {
		if cmd[0] == "systemctl" && cmd[1] == "daemon-reload" {
			reloaded = true
		}
		if cmd[0] == "systemctl" && cmd[1] == "enable" {
			enabled = true
		}
	}
	if !reloaded || !enabled {
		t.Errorf("systemctl daemon-reload/enable not invoked: %v", runner.commands)
	}
}

func TestInstallOpenRCScriptIsExecutable(t *testing.T) {
	inst, _, dir := testServiceInstaller(t)

	err := inst.Install(context.Background(), engine.InitOpenRC, "/usr/local/bin/transmission-daemon")
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "init.d", "transmission-daemon"))
	if err != nil {
		t.Fatalf("init script missing: %v", err)
	}
	if info.Mode()&0o111 == 0 {
		t.Errorf("init script not executable: %v", info.Mode())
	}
}

func TestInstallUnknownInitSystemFails(t *testing.T) {
	inst, _, _ := testServiceInstaller(t)

	err := inst.Install(context.Background(), engine.InitUnknown, "/usr/local/bin/d")
	if err == nil {
		t.Fatal("expected install on unknown init system to fail")
	}
}

func TestInstallBacksUpExistingDescriptor(t *testing.T) {
	inst, _, dir := testServiceInstaller(t)
	existing := filepath.Join(dir, "systemd", "transmission-daemon.service")
	if err := os.WriteFile(existing, []byte("old unit\n"), 0o644); err != nil {
		t.Fatalf("failed to seed descriptor: %v", err)
	}

	if err := inst.Install(context.Background(), engine.InitSystemd, "/bin/d"); err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	entries, _ := os.ReadDir(filepath.Join(dir, "systemd"))
	var sawBackup bool
	for _, e := range entries {
		if strings.Contains(e.Name(), ".bak.") {
			sawBackup = true
		}
	}
	if !sawBackup {
		t.Error("previous descriptor was not backed up")
	}
}

func TestUninstallRemovesDescriptor(t *testing.T) {
	inst, runner, dir := testServiceInstaller(t)
	path := filepath.Join(dir, "systemd", "transmission-daemon.service")
	os.WriteFile(path, []byte("unit\n"), 0o644)

	if err := inst.Uninstall(context.Background(), engine.InitSystemd); err != nil {
		t.Fatalf("Uninstall failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("descriptor still present after uninstall")
	}

	var disabled bool
	for _, cmd := range runner.commands {
		if cmd[0] == "systemctl" && cmd[1] == "disable" {
			disabled = true
		}
	}
	if !disabled {
		t.Errorf("service not disabled: %v", runner.commands)
	}
}
