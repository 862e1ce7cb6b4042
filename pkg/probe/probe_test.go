package probe

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/seedctl/seedctl/pkg/engine"
)

// fakeRunner serves canned command output and a fixed PATH set.
type fakeRunner struct {
	present map[string]bool
	outputs map[string]string
	fails   map[string]bool
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	key := name
	for _, a := range args {
		key += " " + a
	}
	if r.fails[key] {
		return "", errors.New("command failed")
	}
	if out, ok := r.outputs[key]; ok {
		return out, nil
	}
	return "", errors.New("command failed")
}

func (r *fakeRunner) LookPath(name string) (string, error) {
	if r.present[name] {
		return "/usr/bin/" + name, nil
	}
	return "", errors.New("not found")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestSnapshotDebianSystemdInstalled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "etc/os-release"), "ID=debian\n")
	if err := os.MkdirAll(filepath.Join(root, "run/systemd/system"), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	settings := filepath.Join(root, "settings.json")
	data, _ := json.Marshal(map[string]any{"rpc-port": 9091})
	writeFile(t, settings, string(data))

	runner := &fakeRunner{
		present: map[string]bool{"transmission-daemon": true, "apt-get": true, "jq": true},
		outputs: map[string]string{
			"transmission-daemon --version":            "transmission-daemon 4.0.5 (123abc)",
			"systemctl is-active transmission-daemon":  "active",
			"systemctl is-enabled transmission-daemon": "enabled",
		},
	}

	p := New(Config{
		DaemonBinary: "transmission-daemon",
		ProcessName:  "transmission-daemon",
		ServiceName:  "transmission-daemon",
		SettingsPath: settings,
		Root:         root,
	}, runner, zerolog.Nop())

	facts := p.Snapshot(context.Background())

	if facts.OSFamily != engine.OSFamilyDebian {
		t.Errorf("OSFamily = %s, want debian", facts.OSFamily)
	}
	if facts.InitSystem != engine.InitSystemd {
		t.Errorf("InitSystem = %s, want systemd", facts.InitSystem)
	}
	if facts.InstalledVersion != "4.0.5" {
		t.Errorf("InstalledVersion = %q, want 4.0.5", facts.InstalledVersion)
	}
	if !facts.Running {
		t.Error("Running = false, want true")
	}
	if !facts.ServiceInstalled {
		t.Error("ServiceInstalled = false, want true")
	}
	if !facts.ConfigInitialized {
		t.Error("ConfigInitialized = false, want true")
	}
	if !facts.HasTool(engine.ToolApt) || !facts.HasTool(engine.ToolJq) {
		t.Errorf("tools missing: %v", facts.Tools)
	}
	// Nil sysctl matcher means tuning is unmanaged and reported applied.
	if !facts.TuningApplied {
		t.Error("TuningApplied = false with nil matcher")
	}
}

func TestSnapshotBareHost(t *testing.T) {
	root := t.TempDir()

	runner := &fakeRunner{present: map[string]bool{}}
	p := New(Config{
		DaemonBinary: "transmission-daemon",
		ProcessName:  "transmission-daemon",
		ServiceName:  "transmission-daemon",
		SettingsPath: filepath.Join(root, "missing.json"),
		Root:         root,
	}, runner, zerolog.Nop())

	facts := p.Snapshot(context.Background())

	if facts.OSFamily != engine.OSFamilyUnknown {
		t.Errorf("OSFamily = %s, want unknown", facts.OSFamily)
	}
	if facts.InstalledVersion != "" {
		t.Errorf("InstalledVersion = %q, want empty", facts.InstalledVersion)
	}
	if facts.Running {
		t.Error("Running = true on a bare host")
	}
	if facts.ServiceInstalled || facts.AccountExists || facts.ConfigInitialized {
		t.Errorf("bare host reported installed state: %+v", facts)
	}
}

func TestSnapshotOpenRC(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "etc/os-release"), "ID=alpine\n")
	writeFile(t, filepath.Join(root, "run/openrc/softlevel"), "")

	runner := &fakeRunner{present: map[string]bool{}}
	p := New(Config{
		DaemonBinary: "transmission-daemon",
		ProcessName:  "transmission-daemon",
		ServiceName:  "transmission-daemon",
		SettingsPath: filepath.Join(root, "missing.json"),
		Root:         root,
	}, runner, zerolog.Nop())

	facts := p.Snapshot(context.Background())
	if facts.OSFamily != engine.OSFamilyAlpine {
		t.Errorf("OSFamily = %s, want alpine", facts.OSFamily)
	}
	if facts.InitSystem != engine.InitOpenRC {
		t.Errorf("InitSystem = %s, want openrc", facts.InitSystem)
	}
}

func TestSnapshotVersionFromNoisyOutput(t *testing.T) {
	root := t.TempDir()

	runner := &fakeRunner{
		present: map[string]bool{"transmission-daemon": true},
		outputs: map[string]string{
			"transmission-daemon --version": "transmission-daemon 3.00 (bb6b5a062e)",
		},
	}
	p := New(Config{
		DaemonBinary: "transmission-daemon",
		ProcessName:  "transmission-daemon",
		ServiceName:  "transmission-daemon",
		SettingsPath: filepath.Join(root, "missing.json"),
		Root:         root,
	}, runner, zerolog.Nop())

	facts := p.Snapshot(context.Background())
	if facts.InstalledVersion != "3.00" {
		t.Errorf("InstalledVersion = %q, want 3.00", facts.InstalledVersion)
	}
}
