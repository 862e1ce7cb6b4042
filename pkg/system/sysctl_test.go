package system

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSysctlRenderIsStable(t *testing.T) {
	params := map[string]string{
		"net.core.wmem_max": "1048576",
		"net.core.rmem_max": "4194304",
	}
	s := NewSysctlDropIn("/tmp/unused", params, &recordingRunner{}, zerolog.Nop())

	want := "net.core.rmem_max = 4194304\nnet.core.wmem_max = 1048576\n"
	for i := 0; i < 5; i++ {
		if got := string(s.render()); got != want {
			t.Fatalf("render() = %q, want %q", got, want)
		}
	}
}

func TestSysctlApplyAndMatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "99-tuning.conf")
	params := map[string]string{"net.ipv4.tcp_fastopen": "3"}

	runner := &recordingRunner{}
	s := NewSysctlDropIn(path, params, runner, zerolog.Nop())

	if s.Matches() {
		t.Fatal("Matches() true before apply")
	}

	if err := s.Apply(context.Background()); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !s.Matches() {
		t.Error("Matches() false after apply")
	}

	var reloaded bool
	for _, cmd := range runner.commands {
		if cmd[0] == "sysctl" && cmd[1] == "-p" && cmd[2] == path {
			reloaded = true
		}
	}
	if !reloaded {
		t.Errorf("sysctl reload not invoked: %v", runner.commands)
	}
}

func TestSysctlApplyBacksUpPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "99-tuning.conf")
	if err := os.WriteFile(path, []byte("old = 1\n"), 0o644); err != nil {
		t.Fatalf("failed to seed drop-in: %v", err)
	}

	s := NewSysctlDropIn(path, map[string]string{"new": "2"}, &recordingRunner{}, zerolog.Nop())
	if err := s.Apply(context.Background()); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	var backups int
	for _, e := range entries {
		if strings.Contains(e.Name(), ".bak.") {
			backups++
		}
	}
	if backups != 1 {
		t.Errorf("found %d backups, want 1", backups)
	}
}

func TestSysctlEmptyParamsIsNoop(t *testing.T) {
	runner := &recordingRunner{}
	s := NewSysctlDropIn(filepath.Join(t.TempDir(), "x.conf"), nil, runner, zerolog.Nop())

	if !s.Matches() {
		t.Error("Matches() false with no configured params")
	}
	if err := s.Apply(context.Background()); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(runner.commands) != 0 {
		t.Errorf("commands ran for empty params: %v", runner.commands)
	}
}

func TestSysctlRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "99-tuning.conf")
	os.WriteFile(path, []byte("x = 1\n"), 0o644)

	s := NewSysctlDropIn(path, map[string]string{"x": "1"}, &recordingRunner{}, zerolog.Nop())
	if err := s.Remove(context.Background()); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("drop-in still present after remove")
	}

	// Removing again is fine.
	if err := s.Remove(context.Background()); err != nil {
		t.Errorf("second Remove failed: %v", err)
	}
}
