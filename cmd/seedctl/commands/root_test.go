package commands

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/seedctl/seedctl/pkg/engine"
)

func runRoot(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCommand("test", "none", "none")
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func TestUnknownSubcommandExitsUsage(t *testing.T) {
	err := runRoot(t, "frobnicate")
	if err == nil {
		t.Fatal("expected unknown subcommand to fail")
	}
	if code := ExitCode(err); code != ExitUsage {
		t.Errorf("ExitCode = %d, want %d (err: %v)", code, ExitUsage, err)
	}
}

func TestExtraPositionalArgsExitUsage(t *testing.T) {
	err := runRoot(t, "status", "extra")
	if err == nil {
		t.Fatal("expected extra arguments to fail")
	}
	if code := ExitCode(err); code != ExitUsage {
		t.Errorf("ExitCode = %d, want %d (err: %v)", code, ExitUsage, err)
	}
}

func TestUnknownFlagExitsUsage(t *testing.T) {
	err := runRoot(t, "install", "--frobnicate")
	if err == nil {
		t.Fatal("expected unknown flag to fail")
	}
	if code := ExitCode(err); code != ExitUsage {
		t.Errorf("ExitCode = %d, want %d (err: %v)", code, ExitUsage, err)
	}
}

func TestExitCodeMapping(t *testing.T) {
	if code := ExitCode(nil); code != ExitOK {
		t.Errorf("ExitCode(nil) = %d, want %d", code, ExitOK)
	}
	if code := ExitCode(errors.New("boom")); code != ExitFailure {
		t.Errorf("ExitCode(plain) = %d, want %d", code, ExitFailure)
	}
	if code := ExitCode(engine.NewLockContentionError(4242)); code != ExitLockBusy {
		t.Errorf("ExitCode(contention) = %d, want %d", code, ExitLockBusy)
	}
}
