package system

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner is the command execution seam between the installer and the
// host. Every collaborator shells out through it, so tests can substitute
// a fake and the probe can stay side-effect-free.
type Runner interface {
	// Run executes a command and returns its combined trimmed output.
	Run(ctx context.Context, name string, args ...string) (string, error)

	// LookPath reports the absolute path of an executable, or an error
	// if it is not present on PATH.
	LookPath(name string) (string, error)
}

// ExecRunner runs commands on the local host.
type ExecRunner struct{}

// NewExecRunner creates a local command runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command and returns its combined output.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Run(); err != nil {
		out := strings.TrimSpace(buf.String())
		if out != "" {
			return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, out)
		}
		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}

	return strings.TrimSpace(buf.String()), nil
}

// LookPath resolves an executable on PATH.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
