package system

import (
	"context"
	"fmt"
	"os/user"

	"github.com/rs/zerolog"
)

// SystemAccountManager creates the daemon's system service account.
type SystemAccountManager struct {
	runner Runner
	log    zerolog.Logger
}

// NewSystemAccountManager creates an account manager.
func NewSystemAccountManager(runner Runner, log zerolog.Logger) *SystemAccountManager {
	return &SystemAccountManager{
		runner: runner,
		log:    log.With().Str("component", "account").Logger(),
	}
}

// Exists reports whether the named account is present.
func (m *SystemAccountManager) Exists(_ context.Context, name string) bool {
	_, err := user.Lookup(name)
	return err == nil
}

// Create adds a locked system account with the given home directory.
// Alpine ships adduser from busybox instead of useradd.
func (m *SystemAccountManager) Create(ctx context.Context, name, home string) error {
	if m.Exists(ctx, name) {
		return nil
	}

	m.log.Info().Str("account", name).Msg("creating service account")

	if _, err := m.runner.LookPath("useradd"); err == nil {
		_, err := m.runner.Run(ctx, "useradd",
			"--system", "--create-home", "--home-dir", home,
			"--shell", "/usr/sbin/nologin", name)
		if err != nil {
			return fmt.Errorf("failed to create service account %s: %w", name, err)
		}
		return nil
	}

	if _, err := m.runner.LookPath("adduser"); err == nil {
		_, err := m.runner.Run(ctx, "adduser",
			"-S", "-D", "-h", home, "-s", "/sbin/nologin", name)
		if err != nil {
			return fmt.Errorf("failed to create service account %s: %w", name, err)
		}
		return nil
	}

	return fmt.Errorf("neither useradd nor adduser is available")
}
