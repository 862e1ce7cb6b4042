package system

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// SettingsInitializer seeds the daemon settings file with the required
// fields when it does not exist yet. Existing files are left untouched so
// operator edits survive reconvergence.
type SettingsInitializer struct {
	path     string
	defaults map[string]any
	owner    string
	runner   Runner
	log      zerolog.Logger
}

// NewSettingsInitializer creates a runtime-config initializer. defaults
// are the daemon settings seeded on first install; the rpc-password field
// is managed separately by the credential store.
func NewSettingsInitializer(path string, defaults map[string]any, owner string, runner Runner, log zerolog.Logger) *SettingsInitializer {
	return &SettingsInitializer{
		path:     path,
		defaults: defaults,
		owner:    owner,
		runner:   runner,
		log:      log.With().Str("component", "runtimeconfig").Logger(),
	}
}

// Initialized reports whether the settings file exists and parses.
func (s *SettingsInitializer) Initialized() bool {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false
	}
	var settings map[string]any
	return json.Unmarshal(data, &settings) == nil
}

// Initialize writes the default settings file and hands it to the
// service account.
func (s *SettingsInitializer) Initialize(ctx context.Context) error {
	if s.Initialized() {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out, err := json.MarshalIndent(s.defaults, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode default settings: %w", err)
	}
	if err := writeFileAtomic(s.path, append(out, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	if s.owner != "" {
		if _, err := s.runner.Run(ctx, "chown", "-R", s.owner+":"+s.owner, filepath.Dir(s.path)); err != nil {
			return fmt.Errorf("failed to hand config directory to %s: %w", s.owner, err)
		}
	}

	s.log.Info().Str("path", s.path).Msg("initialized daemon settings")
	return nil
}
