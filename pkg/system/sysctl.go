package system

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
)

// SysctlDropIn writes the configured kernel network parameters to a
// sysctl.d drop-in and reloads them. Parameter correctness is a domain
// fact carried by configuration, not validated here.
type SysctlDropIn struct {
	path   string
	params map[string]string
	runner Runner
	log    zerolog.Logger
}

// NewSysctlDropIn creates a tuner writing to path (conventionally
// /etc/sysctl.d/99-<tool>.conf).
func NewSysctlDropIn(path string, params map[string]string, runner Runner, log zerolog.Logger) *SysctlDropIn {
	return &SysctlDropIn{
		path:   path,
		params: params,
		runner: runner,
		log:    log.With().Str("component", "sysctl").Logger(),
	}
}

// render produces the drop-in content with keys in sorted order so the
// file is byte-stable across runs.
func (s *SysctlDropIn) render() []byte {
	keys := make([]string, 0, len(s.params))
	for k := range s.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s = %s\n", k, s.params[k])
	}
	return buf.Bytes()
}

// Matches reports whether the persisted drop-in already holds the
// configured values.
func (s *SysctlDropIn) Matches() bool {
	if len(s.params) == 0 {
		return true
	}
	current, err := os.ReadFile(s.path)
	if err != nil {
		return false
	}
	return bytes.Equal(current, s.render())
}

// Apply writes the drop-in with a backup of the previous version and
// reloads kernel parameters.
func (s *SysctlDropIn) Apply(ctx context.Context) error {
	if len(s.params) == 0 {
		return nil
	}

	if err := backupFile(s.path); err != nil {
		return err
	}
	if err := os.WriteFile(s.path, s.render(), 0o644); err != nil {
		return fmt.Errorf("failed to write sysctl drop-in: %w", err)
	}

	if _, err := s.runner.Run(ctx, "sysctl", "-p", s.path); err != nil {
		return fmt.Errorf("failed to reload sysctl parameters: %w", err)
	}

	s.log.Info().Str("path", s.path).Int("params", len(s.params)).Msg("applied network tuning")
	return nil
}

// Remove deletes the drop-in.
func (s *SysctlDropIn) Remove(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove sysctl drop-in: %w", err)
	}
	return nil
}
