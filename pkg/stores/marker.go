package stores

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MarkerFile persists the install marker as a small JSON file next to
// the run database.
type MarkerFile struct {
	path string
}

// NewMarkerFile creates a marker file accessor.
func NewMarkerFile(path string) *MarkerFile {
	return &MarkerFile{path: path}
}

// Path returns the marker file location.
func (m *MarkerFile) Path() string {
	return m.path
}

// Save writes the marker, stamping ConvergedAt if unset.
func (m *MarkerFile) Save(marker Marker) error {
	if marker.ConvergedAt.IsZero() {
		marker.ConvergedAt = time.Now()
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create marker directory: %w", err)
	}

	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode marker: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write marker: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("failed to replace marker: %w", err)
	}
	return nil
}

// Load reads the marker. A missing file returns (nil, nil): the host was
// never converged.
func (m *MarkerFile) Load() (*Marker, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read marker: %w", err)
	}

	var marker Marker
	if err := json.Unmarshal(data, &marker); err != nil {
		return nil, fmt.Errorf("failed to decode marker: %w", err)
	}
	return &marker, nil
}

// Clear removes the marker. Removing an absent marker is not an error.
func (m *MarkerFile) Clear() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove marker: %w", err)
	}
	return nil
}
