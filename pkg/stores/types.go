package stores

import (
	"context"
	"time"

	"github.com/seedctl/seedctl/pkg/engine"
)

// Store persists convergence run history for the status view. Writes
// happen once per run, on completion; reads serve the status command.
type Store interface {
	engine.Recorder

	// LastRun returns the most recent recorded run, or nil when no run
	// has been recorded yet.
	LastRun(ctx context.Context) (*engine.ConvergenceRun, error)

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]*engine.ConvergenceRun, error)

	// Close releases the underlying database handle.
	Close() error
}

// Marker is the install marker persisted after a successful install run.
// Its absence means the host was never converged by this tool.
type Marker struct {
	// Version is the daemon version the last successful run installed.
	Version string `json:"version"`

	// ConfigHash fingerprints the desired-state configuration the run
	// converged to.
	ConfigHash string `json:"config_hash"`

	// ConvergedAt is when the run completed.
	ConvergedAt time.Time `json:"converged_at"`
}
