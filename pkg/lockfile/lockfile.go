// Package lockfile provides the host-wide mutual exclusion guard for
// convergence runs. The lock is a file holding the holder's PID and an
// acquisition timestamp; a lock whose PID no longer exists is stale and
// is reclaimed automatically.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/seedctl/seedctl/pkg/engine"
)

// Manager acquires and releases the run lock at a fixed path.
type Manager struct {
	path string
	log  zerolog.Logger
}

// New creates a lock manager for the given lock file path.
func New(path string, log zerolog.Logger) *Manager {
	return &Manager{
		path: path,
		log:  log.With().Str("component", "lock").Logger(),
	}
}

// Handle owns the acquired lock for the lifetime of a run.
type Handle struct {
	path string

	mu       sync.Mutex
	released bool
}

// Release frees the lock. It is idempotent so every exit path may call
// it unconditionally.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil
	}
	h.released = true

	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// Acquire takes the lock or fails with a lock-contention error naming the
// live holder. A lock whose recorded PID is gone is logged as stale,
// removed, and re-acquired in the same call.
func (m *Manager) Acquire(ctx context.Context) (engine.LockHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		handle, err := m.tryAcquire()
		if err == nil {
			return handle, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}

		holder, ok := m.readHolder()
		if ok && pidAlive(holder) {
			return nil, engine.NewLockContentionError(holder)
		}

		m.log.Warn().
			Int("pid", holder).
			Str("path", m.path).
			Msg("reclaiming stale lock from dead process")
		if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to reclaim stale lock: %w", err)
		}
	}

	// Lost the race twice; report whoever holds it now.
	holder, _ := m.readHolder()
	return nil, engine.NewLockContentionError(holder)
}

// tryAcquire creates the lock file exclusively with this process's PID.
func (m *Manager) tryAcquire() (*Handle, error) {
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	_, werr := fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		os.Remove(m.path)
		if werr != nil {
			return nil, fmt.Errorf("failed to write lock file: %w", werr)
		}
		return nil, fmt.Errorf("failed to write lock file: %w", cerr)
	}

	return &Handle{path: m.path}, nil
}

// readHolder parses the PID recorded in the lock file.
func (m *Manager) readHolder() (int, bool) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return 0, false
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, false
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// pidAlive probes the process with signal 0. EPERM still means a live
// process owned by someone else.
func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
