// Package process tracks the background service through a PID file.
package process

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

const PIDFilename = ".toolbridge.pid"

var ErrStopTimeout = errors.New("process did not exit in time")

type Manager struct {
	pidFile string
	logger  *slog.Logger
	mu      sync.RWMutex

	// pollInterval and stopTimeout bound how long Stop waits for exit.
	pollInterval time.Duration
	stopTimeout  time.Duration
}

func NewManager(baseDir string, logger *slog.Logger) *Manager {
	return &Manager{
		pidFile:      filepath.Join(baseDir, PIDFilename),
		logger:       logger,
		pollInterval: 100 * time.Millisecond,
		stopTimeout:  10 * time.Second,
	}
}

func (m *Manager) PIDFile() string { return m.pidFile }

func (m *Manager) WritePID() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.pidFile), 0o750); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}

	pid := strconv.Itoa(os.Getpid())

	return os.WriteFile(m.pidFile, []byte(pid), 0o600)
}

// ReadPID returns 0 when the file is missing or malformed.
func (m *Manager) ReadPID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := os.ReadFile(m.pidFile)
	if err != nil {
		return 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}

	return pid
}

// IsRunning probes the recorded PID with signal 0. A stale file is removed.
func (m *Manager) IsRunning() bool {
	pid := m.ReadPID()
	if pid == 0 {
		return false
	}

	if err := syscall.Kill(pid, 0); err != nil && !errors.Is(err, syscall.EPERM) {
		m.logger.Debug("Removing stale PID file", "pid", pid, "error", err)
		m.CleanupPID()
		return false
	}

	return true
}

// Stop sends SIGTERM to the recorded process and waits for it to exit.
func (m *Manager) Stop() error {
	pid := m.ReadPID()
	if pid == 0 {
		return nil
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			m.CleanupPID()
			return nil
		}
		return fmt.Errorf("send SIGTERM to process %d: %w", pid, err)
	}

	deadline := time.Now().Add(m.stopTimeout)
	for time.Now().Before(deadline) {
		if !m.IsRunning() {
			return nil
		}
		time.Sleep(m.pollInterval)
	}

	return fmt.Errorf("pid %d: %w", pid, ErrStopTimeout)
}

func (m *Manager) CleanupPID() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.pidFile); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("Failed to remove PID file", "path", m.pidFile, "error", err)
	}
}
