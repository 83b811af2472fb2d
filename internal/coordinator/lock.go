// Package coordinator implements cross-process server ownership, client
// registration, and the filesystem event bus that lets concurrent editor
// processes share one memory server (spec §4.9).
package coordinator

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
)

// ServerLock is the well-known server.lock file: a text file holding the
// owning process's PID, acquired with a liveness check rather than an
// OS-level flock, so a crashed owner never wedges a fresh start.
type ServerLock struct {
	path string
}

// NewServerLock returns a ServerLock at <runtimeDir>/server.lock.
func NewServerLock(runtimeDir string) *ServerLock {
	return &ServerLock{path: filepath.Join(runtimeDir, "server.lock")}
}

// Path returns the lock file's path.
func (l *ServerLock) Path() string { return l.path }

// Acquire claims ownership: if the file is absent, or present but its PID
// is no longer alive, the current process's PID is written and ownership
// granted. If the file is present and its PID is alive, Acquire refuses.
func (l *ServerLock) Acquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create runtime dir: %w", err)
	}

	if pid, err := l.readPID(); err == nil {
		if processAlive(pid) {
			return false, nil
		}
	}

	if err := os.WriteFile(l.path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return false, fmt.Errorf("write server lock: %w", err)
	}
	return true, nil
}

// Release removes the lock file. Safe to call when unlocked.
func (l *ServerLock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove server lock: %w", err)
	}
	return nil
}

// OwnerPID returns the PID recorded in the lock file, if any.
func (l *ServerLock) OwnerPID() (int, error) {
	return l.readPID()
}

func (l *ServerLock) readPID() (int, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("invalid pid in lock file: %w", err)
	}
	return pid, nil
}

// processAlive reports whether pid refers to a live process, via signal 0.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
