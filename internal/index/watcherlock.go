package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// WatcherLock is the per-project advisory lock described in §4.7: "the
// watcher holds a per-project lock file; only one watcher process per
// project is allowed." Uses gofrs/flock's OS-level advisory lock rather
// than the coordinator's PID-liveness-check scheme, because a watcher
// lock must be released automatically if its process is killed (SIGKILL,
// OOM) without a chance to clean up — an OS file lock is dropped by the
// kernel on process exit; a PID file is not.
type WatcherLock struct {
	fl   *flock.Flock
	path string
}

// watcherLockPath returns <runtimeDir>/watchers/<project-id>.lock.
func watcherLockPath(runtimeDir, projectID string) string {
	return filepath.Join(runtimeDir, "watchers", projectID+".lock")
}

// AcquireWatcherLock tries to take the lock for projectID under
// runtimeDir. ok is false if another process already holds it.
func AcquireWatcherLock(runtimeDir, projectID string) (lock *WatcherLock, ok bool, err error) {
	path := watcherLockPath(runtimeDir, projectID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, fmt.Errorf("create watcher lock dir: %w", err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("acquire watcher lock: %w", err)
	}
	if !locked {
		return nil, false, nil
	}
	return &WatcherLock{fl: fl, path: path}, true, nil
}

// Release drops the lock. Safe to call multiple times.
func (l *WatcherLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

// ReleaseWatcherLock removes a lock file by path directly, for the
// shutdown/cleanup path that only has the path on hand (e.g. a CLI
// subcommand acting on a stale lock left by a killed process).
func ReleaseWatcherLock(path string) error {
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("probe watcher lock: %w", err)
	}
	if locked {
		defer fl.Unlock()
	}
	return os.Remove(path)
}

// ListActiveWatchers returns the project IDs with a held (locked)
// watcher lock file under runtimeDir/watchers. A lock file that exists
// but isn't actually locked belongs to a dead process and is reported
// as inactive.
func ListActiveWatchers(ctx context.Context, runtimeDir string) ([]string, error) {
	dir := filepath.Join(runtimeDir, "watchers")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list watcher locks: %w", err)
	}

	var active []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lock") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		fl := flock.New(path)
		locked, err := fl.TryLock()
		if err != nil {
			continue
		}
		if locked {
			// We just acquired it ourselves, so it wasn't actually held.
			_ = fl.Unlock()
			continue
		}
		active = append(active, strings.TrimSuffix(e.Name(), ".lock"))
	}
	return active, nil
}
