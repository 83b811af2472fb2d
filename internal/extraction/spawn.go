package extraction

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Spawn starts a detached `ccmemory extract` child process for one
// session/trigger pair and returns immediately without waiting on it,
// matching §4.6's "Extractors are detached child processes started with
// stdout/stderr/stdin all redirected to null; the parent does not await
// them." Grounded on the teacher's daemon re-exec pattern (cmd/ccmemory's
// `daemon start --foreground` self re-invocation with Setsid).
func Spawn(sessionID, projectID, trigger string) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}

	cmd := exec.Command(execPath, "extract",
		"--session", sessionID,
		"--project", projectID,
		"--trigger", trigger,
	)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start extractor: %w", err)
	}

	// Detached: release it from the process tree's wait queue without
	// blocking on exit. Zombie reaping is the OS's job once the parent
	// itself exits (hook handlers are short-lived).
	go func() { _ = cmd.Wait() }()

	return nil
}
