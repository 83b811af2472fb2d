package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.ccmemory/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ccmemory", "logs")
	}
	return filepath.Join(home, ".ccmemory", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}

// ExtractorLogPath returns the detached extractor subprocess's log path
// (extraction.Spawn re-invokes the binary with stdout/stderr redirected here).
func ExtractorLogPath() string {
	return filepath.Join(DefaultLogDir(), "extractor.log")
}

// LogSource represents the source of logs to view.
type LogSource string

const (
	// LogSourceGo is the main process logs (default).
	LogSourceGo LogSource = "go"
	// LogSourceExtractor is the detached background extractor's logs.
	LogSourceExtractor LogSource = "extractor"
	// LogSourceAll combines all log sources.
	LogSourceAll LogSource = "all"
)

// FindLogFile attempts to find the log file for viewing.
// Priority:
// 1. Explicit path (if provided)
// 2. ~/.ccmemory/logs/server.log (global)
//
// Returns an error if no log file is found.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	// Try global path
	globalPath := DefaultLogPath()
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath, nil
	}

	return "", fmt.Errorf("no log file found. Server may not have run with --debug yet.\nExpected at: %s", globalPath)
}

// FindLogFileBySource finds log files based on the source type.
// Returns a list of log file paths that exist.
func FindLogFileBySource(source LogSource, explicit string) ([]string, error) {
	// Explicit path takes precedence
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return []string{explicit}, nil
		}
		return nil, fmt.Errorf("log file not found: %s", explicit)
	}

	var paths []string
	var checked []string

	switch source {
	case LogSourceGo:
		goPath := DefaultLogPath()
		checked = append(checked, goPath)
		if _, err := os.Stat(goPath); err == nil {
			paths = append(paths, goPath)
		}

	case LogSourceExtractor:
		extractorPath := ExtractorLogPath()
		checked = append(checked, extractorPath)
		if _, err := os.Stat(extractorPath); err == nil {
			paths = append(paths, extractorPath)
		}

	case LogSourceAll:
		goPath := DefaultLogPath()
		extractorPath := ExtractorLogPath()
		checked = append(checked, goPath, extractorPath)

		if _, err := os.Stat(goPath); err == nil {
			paths = append(paths, goPath)
		}
		if _, err := os.Stat(extractorPath); err == nil {
			paths = append(paths, extractorPath)
		}

	default:
		return nil, fmt.Errorf("unknown log source: %s (use: go, extractor, all)", source)
	}

	if len(paths) == 0 {
		hint := getLogHint(source)
		return nil, fmt.Errorf("no log files found for source '%s'.\nChecked: %v\n\n%s", source, checked, hint)
	}

	return paths, nil
}

// ParseLogSource parses a string into a LogSource.
func ParseLogSource(s string) LogSource {
	switch s {
	case "extractor":
		return LogSourceExtractor
	case "all":
		return LogSourceAll
	default:
		return LogSourceGo
	}
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	dir := DefaultLogDir()
	return os.MkdirAll(dir, 0o755)
}

// getLogHint returns a helpful message on how to generate logs for the given source.
func getLogHint(source LogSource) string {
	switch source {
	case LogSourceGo:
		return "To generate logs:\n  run any ccmemory command with --debug (e.g. ccmemory --debug status)"
	case LogSourceExtractor:
		return "To generate extractor logs:\n  trigger a hook event (e.g. on_stop) so the background extractor spawns"
	case LogSourceAll:
		return "To generate logs:\n  main:      run any ccmemory command with --debug\n  extractor: trigger a hook event so the background extractor spawns"
	default:
		return ""
	}
}
