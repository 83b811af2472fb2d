package logging

import (
	"log/slog"
)

// SetupQuietMode initializes file-only logging for hook/tool subcommands
// (§6.1/§6.2): the editor invoking them only looks at stdout/exit code, but
// anything a handler writes to stderr can surface as a spurious error in the
// editor's own logs even though the command still exits 0. Quiet mode keeps
// diagnostics in the log file and off both stdout and stderr.
func SetupQuietMode() (func(), error) {
	return SetupQuietModeWithLevel("debug")
}

// SetupQuietModeWithLevel is SetupQuietMode with an explicit level.
func SetupQuietModeWithLevel(level string) (func(), error) {
	cfg := Config{
		Level:         level,
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	return cleanup, nil
}
