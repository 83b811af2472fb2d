// Package cmd provides the CLI commands for ccmemory.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ccmemory/ccmemory/internal/logging"
	"github.com/ccmemory/ccmemory/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the ccmemory CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ccmemory",
		Short: "Persistent memory and hybrid search engine for AI coding assistants",
		Long: `ccmemory captures durable memory from an editor's hook events, extracts
it in a background process, and serves hybrid (keyword + semantic)
search over memories, documents and code back to the editor through a
small JSON tool API.

It is invoked three ways: as a hook handler ('ccmemory hook <event>'),
as a tool dispatcher ('ccmemory tool <name>'), and as the detached
background extractor ('ccmemory extract'). See 'ccmemory status' for
diagnostics.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("ccmemory version {{.Version}}\n")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.ccmemory/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newHookCmd())
	cmd.AddCommand(newToolCmd())
	cmd.AddCommand(newExtractCmd())
	cmd.AddCommand(newCoordinatorCmd())
	cmd.AddCommand(newMaintainCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startLogging(cmd *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}

	if isQuietCommand(cmd) {
		cleanup, err := logging.SetupQuietModeWithLevel("debug")
		if err != nil {
			return fmt.Errorf("failed to setup quiet logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.Info("debug logging enabled (quiet mode)", slog.String("log_file", logging.DefaultLogPath()))
		return nil
	}

	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

// isQuietCommand reports whether cmd (or an ancestor) is the hook or tool
// command group, whose stdout/stderr contract (§6.1/§6.2) is read by the
// invoking editor and shouldn't carry stray log lines.
func isQuietCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "hook" || c.Name() == "tool" {
			return true
		}
	}
	return false
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		slog.Info("debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
