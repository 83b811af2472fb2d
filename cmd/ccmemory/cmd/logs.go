package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ccmemory/ccmemory/internal/logging"
)

// newLogsCmd builds `ccmemory logs`, a viewer over the ~/.ccmemory/logs/
// files the main process and the detached extractor write to. Grounded on
// the teacher's amanmcp-logs command: tail-by-default, --follow for a live
// stream, filterable by level and pattern, mergeable across sources.
func newLogsCmd() *cobra.Command {
	var (
		follow  bool
		lines   int
		level   string
		filter  string
		noColor bool
		logFile string
		source  string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View ccmemory logs (main process and detached extractor)",
		Long: `View and tail ccmemory logs.

By default, shows the last 50 lines of the main process log. Use -f to
follow new log entries in real-time (like 'tail -f').

Log Sources:
  go         - main process log (~/.ccmemory/logs/server.log, default)
  extractor  - detached background extractor log (~/.ccmemory/logs/extractor.log)
  all        - both sources merged by timestamp

Examples:
  ccmemory logs                       # last 50 lines, main process
  ccmemory logs --source extractor    # extractor log
  ccmemory logs --source all -f       # follow both, merged
  ccmemory logs --level error         # only error-level entries
  ccmemory logs --filter "timeout"    # filter by pattern`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, logsOptions{
				follow:  follow,
				lines:   lines,
				level:   level,
				filter:  filter,
				noColor: noColor,
				logFile: logFile,
				source:  source,
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&level, "level", "", "Filter by log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&filter, "filter", "", "Filter by keyword/pattern (regex)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&logFile, "file", "", "Path to log file (overrides --source)")
	cmd.Flags().StringVar(&source, "source", "go", "Log source: go, extractor, or all")

	return cmd
}

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	noColor bool
	logFile string
	source  string
}

func runLogs(cmd *cobra.Command, opts logsOptions) error {
	logSource := logging.ParseLogSource(opts.source)

	paths, err := logging.FindLogFileBySource(logSource, opts.logFile)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		pattern, err = regexp.Compile(opts.filter)
		if err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	showSource := logSource == logging.LogSourceAll || len(paths) > 1

	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:      opts.level,
		Pattern:    pattern,
		NoColor:    opts.noColor,
		ShowSource: showSource,
	}, cmd.OutOrStdout())

	errOut := cmd.ErrOrStderr()
	if len(paths) == 1 {
		fmt.Fprintf(errOut, "Log file: %s\n", paths[0])
	} else {
		fmt.Fprintf(errOut, "Log files: %s\n", strings.Join(paths, ", "))
	}
	if opts.follow {
		fmt.Fprintf(errOut, "Following... (Ctrl+C to stop)\n")
	}
	fmt.Fprintln(errOut, "---")

	if opts.follow {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		if len(paths) == 1 {
			return followLogs(ctx, viewer, []string{paths[0]}, cmd.OutOrStdout(), errOut, false)
		}
		return followLogs(ctx, viewer, paths, cmd.OutOrStdout(), errOut, true)
	}

	var entries []logging.LogEntry
	if len(paths) == 1 {
		entries, err = viewer.Tail(paths[0], opts.lines)
	} else {
		entries, err = viewer.TailMultiple(paths, opts.lines)
	}
	if err != nil {
		return err
	}

	viewer.Print(entries)
	return nil
}

func followLogs(ctx context.Context, viewer *logging.Viewer, paths []string, out, errOut io.Writer, multi bool) error {
	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)

	go func() {
		if multi {
			errCh <- viewer.FollowMultiple(ctx, paths, entries)
			return
		}
		errCh <- viewer.Follow(ctx, paths[0], entries)
	}()

	for {
		select {
		case entry := <-entries:
			fmt.Fprintln(out, viewer.FormatEntry(entry))
		case err := <-errCh:
			return err
		case <-ctx.Done():
			fmt.Fprintln(errOut, "\n---")
			fmt.Fprintln(errOut, "Stopped.")
			return nil
		}
	}
}
