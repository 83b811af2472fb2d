package cmd

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ccmemory/ccmemory/internal/errors"
	"github.com/ccmemory/ccmemory/internal/index"
	"github.com/ccmemory/ccmemory/internal/watcher"
)

// newWatchCmd builds the `watch` command (§4.7 watcher reconciler): a
// foreground process that runs one full index pass and then applies
// coalesced filesystem events to the index until interrupted. Only one
// watcher per project is allowed, enforced by index.AcquireWatcherLock
// inside Reconciler.Run.
func newWatchCmd() *cobra.Command {
	var debounceMS int
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch a project directory and keep its code index up to date",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			absPath, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve project path: %w", err)
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("app init: %w", err)
			}
			defer a.Close()

			ctx := cmd.Context()
			proj, err := a.db.GetProjectByPath(ctx, absPath)
			if err != nil && errors.GetCode(err) != errors.ErrCodeProjectNotFound {
				return fmt.Errorf("look up project: %w", err)
			}
			if proj == nil {
				proj, err = a.db.UpsertProject(ctx, uuid.NewString(), absPath, filepath.Base(absPath), time.Now())
				if err != nil {
					return fmt.Errorf("register project: %w", err)
				}
			}

			opts := watcher.DefaultOptions()
			if debounceMS > 0 {
				opts.DebounceWindow = time.Duration(debounceMS) * time.Millisecond
			}
			rec, err := index.NewReconciler(a.idx, proj.ID, absPath, a.cfg.Coordinator.RuntimeDir, opts)
			if err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}

			sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "watching %s (project %s)\n", absPath, proj.ID)
			if err := rec.Run(sigCtx); err != nil && sigCtx.Err() == nil {
				return fmt.Errorf("watcher: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&debounceMS, "debounce-ms", 0, "override the debounce window in milliseconds")
	return cmd
}
