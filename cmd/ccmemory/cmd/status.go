package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ccmemory/ccmemory/internal/config"
	"github.com/ccmemory/ccmemory/internal/coordinator"
)

// newStatusCmd reports where ccmemory thinks its project root, database
// and runtime directory are, and whether a coordinator is currently
// running there — a quick diagnostic before reaching for `doctor`-level
// tooling.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show config resolution and coordinator status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := config.FindProjectRoot(".")
			if err != nil {
				root, _ = os.Getwd()
			}
			cfg, err := config.Load(root)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			dbPath := cfg.Storage.Path
			if dbPath == "" {
				dbPath = filepath.Join(cfg.Coordinator.RuntimeDir, "ccmemory.db")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "project root:   %s\n", root)
			fmt.Fprintf(out, "database:       %s\n", dbPath)
			fmt.Fprintf(out, "runtime dir:    %s\n", cfg.Coordinator.RuntimeDir)
			fmt.Fprintf(out, "embedding:      provider=%s model=%s\n", cfg.Embedding.Provider, cfg.Embedding.Model)

			lock := coordinator.NewServerLock(cfg.Coordinator.RuntimeDir)
			if pid, err := lock.OwnerPID(); err == nil {
				fmt.Fprintf(out, "coordinator:    running (pid %d)\n", pid)
			} else {
				fmt.Fprintln(out, "coordinator:    not running")
			}
			return nil
		},
	}
}
