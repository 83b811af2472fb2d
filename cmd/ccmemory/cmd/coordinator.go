package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ccmemory/ccmemory/internal/config"
	"github.com/ccmemory/ccmemory/internal/coordinator"
)

// newCoordinatorCmd builds the `coordinator` command group (§4.9): the
// lock/registry/event-bus server that shuts itself down once its client
// registry empties. Grounded on the teacher's daemon start/stop/status
// shape, re-pointed at the coordinator's runtime directory instead of an
// embedder process.
func newCoordinatorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Manage the cross-process lock/registry/event-bus server",
	}
	cmd.AddCommand(newCoordinatorStartCmd())
	cmd.AddCommand(newCoordinatorStopCmd())
	cmd.AddCommand(newCoordinatorStatusCmd())
	return cmd
}

func newCoordinatorStartCmd() *cobra.Command {
	var foreground bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the coordinator server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if foreground {
				return runCoordinatorForeground(cmd.Context())
			}
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable path: %w", err)
			}
			c := exec.Command(execPath, "coordinator", "start", "--foreground")
			c.Stdout = nil
			c.Stderr = nil
			c.Stdin = nil
			c.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
			if err := c.Start(); err != nil {
				return fmt.Errorf("start coordinator: %w", err)
			}
			go func() { _ = c.Wait() }()
			fmt.Fprintf(cmd.OutOrStdout(), "coordinator started (pid %d)\n", c.Process.Pid)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "run in foreground instead of daemonizing")
	return cmd
}

func runCoordinatorForeground(ctx context.Context) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	srv := coordinator.NewServer(cfg.Coordinator.RuntimeDir)
	ok, err := srv.Start()
	if err != nil {
		return fmt.Errorf("acquire server lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another coordinator is already running in %s", cfg.Coordinator.RuntimeDir)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

func newCoordinatorStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running coordinator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			lock := coordinator.NewServerLock(cfg.Coordinator.RuntimeDir)
			pid, err := lock.OwnerPID()
			if err != nil {
				return fmt.Errorf("no coordinator running: %w", err)
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return err
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("signal coordinator (pid %d): %w", pid, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent SIGTERM to coordinator (pid %d)\n", pid)
			return nil
		},
	}
}

func newCoordinatorStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show coordinator status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			lock := coordinator.NewServerLock(cfg.Coordinator.RuntimeDir)
			pid, err := lock.OwnerPID()
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "coordinator: not running")
				return nil
			}
			registry := coordinator.NewClientRegistry(cfg.Coordinator.RuntimeDir)
			clients, _ := registry.List()
			fmt.Fprintf(cmd.OutOrStdout(), "coordinator: running (pid %d), %d registered client(s)\n", pid, len(clients))
			return nil
		},
	}
}
