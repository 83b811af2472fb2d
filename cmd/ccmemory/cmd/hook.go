package cmd

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccmemory/ccmemory/internal/hooks"
)

// newHookCmd builds the `hook` command group: one subcommand per editor
// hook event (§6.1), each reading the event's JSON payload from stdin.
// Every subcommand's RunE always returns nil — handlers "must exit 0
// even on bad input" (§6.1) — errors are logged, not propagated.
func newHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Dispatch an editor hook event (reads JSON from stdin)",
	}

	cmd.AddCommand(
		newHookSubcommand("user-prompt", runUserPromptHook),
		newHookSubcommand("post-tool", runPostToolHook),
		newHookSubcommand("pre-compact", runPreCompactHook),
		newHookSubcommand("stop", runStopHook),
		newHookSubcommand("session-start", runSessionStartHook),
		newHookSubcommand("session-end", runSessionEndHook),
	)
	return cmd
}

func newHookSubcommand(use string, run func(*Dispatcher, context.Context, []byte, time.Time) error) *cobra.Command {
	return &cobra.Command{
		Use:          use,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				slog.Warn("hook: read stdin failed", slog.String("hook", use), slog.String("error", err.Error()))
				return nil
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				slog.Warn("hook: app init failed", slog.String("hook", use), slog.String("error", err.Error()))
				return nil
			}
			defer a.Close()

			d := newDispatcher(a)
			if err := run(d, cmd.Context(), raw, time.Now()); err != nil {
				slog.Warn("hook handler failed", slog.String("hook", use), slog.String("error", err.Error()))
			}
			return nil
		},
	}
}

// Dispatcher wraps hooks.Dispatcher with the decode step for each event
// kind, so newHookSubcommand's callback signature stays uniform.
type Dispatcher struct {
	h *hooks.Dispatcher
}

func newDispatcher(a *app) *Dispatcher {
	return &Dispatcher{h: hooks.NewDispatcher(hooks.Deps{
		DB:       a.db,
		Sessions: a.sessions,
		Acc:      a.acc,
		Pipeline: a.pipeline,
		LLM:      a.llm,
		Registry: a.registry,
	})}
}

func runUserPromptHook(d *Dispatcher, ctx context.Context, raw []byte, now time.Time) error {
	in, err := hooks.DecodeUserPrompt(raw)
	if err != nil {
		return err
	}
	return d.h.OnUserPrompt(ctx, in, now)
}

func runPostToolHook(d *Dispatcher, ctx context.Context, raw []byte, now time.Time) error {
	in, err := hooks.DecodePostTool(raw)
	if err != nil {
		return err
	}
	return d.h.OnPostTool(ctx, in, now)
}

func runPreCompactHook(d *Dispatcher, ctx context.Context, raw []byte, now time.Time) error {
	in, err := hooks.DecodeCompactOrStop(raw)
	if err != nil {
		return err
	}
	return d.h.OnPreCompact(ctx, in, now)
}

func runStopHook(d *Dispatcher, ctx context.Context, raw []byte, now time.Time) error {
	in, err := hooks.DecodeCompactOrStop(raw)
	if err != nil {
		return err
	}
	return d.h.OnStop(ctx, in, now)
}

func runSessionStartHook(d *Dispatcher, ctx context.Context, raw []byte, now time.Time) error {
	in, err := hooks.DecodeSessionEdge(raw)
	if err != nil {
		return err
	}
	return d.h.OnSessionStart(ctx, in, now)
}

func runSessionEndHook(d *Dispatcher, ctx context.Context, raw []byte, now time.Time) error {
	in, err := hooks.DecodeSessionEdge(raw)
	if err != nil {
		return err
	}
	return d.h.OnSessionEnd(ctx, in, now)
}
