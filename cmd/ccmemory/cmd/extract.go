package cmd

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

// newExtractCmd builds `extract`, the subcommand extraction.Spawn
// re-invokes the binary with (§4.6 "Extractor (runs in a separate
// process)", §5 "detached child processes"). Runs the full pipeline for
// one session/trigger pair and exits; stdout/stderr are redirected to
// /dev/null by the spawning parent, so every outcome is logged through
// slog rather than printed.
func newExtractCmd() *cobra.Command {
	var sessionID, projectID, trigger string

	cmd := &cobra.Command{
		Use:          "extract",
		Short:        "Run the background extraction pipeline for one session segment",
		Hidden:       true,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				slog.Error("extract: app init failed", slog.String("error", err.Error()))
				return nil
			}
			defer a.Close()

			now := time.Now()
			res, err := a.pipeline.Run(cmd.Context(), sessionID, projectID, trigger, now)
			if err != nil {
				slog.Error("extract: pipeline run failed",
					slog.String("session_id", sessionID),
					slog.String("project_id", projectID),
					slog.String("trigger", trigger),
					slog.String("error", err.Error()))
				return nil
			}
			slog.Info("extract: pipeline run complete",
				slog.String("session_id", sessionID),
				slog.String("trigger", trigger),
				slog.Int("found", res.Found),
				slog.Int("kept", res.Kept))
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session ID to extract for")
	cmd.Flags().StringVar(&projectID, "project", "", "project ID to extract for")
	cmd.Flags().StringVar(&trigger, "trigger", "", "trigger that spawned this extractor")
	cmd.MarkFlagRequired("session")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("trigger")

	return cmd
}
