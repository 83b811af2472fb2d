package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ccmemory/ccmemory/internal/tools"
)

// newToolCmd builds `tool <name>`, the CLI surface for §6.2's tool API:
// reads one JSON object from stdin, dispatches it to the named handler,
// and writes the JSON result (success or the {"error":...} envelope) to
// stdout. Unlike hook subcommands, a tool call's own exit code reflects
// whether the dispatch itself (not the domain result) succeeded.
func newToolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "tool [name]",
		Short:     "Call a memory/docs/code tool (reads JSON params from stdin)",
		ValidArgs: tools.Names,
		Args:      cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("app init: %w", err)
			}
			defer a.Close()

			if !a.toolEnabled(name) {
				return fmt.Errorf("tool %q is disabled by config", name)
			}

			deps := a.toolDeps()
			out := deps.Call(cmd.Context(), name, json.RawMessage(raw))
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Long = "Available tools: " + strings.Join(tools.Names, ", ")
	return cmd
}
