package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ccmemory/ccmemory/internal/config"
)

// newConfigCmd builds the `config` command group: init/show/path over the
// user config (~/.config/ccmemory/config.yaml) plus backup/restore/
// list-backups, grounded on the teacher's cmd/amanmcp/cmd/config.go.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage user configuration",
		Long: `Manage the user/global configuration file.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/ccmemory/config.yaml)
  3. Project config (.ccmemory.yaml)
  4. Environment variables (CCMEMORY_*)`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigBackupsCmd())
	cmd.AddCommand(newConfigRestoreCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create user configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration (backs up the old one first)")
	return cmd
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := cmd.OutOrStdout()
	configPath := config.GetUserConfigPath()

	if config.UserConfigExists() {
		if !force {
			fmt.Fprintf(out, "user configuration already exists at %s\n", configPath)
			fmt.Fprintln(out, "use --force to upgrade it in place (a backup is made first)")
			return nil
		}

		backupPath, err := config.BackupUserConfig()
		if err != nil {
			return fmt.Errorf("backup config: %w", err)
		}

		existing, err := config.LoadUserConfig()
		if err != nil {
			return fmt.Errorf("load existing config: %w", err)
		}
		added := existing.MergeNewDefaults()
		if err := existing.WriteYAML(configPath); err != nil {
			return fmt.Errorf("write upgraded config: %w", err)
		}

		fmt.Fprintf(out, "upgraded %s (backup: %s)\n", configPath, backupPath)
		if len(added) > 0 {
			fmt.Fprintln(out, "new fields added with defaults:")
			for _, field := range added {
				fmt.Fprintf(out, "  - %s\n", field)
			}
		}
		return nil
	}

	if err := os.MkdirAll(config.GetUserConfigDir(), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := config.NewConfig().WriteYAML(configPath); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	fmt.Fprintf(out, "created %s\n", configPath)
	return nil
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, user, defaults")
	return cmd
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	out := cmd.OutOrStdout()

	var cfg *config.Config
	var sourceDesc string

	switch source {
	case "merged":
		root, err := config.FindProjectRoot(".")
		if err != nil {
			root, _ = os.Getwd()
		}
		cfg, err = config.Load(root)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		sourceDesc = "merged (defaults + user + project + env)"

	case "user":
		if !config.UserConfigExists() {
			fmt.Fprintf(out, "no user configuration file found (expected at %s)\n", config.GetUserConfigPath())
			fmt.Fprintln(out, "run 'ccmemory config init' to create one")
			return nil
		}
		loaded, err := config.LoadUserConfig()
		if err != nil {
			return fmt.Errorf("load user config: %w", err)
		}
		cfg = loaded
		sourceDesc = fmt.Sprintf("user (%s)", config.GetUserConfigPath())

	case "defaults":
		cfg = config.NewConfig()
		sourceDesc = "defaults (hardcoded)"

	default:
		return fmt.Errorf("invalid source: %s (use: merged, user, defaults)", source)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "# configuration source: %s\n", sourceDesc)
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return nil
		},
	}
}

func newConfigBackupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-backups",
		Short: "List user configuration backups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			backups, err := config.ListUserConfigBackups()
			if err != nil {
				return fmt.Errorf("list backups: %w", err)
			}
			if len(backups) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no backups found")
				return nil
			}
			for _, b := range backups {
				fmt.Fprintln(cmd.OutOrStdout(), b)
			}
			return nil
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-path>",
		Short: "Restore user configuration from a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.RestoreUserConfig(args[0]); err != nil {
				return fmt.Errorf("restore config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s from %s\n", config.GetUserConfigPath(), args[0])
			return nil
		},
	}
}
