package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/hybridrag/configs"
	"github.com/Aman-CERP/hybridrag/internal/config"
	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/output"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage hybridrag configuration.

Configuration precedence (lowest to highest):
  1. Defaults
  2. User config (~/.config/hybridrag/config.yaml)
  3. Project config (.hybridrag.yaml in the corpus directory)
  4. .env and .env.local in the corpus directory
  5. Environment variables (HYBRIDRAG_*)`,
		Example: `  # Write the defaults to .hybridrag.yaml
  hybridrag config init

  # Show the effective configuration
  hybridrag config show

  # Undo the last "config init --force"
  hybridrag config restore`,
	}

	cmd.AddCommand(newConfigInitCmd(root))
	cmd.AddCommand(newConfigShowCmd(root))
	cmd.AddCommand(newConfigPathCmd(root))
	cmd.AddCommand(newConfigRestoreCmd(root))

	return cmd
}

func newConfigInitCmd(root *rootOptions) *cobra.Command {
	opts := initOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the defaults",
		Long: `Write a commented configuration to .hybridrag.yaml in the corpus directory,
or to the user config with --user. With --current the effective
configuration (files, .env and environment merged) is written instead.

An existing file is kept unless --force is given, in which case it is
backed up first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "Overwrite an existing file after backing it up")
	cmd.Flags().BoolVar(&opts.user, "user", false, "Write the user config instead of the project config")
	cmd.Flags().BoolVar(&opts.current, "current", false, "Write the effective configuration instead of the template")
	return cmd
}

func newConfigShowCmd(root *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, root, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newConfigPathCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print configuration file paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := filepath.Abs(root.dir)
			if err != nil {
				return err
			}
			project := config.ProjectConfigPath(dir)
			_, projectErr := os.Stat(project)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "user:    %s%s\n", config.GetUserConfigPath(), missingMark(config.UserConfigExists()))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "project: %s%s\n", project, missingMark(projectErr == nil))
			return nil
		},
	}
}

func newConfigRestoreCmd(root *rootOptions) *cobra.Command {
	var (
		user bool
		list bool
		from string
	)

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a configuration file from a backup",
		Long: `Restore the project config (or the user config with --user) from the
newest backup, or from the backup given with --from. The file being
replaced is itself backed up first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := filepath.Abs(root.dir)
			if err != nil {
				return fmt.Errorf("failed to resolve path: %w", err)
			}
			path := config.ProjectConfigPath(dir)
			if user {
				path = config.GetUserConfigPath()
			}
			return runConfigRestore(cmd, path, from, list)
		},
	}

	cmd.Flags().BoolVar(&user, "user", false, "Restore the user config instead of the project config")
	cmd.Flags().BoolVar(&list, "list", false, "List available backups, newest first")
	cmd.Flags().StringVar(&from, "from", "", "Backup file to restore (default: newest)")
	return cmd
}

func runConfigRestore(cmd *cobra.Command, path, from string, list bool) error {
	out := output.New(cmd.OutOrStdout())

	backups, err := config.ListBackups(path)
	if err != nil {
		return herrors.IOError("failed to list backups", err)
	}
	if list {
		if len(backups) == 0 {
			out.Status("📭", "No backups")
			return nil
		}
		for _, b := range backups {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), b)
		}
		return nil
	}

	if from == "" {
		if len(backups) == 0 {
			return herrors.New(herrors.ErrCodeConfigNotFound, "no backups found for "+path, nil).
				WithSuggestion("Backups are written by 'hybridrag config init --force'")
		}
		from = backups[0]
	}
	if err := config.RestoreFile(path, from); err != nil {
		return herrors.IOError("failed to restore config", err)
	}
	out.Successf("Restored %s from %s", path, filepath.Base(from))
	return nil
}

func missingMark(exists bool) string {
	if exists {
		return ""
	}
	return " (not found)"
}

type initOptions struct {
	force   bool
	user    bool
	current bool
}

func runConfigInit(cmd *cobra.Command, root *rootOptions, opts initOptions) error {
	out := output.New(cmd.OutOrStdout())

	dir, err := filepath.Abs(root.dir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	path := config.ProjectConfigPath(dir)
	if opts.user {
		path = config.GetUserConfigPath()
	}

	// Resolve before the existing file is moved aside.
	var current *config.Config
	if opts.current {
		if current, err = config.Load(dir); err != nil {
			return err
		}
	}

	if _, err := os.Stat(path); err == nil {
		if !opts.force {
			out.Warning("Configuration already exists")
			out.Statusf("📁", "Location: %s", path)
			out.Status("💡", "Use --force to overwrite it (a backup is kept)")
			return nil
		}
		backup, err := config.BackupFile(path)
		if err != nil {
			return fmt.Errorf("failed to back up config: %w", err)
		}
		out.Statusf("📦", "Backed up to %s", backup)
	}

	if current != nil {
		if err := current.WriteYAML(path); err != nil {
			return err
		}
		out.Successf("Wrote %s", path)
		return nil
	}

	template := configs.ProjectConfigTemplate
	if opts.user {
		template = configs.UserConfigTemplate
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return herrors.IOError("failed to create config directory", err)
	}
	if err := os.WriteFile(path, []byte(template), 0o644); err != nil {
		return herrors.IOError("failed to write config", err)
	}
	out.Successf("Wrote %s", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, root *rootOptions, jsonOutput bool) error {
	dir, err := filepath.Abs(root.dir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
