package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridrag/internal/config"
	"github.com/Aman-CERP/hybridrag/internal/logging"
	"github.com/Aman-CERP/hybridrag/internal/output"
)

// logsOptions holds CLI flags for logs.
type logsOptions struct {
	lines   int
	follow  bool
	level   string
	pattern string
	file    string
	noColor bool
}

func newLogsCmd(root *rootOptions) *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View hybridrag logs",
		Long: `View the JSON log written to <data dir>/logs/hybridrag.log by every
command, including the MCP server.`,
		Example: `  hybridrag logs
  hybridrag logs -f --level warn
  hybridrag logs --grep vector_search_degraded`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, root, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow new log lines")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level: debug, info, warn, error")
	cmd.Flags().StringVar(&opts.pattern, "grep", "", "Only show lines matching this regular expression")
	cmd.Flags().StringVar(&opts.file, "file", "", "Log file to read instead of the data directory log")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")

	return cmd
}

func runLogs(cmd *cobra.Command, root *rootOptions, opts logsOptions) error {
	var dataDir string
	if opts.file == "" {
		dir, err := filepath.Abs(root.dir)
		if err != nil {
			return fmt.Errorf("failed to resolve path: %w", err)
		}
		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}
		dataDir = cfg.DataDir(dir)
	}

	path, err := logging.FindLogFile(opts.file, dataDir)
	if err != nil {
		return err
	}

	viewerCfg := logging.ViewerConfig{
		Level:   opts.level,
		NoColor: opts.noColor || !output.IsTTY(cmd.OutOrStdout()) || output.DetectNoColor(),
	}
	if opts.pattern != "" {
		re, err := regexp.Compile(opts.pattern)
		if err != nil {
			return fmt.Errorf("invalid --grep pattern: %w", err)
		}
		viewerCfg.Pattern = re
	}
	viewer := logging.NewViewer(viewerCfg, cmd.OutOrStdout())

	entries, err := viewer.Tail(path, opts.lines)
	if err != nil {
		return err
	}
	viewer.Print(entries)

	if !opts.follow {
		return nil
	}
	return followLogs(cmd.Context(), viewer, path)
}

func followLogs(ctx context.Context, viewer *logging.Viewer, path string) error {
	ch := make(chan logging.Entry, 64)
	errCh := make(chan error, 1)
	go func() {
		errCh <- viewer.Follow(ctx, path, ch)
		close(ch)
	}()
	for e := range ch {
		viewer.Print([]logging.Entry{e})
	}
	return <-errCh
}
