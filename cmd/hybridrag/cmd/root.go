// Package cmd provides the CLI commands for hybridrag.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridrag/internal/config"
	"github.com/Aman-CERP/hybridrag/internal/index"
	"github.com/Aman-CERP/hybridrag/internal/logging"
	"github.com/Aman-CERP/hybridrag/internal/profiling"
	"github.com/Aman-CERP/hybridrag/pkg/version"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	dir       string
	debug     bool
	logStderr bool
	profile   profiling.Options
	run       *profiling.Run
}

// NewRootCmd creates the root command for the hybridrag CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "hybridrag",
		Short: "Hybrid keyword and semantic search over a document folder",
		Long: `hybridrag indexes a folder of text documents and answers queries by
fusing BM25 keyword scores with embedding similarity.

Run 'hybridrag index' in a folder, then 'hybridrag search <query>', or expose
the index to AI assistants with 'hybridrag serve'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("hybridrag version {{.Version}}\n")
	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if !opts.profile.Enabled() {
			return nil
		}
		run, err := profiling.Start(opts.profile)
		if err != nil {
			return err
		}
		opts.run = run
		return nil
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		if opts.run == nil {
			return nil
		}
		slog.Debug("profile_written",
			slog.String("heap_in_use", profiling.FormatBytes(profiling.HeapInUse())))
		return opts.run.Stop()
	}

	cmd.PersistentFlags().StringVarP(&opts.dir, "dir", "C", ".", "Corpus directory")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&opts.logStderr, "log-stderr", false, "Also write logs to stderr")
	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "cpuprofile", "", "Write a CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "memprofile", "", "Write a heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "trace", "", "Write an execution trace to file")

	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newLogsCmd(opts))
	cmd.AddCommand(newDoctorCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// WantsJSON reports whether args ask for JSON output, so a failure can be
// reported in the same format.
func WantsJSON(args []string) bool {
	for _, a := range args {
		if a == "--" {
			return false
		}
		if a == "--json" || a == "--json=true" {
			return true
		}
	}
	return false
}

// session is the loaded configuration and logger for one command.
type session struct {
	cfg       *config.Config
	corpusDir string
	dataDir   string
	logger    *slog.Logger
	cleanup   func()
}

// newSession loads configuration for the corpus and sets up file logging
// in the data directory. Nothing is logged to stdout.
func newSession(opts *rootOptions) (*session, error) {
	corpusDir, err := filepath.Abs(opts.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	cfg, err := config.Load(corpusDir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dataDir := cfg.DataDir(corpusDir)

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	if opts.debug {
		logCfg.Level = "debug"
	}
	logCfg.Stderr = opts.logStderr || opts.debug
	logCfg.Text = true
	if info, statErr := os.Stat(corpusDir); statErr == nil && info.IsDir() {
		logCfg.FilePath = logging.LogPath(dataDir)
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// A read-only corpus still gets stderr logging.
		logCfg.FilePath = ""
		if logger, cleanup, err = logging.Setup(logCfg); err != nil {
			return nil, err
		}
	}
	slog.SetDefault(logger)

	return &session{
		cfg:       cfg,
		corpusDir: corpusDir,
		dataDir:   dataDir,
		logger:    logger,
		cleanup:   cleanup,
	}, nil
}

// open opens the index service for the session.
func (s *session) open(ctx context.Context, opts ...index.Option) (*index.Service, error) {
	opts = append([]index.Option{index.WithLogger(s.logger)}, opts...)
	return index.Open(ctx, s.cfg, s.corpusDir, opts...)
}

func (s *session) close() {
	if s.cleanup != nil {
		s.cleanup()
	}
}
