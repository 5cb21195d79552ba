package cmd

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/index"
	"github.com/Aman-CERP/hybridrag/internal/output"
	"github.com/Aman-CERP/hybridrag/internal/watcher"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var polling bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-index whenever corpus documents change",
		Long: `Watch the corpus directory and rebuild the index after each burst of
changes. Searches keep being served from the previous index while a rebuild
runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, root, polling)
		},
	}

	cmd.Flags().BoolVar(&polling, "poll", false, "Use polling instead of file system notifications")
	return cmd
}

func runWatch(cmd *cobra.Command, root *rootOptions, polling bool) error {
	sess, err := newSession(root)
	if err != nil {
		return err
	}
	defer sess.close()

	svc, err := sess.open(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	out := output.New(cmd.OutOrStdout())
	if len(svc.Retriever().Passages()) == 0 {
		if _, err := svc.Reindex(cmd.Context()); err != nil {
			return err
		}
	}
	out.Statusf("👀", "Watching %s (Ctrl+C to stop)", sess.corpusDir)

	return watchAndReindex(cmd.Context(), sess, svc, polling, func(res *index.RunnerResult) {
		out.Successf("Re-indexed %d documents into %d passages in %s",
			res.Documents, res.Passages, res.Duration.Round(time.Millisecond))
	})
}

// watchAndReindex runs a watcher over the corpus and reindexes after each
// debounced batch until ctx is cancelled. onReindex may be nil.
func watchAndReindex(ctx context.Context, sess *session, svc *index.Service, polling bool, onReindex func(*index.RunnerResult)) error {
	opts := watcher.Options{
		DebounceWindow: sess.cfg.Server.WatchDebounce,
		Extensions:     sess.cfg.Corpus.Extensions,
		SkipDirs:       skipDirs(sess.corpusDir, sess.dataDir),
		ForcePolling:   polling,
	}
	w, err := watcher.New(opts, sess.logger)
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Start(gctx, sess.corpusDir)
	})
	g.Go(func() error {
		return reindexLoop(gctx, svc, w.Events(), w.Errors(), sess.logger, onReindex)
	})

	err = g.Wait()
	sess.logger.Info("watch_stopped",
		slog.String("mode", w.Mode()),
		slog.Uint64("dropped_batches", w.DroppedBatches()))
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// reindexLoop consumes change batches. Rebuild failures are logged and the
// loop keeps running; the previous index keeps serving.
func reindexLoop(
	ctx context.Context,
	svc *index.Service,
	events <-chan []watcher.FileEvent,
	errs <-chan error,
	logger *slog.Logger,
	onReindex func(*index.RunnerResult),
) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("watcher_error", slog.String("error", err.Error()))
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			for _, ev := range batch {
				// Ignore files are re-read by every reindex.
				if ev.Operation == watcher.OpConfigChange && isSettingsFile(ev.Path) {
					logger.Warn("config_changed",
						slog.String("path", ev.Path),
						slog.String("hint", "restart to apply configuration changes"))
				}
			}
			logger.Info("corpus_changed", slog.Int("events", len(batch)))

			res, err := svc.Reindex(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				level := slog.LevelError
				if herrors.IsRetryable(err) {
					level = slog.LevelWarn
				}
				logger.LogAttrs(ctx, level, "reindex_failed", herrors.LogAttrs(err)...)
				continue
			}
			if onReindex != nil {
				onReindex(res)
			}
		}
	}
}

// skipDirs returns dataDir relative to corpusDir when it lies inside it.
func skipDirs(corpusDir, dataDir string) []string {
	rel, err := filepath.Rel(corpusDir, dataDir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil
	}
	return []string{filepath.ToSlash(rel)}
}

func isSettingsFile(p string) bool {
	ext := filepath.Ext(p)
	return ext == ".yaml" || ext == ".yml"
}
