package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/hybridrag/internal/api"
	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/index"
	"github.com/Aman-CERP/hybridrag/internal/mcp"
)

// serveOptions holds CLI flags for serve.
type serveOptions struct {
	http      string
	transport string
	watch     bool
	polling   bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index over MCP (stdio) or HTTP",
		Long: `Serve the index to clients.

By default an MCP server runs on stdin/stdout, exposing the tools 'search'
and 'index_status' and every indexed document as a resource. stdout carries
only protocol messages; logs go to the data directory.

With --http the index is served as JSON instead:
  POST /v1/search   {"query": "...", "top_k": 5}
  GET  /health
  GET  /metrics     (when server.metrics is enabled)

The corpus is indexed first if no index exists.`,
		Example: `  hybridrag serve
  hybridrag serve --http :8080 --watch
  hybridrag serve --transport http`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch opts.transport {
			case "stdio":
			case "http":
				if opts.http == "" {
					opts.http = "default"
				}
			default:
				return herrors.ValidationError(fmt.Sprintf("unknown transport %q", opts.transport), nil).
					WithSuggestion("Use --transport stdio or --transport http")
			}
			return runServe(cmd.Context(), root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.http, "http", "", "Serve HTTP on this address instead of MCP stdio")
	cmd.Flags().StringVar(&opts.transport, "transport", "stdio", "Transport: stdio or http (http listens on --http or server.http_addr)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Re-index when corpus documents change")
	cmd.Flags().BoolVar(&opts.polling, "poll", false, "With --watch, use polling instead of file system notifications")

	return cmd
}

func runServe(ctx context.Context, root *rootOptions, opts serveOptions) error {
	sess, err := newSession(root)
	if err != nil {
		return err
	}
	defer sess.close()

	var metrics *api.Metrics
	var svcOpts []index.Option
	if opts.http != "" && sess.cfg.Server.Metrics {
		metrics = api.NewMetrics()
		svcOpts = append(svcOpts, index.WithObserver(metrics))
	}

	svc, err := sess.open(ctx, svcOpts...)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if len(svc.Retriever().Passages()) == 0 {
		sess.logger.Info("serve_initial_index", slog.String("corpus_dir", sess.corpusDir))
		if _, err := svc.Reindex(ctx); err != nil {
			return err
		}
	}

	// The watcher stops when the server returns, e.g. when stdin closes.
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(serveCtx)
	var onReindex func(*index.RunnerResult)

	if opts.http != "" {
		addr := opts.http
		if addr == "default" {
			addr = sess.cfg.Server.HTTPAddr
		}
		srv, err := api.NewServer(svc,
			api.WithLogger(sess.logger),
			api.WithMetrics(metrics),
			api.WithDefaultTopK(sess.cfg.Search.TopK))
		if err != nil {
			return err
		}
		g.Go(func() error {
			defer cancel()
			return srv.ListenAndServe(gctx, addr)
		})
	} else {
		srv, err := mcp.NewServer(svc, sess.cfg, mcp.WithLogger(sess.logger))
		if err != nil {
			return err
		}
		if err := srv.RegisterResources(ctx); err != nil {
			return err
		}
		onReindex = func(*index.RunnerResult) {
			if err := srv.RegisterResources(gctx); err != nil {
				sess.logger.Warn("mcp_resources_refresh_failed", slog.String("error", err.Error()))
			}
		}
		g.Go(func() error {
			defer cancel()
			return srv.Serve(gctx, "stdio")
		})
	}

	if opts.watch {
		g.Go(func() error {
			return watchAndReindex(gctx, sess, svc, opts.polling, onReindex)
		})
	}

	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
