package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/output"
	"github.com/Aman-CERP/hybridrag/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	topK   int
	format string // "text" or "json"
	width  int
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed corpus",
		Long: `Search the indexed corpus with hybrid retrieval.

Each passage is scored by embedding similarity and by BM25 keyword score,
and the two are fused into one ranking.`,
		Example: `  hybridrag search "capital of France"
  hybridrag search diesel engines -k 3
  hybridrag search "error handling" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, root, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of results (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().IntVar(&opts.width, "width", 200, "Truncate passage text to this many characters (0 for no limit)")

	return cmd
}

func runSearch(cmd *cobra.Command, root *rootOptions, query string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return herrors.ValidationError(fmt.Sprintf("unknown format %q", opts.format), nil).
			WithSuggestion("Use --format text or --format json")
	}

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

	if len(svc.Retriever().Passages()) == 0 {
		return herrors.New(herrors.ErrCodeCorpusNotFound, "no index found", nil).
			WithSuggestion("Run 'hybridrag index' first")
	}

	topK := opts.topK
	if topK <= 0 {
		topK = sess.cfg.Search.TopK
	}
	results, err := svc.Search(cmd.Context(), query, topK)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		if results == nil {
			results = []search.Result{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	hits := make([]output.Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, output.Hit{
			ID:      r.ID,
			Content: r.Content,
			Score:   r.Score,
			Vector:  r.VectorScore,
			Lexical: r.LexicalScore,
		})
	}
	output.New(cmd.OutOrStdout()).Results(query, hits, opts.width)
	return nil
}
