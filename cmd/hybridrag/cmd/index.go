package cmd

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridrag/internal/index"
	"github.com/Aman-CERP/hybridrag/internal/output"
)

// indexSummary is the --json output of the index command.
type indexSummary struct {
	CorpusDir string  `json:"corpus_dir"`
	Documents int     `json:"documents"`
	Passages  int     `json:"passages"`
	Vectors   int     `json:"vectors"`
	Seconds   float64 `json:"seconds"`
}

func newIndexCmd(root *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the corpus directory",
		Long: `Load, clean and chunk every document in the corpus directory, embed the
passages and rebuild the keyword and vector indexes.

The index is written to the data directory (.hybridrag by default) and
replaces the previous one only when every stage succeeds.`,
		Example: `  hybridrag index
  hybridrag index -C ~/notes
  hybridrag index --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd, root, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the summary as JSON")
	return cmd
}

func runIndex(cmd *cobra.Command, root *rootOptions, jsonOutput bool) error {
	sess, err := newSession(root)
	if err != nil {
		return err
	}
	defer sess.close()

	out := output.New(cmd.OutOrStdout())
	var opts []index.Option
	if !jsonOutput {
		opts = append(opts, index.WithProgress(func(stage string, step, total int) {
			out.Progress(step, total, stage)
		}))
	}

	svc, err := sess.open(cmd.Context(), opts...)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	res, err := svc.Reindex(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(indexSummary{
			CorpusDir: sess.corpusDir,
			Documents: res.Documents,
			Passages:  res.Passages,
			Vectors:   res.Vectors,
			Seconds:   res.Duration.Seconds(),
		})
	}

	out.Successf("Indexed %d documents into %d passages", res.Documents, res.Passages)
	out.KeyValue("Vectors", res.Vectors)
	out.KeyValue("Data dir", sess.dataDir)
	out.KeyValue("Load", res.Timing.Load.Round(time.Millisecond))
	out.KeyValue("Embed", res.Timing.Embed.Round(time.Millisecond))
	out.KeyValue("Lexical", res.Timing.Lexical.Round(time.Millisecond))
	out.KeyValue("Persist", res.Timing.Persist.Round(time.Millisecond))
	out.KeyValue("Total", res.Duration.Round(time.Millisecond))
	return nil
}
