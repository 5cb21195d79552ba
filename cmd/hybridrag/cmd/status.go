package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridrag/internal/output"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index status",
		Long: `Show what is indexed, which embedder is active and whether the keyword
and vector indexes agree with the stored corpus.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, root, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, root *rootOptions, jsonOutput bool) error {
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

	st, err := svc.Status(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	out := output.New(cmd.OutOrStdout())
	out.Header("Index")
	out.KeyValue("Corpus", st.CorpusDir)
	out.KeyValue("Data dir", st.DataDir)
	out.KeyValue("Documents", st.Sources)
	out.KeyValue("Passages", st.Passages)
	out.KeyValue("Vectors", st.Vectors)
	if st.IndexedAt.IsZero() {
		out.KeyValue("Indexed", "never")
	} else {
		out.KeyValue("Indexed", st.IndexedAt.Local().Format(time.RFC1123))
	}

	out.Newline()
	out.Header("Retrieval")
	out.KeyValue("Embedder", string(st.Embedder.Provider))
	if st.Embedder.Model != "" {
		out.KeyValue("Model", st.Embedder.Model)
		out.KeyValue("Dimensions", st.Embedder.Dimensions)
		if st.Embedder.Cached {
			out.KeyValue("Cache", fmt.Sprintf("%d hits, %d misses", st.Embedder.CacheHits, st.Embedder.CacheMisses))
		}
	}
	out.KeyValue("Lexical", st.LexicalEngine)
	out.KeyValue("Fusion", st.Retriever.Fusion)
	out.KeyValue("Alpha", st.Retriever.Alpha)
	out.KeyValue("Vector circuit", st.Retriever.BreakerState)

	out.Newline()
	if st.Consistency == nil || st.Consistency.Consistent() {
		out.Success("Keyword and vector indexes match the corpus")
		return nil
	}
	out.Warningf("%d inconsistencies found; run 'hybridrag index' to rebuild", len(st.Consistency.Inconsistencies))
	for _, inc := range st.Consistency.Inconsistencies {
		if inc.PassageID != "" {
			out.Statusf("", "%s %s", inc.Type, inc.PassageID)
		} else {
			out.Statusf("", "%s %s", inc.Type, inc.Details)
		}
	}
	return nil
}
