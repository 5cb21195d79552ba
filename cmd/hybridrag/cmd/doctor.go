package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridrag/internal/config"
	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/output"
	"github.com/Aman-CERP/hybridrag/internal/preflight"
)

func newDoctorCmd(root *rootOptions) *cobra.Command {
	var (
		jsonOutput, verbose bool
		timeout             time.Duration
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the corpus can be indexed and searched",
		Long: `Run preflight checks on configuration, the corpus and data directories,
disk space, the embedder and the index. Exits non-zero when a required
check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, root, jsonOutput, verbose, timeout)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for every check")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for the embedder to respond")
	return cmd
}

func runDoctor(cmd *cobra.Command, root *rootOptions, jsonOutput, verbose bool, timeout time.Duration) error {
	// No newSession here: an invalid config is a finding, not an error.
	corpusDir, err := filepath.Abs(root.dir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	cfg, err := config.Resolve(corpusDir)
	if err != nil {
		return err
	}

	report := preflight.New(cfg, corpusDir, preflight.WithEmbedderTimeout(timeout)).Run(cmd.Context())

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(output.New(cmd.OutOrStdout()), report, verbose)
	}

	if report.Critical() {
		return herrors.New(herrors.ErrCodeConfigInvalid, "required checks failed", nil).
			WithSuggestion("fix the failed checks above and run 'hybridrag doctor' again")
	}
	return nil
}

func printReport(out *output.Writer, report preflight.Report, verbose bool) {
	out.Header("hybridrag doctor")
	for _, r := range report.Results {
		icon := "✓"
		switch r.Status {
		case preflight.StatusWarn:
			icon = "!"
		case preflight.StatusFail:
			icon = "✗"
		}
		out.Statusf(icon, "%-17s %s", r.Name, r.Message)
		if r.Details != "" && (verbose || r.Status != preflight.StatusPass) {
			out.Statusf(" ", "%-17s %s", "", r.Details)
		}
	}
	out.Newline()
	out.KeyValue("Status", strings.ToUpper(report.Summary))
}
