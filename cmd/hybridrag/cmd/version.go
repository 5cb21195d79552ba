package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridrag/internal/embed"
	"github.com/Aman-CERP/hybridrag/internal/lexical"
	"github.com/Aman-CERP/hybridrag/internal/search"
	"github.com/Aman-CERP/hybridrag/pkg/version"
)

// versionInfo adds the compiled-in backends to the build info.
type versionInfo struct {
	version.BuildInfo
	LexicalBackends []string `json:"lexical_backends"`
	FusionMethods   []string `json:"fusion_methods"`
	Embedders       []string `json:"embedders"`
}

func currentVersion() versionInfo {
	return versionInfo{
		BuildInfo:       version.GetInfo(),
		LexicalBackends: []string{lexical.BackendOkapi, lexical.BackendBleve},
		FusionMethods:   []string{search.FusionLinear, search.FusionRRF},
		Embedders:       embed.ValidProviders(),
	}
}

func newVersionCmd() *cobra.Command {
	var jsonOutput, short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			info := currentVersion()
			switch {
			case short:
				_, err := fmt.Fprintln(w, version.Short())
				return err
			case jsonOutput:
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			_, _ = fmt.Fprintln(w, version.String())
			_, _ = fmt.Fprintf(w, "  lexical:   %s\n", strings.Join(info.LexicalBackends, ", "))
			_, _ = fmt.Fprintf(w, "  fusion:    %s\n", strings.Join(info.FusionMethods, ", "))
			_, err := fmt.Fprintf(w, "  embedders: %s\n", strings.Join(info.Embedders, ", "))
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return cmd
}
