package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/hybridrag/internal/config"
)

// The templates document the defaults, so decoding them over the defaults
// must change nothing.
func TestTemplates_MatchDefaults(t *testing.T) {
	tests := []struct {
		name     string
		template string
	}{
		{"project", ProjectConfigTemplate},
		{"user", UserConfigTemplate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotEmpty(t, tt.template)

			cfg := config.NewConfig()
			require.NoError(t, yaml.Unmarshal([]byte(tt.template), cfg))

			assert.Equal(t, config.NewConfig(), cfg)
			assert.NoError(t, cfg.Validate())
		})
	}
}
