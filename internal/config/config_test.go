package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
server:
  port: 18080
  read_timeout: 30s
  write_timeout: 5m
monitoring:
  log_level: info
  log_format: json
  log_output: stdout
  metrics_enabled: true
debug_trace:
  enabled: true
providers:
  cerebras:
    base_url: ${TEST_CEREBRAS_URL:-https://api.cerebras.ai/v1}
    api_key: ${TEST_CEREBRAS_KEY}
    timeout: 60s
    capability_params:
      request:
        allowlist: [temperature, max_tokens, reasoning.effort]
    models:
      gpt-oss-120b:
        capability_params:
          params:
            top_p: true
`

func TestLoadFromBytes_Valid(t *testing.T) {
	t.Setenv("TEST_CEREBRAS_KEY", "secret")

	cfg, err := LoadFromBytes([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, 18080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, BiasInput, cfg.Usage.TotalOnlyBias)
	assert.Equal(t, DefaultTraceTTL, cfg.DebugTrace.TTL)
	assert.Equal(t, DefaultTraceMaxEntries, cfg.DebugTrace.MaxEntries)
	assert.Equal(t, "/metrics", cfg.Monitoring.MetricsRoute())

	prov, ok := cfg.Providers.Get("Cerebras")
	require.True(t, ok)
	assert.Equal(t, "https://api.cerebras.ai/v1", prov.BaseURL)
	assert.Equal(t, "secret", prov.APIKey)
	assert.Equal(t, 60*time.Second, prov.Timeout)
}

func TestCapabilityFor(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(validYAML))
	require.NoError(t, err)

	provDefault := cfg.CapabilityFor("cerebras", "llama-3.3-70b")
	require.NotNil(t, provDefault)
	assert.Contains(t, provDefault, "request")

	override := cfg.CapabilityFor("cerebras", "gpt-oss-120b")
	require.NotNil(t, override)
	assert.Contains(t, override, "params")
	assert.NotContains(t, override, "request")

	assert.Nil(t, cfg.CapabilityFor("unknown", "x"))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing port",
			yaml: "server:\n  read_timeout: 1s\n  write_timeout: 1s\n",
			want: "server.port is required",
		},
		{
			name: "bad bias",
			yaml: "server:\n  port: 1\n  read_timeout: 1s\n  write_timeout: 1s\nusage:\n  total_only_bias: half\n",
			want: "usage.total_only_bias",
		},
		{
			name: "bad log format",
			yaml: "server:\n  port: 1\n  read_timeout: 1s\n  write_timeout: 1s\nmonitoring:\n  log_format: xml\n",
			want: "monitoring.log_format",
		},
		{
			name: "negative rate limit",
			yaml: "server:\n  port: 1\n  read_timeout: 1s\n  write_timeout: 1s\n  rate_limit: -1\n",
			want: "server.rate_limit",
		},
		{
			name: "provider without url",
			yaml: "server:\n  port: 1\n  read_timeout: 1s\n  write_timeout: 1s\nproviders:\n  x:\n    api_key: k\n",
			want: "providers.x.base_url is required",
		},
		{
			name: "provider with relative url",
			yaml: "server:\n  port: 1\n  read_timeout: 1s\n  write_timeout: 1s\nproviders:\n  x:\n    base_url: /v1\n",
			want: "not a valid URL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_File(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cerebras"}, cfg.Providers.IDs())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestExpandEnvWithDefaults(t *testing.T) {
	t.Setenv("TEST_SET", "value")
	assert.Equal(t, "value", expandEnvWithDefaults("${TEST_SET:-other}"))
	assert.Equal(t, "fallback", expandEnvWithDefaults("${TEST_UNSET_VAR_X:-fallback}"))
	assert.Equal(t, "", expandEnvWithDefaults("${TEST_UNSET_VAR_X}"))
}
