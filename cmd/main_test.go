package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/dialect-gateway/internal/config"
	"github.com/compresr/dialect-gateway/internal/monitoring"
)

func TestEmbeddedConfigLoads(t *testing.T) {
	names, err := listEmbeddedConfigs()
	require.NoError(t, err)
	assert.Contains(t, names, "config")

	data, err := getEmbeddedConfig("config")
	require.NoError(t, err)

	cfg, err := config.LoadFromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, config.BiasInput, cfg.Usage.TotalOnlyBias)

	prov, ok := cfg.Providers.Get("cerebras")
	require.True(t, ok)
	assert.NotEmpty(t, cfg.CapabilityFor("cerebras", "gpt-oss-120b"))
	assert.Equal(t, "https://api.cerebras.ai/v1", prov.BaseURL)
}

func TestResolveServeConfig_UserPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gw.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 1\n"), 0o600))

	data, source, err := resolveServeConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, source)
	assert.Equal(t, "server:\n  port: 1\n", string(data))

	_, _, err = resolveServeConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuildGateway(t *testing.T) {
	data, err := getEmbeddedConfig("config")
	require.NoError(t, err)
	cfg, err := config.LoadFromBytes(data)
	require.NoError(t, err)
	cfg.DebugTrace.Enabled = true

	c := buildGateway(cfg, monitoring.New(monitoring.LoggerConfig{Level: "error"}))
	defer c.Close()
	require.NotNil(t, c.traces)

	handler := c.gateway.Handler()
	for _, path := range []string{"/health", "/metrics"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
