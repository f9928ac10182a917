package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackables/bridge/pkg/config"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := config.Load([]byte(`cache_size: 10`))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "off", cfg.TraceLevel)
	assert.Equal(t, 10, cfg.CacheSize)
}

func TestLoad_DecodesNamespacesFromCommaSeparatedString(t *testing.T) {
	cfg, err := config.Load([]byte(`namespaces: "std,geo"`))
	require.NoError(t, err)
	assert.Equal(t, []string{"std", "geo"}, cfg.Namespaces)
}

func TestLoad_RejectsUnknownLogLevel(t *testing.T) {
	_, err := config.Load([]byte(`log_level: verbose`))
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownTraceLevel(t *testing.T) {
	_, err := config.Load([]byte(`trace_level: loud`))
	assert.Error(t, err)
}

func TestLoad_RejectsNegativeCacheSize(t *testing.T) {
	_, err := config.Load([]byte(`cache_size: -1`))
	assert.Error(t, err)
}

func TestLoadFile_MissingFileErrors(t *testing.T) {
	_, err := config.LoadFile("/nonexistent/bridge-config.yaml")
	assert.Error(t, err)
}
