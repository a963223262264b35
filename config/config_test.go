package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesa/pos-edge/config"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "./data/edge.db", cfg.DBPath)
	assert.Empty(t, cfg.CloudURL)
	assert.Equal(t, 500, cfg.SyncCeiling)
	assert.Equal(t, 2*time.Second, cfg.PushDebounce)
}

func TestParse_Flags(t *testing.T) {
	cfg, err := config.Parse([]string{
		"-a", ":9090",
		"-d", "/tmp/test.db",
		"-c", "https://cloud.example.com/ingest",
		"-tax", "0.06",
		"-sync-ceiling", "50",
	})
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, "https://cloud.example.com/ingest", cfg.CloudURL)
	assert.InEpsilon(t, 0.06, cfg.TaxRate, 1e-9)
	assert.Equal(t, 50, cfg.SyncCeiling)
}

func TestParse_EnvOverridesFlags(t *testing.T) {
	t.Setenv("EDGE_ADDR", ":7070")
	t.Setenv("EDGE_PUSH_DEBOUNCE", "500ms")

	cfg, err := config.Parse([]string{"-a", ":9090"})
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Addr, "environment wins over flags")
	assert.Equal(t, 500*time.Millisecond, cfg.PushDebounce)
}

func TestParse_InvalidTaxRate_Rejected(t *testing.T) {
	_, err := config.Parse([]string{"-tax", "1.5"})
	assert.Error(t, err)
}

func TestParse_EmptyDBPath_Rejected(t *testing.T) {
	t.Setenv("EDGE_DB_PATH", "")
	_, err := config.Parse([]string{"-d", ""})
	assert.Error(t, err)
}
