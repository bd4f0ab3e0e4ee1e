package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "app:\n  log_level: debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, ":9980", cfg.HTTP.Addr)
	assert.Equal(t, "binance", cfg.Market.DefaultExchange)
	assert.Equal(t, 15, cfg.Backend.TimeoutSeconds)
	assert.Equal(t, 1600, cfg.Chart.WidthPx)
}

func TestLoad_IncludeMergesWithOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "http:\n  addr: \":1111\"\nmarket:\n  coalesce_fetches: true\n")
	path := writeFile(t, dir, "config.yaml", "include:\n  - base.yaml\nhttp:\n  addr: \":2222\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":2222", cfg.HTTP.Addr, "including file wins")
	assert.True(t, cfg.Market.CoalesceFetches, "included settings survive")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Empty(t, cfg.Backend.BaseURL)
}
