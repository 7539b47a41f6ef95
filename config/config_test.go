package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conversantai/retrieval-engine/config"
)

func TestLoadMissingFileReturnsEmptyConfig(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Addr)
	assert.True(t, cfg.WidgetEnabled("hotel"))
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "addr: \":9090\"\nsessionTtl: \"10m\"\nprovider:\n  name: anthropic\n  defaultModel: claude-sonnet-4-5\nwidgets:\n  hotel: false\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "10m", cfg.SessionTTL)
	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.False(t, cfg.WidgetEnabled("hotel"))
	assert.True(t, cfg.WidgetEnabled("product"))
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: [unterminated"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}
