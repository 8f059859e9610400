package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Defacto2/archivist/config"
	"github.com/Defacto2/archivist/rezip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	assert.Equal(t, rezip.DefaultGrowThreshold, cfg.GrowThreshold)
	assert.Equal(t, rezip.DefaultStorePatterns(), cfg.StorePatterns)
	assert.Equal(t, 4, cfg.Workers)
	assert.Zero(t, cfg.ListTimeout)
	assert.NotEmpty(t, cfg.ToolFolder)

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.True(t, p.Store("cover.png"))
	assert.False(t, p.Store("notes.txt"))
}

func TestConfigPath(t *testing.T) {
	t.Parallel()
	name := config.ConfigPath()
	assert.Equal(t, "config.yaml", filepath.Base(name))
	assert.Equal(t, ".archivist", filepath.Base(filepath.Dir(name)))
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().GrowThreshold, cfg.GrowThreshold)
}

func TestLoad(t *testing.T) {
	t.Parallel()
	name := filepath.Join(t.TempDir(), "config.yaml")
	data := "tool_folder: /opt/rar\n" +
		"grow_threshold: 1024\n" +
		"store_patterns: [\"*.gif\"]\n" +
		"list_timeout: 30s\n" +
		"workers: 0\n"
	require.NoError(t, os.WriteFile(name, []byte(data), 0o644))
	cfg, err := config.Load(name)
	require.NoError(t, err)
	assert.Equal(t, "/opt/rar", cfg.ToolFolder)
	assert.Equal(t, int64(1024), cfg.GrowThreshold)
	assert.Equal(t, []string{"*.gif"}, cfg.StorePatterns)
	assert.Equal(t, 30*time.Second, cfg.ListTimeout)
	assert.Equal(t, 30*time.Second, cfg.Timeouts().List)
	assert.Zero(t, cfg.Timeouts().Add)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, os.TempDir(), cfg.ScratchDir)

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.True(t, p.Store("a.gif"))
	assert.False(t, p.Store("a.png"))
	assert.True(t, p.Grow(1025))
}

func TestLoadInvalid(t *testing.T) {
	t.Parallel()
	name := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(name, []byte("workers: [nope"), 0o644))
	_, err := config.Load(name)
	require.Error(t, err)
}

func TestSave(t *testing.T) {
	t.Parallel()
	name := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := config.DefaultConfig()
	cfg.AddTimeout = time.Minute
	cfg.Workers = 8
	require.NoError(t, cfg.Save(name))
	got, err := config.Load(name)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestExpandPath(t *testing.T) {
	t.Parallel()
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "rar"), config.ExpandPath("~/rar"))
	assert.Equal(t, "/abs", config.ExpandPath("/abs"))
}
