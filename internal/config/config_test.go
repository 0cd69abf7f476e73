package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PYGIT_LOG_LEVEL", "")

	c, err := Load(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestSaveAndLoad(t *testing.T) {
	t.Setenv("PYGIT_LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), FileName)

	c := Default()
	c.Core.DefaultBranch = "main"
	c.Storage.CacheSize = 16
	require.NoError(t, c.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestLoadPartialFile(t *testing.T) {
	t.Setenv("PYGIT_LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("[core]\nlog_level = debug\n"), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Core.LogLevel)
	assert.Equal(t, "master", c.Core.DefaultBranch)
	assert.Equal(t, 1000, c.Storage.CacheSize)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PYGIT_LOG_LEVEL", "error")

	c, err := Load(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.Equal(t, "error", c.Core.LogLevel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty branch", func(c *Config) { c.Core.DefaultBranch = "" }},
		{"branch with space", func(c *Config) { c.Core.DefaultBranch = "my branch" }},
		{"zero cache", func(c *Config) { c.Storage.CacheSize = 0 }},
		{"level too high", func(c *Config) { c.Storage.CompressionLevel = 9 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
