// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"
)

// FileName is the name of the config file inside the repository directory.
const FileName = "config"

type Config struct {
	Core struct {
		DefaultBranch string `ini:"default_branch"`
		LogLevel      string `ini:"log_level"` // debug, info, warn, error
	} `ini:"core"`

	Storage struct {
		CacheSize        int `ini:"cache_size"`        // blobs kept in memory
		CompressMinSize  int `ini:"compress_min_size"` // bytes
		CompressionLevel int `ini:"compression_level"` // 1=fastest, 4=best
	} `ini:"storage"`
}

// Default returns the configuration written by a fresh init.
func Default() *Config {
	var c Config
	c.Core.DefaultBranch = "master"
	c.Core.LogLevel = "warn"
	c.Storage.CacheSize = 1000
	c.Storage.CompressMinSize = 1024
	c.Storage.CompressionLevel = 2
	return &c
}

// Load reads the INI file at path on top of the defaults. A missing file is
// not an error. PYGIT_LOG_LEVEL overrides the configured log level.
func Load(path string) (*Config, error) {
	config := Default()

	// Loose mode treats a missing file as empty.
	file, err := ini.LoadSources(ini.LoadOptions{Loose: true}, path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	if err := file.MapTo(config); err != nil {
		return nil, fmt.Errorf("mapping config %s: %w", path, err)
	}

	if level := os.Getenv("PYGIT_LOG_LEVEL"); level != "" {
		config.Core.LogLevel = level
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return config, nil
}

func (c *Config) Validate() error {
	branch := c.Core.DefaultBranch
	if branch == "" || strings.ContainsAny(branch, " \t\n") || strings.Contains(branch, "..") {
		return fmt.Errorf("bad default_branch %q", branch)
	}
	if c.Storage.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive")
	}
	if c.Storage.CompressionLevel < 1 || c.Storage.CompressionLevel > 4 {
		return fmt.Errorf("compression_level must be between 1 and 4")
	}
	return nil
}

// Save writes c to path as INI.
func (c *Config) Save(path string) error {
	file := ini.Empty()
	if err := ini.ReflectFrom(file, c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return file.SaveTo(path)
}
