// Package config loads the archivist settings from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Defacto2/archivist/rar"
	"github.com/Defacto2/archivist/rezip"
	"gopkg.in/yaml.v3"
)

// Config holds the archivist settings read from the YAML config file.
type Config struct {
	ToolFolder     string        `yaml:"tool_folder"`
	ScratchDir     string        `yaml:"scratch_dir"`
	GrowThreshold  int64         `yaml:"grow_threshold"`
	StorePatterns  []string      `yaml:"store_patterns"`
	ListTimeout    time.Duration `yaml:"list_timeout"`
	ExtractTimeout time.Duration `yaml:"extract_timeout"`
	AddTimeout     time.Duration `yaml:"add_timeout"`
	Workers        int           `yaml:"workers"`
}

// DefaultConfig returns the settings used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		ToolFolder:    defaultToolFolder(),
		ScratchDir:    os.TempDir(),
		GrowThreshold: rezip.DefaultGrowThreshold,
		StorePatterns: rezip.DefaultStorePatterns(),
		Workers:       4,
	}
}

func defaultToolFolder() string {
	if dir := os.Getenv("ARCHIVIST_RAR"); dir != "" {
		return dir
	}
	return filepath.Join(string(filepath.Separator), "usr", "local", "rar")
}

// ConfigPath returns the default config file location, .archivist/config.yaml
// in the home directory.
func ConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".archivist", "config.yaml")
}

// Load reads the named config file. A missing file returns the defaults,
// and settings absent from the file keep their default values.
// An empty name uses ConfigPath.
func Load(name string) (*Config, error) {
	cfg := DefaultConfig()
	if name == "" {
		name = ConfigPath()
	}
	data, err := os.ReadFile(name)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config load %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config load %s: %w", name, err)
	}
	cfg.ToolFolder = ExpandPath(cfg.ToolFolder)
	cfg.ScratchDir = ExpandPath(cfg.ScratchDir)
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return cfg, nil
}

// Save writes the config to the named file. An empty name uses ConfigPath.
func (c *Config) Save(name string) error {
	if name == "" {
		name = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("config save %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config save %w", err)
	}
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return fmt.Errorf("config save %w", err)
	}
	return nil
}

// Policy returns the write policy built from the grow threshold and store patterns.
func (c *Config) Policy() (rezip.Policy, error) {
	return rezip.NewPolicy(c.GrowThreshold, c.StorePatterns...)
}

// Timeouts returns the time limits of the rar program runs.
func (c *Config) Timeouts() rar.Timeouts {
	return rar.Timeouts{
		List:    c.ListTimeout,
		Extract: c.ExtractTimeout,
		Add:     c.AddTimeout,
	}
}

// ExpandPath expands ~ to home directory
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
