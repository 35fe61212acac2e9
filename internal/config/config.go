// Package config loads the workflow configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// EnvPath overrides the configuration file location.
	EnvPath = "WORKFLOW_CONFIG"

	DefaultPath = ".workflow/config.yaml"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Log      LogConfig      `yaml:"log"`
	NATS     NATSConfig     `yaml:"nats"`
	Server   ServerConfig   `yaml:"server"`
	Actions  ActionsConfig  `yaml:"actions"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type SnapshotConfig struct {
	Path string `yaml:"path"`
	// Auto exports a snapshot after every committed write.
	Auto bool `yaml:"auto"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type NATSConfig struct {
	// URL of the NATS server. Empty means messages are only logged.
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type ActionsConfig struct {
	// Disabled names built-in actions left out of the registry.
	Disabled []string `yaml:"disabled,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the configuration file at path. An empty path falls back to
// $WORKFLOW_CONFIG and then to .workflow/config.yaml; a missing fallback
// file yields the defaults. Fields left out of the file get defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvPath)
		explicit = path != ""
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = ".workflow/workflow.db"
	}
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = ".workflow/snapshot.jsonl"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.NATS.Prefix == "" {
		c.NATS.Prefix = "workflow"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
}

// Save writes c to path, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
