// Package config handles reading the recoverd configuration file.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for recoverd.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Scan     ScanConfig     `toml:"scan"`
	Recovery RecoveryConfig `toml:"recovery"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	MaxPreviewSizeMB int64  `toml:"max_preview_size_mb"`
}

// ScanConfig holds scanner settings.
type ScanConfig struct {
	SnapshotMountBase string `toml:"snapshot_mount_base"`
}

// RecoveryConfig holds recovery defaults.
type RecoveryConfig struct {
	DefaultDestination string `toml:"default_destination"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Host:             "127.0.0.1",
			Port:             8844,
			MaxPreviewSizeMB: 10,
		},
		Scan: ScanConfig{
			SnapshotMountBase: "/tmp/recoverd-snapshots",
		},
		Recovery: RecoveryConfig{
			DefaultDestination: filepath.Join(home, "Recovered"),
		},
	}
}

// Read decodes a Config from the provided reader on top of the defaults, so
// a partial file only overrides what it names.
func Read(r io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Load reads the config file at path. A missing file is not an error: the
// defaults are returned.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// MaxPreviewBytes converts the configured preview limit to bytes.
func (c *Config) MaxPreviewBytes() int64 {
	return c.Server.MaxPreviewSizeMB * 1024 * 1024
}
