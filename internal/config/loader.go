// Package config loads the mcudbg configuration from defaults, a YAML file,
// MCUDBG_* environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/mcudbg/internal/constants"
)

// DirEnv overrides the directory holding the configuration file.
var DirEnv = constants.EnvPrefix + "CONFIG_DIR"

// Dir returns the configuration directory: $MCUDBG_CONFIG_DIR, else
// ~/.mcudbg, else a directory under the system temp dir when there is no home.
func Dir() string {
	if dir := os.Getenv(DirEnv); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, constants.DefaultDir)
	}
	return filepath.Join(os.TempDir(), "mcudbg")
}

// DefaultPath returns the path of the default configuration file.
func DefaultPath() string {
	return filepath.Join(Dir(), constants.ConfigFile)
}

// Load builds the configuration with every layer, reading path or the default
// file when path is empty, and validates it.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg, err := NewLayeredLoader().Load(path, flags)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating the directory if needed.
func Save(path string, cfg *Config) error {
	//nolint:gosec // G301: Directory needs standard permissions for traversal
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	//nolint:gosec // G306: The file holds no secrets.
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Marshal encodes cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
