// Package config loads and validates hoard configuration and builds
// backends from it.
//
// Each backend defines its own configuration type; the Config struct
// carries one map[string]any section per backend and only the section
// matching the selected type is decoded (see factories.go).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the complete hoard configuration.
//
// Sources, in order of precedence:
//  1. Environment variables (HOARD_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Cache contains engine-wide settings shared by both halves
	Cache CacheConfig `mapstructure:"cache"`

	// Content selects the content store backend and its options
	Content ContentConfig `mapstructure:"content"`

	// Index selects the index backend and its options
	Index IndexConfig `mapstructure:"index"`

	// Metrics controls the Prometheus registry
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// CacheConfig contains engine-wide settings.
type CacheConfig struct {
	// Root is the cache directory. Backends that did not get an explicit
	// path default to subpaths of this directory.
	Root string `mapstructure:"root" validate:"required"`

	// Algorithm is the default content-address algorithm for writes
	Algorithm string `mapstructure:"algorithm" validate:"required,oneof=sha1 sha256 sha512 blake3"`
}

// ContentConfig selects and configures the content store.
//
// Only the section matching Type is decoded.
type ContentConfig struct {
	// Type specifies which content store implementation to use
	// Valid values: filesystem, memory, s3
	Type string `mapstructure:"type" validate:"required,oneof=filesystem memory s3"`

	// Filesystem contains filesystem-specific configuration
	Filesystem map[string]any `mapstructure:"filesystem"`

	// Memory contains memory-specific configuration
	Memory map[string]any `mapstructure:"memory"`

	// S3 contains S3-specific configuration
	S3 map[string]any `mapstructure:"s3"`
}

// IndexConfig selects and configures the index.
//
// Only the section matching Type is decoded.
type IndexConfig struct {
	// Type specifies which index implementation to use
	// Valid values: file, badger
	Type string `mapstructure:"type" validate:"required,oneof=file badger"`

	// File contains file-log-specific configuration
	File map[string]any `mapstructure:"file"`

	// Badger contains BadgerDB-specific configuration
	Badger map[string]any `mapstructure:"badger"`
}

// MetricsConfig controls operation metrics collection.
type MetricsConfig struct {
	// Enabled turns on the Prometheus collectors
	Enabled bool `mapstructure:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
//
// configPath selects an explicit config file; the empty string searches
// the default location ($XDG_CONFIG_HOME/hoard/config.yaml).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variable and config file handling.
// Environment variables use the HOARD_ prefix with underscores, e.g.
// HOARD_LOGGING_LEVEL=DEBUG or HOARD_CACHE_ROOT=/var/cache/hoard.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("HOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if one exists. A missing
// file is not an error; defaults and environment cover everything.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory: XDG_CONFIG_HOME if
// set, otherwise ~/.config, falling back to the current directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "hoard")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "hoard")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
