package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marmos91/dittofs-namespace/pkg/namespace"
)

// Config represents the complete dittons configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTONS_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// The generation source follows the type-specific section pattern: the
// Type field selects the implementation and only the matching section
// (generation.memory, generation.badger) is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Namespace shapes the path <-> inode index
	Namespace NamespaceConfig `mapstructure:"namespace" yaml:"namespace"`

	// Generation selects where new inode generations come from
	Generation GenerationConfig `mapstructure:"generation" yaml:"generation"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path (rotated)
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// MetricsConfig controls the metrics HTTP server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port the /metrics endpoint listens on
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
}

// NamespaceConfig describes the namespace of one export.
type NamespaceConfig struct {
	// Name is the export path, used in logs and metric labels
	Name string `mapstructure:"name" yaml:"name" validate:"required,startswith=/"`

	// Root is the identity of the export root
	Root RootConfig `mapstructure:"root" yaml:"root"`

	// MaxNameLen bounds entry names in bytes
	MaxNameLen int `mapstructure:"max_name_len" yaml:"max_name_len" validate:"gt=0,lte=4096"`

	// MaxPathLen bounds reconstructed paths in bytes
	MaxPathLen int `mapstructure:"max_path_len" yaml:"max_path_len" validate:"gt=0"`

	LookupTable TableConfig `mapstructure:"lookup_table" yaml:"lookup_table"`
	NodeTable   TableConfig `mapstructure:"node_table" yaml:"node_table"`
}

// RootConfig identifies the export root.
type RootConfig struct {
	Device uint64 `mapstructure:"device" yaml:"device"`
	Inode  uint64 `mapstructure:"inode" yaml:"inode" validate:"gt=0"`

	// Generation of the root. Zero draws one from the generation source.
	Generation uint32 `mapstructure:"generation" yaml:"generation"`
}

// TableConfig shapes one of the namespace indexes.
type TableConfig struct {
	IndexSize      uint32 `mapstructure:"index_size" yaml:"index_size" validate:"gt=0"`
	AlphabetLength uint32 `mapstructure:"alphabet_length" yaml:"alphabet_length"`

	// OrderHash selects the in-bucket ordering hash
	// Valid values: classic, xxhash, cityhash
	OrderHash string `mapstructure:"order_hash" yaml:"order_hash" validate:"required,oneof=classic xxhash cityhash"`

	// CacheSize is the number of lookup cache slots per bucket (0 disables)
	CacheSize uint32 `mapstructure:"cache_size" yaml:"cache_size"`
}

// GenerationConfig specifies the generation source.
type GenerationConfig struct {
	// Type specifies which generation source to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Memory contains counter-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
}

// NamespaceOptions converts the section into namespace.Config.
func (c *NamespaceConfig) NamespaceOptions() namespace.Config {
	return namespace.Config{
		Name:        c.Name,
		LookupTable: c.LookupTable.tableConfig(),
		NodeTable:   c.NodeTable.tableConfig(),
		MaxNameLen:  c.MaxNameLen,
		MaxPathLen:  c.MaxPathLen,
	}
}

func (c TableConfig) tableConfig() namespace.TableConfig {
	return namespace.TableConfig{
		IndexSize:      c.IndexSize,
		AlphabetLength: c.AlphabetLength,
		OrderHash:      c.OrderHash,
		CacheSize:      c.CacheSize,
	}
}

// RootID returns the configured root inode.
func (c *RootConfig) RootID() namespace.InodeID {
	return namespace.InodeID{Device: c.Device, Inode: c.Inode}
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTONS_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
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

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DITTONS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTONS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/dittons/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file: defaults and environment only
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittons")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittons")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
