package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittofs-namespace/pkg/hashtable"
	"github.com/marmos91/dittofs-namespace/pkg/namespace"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", nil) are replaced with defaults; explicit values are
// preserved. Source-specific defaults are handled by the source factories.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
	applyNamespaceDefaults(&cfg.Namespace)
	applyGenerationDefaults(&cfg.Generation)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyNamespaceDefaults(cfg *NamespaceConfig) {
	if cfg.Name == "" {
		cfg.Name = "/export"
	}
	if cfg.Root.Inode == 0 {
		cfg.Root.Device = 1
		cfg.Root.Inode = 2
	}
	if cfg.MaxNameLen == 0 {
		cfg.MaxNameLen = namespace.DefaultMaxNameLen
	}
	if cfg.MaxPathLen == 0 {
		cfg.MaxPathLen = namespace.DefaultMaxPathLen
	}

	applyTableDefaults(&cfg.LookupTable, namespace.DefaultLookupAlphabetLength)
	applyTableDefaults(&cfg.NodeTable, namespace.DefaultNodeAlphabetLength)
}

func applyTableDefaults(cfg *TableConfig, alphabet uint32) {
	if cfg.IndexSize == 0 {
		cfg.IndexSize = namespace.DefaultIndexSize
	}
	if cfg.AlphabetLength == 0 {
		cfg.AlphabetLength = alphabet
	}
	if cfg.OrderHash == "" {
		cfg.OrderHash = hashtable.OrderClassic
	}
	cfg.OrderHash = strings.ToLower(cfg.OrderHash)
}

// applyGenerationDefaults sets generation source defaults.
func applyGenerationDefaults(cfg *GenerationConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for generating sample configuration files and for tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Generation: GenerationConfig{
			Memory: map[string]any{"start": 1},
			Badger: map[string]any{
				"path":      defaultGenerationPath(),
				"bandwidth": 1000,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}

func defaultGenerationPath() string {
	return filepath.Join(getConfigDir(), "generations")
}
