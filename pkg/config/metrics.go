package config

import (
	"github.com/marmos91/dittofs-namespace/pkg/metrics"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Namespace records namespace operations (never nil, noop if disabled)
	Namespace metrics.NamespaceMetrics

	// HashTable records index operations (never nil, noop if disabled)
	HashTable metrics.HashTableMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled the global Prometheus registry is initialized and
// Prometheus-backed collectors are returned together with the HTTP server.
// Otherwise the server is nil and no-op collectors are returned.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Namespace: metrics.NoopNamespaceMetrics(),
			HashTable: metrics.NoopHashTableMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port:            cfg.Metrics.Port,
		ShutdownTimeout: cfg.ShutdownTimeout,
	})

	return &MetricsResult{
		Server:    server,
		Namespace: metrics.NewNamespaceMetrics(),
		HashTable: metrics.NewHashTableMetrics(),
	}
}
