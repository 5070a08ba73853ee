// Package metrics provides Prometheus metrics collection for the namespace
// server components.
//
// All metrics are optional - if the registry is not initialized, components
// use no-op implementations. This allows the server to run with or without
// metrics collection enabled.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	tableMetrics := metrics.NewHashTableMetrics()
//	nsMetrics := metrics.NewNamespaceMetrics()
//
//	// Or pass nothing for no-op behavior
//	ns, err := namespace.New(cfg)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is the global Prometheus registry for all metrics.
	// Protected by registryOnce for write-once, read-many pattern
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// This must be called before creating any metrics instances. It's safe to call
// multiple times - subsequent calls are ignored.
//
// Go runtime and process collectors are registered alongside the component
// metrics.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the global Prometheus registry.
//
// Returns nil if InitRegistry() has not been called, indicating metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if metrics collection is enabled.
//
// Metrics are enabled if InitRegistry() has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// onceValue builds a metrics implementation the first time it is asked for.
// Registering the same collector twice on one registry panics, so every
// constructor goes through one of these.
type onceValue[T any] struct {
	once sync.Once
	v    T
}

func (o *onceValue[T]) get(build func() T) T {
	o.once.Do(func() {
		o.v = build()
	})
	return o.v
}
