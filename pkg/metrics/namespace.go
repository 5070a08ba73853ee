package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NamespaceMetrics provides observability for namespace manager operations.
//
// Implementations collect operation counts and latencies together with the
// live node and edge populations. If no implementation is passed to the
// namespace, a no-op one is used.
type NamespaceMetrics interface {
	// RecordOperation records a completed namespace operation.
	//
	// Parameters:
	//   - namespace: Namespace name (export path)
	//   - operation: "add_child", "remove_child", "rename", "get_generation" or "reconstruct_path"
	//   - status: StatusSuccess, StatusNotFound (absent or stale target) or StatusError
	//   - duration: Time spent in the operation, lock wait included
	RecordOperation(namespace, operation, status string, duration time.Duration)

	// SetNodes records the number of live nodes.
	SetNodes(namespace string, nodes int)

	// SetEdges records the number of live (parent, name) edges.
	SetEdges(namespace string, edges int)
}

// namespaceMetrics is the Prometheus implementation of NamespaceMetrics.
type namespaceMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	nodes      *prometheus.GaugeVec
	edges      *prometheus.GaugeVec
}

var namespaceMetricsOnce onceValue[NamespaceMetrics]

// NewNamespaceMetrics creates a Prometheus-backed NamespaceMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewNamespaceMetrics() NamespaceMetrics {
	if !IsEnabled() {
		return NoopNamespaceMetrics()
	}

	return namespaceMetricsOnce.get(func() NamespaceMetrics {
		reg := GetRegistry()

		return &namespaceMetrics{
			operations: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "dittons_namespace_operations_total",
					Help: "Total number of namespace operations by namespace, operation and status",
				},
				[]string{"namespace", "operation", "status"},
			),
			duration: promauto.With(reg).NewHistogramVec(
				prometheus.HistogramOpts{
					Name: "dittons_namespace_operation_duration_seconds",
					Help: "Duration of namespace operations in seconds",
					Buckets: []float64{
						0.000001, // 1µs
						0.00001,  // 10µs
						0.0001,   // 100µs
						0.001,    // 1ms
						0.01,     // 10ms
						0.1,      // 100ms
						1,        // 1s
					},
				},
				[]string{"namespace", "operation"},
			),
			nodes: promauto.With(reg).NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "dittons_namespace_nodes",
					Help: "Current number of nodes in the namespace",
				},
				[]string{"namespace"},
			),
			edges: promauto.With(reg).NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "dittons_namespace_edges",
					Help: "Current number of (parent, name) edges in the namespace",
				},
				[]string{"namespace"},
			),
		}
	})
}

func (m *namespaceMetrics) RecordOperation(namespace, operation, status string, duration time.Duration) {
	m.operations.WithLabelValues(namespace, operation, status).Inc()
	m.duration.WithLabelValues(namespace, operation).Observe(duration.Seconds())
}

func (m *namespaceMetrics) SetNodes(namespace string, nodes int) {
	m.nodes.WithLabelValues(namespace).Set(float64(nodes))
}

func (m *namespaceMetrics) SetEdges(namespace string, edges int) {
	m.edges.WithLabelValues(namespace).Set(float64(edges))
}

// NoopNamespaceMetrics returns a NamespaceMetrics that discards everything.
func NoopNamespaceMetrics() NamespaceMetrics {
	return noopNamespaceMetrics{}
}

type noopNamespaceMetrics struct{}

func (noopNamespaceMetrics) RecordOperation(namespace, operation, status string, duration time.Duration) {
}
func (noopNamespaceMetrics) SetNodes(namespace string, nodes int) {}
func (noopNamespaceMetrics) SetEdges(namespace string, edges int) {}
