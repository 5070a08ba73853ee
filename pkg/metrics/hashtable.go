package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hash table operation outcomes used as the "status" label.
const (
	StatusSuccess  = "success"
	StatusNotFound = "not_found"
	StatusError    = "error"
)

// HashTableMetrics provides observability for hash table instances.
//
// Several tables share one implementation; the table name is carried as a
// label so the lookup index and the node index of a namespace can be told
// apart.
//
// Example usage:
//
//	m := metrics.NewHashTableMetrics()
//	t, err := hashtable.New(hashtable.Params[K, V]{Name: "lookup", Metrics: m, ...})
type HashTableMetrics interface {
	// ObserveOperation counts one table operation.
	//
	// Parameters:
	//   - table: Table name as given in the table parameters
	//   - operation: "set", "test", "get" or "del"
	//   - status: StatusSuccess, StatusNotFound or StatusError
	ObserveOperation(table, operation, status string)

	// SetEntries records the number of entries currently stored.
	SetEntries(table string, entries int)
}

// hashTableMetrics is the Prometheus implementation of HashTableMetrics.
type hashTableMetrics struct {
	operations *prometheus.CounterVec
	entries    *prometheus.GaugeVec
}

var hashTableMetricsOnce onceValue[HashTableMetrics]

// NewHashTableMetrics returns the Prometheus-backed HashTableMetrics.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not
// called). Collectors are registered once per process; later calls return the
// same instance so every table can ask for its own handle.
func NewHashTableMetrics() HashTableMetrics {
	if !IsEnabled() {
		return NoopHashTableMetrics()
	}

	return hashTableMetricsOnce.get(func() HashTableMetrics {
		reg := GetRegistry()

		return &hashTableMetrics{
			operations: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "dittons_hashtable_operations_total",
					Help: "Total number of hash table operations by table, operation and status",
				},
				[]string{"table", "operation", "status"},
			),
			entries: promauto.With(reg).NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "dittons_hashtable_entries",
					Help: "Current number of entries stored in a hash table",
				},
				[]string{"table"},
			),
		}
	})
}

func (m *hashTableMetrics) ObserveOperation(table, operation, status string) {
	m.operations.WithLabelValues(table, operation, status).Inc()
}

func (m *hashTableMetrics) SetEntries(table string, entries int) {
	m.entries.WithLabelValues(table).Set(float64(entries))
}

// NoopHashTableMetrics returns a HashTableMetrics that discards everything.
func NoopHashTableMetrics() HashTableMetrics {
	return noopHashTableMetrics{}
}

// noopHashTableMetrics is a no-op implementation of HashTableMetrics with zero overhead.
type noopHashTableMetrics struct{}

func (noopHashTableMetrics) ObserveOperation(table, operation, status string) {}
func (noopHashTableMetrics) SetEntries(table string, entries int)             {}
