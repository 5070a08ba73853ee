package hashtable

import (
	"fmt"

	"github.com/marmos91/dittofs-namespace/pkg/metrics"
)

// Geometry is the fixed shape of a table, handed to the key hash functions.
type Geometry struct {
	// IndexSize is the number of independently locked buckets.
	IndexSize uint32

	// AlphabetLength is the radix used by the default string index hash.
	// Choosing it so that it shares no factor with IndexSize keeps the
	// bucket spread even for short names.
	AlphabetLength uint32
}

// KeyOps is the per-key-type behaviour a table needs.
//
// Index selects the bucket and must return a value below g.IndexSize.
// Order is the sort key inside the bucket's tree; it should be independent of
// Index so that entries of one bucket do not arrive in tree order. Two keys
// with the same Order are told apart with Equal.
type KeyOps[K any] interface {
	Index(g Geometry, key K) uint32
	Order(g Geometry, key K) uint64
	Equal(a, b K) bool
	Format(key K) string
}

// KeyValidator may additionally be implemented by a KeyOps to reject
// malformed keys with ErrInvalidArgument before any bucket is touched.
type KeyValidator[K any] interface {
	Valid(key K) bool
}

// SetHow selects the behaviour of Insert.
type SetHow int

const (
	// SetNoOverwrite inserts the entry or fails with ErrKeyExists.
	SetNoOverwrite SetHow = iota

	// SetOverwrite inserts the entry or replaces the stored value.
	SetOverwrite

	// TestOnly reports presence (nil) or absence (ErrNoSuchKey) without
	// modifying the table.
	TestOnly
)

func (h SetHow) String() string {
	switch h {
	case SetNoOverwrite:
		return "set_no_overwrite"
	case SetOverwrite:
		return "set_overwrite"
	case TestOnly:
		return "test_only"
	default:
		return fmt.Sprintf("SetHow(%d)", int(h))
	}
}

// Params configures a Table. Everything is fixed at creation.
type Params[K, V any] struct {
	// Name identifies the table in logs and metrics.
	Name string

	IndexSize      uint32
	AlphabetLength uint32

	// CacheSize is the number of direct-mapped lookup cache slots kept per
	// bucket in front of the tree. Zero disables the cache.
	CacheSize uint32

	Keys KeyOps[K]

	// FormatValue renders a value for diagnostics. Nil prints "%v".
	FormatValue func(V) string

	// Metrics receives per-operation outcomes. Nil uses a no-op.
	Metrics metrics.HashTableMetrics
}

func (p *Params[K, V]) validate() error {
	if p.IndexSize == 0 {
		return fmt.Errorf("index size must be positive")
	}
	if p.Keys == nil {
		return fmt.Errorf("key operations are required")
	}
	return nil
}

func (p *Params[K, V]) geometry() Geometry {
	return Geometry{IndexSize: p.IndexSize, AlphabetLength: p.AlphabetLength}
}
