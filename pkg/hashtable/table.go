// Package hashtable implements a concurrent associative container split into
// independently locked buckets.
//
// Every key is hashed twice: Index picks the bucket, Order is the sort key
// of the entry inside that bucket's balanced tree. A bucket is guarded by its
// own rwlock.RWLock, shared for lookups and exclusive for mutations, so
// operations on keys of different buckets never wait for each other.
//
// The table stores values as given; it does not own them. Delete and
// DeleteAll hand the stored key and value back so the caller can release
// whatever they reference.
package hashtable

import (
	"fmt"
	"sync/atomic"

	"github.com/NVIDIA/sortedmap"

	"github.com/marmos91/dittofs-namespace/internal/logger"
	"github.com/marmos91/dittofs-namespace/pkg/metrics"
)

// Table is a partitioned hash table from K to V. It is safe for concurrent
// use.
type Table[K, V any] struct {
	name        string
	geometry    Geometry
	keys        KeyOps[K]
	validator   KeyValidator[K]
	formatValue func(V) string
	metrics     metrics.HashTableMetrics

	buckets []*bucket[K, V]
	size    atomic.Int64

	// rejected counts operations refused before a bucket was chosen.
	rejected [opCount]atomic.Uint64
}

// New creates an empty table.
func New[K, V any](p Params[K, V]) (*Table[K, V], error) {
	if err := p.validate(); err != nil {
		return nil, &Error{Status: StatusInvalidArgument, Table: p.Name, Err: err}
	}

	t := &Table[K, V]{
		name:        p.Name,
		geometry:    p.geometry(),
		keys:        p.Keys,
		formatValue: p.FormatValue,
		metrics:     p.Metrics,
	}
	if v, ok := p.Keys.(KeyValidator[K]); ok {
		t.validator = v
	}
	if t.formatValue == nil {
		t.formatValue = func(v V) string { return fmt.Sprintf("%v", v) }
	}
	if t.metrics == nil {
		t.metrics = metrics.NoopHashTableMetrics()
	}

	t.buckets = make([]*bucket[K, V], p.IndexSize)
	for i := range t.buckets {
		t.buckets[i] = newBucket(t, p.CacheSize)
	}

	logger.Debug("hashtable %s: created with %d buckets (alphabet %d, cache %d)",
		t.name, p.IndexSize, p.AlphabetLength, p.CacheSize)
	return t, nil
}

// Name returns the table name given at creation.
func (t *Table[K, V]) Name() string {
	return t.name
}

// Geometry returns the table shape.
func (t *Table[K, V]) Geometry() Geometry {
	return t.geometry
}

// bucketFor hashes key. An out of range index is a defect in the KeyOps.
func (t *Table[K, V]) bucketFor(key K) (*bucket[K, V], uint64) {
	idx := t.keys.Index(t.geometry, key)
	if idx >= t.geometry.IndexSize {
		panic(fmt.Sprintf("hashtable %s: index %d out of range for %d buckets (key %s)",
			t.name, idx, t.geometry.IndexSize, t.keys.Format(key)))
	}
	return t.buckets[idx], t.keys.Order(t.geometry, key)
}

func (t *Table[K, V]) valid(key K) bool {
	return t.validator == nil || t.validator.Valid(key)
}

func (t *Table[K, V]) fail(status Status, key K, cause error) error {
	return &Error{Status: status, Table: t.name, Key: t.keys.Format(key), Err: cause}
}

// record accounts one operation outcome on b (nil for rejected arguments).
func (t *Table[K, V]) record(b *bucket[K, V], op operation, o outcome) {
	if b != nil {
		b.count(op, o)
	} else {
		t.rejected[op].Add(1)
	}

	status := metrics.StatusSuccess
	switch o {
	case outcomeNotFound:
		status = metrics.StatusNotFound
	case outcomeError:
		status = metrics.StatusError
	}
	t.metrics.ObserveOperation(t.name, op.String(), status)
}

func (t *Table[K, V]) resized(delta int64) {
	t.metrics.SetEntries(t.name, int(t.size.Add(delta)))
}

// Insert stores val under key according to how.
//
// Returns:
//   - nil when the entry was inserted or overwritten, or, for TestOnly, is present
//   - ErrKeyExists for SetNoOverwrite on a present key
//   - ErrNoSuchKey for TestOnly on an absent key
//   - ErrInvalidArgument for a key rejected by the KeyValidator or an unknown how
//   - ErrInsertAlloc when the bucket tree refused the entry; the table is unchanged
func (t *Table[K, V]) Insert(key K, val V, how SetHow) error {
	op := opSet
	if how == TestOnly {
		op = opTest
	}

	if how < SetNoOverwrite || how > TestOnly {
		t.record(nil, op, outcomeError)
		return t.fail(StatusInvalidArgument, key, fmt.Errorf("unknown insert mode %s", how))
	}
	if !t.valid(key) {
		t.record(nil, op, outcomeError)
		return t.fail(StatusInvalidArgument, key, nil)
	}

	b, order := t.bucketFor(key)

	if how == TestOnly {
		b.lock.RLock()
		_, i := b.find(order, key, t.keys)
		b.lock.RUnlock()

		if i < 0 {
			t.record(b, op, outcomeNotFound)
			return t.fail(StatusNoSuchKey, key, nil)
		}
		t.record(b, op, outcomeSuccess)
		return nil
	}

	b.lock.Lock()
	c, i := b.find(order, key, t.keys)

	if i >= 0 {
		if how == SetNoOverwrite {
			b.lock.Unlock()
			t.record(b, op, outcomeError)
			return t.fail(StatusKeyExists, key, nil)
		}
		c.entries[i].val = val
		b.lock.Unlock()
		t.record(b, op, outcomeSuccess)
		return nil
	}

	if err := b.insert(c, order, key, val); err != nil {
		b.lock.Unlock()
		t.record(b, op, outcomeError)
		logger.Error("hashtable %s: insert of %s failed: %v", t.name, t.keys.Format(key), err)
		return t.fail(StatusInsertAlloc, key, err)
	}
	b.lock.Unlock()

	t.record(b, op, outcomeSuccess)
	t.resized(1)
	return nil
}

// Get returns the value stored under key, or ErrNoSuchKey.
func (t *Table[K, V]) Get(key K) (V, error) {
	return t.GetRef(key, nil)
}

// GetRef is Get, calling ref on the found value before the bucket lock is
// released. ref may take a reference that keeps the value alive past a
// concurrent Delete.
func (t *Table[K, V]) GetRef(key K, ref func(V)) (V, error) {
	var zero V

	if !t.valid(key) {
		t.record(nil, opGet, outcomeError)
		return zero, t.fail(StatusInvalidArgument, key, nil)
	}

	b, order := t.bucketFor(key)

	b.lock.RLock()
	c, i := b.find(order, key, t.keys)
	if i < 0 {
		b.lock.RUnlock()
		t.record(b, opGet, outcomeNotFound)
		return zero, t.fail(StatusNoSuchKey, key, nil)
	}
	val := c.entries[i].val
	if ref != nil {
		ref(val)
	}
	b.lock.RUnlock()

	t.record(b, opGet, outcomeSuccess)
	return val, nil
}

// Delete removes key and returns the key and value that were stored.
func (t *Table[K, V]) Delete(key K) (K, V, error) {
	return t.delete(key, nil, StatusNotDeleted)
}

// DeleteRef removes key unless put reports that references remain, in which
// case the entry stays and ErrNotDeleted is returned. A nil put deletes
// unconditionally.
func (t *Table[K, V]) DeleteRef(key K, put func(V) (remaining int)) (K, V, error) {
	if put == nil {
		return t.delete(key, nil, StatusNotDeleted)
	}
	return t.delete(key, func(v V) bool { return put(v) == 0 }, StatusNotDeleted)
}

// DeleteSafe removes key only if match accepts the stored value. A rejected
// value reports ErrNoSuchKey, as if the entry had already been replaced.
func (t *Table[K, V]) DeleteSafe(key K, match func(V) bool) error {
	_, _, err := t.delete(key, match, StatusNoSuchKey)
	return err
}

func (t *Table[K, V]) delete(key K, allow func(V) bool, refused Status) (K, V, error) {
	var (
		zeroK K
		zeroV V
	)

	if !t.valid(key) {
		t.record(nil, opDel, outcomeError)
		return zeroK, zeroV, t.fail(StatusInvalidArgument, key, nil)
	}

	b, order := t.bucketFor(key)

	b.lock.Lock()
	c, i := b.find(order, key, t.keys)
	if i < 0 {
		b.lock.Unlock()
		t.record(b, opDel, outcomeNotFound)
		return zeroK, zeroV, t.fail(StatusNoSuchKey, key, nil)
	}
	if allow != nil && !allow(c.entries[i].val) {
		b.lock.Unlock()
		if refused == StatusNoSuchKey {
			t.record(b, opDel, outcomeNotFound)
		} else {
			t.record(b, opDel, outcomeError)
		}
		return zeroK, zeroV, t.fail(refused, key, nil)
	}
	e := b.unlink(c, i)
	b.lock.Unlock()

	t.record(b, opDel, outcomeSuccess)
	t.resized(-1)
	return e.key, e.val, nil
}

// DeleteAll drains the table, handing every entry to free after it has been
// unlinked. If free fails, draining stops there and ErrDeleteAllFailed is
// returned wrapping the failure; the failing entry is already gone from the
// table, the remaining ones are still present.
func (t *Table[K, V]) DeleteAll(free func(K, V) error) error {
	for idx, b := range t.buckets {
		b.lock.Lock()
		for c := b.first(); c != nil; c = b.first() {
			e := b.unlink(c, 0)
			t.resized(-1)

			if free == nil {
				continue
			}
			if err := free(e.key, e.val); err != nil {
				b.lock.Unlock()
				logger.Error("hashtable %s: delete-all stopped at bucket %d on %s: %v",
					t.name, idx, t.keys.Format(e.key), err)
				return &Error{Status: StatusDeleteAllFailed, Table: t.name, Key: t.keys.Format(e.key), Err: err}
			}
		}
		b.lock.Unlock()
	}
	return nil
}

// Size returns the number of entries.
func (t *Table[K, V]) Size() int {
	return int(t.size.Load())
}

// OpStats counts outcomes of one kind of operation.
type OpStats struct {
	Success  uint64
	NotFound uint64
	Error    uint64
}

// Stats is a point-in-time snapshot. Buckets are read one at a time, so the
// totals are only exact when the table is quiescent.
type Stats struct {
	Entries int

	// Buckets holds the entry count of every bucket, by index.
	Buckets   []int
	MinBucket int
	MaxBucket int
	AvgBucket float64

	Set  OpStats
	Test OpStats
	Get  OpStats
	Del  OpStats
}

// Stats returns per-bucket populations and operation counters.
func (t *Table[K, V]) Stats() Stats {
	s := Stats{
		Buckets:   make([]int, len(t.buckets)),
		MinBucket: -1,
	}

	var per [opCount]OpStats
	for i, b := range t.buckets {
		n := int(b.entries.Load())
		s.Buckets[i] = n
		s.Entries += n
		if s.MinBucket < 0 || n < s.MinBucket {
			s.MinBucket = n
		}
		if n > s.MaxBucket {
			s.MaxBucket = n
		}

		for op := operation(0); op < opCount; op++ {
			per[op].Success += b.ops[op][outcomeSuccess].Load()
			per[op].NotFound += b.ops[op][outcomeNotFound].Load()
			per[op].Error += b.ops[op][outcomeError].Load()
		}
	}
	for op := operation(0); op < opCount; op++ {
		per[op].Error += t.rejected[op].Load()
	}
	if len(t.buckets) > 0 {
		s.AvgBucket = float64(s.Entries) / float64(len(t.buckets))
	}

	s.Set, s.Test, s.Get, s.Del = per[opSet], per[opTest], per[opGet], per[opDel]
	return s
}

// Log writes every entry to the debug log, one line per tree node, with its
// bucket index and ordering value.
func (t *Table[K, V]) Log() {
	if !logger.IsEnabled(logger.LevelDebug) {
		return
	}

	logger.Debug("hashtable %s: %d buckets, %d entries", t.name, len(t.buckets), t.Size())

	for idx, b := range t.buckets {
		b.lock.RLock()
		b.each(func(k sortedmap.Key, v sortedmap.Value) {
			t.logNode(b.dump, idx, k, v)
		})
		b.lock.RUnlock()
	}
}

func (t *Table[K, V]) logNode(d sortedmap.DumpCallbacks, idx int, k sortedmap.Key, v sortedmap.Value) {
	keyStr, err := d.DumpKey(k)
	if err != nil {
		logger.Error("hashtable %s: %v", t.name, err)
		return
	}
	valStr, err := d.DumpValue(v)
	if err != nil {
		logger.Error("hashtable %s: %v", t.name, err)
		return
	}
	logger.Debug("hashtable %s: bucket=%d order=%s entries=%s", t.name, idx, keyStr, valStr)
}
