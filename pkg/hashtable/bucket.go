package hashtable

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/NVIDIA/sortedmap"

	"github.com/marmos91/dittofs-namespace/pkg/rwlock"
)

type entry[K, V any] struct {
	key K
	val V
}

// chain holds every entry of a bucket sharing one ordering value. It is the
// value stored in the bucket tree; collisions are appended to entries.
type chain[K, V any] struct {
	order   uint64
	entries []entry[K, V]
}

type operation int

const (
	opSet operation = iota
	opTest
	opGet
	opDel
	opCount
)

func (o operation) String() string {
	switch o {
	case opSet:
		return "set"
	case opTest:
		return "test"
	case opGet:
		return "get"
	case opDel:
		return "del"
	default:
		return "unknown"
	}
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeNotFound
	outcomeError
	outcomeCount
)

// bucket is one independently locked partition of a table.
type bucket[K, V any] struct {
	lock rwlock.RWLock

	// tree maps ordering value -> *chain. Guarded by lock. The LLRB tree
	// also takes its own mutex on every call, so readers sharing lock still
	// walk the tree one at a time; the cache below is the lock-free path.
	tree sortedmap.LLRBTree
	dump *dumper[K, V]

	// entries is written under the exclusive lock and read lock-free by Size
	// and Stats.
	entries atomic.Int64

	// cache is a direct-mapped cache of recently located chains, indexed by
	// order % len(cache). Slots are written under the shared lock too, hence
	// atomic.
	cache []atomic.Pointer[chain[K, V]]

	ops [opCount][outcomeCount]atomic.Uint64
}

func newBucket[K, V any](t *Table[K, V], cacheSize uint32) *bucket[K, V] {
	b := &bucket[K, V]{dump: &dumper[K, V]{table: t}}
	b.tree = sortedmap.NewLLRBTree(sortedmap.CompareUint64, b.dump)
	if cacheSize > 0 {
		b.cache = make([]atomic.Pointer[chain[K, V]], cacheSize)
	}
	return b
}

// locate returns the chain for order, or nil. The caller holds lock in
// either mode.
func (b *bucket[K, V]) locate(order uint64) *chain[K, V] {
	var slot *atomic.Pointer[chain[K, V]]
	if len(b.cache) > 0 {
		slot = &b.cache[order%uint64(len(b.cache))]
		if c := slot.Load(); c != nil && c.order == order {
			return c
		}
	}

	v, ok, err := b.tree.GetByKey(order)
	if err != nil {
		panic(fmt.Sprintf("hashtable: bucket tree lookup failed: %v", err))
	}
	if !ok {
		return nil
	}

	c := v.(*chain[K, V])
	if slot != nil {
		slot.Store(c)
	}
	return c
}

// find returns the chain for order and the position of key in it, or -1.
func (b *bucket[K, V]) find(order uint64, key K, keys KeyOps[K]) (*chain[K, V], int) {
	c := b.locate(order)
	if c == nil {
		return nil, -1
	}
	for i := range c.entries {
		if keys.Equal(c.entries[i].key, key) {
			return c, i
		}
	}
	return c, -1
}

// insert adds a new entry. The caller holds lock exclusively and has checked
// that key is absent. c is the existing chain for order, if any.
func (b *bucket[K, V]) insert(c *chain[K, V], order uint64, key K, val V) error {
	if c != nil {
		c.entries = append(c.entries, entry[K, V]{key: key, val: val})
		b.entries.Add(1)
		return nil
	}

	c = &chain[K, V]{order: order, entries: []entry[K, V]{{key: key, val: val}}}
	ok, err := b.tree.Put(order, c)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("ordering value %#x already present in bucket tree", order)
	}
	b.entries.Add(1)
	return nil
}

// unlink removes entry i of c. The caller holds lock exclusively.
func (b *bucket[K, V]) unlink(c *chain[K, V], i int) entry[K, V] {
	e := c.entries[i]

	last := len(c.entries) - 1
	copy(c.entries[i:], c.entries[i+1:])
	c.entries[last] = entry[K, V]{}
	c.entries = c.entries[:last]

	if len(c.entries) == 0 {
		ok, err := b.tree.DeleteByKey(c.order)
		if err != nil || !ok {
			panic(fmt.Sprintf("hashtable: bucket tree lost ordering value %#x (err=%v)", c.order, err))
		}
		if len(b.cache) > 0 {
			b.cache[c.order%uint64(len(b.cache))].CompareAndSwap(c, nil)
		}
	}

	b.entries.Add(-1)
	return e
}

// first returns the chain with the lowest ordering value, or nil.
func (b *bucket[K, V]) first() *chain[K, V] {
	n, err := b.tree.Len()
	if err != nil {
		panic(fmt.Sprintf("hashtable: bucket tree length failed: %v", err))
	}
	if n == 0 {
		return nil
	}
	_, v, ok, err := b.tree.GetByIndex(0)
	if err != nil || !ok {
		panic(fmt.Sprintf("hashtable: bucket tree index 0 unreadable (err=%v)", err))
	}
	return v.(*chain[K, V])
}

// each calls fn for every chain in tree order. The caller holds lock.
func (b *bucket[K, V]) each(fn func(k sortedmap.Key, v sortedmap.Value)) {
	n, err := b.tree.Len()
	if err != nil {
		panic(fmt.Sprintf("hashtable: bucket tree length failed: %v", err))
	}
	for i := 0; i < n; i++ {
		k, v, ok, err := b.tree.GetByIndex(i)
		if err != nil || !ok {
			panic(fmt.Sprintf("hashtable: bucket tree index %d unreadable (err=%v)", i, err))
		}
		fn(k, v)
	}
}

func (b *bucket[K, V]) count(op operation, o outcome) {
	b.ops[op][o].Add(1)
}

// dumper renders bucket tree keys and values with the table's format
// functions.
type dumper[K, V any] struct {
	table *Table[K, V]
}

func (d *dumper[K, V]) DumpKey(key sortedmap.Key) (string, error) {
	order, ok := key.(uint64)
	if !ok {
		return "", fmt.Errorf("bucket tree DumpKey(%v) called for non-uint64", key)
	}
	return fmt.Sprintf("%#016x", order), nil
}

func (d *dumper[K, V]) DumpValue(value sortedmap.Value) (string, error) {
	c, ok := value.(*chain[K, V])
	if !ok {
		return "", fmt.Errorf("bucket tree DumpValue(%v) called for non-chain", value)
	}

	parts := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		parts = append(parts, fmt.Sprintf("%s=%s", d.table.keys.Format(e.key), d.table.formatValue(e.val)))
	}
	return "[" + strings.Join(parts, ", ") + "]", nil
}
