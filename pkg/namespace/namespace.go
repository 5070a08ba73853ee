// Package namespace maintains the bidirectional path <-> inode index of an
// export for backends that cannot answer "what is the path of this inode".
//
// A Namespace keeps two hash tables over one arena of nodes:
//
//   - the lookup index maps (parent inode, name) to the child node,
//   - the node index maps an inode to its node.
//
// Every node records the (parent, name) edges pointing at it, so an inode
// can be walked back to the root. Nodes are reference counted by their
// edges and destroyed as soon as the last one is removed.
//
// One reader/writer lock serialises the whole namespace: AddChild,
// RemoveChild and Rename hold it exclusively for their entire duration,
// lookups and ReconstructPath hold it shared.
package namespace

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittofs-namespace/internal/logger"
	"github.com/marmos91/dittofs-namespace/pkg/generation"
	"github.com/marmos91/dittofs-namespace/pkg/hashtable"
	"github.com/marmos91/dittofs-namespace/pkg/metrics"
	"github.com/marmos91/dittofs-namespace/pkg/rwlock"
)

// Default limits and table shapes.
const (
	DefaultMaxNameLen = 255
	DefaultMaxPathLen = 1024

	DefaultIndexSize            = 877
	DefaultLookupAlphabetLength = 26
	DefaultNodeAlphabetLength   = 10
)

// TableConfig shapes one of the two indexes.
type TableConfig struct {
	IndexSize      uint32 `mapstructure:"index_size" yaml:"index_size"`
	AlphabetLength uint32 `mapstructure:"alphabet_length" yaml:"alphabet_length"`

	// OrderHash names the ordering hash: classic, xxhash or cityhash.
	OrderHash string `mapstructure:"order_hash" yaml:"order_hash"`

	// CacheSize is the per-bucket lookup cache size. Zero disables it.
	CacheSize uint32 `mapstructure:"cache_size" yaml:"cache_size"`
}

// Config configures a Namespace.
type Config struct {
	// Name identifies the namespace in logs and metrics (usually the export path).
	Name string

	LookupTable TableConfig
	NodeTable   TableConfig

	// MaxNameLen bounds entry names, in bytes.
	MaxNameLen int

	// MaxPathLen bounds paths produced by ReconstructPath, in bytes.
	MaxPathLen int
}

// DefaultConfig returns the configuration used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		Name: "/",
		LookupTable: TableConfig{
			IndexSize:      DefaultIndexSize,
			AlphabetLength: DefaultLookupAlphabetLength,
			OrderHash:      hashtable.OrderClassic,
		},
		NodeTable: TableConfig{
			IndexSize:      DefaultIndexSize,
			AlphabetLength: DefaultNodeAlphabetLength,
			OrderHash:      hashtable.OrderClassic,
		},
		MaxNameLen: DefaultMaxNameLen,
		MaxPathLen: DefaultMaxPathLen,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.MaxNameLen <= 0 {
		c.MaxNameLen = d.MaxNameLen
	}
	if c.MaxPathLen <= 0 {
		c.MaxPathLen = d.MaxPathLen
	}
	c.LookupTable.applyDefaults(d.LookupTable)
	c.NodeTable.applyDefaults(d.NodeTable)
}

func (t *TableConfig) applyDefaults(d TableConfig) {
	if t.IndexSize == 0 {
		t.IndexSize = d.IndexSize
	}
	if t.AlphabetLength == 0 {
		t.AlphabetLength = d.AlphabetLength
	}
	if t.OrderHash == "" {
		t.OrderHash = d.OrderHash
	}
}

// Option customises a Namespace.
type Option func(*Namespace)

// WithMetrics records namespace operations.
func WithMetrics(m metrics.NamespaceMetrics) Option {
	return func(ns *Namespace) {
		if m != nil {
			ns.metrics = m
		}
	}
}

// WithHashTableMetrics records operations of both indexes.
func WithHashTableMetrics(m metrics.HashTableMetrics) Option {
	return func(ns *Namespace) {
		ns.tableMetrics = m
	}
}

// WithGenerations sets the source AddChildAuto and InitializeAuto draw
// new generations from.
func WithGenerations(src generation.Source) Option {
	return func(ns *Namespace) {
		ns.generations = src
	}
}

// Namespace is the path <-> inode index of one export. It is safe for
// concurrent use.
type Namespace struct {
	id  uuid.UUID
	cfg Config

	lock rwlock.RWLock

	lookup *hashtable.Table[edgeKey, nodeRef]
	nodes  *hashtable.Table[InodeID, nodeRef]
	arena  arena

	root        Identity
	initialized bool
	closed      bool

	generations  generation.Source
	metrics      metrics.NamespaceMetrics
	tableMetrics metrics.HashTableMetrics
}

// New builds an empty namespace. Initialize must be called before use.
func New(cfg Config, opts ...Option) (*Namespace, error) {
	cfg.applyDefaults()

	ns := &Namespace{
		id:      uuid.New(),
		cfg:     cfg,
		metrics: metrics.NoopNamespaceMetrics(),
	}
	for _, opt := range opts {
		opt(ns)
	}

	lookupOrder, err := hashtable.OrderFuncByName(cfg.LookupTable.OrderHash)
	if err != nil {
		return nil, newError(ErrInvalidArgument, "", "lookup table: %v", err)
	}
	var nodeOrder hashtable.OrderFunc
	if cfg.NodeTable.OrderHash != hashtable.OrderClassic {
		if nodeOrder, err = hashtable.OrderFuncByName(cfg.NodeTable.OrderHash); err != nil {
			return nil, newError(ErrInvalidArgument, "", "node table: %v", err)
		}
	}

	ns.lookup, err = hashtable.New(hashtable.Params[edgeKey, nodeRef]{
		Name:           cfg.Name + ":lookup",
		IndexSize:      cfg.LookupTable.IndexSize,
		AlphabetLength: cfg.LookupTable.AlphabetLength,
		CacheSize:      cfg.LookupTable.CacheSize,
		Keys:           edgeKeys{order: lookupOrder, maxNameLen: cfg.MaxNameLen},
		FormatValue:    ns.formatRef,
		Metrics:        ns.tableMetrics,
	})
	if err != nil {
		return nil, newError(ErrAlloc, "", "lookup table: %v", err)
	}

	ns.nodes, err = hashtable.New(hashtable.Params[InodeID, nodeRef]{
		Name:           cfg.Name + ":nodes",
		IndexSize:      cfg.NodeTable.IndexSize,
		AlphabetLength: cfg.NodeTable.AlphabetLength,
		CacheSize:      cfg.NodeTable.CacheSize,
		Keys:           inodeKeys{order: nodeOrder},
		FormatValue:    ns.formatRef,
		Metrics:        ns.tableMetrics,
	})
	if err != nil {
		return nil, newError(ErrAlloc, "", "node table: %v", err)
	}

	return ns, nil
}

// ID returns the instance identifier used to correlate log lines.
func (ns *Namespace) ID() uuid.UUID {
	return ns.id
}

// Name returns the configured namespace name.
func (ns *Namespace) Name() string {
	return ns.cfg.Name
}

// Root returns the root identity set by Initialize.
func (ns *Namespace) Root() Identity {
	ns.lock.RLock()
	defer ns.lock.RUnlock()
	return ns.root
}

// formatRef renders an index value. Only used from Log, under the
// namespace lock.
func (ns *Namespace) formatRef(ref nodeRef) string {
	return ns.arena.get(ref).String()
}

// Initialize creates the root node with the given generation and returns
// it. The root holds one permanent reference and has no parent edge, so it
// is never removed.
func (ns *Namespace) Initialize(root InodeID, rootGen uint32) (uint32, error) {
	start := time.Now()

	ns.lock.Lock()
	gen, err := ns.initializeLocked(root, rootGen)
	ns.lock.Unlock()

	ns.observe(opInitialize, start, err, true)
	return gen, err
}

// InitializeAuto is Initialize with the root generation drawn from the
// configured generation source.
func (ns *Namespace) InitializeAuto(ctx context.Context, root InodeID) (uint32, error) {
	gen, err := ns.nextGeneration(ctx, root)
	if err != nil {
		return 0, err
	}
	return ns.Initialize(root, gen)
}

func (ns *Namespace) initializeLocked(root InodeID, rootGen uint32) (uint32, error) {
	if ns.closed {
		return 0, newError(ErrInvalidArgument, "", "namespace %s is closed", ns.cfg.Name)
	}
	if ns.initialized {
		return 0, newError(ErrInvalidArgument, root.String(), "namespace %s already initialized", ns.cfg.Name)
	}

	id := Identity{InodeID: root, Generation: rootGen}
	ref := ns.arena.alloc(node{id: id})

	if err := ns.nodes.Insert(root, ref, hashtable.SetNoOverwrite); err != nil {
		ns.arena.release(ref)
		return 0, newError(ErrAlloc, root.String(), "cannot index root: %v", err)
	}
	ns.arena.get(ref).lookupCount = 1

	ns.root = id
	ns.initialized = true

	logger.Info("namespace %s [%s]: root=%s", ns.cfg.Name, ns.id, id)
	return rootGen, nil
}

func (ns *Namespace) nextGeneration(ctx context.Context, id InodeID) (uint32, error) {
	if ns.generations == nil {
		return 0, newError(ErrInvalidArgument, id.String(), "no generation source configured")
	}
	gen, err := ns.generations.Next(ctx, id.Device, id.Inode)
	if err != nil {
		return 0, fmt.Errorf("generation for %s: %w", id, err)
	}
	return gen, nil
}

// ready reports the error for operations on an unusable namespace. The
// namespace lock must be held.
func (ns *Namespace) ready() error {
	if ns.closed {
		return newError(ErrInvalidArgument, "", "namespace %s is closed", ns.cfg.Name)
	}
	if !ns.initialized {
		return newError(ErrInvalidArgument, "", "namespace %s is not initialized", ns.cfg.Name)
	}
	return nil
}

func (ns *Namespace) updateGauges() {
	ns.metrics.SetNodes(ns.cfg.Name, ns.nodes.Size())
	ns.metrics.SetEdges(ns.cfg.Name, ns.lookup.Size())
}

// Close tears the namespace down: both indexes are drained and every node
// released. The namespace cannot be used afterwards. ctx is only consulted
// before the drain starts; once started, the drain always completes.
func (ns *Namespace) Close(ctx context.Context) error {
	ns.lock.Lock()
	defer ns.lock.Unlock()

	if ns.closed {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ns.closed = true

	edges, nodes := 0, 0
	if err := ns.lookup.DeleteAll(func(edgeKey, nodeRef) error {
		edges++
		return nil
	}); err != nil {
		return fmt.Errorf("namespace %s: drain lookup index: %w", ns.cfg.Name, err)
	}
	if err := ns.nodes.DeleteAll(func(InodeID, nodeRef) error {
		nodes++
		return nil
	}); err != nil {
		return fmt.Errorf("namespace %s: drain node index: %w", ns.cfg.Name, err)
	}
	ns.arena.reset()

	ns.metrics.SetNodes(ns.cfg.Name, 0)
	ns.metrics.SetEdges(ns.cfg.Name, 0)

	logger.Info("namespace %s [%s]: closed (%d nodes, %d edges released)", ns.cfg.Name, ns.id, nodes, edges)
	return nil
}
