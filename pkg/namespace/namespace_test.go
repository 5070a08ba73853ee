package namespace

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittofs-namespace/pkg/generation"
	gensbadger "github.com/marmos91/dittofs-namespace/pkg/generation/badger"
	"github.com/marmos91/dittofs-namespace/pkg/hashtable"
	"github.com/marmos91/dittofs-namespace/pkg/metrics"
)

var rootID = InodeID{Device: 1, Inode: 2}

func newTestNamespace(t *testing.T, cfg Config, opts ...Option) (*Namespace, Identity) {
	t.Helper()

	if cfg.Name == "" {
		cfg.Name = "test"
	}
	ns, err := New(cfg, opts...)
	require.NoError(t, err)

	gen, err := ns.Initialize(rootID, 7)
	require.NoError(t, err)
	require.Equal(t, uint32(7), gen)

	t.Cleanup(func() {
		require.NoError(t, ns.Close(context.Background()))
	})
	return ns, Identity{InodeID: rootID, Generation: gen}
}

func ino(n uint64) InodeID {
	return InodeID{Device: 1, Inode: n}
}

// mkdir adds a child and returns its identity.
func mkdir(t *testing.T, ns *Namespace, parent Identity, name string, id InodeID, gen uint32) Identity {
	t.Helper()

	got, err := ns.AddChild(parent, name, id, gen)
	require.NoError(t, err)
	return Identity{InodeID: id, Generation: got}
}

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()

	require.Error(t, err)
	got, ok := CodeOf(err)
	require.True(t, ok, "not a namespace error: %v", err)
	require.Equal(t, code, got, "unexpected code for %v", err)
}

func TestHardlinkScenario(t *testing.T) {
	ns, root := newTestNamespace(t, Config{})
	etc := ino(9)

	gen, err := ns.AddChild(root, "etc", etc, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), gen)

	// hardlink: the requested generation is ignored
	gen, err = ns.AddChild(root, "etc2", etc, 5)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), gen)

	count, err := ns.LookupCount(etc)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), count)

	path, err := ns.ReconstructPath(Identity{InodeID: etc, Generation: gen})
	require.NoError(t, err)
	assert.Equal(t, "/etc2", path, "the most recently linked entry is followed")

	require.NoError(t, ns.RemoveChild(root, "etc"))
	count, err = ns.LookupCount(etc)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), count)

	path, err = ns.ReconstructPath(Identity{InodeID: etc, Generation: gen})
	require.NoError(t, err)
	assert.Equal(t, "/etc2", path)

	require.NoError(t, ns.RemoveChild(root, "etc2"))
	_, err = ns.GetGeneration(etc)
	requireCode(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))

	children, err := ns.ChildCount(rootID)
	require.NoError(t, err)
	assert.Zero(t, children)

	stats := ns.Stats()
	assert.Equal(t, 1, stats.Nodes)
	assert.Zero(t, stats.Edges)
	require.NoError(t, ns.CheckInvariants())
}

func TestHardlinkAcrossDirectories(t *testing.T) {
	ns, root := newTestNamespace(t, Config{})
	a := mkdir(t, ns, root, "a", ino(3), 1)
	b := mkdir(t, ns, root, "b", ino(4), 1)

	file := ino(10)
	_, err := ns.AddChild(a, "one", file, 3)
	require.NoError(t, err)
	_, err = ns.AddChild(b, "two", file, 3)
	require.NoError(t, err)

	count, err := ns.LookupCount(file)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), count)

	for _, dir := range []InodeID{a.InodeID, b.InodeID} {
		children, err := ns.ChildCount(dir)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), children)
	}

	path, err := ns.ReconstructPath(Identity{InodeID: file, Generation: 3})
	require.NoError(t, err)
	assert.Equal(t, "/b/two", path)
	require.NoError(t, ns.CheckInvariants())
}

func TestRemoveChildIdempotent(t *testing.T) {
	ns, root := newTestNamespace(t, Config{})
	dir := mkdir(t, ns, root, "dir", ino(3), 1)

	before := ns.Stats()
	for _, parent := range []Identity{root, dir} {
		require.NoError(t, ns.RemoveChild(parent, "missing"))
		require.NoError(t, ns.RemoveChild(parent, "missing"))
	}
	after := ns.Stats()
	assert.Equal(t, before.Nodes, after.Nodes)
	assert.Equal(t, before.Edges, after.Edges)

	_, err := ns.AddChild(dir, "file", ino(10), 1)
	require.NoError(t, err)
	require.NoError(t, ns.RemoveChild(dir, "file"))
	require.NoError(t, ns.RemoveChild(dir, "file"))

	_, err = ns.GetGeneration(ino(10))
	requireCode(t, err, ErrNotFound)

	// an unknown parent is not an absent entry
	err = ns.RemoveChild(Identity{InodeID: ino(99), Generation: 1}, "file")
	requireCode(t, err, ErrNotFound)
	require.NoError(t, ns.CheckInvariants())
}

func TestStaleGenerations(t *testing.T) {
	ns, root := newTestNamespace(t, Config{})
	dir := mkdir(t, ns, root, "dir", ino(3), 4)
	_, err := ns.AddChild(dir, "file", ino(10), 2)
	require.NoError(t, err)

	staleDir := Identity{InodeID: dir.InodeID, Generation: 5}
	staleRoot := Identity{InodeID: rootID, Generation: 8}

	tests := []struct {
		name string
		op   func() error
	}{
		{"add under stale parent", func() error {
			_, err := ns.AddChild(staleDir, "other", ino(11), 1)
			return err
		}},
		{"hardlink under stale parent", func() error {
			_, err := ns.AddChild(staleDir, "again", ino(10), 1)
			return err
		}},
		{"remove under stale parent", func() error {
			return ns.RemoveChild(staleDir, "file")
		}},
		{"rename from stale parent", func() error {
			return ns.Rename(staleDir, "file", dir, "moved")
		}},
		{"rename to stale parent", func() error {
			return ns.Rename(dir, "file", staleRoot, "moved")
		}},
		{"rename onto itself via stale parent", func() error {
			return ns.Rename(dir, "file", staleDir, "file")
		}},
		{"path of stale node", func() error {
			_, err := ns.ReconstructPath(Identity{InodeID: ino(10), Generation: 3})
			return err
		}},
		{"path of stale root", func() error {
			_, err := ns.ReconstructPath(staleRoot)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op()
			requireCode(t, err, ErrStale)
			assert.True(t, IsStale(err))
			assert.Equal(t, uint32(NFS3ErrStale), NFSStatus(err))
		})
	}

	// nothing moved
	id, err := ns.Lookup(dir.InodeID, "file")
	require.NoError(t, err)
	assert.Equal(t, Identity{InodeID: ino(10), Generation: 2}, id)
	_, err = ns.Lookup(rootID, "moved")
	requireCode(t, err, ErrNotFound)
	require.NoError(t, ns.CheckInvariants())
}

func TestStaleParentMidWalk(t *testing.T) {
	ns, root := newTestNamespace(t, Config{})
	dir := mkdir(t, ns, root, "dir", ino(3), 1)
	_, err := ns.AddChild(dir, "file", ino(10), 1)
	require.NoError(t, err)

	// simulate a recycled parent inode behind the edge's back
	ref, err := ns.nodes.Get(dir.InodeID)
	require.NoError(t, err)
	ns.arena.get(ref).id.Generation = 2

	_, err = ns.ReconstructPath(Identity{InodeID: ino(10), Generation: 1})
	requireCode(t, err, ErrStale)
}

func TestAddChildConflict(t *testing.T) {
	ns, root := newTestNamespace(t, Config{})

	gen, err := ns.AddChild(root, "etc", ino(9), 1)
	require.NoError(t, err)

	t.Run("re-add is a no-op", func(t *testing.T) {
		got, err := ns.AddChild(root, "etc", ino(9), 42)
		require.NoError(t, err)
		assert.Equal(t, gen, got)

		count, err := ns.LookupCount(ino(9))
		require.NoError(t, err)
		assert.Equal(t, uint32(1), count)
	})

	t.Run("new inode under a taken name", func(t *testing.T) {
		_, err := ns.AddChild(root, "etc", ino(10), 1)
		requireCode(t, err, ErrConflict)
		assert.True(t, IsConflict(err))

		_, err = ns.GetGeneration(ino(10))
		requireCode(t, err, ErrNotFound)
	})

	t.Run("known inode under a taken name", func(t *testing.T) {
		_, err := ns.AddChild(root, "bin", ino(10), 1)
		require.NoError(t, err)

		_, err = ns.AddChild(root, "etc", ino(10), 1)
		requireCode(t, err, ErrConflict)

		count, err := ns.LookupCount(ino(10))
		require.NoError(t, err)
		assert.Equal(t, uint32(1), count)
	})

	require.NoError(t, ns.CheckInvariants())
}

func TestAddChildMissingParent(t *testing.T) {
	ns, _ := newTestNamespace(t, Config{})

	_, err := ns.AddChild(Identity{InodeID: ino(50), Generation: 1}, "x", ino(51), 1)
	requireCode(t, err, ErrNotFound)
	assert.Equal(t, uint32(NFS3ErrNoEnt), NFSStatus(err))

	_, err = ns.GetGeneration(ino(51))
	requireCode(t, err, ErrNotFound)
}

func TestNameValidation(t *testing.T) {
	ns, root := newTestNamespace(t, Config{})

	tests := []struct {
		name  string
		entry string
		code  ErrorCode
	}{
		{"empty", "", ErrInvalidArgument},
		{"separator", "a/b", ErrInvalidArgument},
		{"nul byte", "a\x00b", ErrInvalidArgument},
		{"too long", strings.Repeat("x", DefaultMaxNameLen+1), ErrNameTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ns.AddChild(root, tt.entry, ino(10), 1)
			requireCode(t, err, tt.code)

			requireCode(t, ns.RemoveChild(root, tt.entry), tt.code)

			_, err = ns.Lookup(rootID, tt.entry)
			requireCode(t, err, tt.code)
		})
	}

	_, err := ns.AddChild(root, strings.Repeat("x", DefaultMaxNameLen), ino(10), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, ns.Stats().Edges)
}

func TestReconstructPath(t *testing.T) {
	ns, root := newTestNamespace(t, Config{})

	path, err := ns.ReconstructPath(root)
	require.NoError(t, err)
	assert.Equal(t, "/", path)

	names := []string{"usr", "local", "share", "doc", "README"}
	parent := root
	want := ""
	for i, name := range names {
		parent = mkdir(t, ns, parent, name, ino(uint64(10+i)), uint32(i+1))
		want += "/" + name

		path, err := ns.ReconstructPath(parent)
		require.NoError(t, err)
		assert.Equal(t, want, path)
	}

	_, err = ns.ReconstructPath(Identity{InodeID: ino(99), Generation: 1})
	requireCode(t, err, ErrNotFound)
}

func TestReconstructPathLoop(t *testing.T) {
	ns, root := newTestNamespace(t, Config{})
	dir := mkdir(t, ns, root, "dir", ino(3), 1)

	// a directory linked into itself
	gen, err := ns.AddChild(dir, "self", dir.InodeID, 9)
	require.NoError(t, err)
	assert.Equal(t, dir.Generation, gen)
	require.NoError(t, ns.CheckInvariants())

	_, err = ns.ReconstructPath(dir)
	requireCode(t, err, ErrLoop)
	assert.True(t, IsLoop(err))
	assert.Equal(t, uint32(NFS3ErrServerFault), NFSStatus(err))

	require.NoError(t, ns.RemoveChild(dir, "self"))
	path, err := ns.ReconstructPath(dir)
	require.NoError(t, err)
	assert.Equal(t, "/dir", path)
	require.NoError(t, ns.CheckInvariants())
}

func TestReconstructPathTooLong(t *testing.T) {
	ns, root := newTestNamespace(t, Config{MaxPathLen: 10})

	a := mkdir(t, ns, root, "abcd", ino(3), 1)
	b := mkdir(t, ns, a, "efgh", ino(4), 1)
	c := mkdir(t, ns, b, "i", ino(5), 1)

	path, err := ns.ReconstructPath(b)
	require.NoError(t, err)
	assert.Equal(t, "/abcd/efgh", path)

	_, err = ns.ReconstructPath(c)
	requireCode(t, err, ErrPathTooLong)
	assert.Equal(t, uint32(NFS3ErrNameTooLong), NFSStatus(err))
}

func TestRename(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, ns *Namespace, root, a, b Identity)
		run   func(ns *Namespace, root, a, b Identity) error
		check func(t *testing.T, ns *Namespace, root, a, b Identity)
	}{
		{
			name: "within a directory",
			setup: func(t *testing.T, ns *Namespace, root, a, b Identity) {
				_, err := ns.AddChild(a, "old", ino(10), 3)
				require.NoError(t, err)
			},
			run: func(ns *Namespace, root, a, b Identity) error {
				return ns.Rename(a, "old", a, "new")
			},
			check: func(t *testing.T, ns *Namespace, root, a, b Identity) {
				id, err := ns.Lookup(a.InodeID, "new")
				require.NoError(t, err)
				assert.Equal(t, Identity{InodeID: ino(10), Generation: 3}, id)

				_, err = ns.Lookup(a.InodeID, "old")
				requireCode(t, err, ErrNotFound)

				path, err := ns.ReconstructPath(id)
				require.NoError(t, err)
				assert.Equal(t, "/a/new", path)
			},
		},
		{
			name: "across directories",
			setup: func(t *testing.T, ns *Namespace, root, a, b Identity) {
				_, err := ns.AddChild(a, "file", ino(10), 3)
				require.NoError(t, err)
			},
			run: func(ns *Namespace, root, a, b Identity) error {
				return ns.Rename(a, "file", b, "file")
			},
			check: func(t *testing.T, ns *Namespace, root, a, b Identity) {
				path, err := ns.ReconstructPath(Identity{InodeID: ino(10), Generation: 3})
				require.NoError(t, err)
				assert.Equal(t, "/b/file", path)

				ac, err := ns.ChildCount(a.InodeID)
				require.NoError(t, err)
				assert.Zero(t, ac)
				bc, err := ns.ChildCount(b.InodeID)
				require.NoError(t, err)
				assert.Equal(t, uint32(1), bc)
			},
		},
		{
			name: "over an existing entry",
			setup: func(t *testing.T, ns *Namespace, root, a, b Identity) {
				_, err := ns.AddChild(a, "src", ino(10), 3)
				require.NoError(t, err)
				_, err = ns.AddChild(b, "dst", ino(11), 4)
				require.NoError(t, err)
			},
			run: func(ns *Namespace, root, a, b Identity) error {
				return ns.Rename(a, "src", b, "dst")
			},
			check: func(t *testing.T, ns *Namespace, root, a, b Identity) {
				id, err := ns.Lookup(b.InodeID, "dst")
				require.NoError(t, err)
				assert.Equal(t, ino(10), id.InodeID)

				_, err = ns.GetGeneration(ino(11))
				requireCode(t, err, ErrNotFound)
			},
		},
		{
			name: "onto another link of the same inode",
			setup: func(t *testing.T, ns *Namespace, root, a, b Identity) {
				_, err := ns.AddChild(a, "one", ino(10), 3)
				require.NoError(t, err)
				_, err = ns.AddChild(a, "two", ino(10), 3)
				require.NoError(t, err)
			},
			run: func(ns *Namespace, root, a, b Identity) error {
				return ns.Rename(a, "one", a, "two")
			},
			check: func(t *testing.T, ns *Namespace, root, a, b Identity) {
				count, err := ns.LookupCount(ino(10))
				require.NoError(t, err)
				assert.Equal(t, uint32(1), count)

				_, err = ns.Lookup(a.InodeID, "one")
				requireCode(t, err, ErrNotFound)
			},
		},
		{
			name: "onto itself",
			setup: func(t *testing.T, ns *Namespace, root, a, b Identity) {
				_, err := ns.AddChild(a, "same", ino(10), 3)
				require.NoError(t, err)
			},
			run: func(ns *Namespace, root, a, b Identity) error {
				return ns.Rename(a, "same", a, "same")
			},
			check: func(t *testing.T, ns *Namespace, root, a, b Identity) {
				count, err := ns.LookupCount(ino(10))
				require.NoError(t, err)
				assert.Equal(t, uint32(1), count)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns, root := newTestNamespace(t, Config{})
			a := mkdir(t, ns, root, "a", ino(3), 1)
			b := mkdir(t, ns, root, "b", ino(4), 1)

			tt.setup(t, ns, root, a, b)
			require.NoError(t, tt.run(ns, root, a, b))
			tt.check(t, ns, root, a, b)
			require.NoError(t, ns.CheckInvariants())
		})
	}
}

func TestRenameMissingSource(t *testing.T) {
	ns, root := newTestNamespace(t, Config{})

	err := ns.Rename(root, "ghost", root, "other")
	requireCode(t, err, ErrNotFound)

	// even when both sides name the same entry
	err = ns.Rename(root, "ghost", root, "ghost")
	requireCode(t, err, ErrNotFound)
}

func TestLookupCountConservation(t *testing.T) {
	ns, root := newTestNamespace(t, Config{LookupTable: TableConfig{IndexSize: 7}, NodeTable: TableConfig{IndexSize: 5}})

	parents := []Identity{root}
	for i := range 3 {
		parents = append(parents, mkdir(t, ns, root, fmt.Sprintf("d%d", i), ino(uint64(3+i)), 1))
	}

	rng := rand.New(rand.NewPCG(1, 2))
	for step := range 2000 {
		parent := parents[rng.IntN(len(parents))]
		name := fmt.Sprintf("n%d", rng.IntN(6))

		var err error
		switch rng.IntN(3) {
		case 0, 1:
			_, err = ns.AddChild(parent, name, ino(uint64(10+rng.IntN(10))), 1)
			if IsConflict(err) {
				err = nil
			}
		case 2:
			err = ns.RemoveChild(parent, name)
		}
		require.NoError(t, err, "step %d", step)

		sum := uint32(0)
		for i := range 13 {
			id := ino(uint64(3 + i))
			if i >= 3 {
				id = ino(uint64(10 + i - 3))
			}
			count, err := ns.LookupCount(id)
			if IsNotFound(err) {
				continue
			}
			require.NoError(t, err)
			sum += count
		}
		require.Equal(t, ns.Stats().Edges, int(sum), "step %d", step)
		require.NoError(t, ns.CheckInvariants(), "step %d", step)
	}
}

func TestAddChildAuto(t *testing.T) {
	t.Run("counter", func(t *testing.T) {
		ns, root := newTestNamespace(t, Config{}, WithGenerations(generation.NewCounter(100)))
		ctx := context.Background()

		gen, err := ns.AddChildAuto(ctx, root, "a", ino(10))
		require.NoError(t, err)
		assert.Equal(t, uint32(100), gen)

		gen, err = ns.AddChildAuto(ctx, root, "b", ino(11))
		require.NoError(t, err)
		assert.Equal(t, uint32(101), gen)

		gen, err = ns.AddChildAuto(ctx, root, "c", ino(10))
		require.NoError(t, err)
		assert.Equal(t, uint32(100), gen, "hardlinks keep the existing generation")
	})

	t.Run("without a source", func(t *testing.T) {
		ns, root := newTestNamespace(t, Config{})
		_, err := ns.AddChildAuto(context.Background(), root, "a", ino(10))
		requireCode(t, err, ErrInvalidArgument)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ns, root := newTestNamespace(t, Config{}, WithGenerations(generation.NewCounter(1)))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := ns.AddChildAuto(ctx, root, "a", ino(10))
		require.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, ns.Stats().Edges)
	})
}

func TestBadgerGenerationsNeverRepeat(t *testing.T) {
	ctx := context.Background()
	src, err := gensbadger.New(ctx, gensbadger.Config{InMemory: true, PerInode: true})
	require.NoError(t, err)
	defer src.Close()

	ns, err := New(Config{Name: "badger"}, WithGenerations(src))
	require.NoError(t, err)
	defer ns.Close(ctx)

	rootGen, err := ns.InitializeAuto(ctx, rootID)
	require.NoError(t, err)
	root := Identity{InodeID: rootID, Generation: rootGen}

	seen := map[uint32]bool{}
	for range 5 {
		gen, err := ns.AddChildAuto(ctx, root, "tmp", ino(10))
		require.NoError(t, err)
		require.False(t, seen[gen], "generation %d reused", gen)
		seen[gen] = true

		require.NoError(t, ns.RemoveChild(root, "tmp"))
	}
}

func TestLifecycle(t *testing.T) {
	ns, err := New(Config{Name: "lifecycle"})
	require.NoError(t, err)
	assert.NotEqual(t, [16]byte{}, [16]byte(ns.ID()))
	assert.Equal(t, "lifecycle", ns.Name())

	_, err = ns.GetGeneration(rootID)
	requireCode(t, err, ErrInvalidArgument)

	gen, err := ns.Initialize(rootID, 3)
	require.NoError(t, err)
	assert.Equal(t, Identity{InodeID: rootID, Generation: 3}, ns.Root())

	_, err = ns.Initialize(rootID, 3)
	requireCode(t, err, ErrInvalidArgument)

	root := Identity{InodeID: rootID, Generation: gen}
	_, err = ns.AddChild(root, "a", ino(10), 1)
	require.NoError(t, err)

	count, err := ns.LookupCount(rootID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), count, "the root holds a permanent reference")

	ctx := context.Background()
	require.NoError(t, ns.Close(ctx))
	require.NoError(t, ns.Close(ctx))

	stats := ns.Stats()
	assert.Zero(t, stats.Nodes)
	assert.Zero(t, stats.Edges)

	_, err = ns.AddChild(root, "b", ino(11), 1)
	requireCode(t, err, ErrInvalidArgument)
	requireCode(t, ns.CheckInvariants(), ErrInvalidArgument)
}

// cancelAfter is a context whose Err starts reporting cancellation after a
// number of calls.
type cancelAfter struct {
	context.Context
	calls int
	after int
}

func (c *cancelAfter) Err() error {
	c.calls++
	if c.calls > c.after {
		return context.Canceled
	}
	return nil
}

func TestCloseCancelled(t *testing.T) {
	ns, root := newTestNamespace(t, Config{})
	dir := mkdir(t, ns, root, "dir", ino(3), 1)
	for i := 0; i < 20; i++ {
		_, err := ns.AddChild(dir, fmt.Sprintf("f%d", i), ino(uint64(100+i)), 1)
		require.NoError(t, err)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, ns.Close(cancelled), context.Canceled)

	// a refused close leaves the namespace usable
	_, err := ns.AddChild(root, "late", ino(50), 1)
	require.NoError(t, err)
	require.NoError(t, ns.CheckInvariants())

	// cancellation arriving during the drain does not interrupt it
	require.NoError(t, ns.Close(&cancelAfter{Context: context.Background(), after: 1}))

	stats := ns.Stats()
	assert.Zero(t, stats.Nodes)
	assert.Zero(t, stats.Edges)
	assert.Zero(t, ns.arena.len())
}

func TestOrderHashes(t *testing.T) {
	for _, order := range []string{hashtable.OrderClassic, hashtable.OrderXXHash, hashtable.OrderCityHash} {
		t.Run(order, func(t *testing.T) {
			ns, root := newTestNamespace(t, Config{
				LookupTable: TableConfig{OrderHash: order, CacheSize: 4},
				NodeTable:   TableConfig{OrderHash: order, CacheSize: 4},
			})

			for i := range 50 {
				_, err := ns.AddChild(root, fmt.Sprintf("file-%d", i), ino(uint64(100+i)), 1)
				require.NoError(t, err)
			}
			for i := range 50 {
				path, err := ns.ReconstructPath(Identity{InodeID: ino(uint64(100 + i)), Generation: 1})
				require.NoError(t, err)
				assert.Equal(t, fmt.Sprintf("/file-%d", i), path)
			}
			require.NoError(t, ns.CheckInvariants())
		})
	}

	_, err := New(Config{LookupTable: TableConfig{OrderHash: "md5"}})
	requireCode(t, err, ErrInvalidArgument)
}

func TestConcurrentOperations(t *testing.T) {
	ns, root := newTestNamespace(t, Config{})

	const workers = 8
	dirs := make([]Identity, workers)
	for w := range workers {
		dirs[w] = mkdir(t, ns, root, fmt.Sprintf("w%d", w), ino(uint64(1000+w)), 1)
	}

	var g errgroup.Group
	for w := range workers {
		dir := dirs[w]
		base := uint64(10000 * (w + 1))

		g.Go(func() error {
			for i := range 200 {
				name := fmt.Sprintf("f%d", i%10)
				child := InodeID{Device: 1, Inode: base + uint64(i%10)}

				gen, err := ns.AddChild(dir, name, child, 1)
				if err != nil {
					return err
				}
				path, err := ns.ReconstructPath(Identity{InodeID: child, Generation: gen})
				if err != nil {
					return err
				}
				if want := fmt.Sprintf("/w%d/%s", w, name); path != want {
					return fmt.Errorf("path %q, want %q", path, want)
				}
				if i%3 == 0 {
					if err := ns.Rename(dir, name, dir, name+".old"); err != nil {
						return err
					}
					name += ".old"
				}
				if err := ns.RemoveChild(dir, name); err != nil {
					return err
				}
			}
			return nil
		})

		g.Go(func() error {
			for range 200 {
				if _, err := ns.ReconstructPath(dir); err != nil {
					return err
				}
				if _, err := ns.GetGeneration(dir.InodeID); err != nil {
					return err
				}
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())
	require.NoError(t, ns.CheckInvariants())
	assert.Equal(t, workers, ns.Stats().Edges)
}

type recordedOp struct {
	op     string
	status string
}

type recordingMetrics struct {
	mu    sync.Mutex
	ops   []recordedOp
	nodes int
	edges int
}

func (m *recordingMetrics) RecordOperation(_, operation, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, recordedOp{op: operation, status: status})
}

func (m *recordingMetrics) SetNodes(_ string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = n
}

func (m *recordingMetrics) SetEdges(_ string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges = n
}

func TestMetricsRecorded(t *testing.T) {
	rec := &recordingMetrics{}
	ns, root := newTestNamespace(t, Config{}, WithMetrics(rec))

	_, err := ns.AddChild(root, "a", ino(10), 1)
	require.NoError(t, err)
	_, err = ns.AddChild(root, "b", ino(11), 1)
	require.NoError(t, err)
	require.NoError(t, ns.Rename(root, "a", root, "c"))
	_, err = ns.ReconstructPath(Identity{InodeID: ino(10), Generation: 1})
	require.NoError(t, err)
	_, err = ns.GetGeneration(ino(99))
	require.Error(t, err)
	require.NoError(t, ns.RemoveChild(root, "b"))
	err = ns.RemoveChild(Identity{InodeID: rootID, Generation: 99}, "c")
	requireCode(t, err, ErrStale)
	_, err = ns.AddChild(root, "c", ino(12), 1)
	requireCode(t, err, ErrConflict)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	var names []string
	for _, op := range rec.ops {
		names = append(names, op.op)
	}
	assert.Equal(t, []string{
		opInitialize, opAddChild, opAddChild, opRename, opReconstructPath, opGetGeneration, opRemoveChild,
		opRemoveChild, opAddChild,
	}, names)
	assert.Equal(t, metrics.StatusSuccess, rec.ops[4].status)
	assert.Equal(t, metrics.StatusNotFound, rec.ops[5].status, "missing inode is a miss")
	assert.Equal(t, metrics.StatusNotFound, rec.ops[7].status, "stale parent is a miss")
	assert.Equal(t, metrics.StatusError, rec.ops[8].status, "conflict is a failure")
	assert.Equal(t, 2, rec.nodes)
	assert.Equal(t, 1, rec.edges)
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		code ErrorCode
		nfs  uint32
	}{
		{ErrNotFound, NFS3ErrNoEnt},
		{ErrStale, NFS3ErrStale},
		{ErrConflict, NFS3ErrExist},
		{ErrLoop, NFS3ErrServerFault},
		{ErrNameTooLong, NFS3ErrNameTooLong},
		{ErrPathTooLong, NFS3ErrNameTooLong},
		{ErrInvalidArgument, NFS3ErrInval},
		{ErrAlloc, NFS3ErrNoSpc},
		{ErrInternal, NFS3ErrServerFault},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.nfs, tt.code.NFSStatus())

			parsed, ok := ParseErrorCode(tt.code.String())
			require.True(t, ok)
			assert.Equal(t, tt.code, parsed)

			err := fmt.Errorf("wrapped: %w", newError(tt.code, "1.2/x", "boom"))
			assert.True(t, errors.Is(err, &Error{Code: tt.code}))
			assert.Equal(t, tt.nfs, NFSStatus(err))
		})
	}

	_, ok := ParseErrorCode("nope")
	assert.False(t, ok)
	assert.Equal(t, uint32(NFS3OK), NFSStatus(nil))
	assert.Equal(t, uint32(NFS3ErrIO), NFSStatus(errors.New("disk on fire")))
}
