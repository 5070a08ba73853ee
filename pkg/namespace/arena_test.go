package namespace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofs-namespace/pkg/hashtable"
)

func TestArenaReusesSlots(t *testing.T) {
	var a arena

	first := a.alloc(node{id: Identity{InodeID: ino(1)}})
	second := a.alloc(node{id: Identity{InodeID: ino(2)}})
	assert.Equal(t, 2, a.len())

	a.release(first)
	assert.Equal(t, 1, a.len())

	third := a.alloc(node{id: Identity{InodeID: ino(3)}})
	assert.Equal(t, first.slot, third.slot)
	assert.NotEqual(t, first.seq, third.seq)
	assert.Equal(t, ino(3), a.get(third).id.InodeID)
	assert.Equal(t, ino(2), a.get(second).id.InodeID)

	assert.Panics(t, func() { a.get(first) }, "stale handle")
	assert.Panics(t, func() { a.get(nodeRef{slot: 42}) }, "out of range")

	a.get(second).lookupCount = 1
	assert.Panics(t, func() { a.release(second) }, "referenced node")

	a.reset()
	assert.Zero(t, a.len())
}

func TestNodeEdges(t *testing.T) {
	n := &node{id: Identity{InodeID: ino(9), Generation: 1}}

	_, ok := n.firstEdge()
	assert.False(t, ok)
	assert.Contains(t, n.String(), "(no parent)")

	root := Identity{InodeID: rootID, Generation: 7}
	n.linkEdge(edge{parent: root, name: "etc"})
	n.linkEdge(edge{parent: root, name: "etc2"})
	assert.Equal(t, uint32(2), n.lookupCount)

	e, ok := n.firstEdge()
	require.True(t, ok)
	assert.Equal(t, "etc2", e.name)
	assert.Equal(t, "device:1 inode:9 (gen:1), linkcount:2, children:0, first_parent:1.2, name=etc2", n.String())

	removed, ok := n.unlinkEdge(rootID, "etc2")
	require.True(t, ok)
	assert.Equal(t, root, removed.parent)

	e, _ = n.firstEdge()
	assert.Equal(t, "etc", e.name)

	_, ok = n.unlinkEdge(rootID, "missing")
	assert.False(t, ok)
	assert.Equal(t, uint32(1), n.lookupCount)
}

func TestKeyHashes(t *testing.T) {
	g := hashtable.Geometry{IndexSize: 877, AlphabetLength: 26}
	keys := edgeKeys{order: hashtable.ClassicOrder, maxNameLen: 8}

	a := edgeKey{parent: ino(2), name: "etc"}
	b := edgeKey{parent: ino(3), name: "etc"}

	assert.Less(t, keys.Index(g, a), g.IndexSize)
	assert.NotEqual(t, keys.Order(g, a), keys.Order(g, b))
	assert.True(t, keys.Equal(a, edgeKey{parent: ino(2), name: "etc"}))
	assert.False(t, keys.Equal(a, b))
	assert.Equal(t, "parent:1.2, name:etc", keys.Format(a))

	assert.True(t, keys.Valid(a))
	assert.False(t, keys.Valid(edgeKey{parent: ino(2), name: "much-too-long"}))

	nodes := inodeKeys{}
	id := InodeID{Device: 1, Inode: 9}
	assert.Equal(t, uint32((3*(10+(9^1))+1999)%877), nodes.Index(hashtable.Geometry{IndexSize: 877, AlphabetLength: 10}, id))
	assert.Equal(t, uint64(9^6), nodes.Order(g, id))

	hashed := inodeKeys{order: hashtable.XXHashOrder}
	assert.NotEqual(t, hashed.Order(g, id), hashed.Order(g, InodeID{Device: 9, Inode: 1}))
}
