package namespace

import (
	"fmt"
	"strings"
)

// InodeID identifies a filesystem object independently of its generation.
type InodeID struct {
	Device uint64
	Inode  uint64
}

func (id InodeID) String() string {
	return fmt.Sprintf("%X.%d", id.Device, id.Inode)
}

// Identity is an InodeID plus the generation the caller believes it has.
type Identity struct {
	InodeID
	Generation uint32
}

func (id Identity) String() string {
	return fmt.Sprintf("%X.%d (gen:%d)", id.Device, id.Inode, id.Generation)
}

// edge is one (parent, name) link to a node. The parent generation is the
// one validated when the edge was created.
type edge struct {
	parent Identity
	name   string
}

func (e edge) key() edgeKey {
	return edgeKey{parent: e.parent.InodeID, name: e.name}
}

// node is one filesystem object known to the namespace.
type node struct {
	id          Identity
	lookupCount uint32
	childCount  uint32

	// parents is kept oldest first; the "first" edge used for path
	// reconstruction is the most recently linked one, parents[len-1].
	parents []edge
}

func (n *node) firstEdge() (edge, bool) {
	if len(n.parents) == 0 {
		return edge{}, false
	}
	return n.parents[len(n.parents)-1], true
}

func (n *node) linkEdge(e edge) {
	n.parents = append(n.parents, e)
	n.lookupCount++
}

// unlinkEdge removes the edge keyed by (parent, name) and returns it.
func (n *node) unlinkEdge(parent InodeID, name string) (edge, bool) {
	for i := len(n.parents) - 1; i >= 0; i-- {
		e := n.parents[i]
		if e.parent.InodeID != parent || e.name != name {
			continue
		}
		n.parents = append(n.parents[:i], n.parents[i+1:]...)
		if n.lookupCount == 0 {
			panic(fmt.Sprintf("namespace: lookup count underflow on %s", n.id))
		}
		n.lookupCount--
		return e, true
	}
	return edge{}, false
}

func (n *node) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "device:%X inode:%d (gen:%d), linkcount:%d, children:%d",
		n.id.Device, n.id.Inode, n.id.Generation, n.lookupCount, n.childCount)
	if e, ok := n.firstEdge(); ok {
		fmt.Fprintf(&b, ", first_parent:%s, name=%s", e.parent.InodeID, e.name)
	} else {
		b.WriteString(" (no parent)")
	}
	return b.String()
}
